package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// NoReason is recorded for ignored or failed tests that carry no message.
const NoReason = "No reason given"

// TestCase is one test function outcome from a fixture's output.
type TestCase struct {
	Test    string `yaml:"test" json:"test"`
	Line    int    `yaml:"line" json:"line"`
	Message string `yaml:"message,omitempty" json:"message,omitempty"`
	// Stdout is text the test printed on its result line before the file name.
	Stdout string `yaml:"stdout,omitempty" json:"stdout,omitempty"`
}

// Counts tallies test cases.
type Counts struct {
	Total   int `yaml:"total" json:"total"`
	Passed  int `yaml:"passed" json:"passed"`
	Failed  int `yaml:"failed" json:"failed"`
	Ignored int `yaml:"ignored" json:"ignored"`
}

// Add accumulates o into c.
func (c *Counts) Add(o Counts) {
	c.Total += o.Total
	c.Passed += o.Passed
	c.Failed += o.Failed
	c.Ignored += o.Ignored
}

// TestResult is the parsed outcome of one test executable, stored in the
// results directory as <test>.pass or <test>.fail.
type TestResult struct {
	Source    string     `yaml:"source" json:"source"`
	Name      string     `yaml:"name" json:"name"`
	RunID     string     `yaml:"run_id,omitempty" json:"run_id,omitempty"`
	Successes []TestCase `yaml:"successes" json:"successes"`
	Failures  []TestCase `yaml:"failures" json:"failures"`
	Ignores   []TestCase `yaml:"ignores" json:"ignores"`
	Stdout    []string   `yaml:"stdout" json:"stdout"`
	Counts    Counts     `yaml:"counts" json:"counts"`
	// Summary holds the counts printed by the fixture itself, when present.
	Summary    *Counts       `yaml:"summary,omitempty" json:"summary,omitempty"`
	ExitCode   int           `yaml:"exit_code" json:"exit_code"`
	Elapsed    time.Duration `yaml:"elapsed" json:"elapsed"`
	RawOutput  string        `yaml:"raw_output,omitempty" json:"raw_output,omitempty"`
	Executable string        `yaml:"executable,omitempty" json:"executable,omitempty"`
}

// Passed reports whether no test case failed and the executable did not
// crash.
func (r TestResult) Passed() bool {
	return r.Counts.Failed == 0 && !r.Crashed()
}

// Crashed reports an executable that exited non-zero without printing its
// own summary.
func (r TestResult) Crashed() bool {
	return r.Summary == nil && r.ExitCode != 0
}

// WriteResultFile stores r at path atomically.
func WriteResultFile(path string, r TestResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadResultFile loads a stored result.
func ReadResultFile(path string) (TestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TestResult{}, err
	}
	var r TestResult
	if err := yaml.Unmarshal(data, &r); err != nil {
		return TestResult{}, fmt.Errorf("parse result file %s: %w", path, err)
	}
	if r.Name == "" {
		base := filepath.Base(path)
		r.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return r, nil
}
