package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"testrig/internal/config"
	"testrig/internal/graph"
	"testrig/internal/logx"
	"testrig/internal/tools"
)

var includePattern = regexp.MustCompile(`^\s*#\s*include\s+["<]([^">]+)[">]`)

// Execer runs an expanded command.
type Execer interface {
	Exec(ctx context.Context, cmd tools.Command, opts tools.Options) (tools.Result, error)
}

// CommandBuilder expands tool descriptors.
type CommandBuilder interface {
	BuildCommandLine(tool tools.Descriptor, extraFlags []string, args ...any) (tools.Command, error)
}

// ScanIncludes lists the include names of file without following them.
func ScanIncludes(file string) ([]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("scan includes: %w", err)
	}
	defer f.Close()

	var includes []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if m := includePattern.FindStringSubmatch(scanner.Text()); m != nil {
			includes = append(includes, filepath.Base(strings.TrimSpace(m[1])))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan includes of %s: %w", file, err)
	}
	return dedupe(includes), nil
}

// Preprocessor extracts a test's includes and, when enabled, runs files
// through the configured preprocessor tools.
type Preprocessor struct {
	Layout   Layout
	Enabled  bool
	Tools    map[string]tools.Descriptor
	Commands CommandBuilder
	Exec     Execer
	Logger   logx.Logger
}

// Includes returns the header names test includes. The list is cached beside
// the other preprocessing output and reused while newer than the test.
func (p *Preprocessor) Includes(ctx context.Context, test string) ([]string, error) {
	cachePath := p.Layout.IncludesCache(test)
	if fresh(cachePath, test) {
		var cached []string
		data, err := os.ReadFile(cachePath)
		if err == nil && yaml.Unmarshal(data, &cached) == nil {
			return cached, nil
		}
	}

	var (
		includes []string
		err      error
	)
	if p.Enabled {
		includes, err = p.preprocessIncludes(ctx, test)
	} else {
		includes, err = ScanIncludes(test)
	}
	if err != nil {
		return nil, err
	}
	if includes == nil {
		includes = []string{}
	}

	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(includes)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(cachePath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write includes cache: %w", err)
	}
	return includes, nil
}

// preprocessIncludes runs the includes preprocessor, which prints a make
// rule naming every header, found or not.
func (p *Preprocessor) preprocessIncludes(ctx context.Context, test string) ([]string, error) {
	tool, ok := p.Tools[config.ToolTestIncludesPreprocessor]
	if !ok {
		return nil, fmt.Errorf("tool %q is not configured", config.ToolTestIncludesPreprocessor)
	}
	cmd, err := p.Commands.BuildCommandLine(tool, nil, test)
	if err != nil {
		return nil, err
	}
	res, err := p.Exec.Exec(ctx, cmd, tools.Options{})
	if err != nil {
		return nil, err
	}
	rules, err := graph.ParseDependencies(res.Output)
	if err != nil {
		return nil, fmt.Errorf("parse includes of %s: %w", test, err)
	}

	testBase := filepath.Base(test)
	var includes []string
	for _, r := range rules {
		for _, prereq := range r.Prereqs {
			base := filepath.Base(prereq)
			if base == testBase || filepath.Ext(base) != p.Layout.Ext.Header {
				continue
			}
			includes = append(includes, base)
		}
	}
	return dedupe(includes), nil
}

// File returns the file a generator should read: the preprocessed copy when
// preprocessing is enabled, otherwise file itself.
func (p *Preprocessor) File(ctx context.Context, file string) (string, error) {
	if !p.Enabled {
		return file, nil
	}
	out := p.Layout.Preprocessed(file)
	if fresh(out, file) {
		return out, nil
	}
	tool, ok := p.Tools[config.ToolTestFilePreprocessor]
	if !ok {
		return "", fmt.Errorf("tool %q is not configured", config.ToolTestFilePreprocessor)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", err
	}
	cmd, err := p.Commands.BuildCommandLine(tool, nil, file, out)
	if err != nil {
		return "", err
	}
	if _, err := p.Exec.Exec(ctx, cmd, tools.Options{}); err != nil {
		return "", err
	}
	return out, nil
}

// fresh reports whether out exists and is not older than in.
func fresh(out, in string) bool {
	oi, err := os.Stat(out)
	if err != nil {
		return false
	}
	ii, err := os.Stat(in)
	if err != nil {
		return false
	}
	return !ii.ModTime().After(oi.ModTime())
}

func dedupe(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := list[:0:0]
	for _, s := range list {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
