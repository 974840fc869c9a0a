package plugin

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"testrig/internal/report"
	"testrig/internal/stream"
)

// Built-in plugin names.
const (
	PrettyStdout   = "report_tests_pretty_stdout"
	RawOutputLog   = "report_tests_raw_output_log"
	JUnitReport    = "junit_tests_report"
	FailOnIgnored  = "fail_on_ignored"
	junitFileName  = "report.xml"
	rawLogFileExt  = ".log"
	summaryHeading = "UNIT TEST SUMMARY"
)

// Builtins returns the compiled-in plugin factories.
func Builtins() map[string]Factory {
	return map[string]Factory{
		PrettyStdout:  func(pc *Context) (Plugin, error) { return &prettyStdout{pc: pc}, nil },
		RawOutputLog:  func(pc *Context) (Plugin, error) { return &rawOutputLog{pc: pc}, nil },
		JUnitReport:   func(pc *Context) (Plugin, error) { return &junitReport{pc: pc}, nil },
		FailOnIgnored: func(pc *Context) (Plugin, error) { return &failOnIgnored{pc: pc}, nil },
	}
}

type prettyStdout struct{ pc *Context }

func (p *prettyStdout) Name() string { return PrettyStdout }

func (p *prettyStdout) PostTest(ctx context.Context, args *Args) error {
	r := args.TestResult
	if r == nil {
		return nil
	}
	switch {
	case r.Passed():
		p.pc.Stream.Successf("%s: %d passed, %d ignored\n", filepath.Base(r.Source), r.Counts.Passed, r.Counts.Ignored)
	case r.Crashed():
		p.pc.Stream.Printf(stream.Normal, "%s: crashed with exit code %d\n", filepath.Base(r.Source), r.ExitCode)
	default:
		p.pc.Stream.Printf(stream.Normal, "%s: %d failed of %d\n", filepath.Base(r.Source), r.Counts.Failed, r.Counts.Total)
	}
	return nil
}

func (p *prettyStdout) Summary(ctx context.Context, args *Args) error {
	if args.Summary == nil || !p.pc.Stream.Enabled(stream.Normal) {
		return nil
	}
	report.Render(p.pc.Stream.Out(), *args.Summary, summaryHeading)
	return nil
}

// rawOutputLog keeps each fixture's unparsed output next to the test artifacts.
type rawOutputLog struct{ pc *Context }

func (p *rawOutputLog) Name() string { return RawOutputLog }

func (p *rawOutputLog) PostTestFixtureExecute(ctx context.Context, args *Args) error {
	if args.Result == nil || args.Test == "" {
		return nil
	}
	dir := p.pc.Paths.ArtifactsTest
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	name := strings.TrimSuffix(filepath.Base(args.Test), filepath.Ext(args.Test)) + rawLogFileExt
	return os.WriteFile(filepath.Join(dir, name), []byte(args.Result.Output), 0o644)
}

type junitReport struct{ pc *Context }

func (p *junitReport) Name() string { return JUnitReport }

type junitSuites struct {
	XMLName  xml.Name     `xml:"testsuites"`
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Skipped  int          `xml:"skipped,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Skipped  int         `xml:"skipped,attr"`
	Time     string      `xml:"time,attr"`
	Cases    []junitCase `xml:"testcase"`
	Stdout   string      `xml:"system-out,omitempty"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Failure   *junitMessage `xml:"failure,omitempty"`
	Skipped   *junitMessage `xml:"skipped,omitempty"`
}

type junitMessage struct {
	Message string `xml:"message,attr"`
}

func (p *junitReport) Summary(ctx context.Context, args *Args) error {
	if args.Summary == nil {
		return nil
	}
	doc := junitSuites{
		Tests:    args.Summary.Counts.Total,
		Failures: args.Summary.Counts.Failed,
		Skipped:  args.Summary.Counts.Ignored,
	}
	for _, r := range args.Summary.Results {
		suite := junitSuite{
			Name:     r.Name,
			Tests:    r.Counts.Total,
			Failures: r.Counts.Failed,
			Skipped:  r.Counts.Ignored,
			Time:     fmt.Sprintf("%.3f", r.Elapsed.Seconds()),
			Stdout:   strings.Join(r.Stdout, "\n"),
		}
		for _, c := range r.Successes {
			suite.Cases = append(suite.Cases, junitCase{Name: c.Test, Classname: r.Name})
		}
		for _, c := range r.Failures {
			suite.Cases = append(suite.Cases, junitCase{Name: c.Test, Classname: r.Name, Failure: &junitMessage{Message: c.Message}})
		}
		for _, c := range r.Ignores {
			suite.Cases = append(suite.Cases, junitCase{Name: c.Test, Classname: r.Name, Skipped: &junitMessage{Message: c.Message}})
		}
		doc.Suites = append(doc.Suites, suite)
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode junit report: %w", err)
	}
	dir := p.pc.Paths.ArtifactsTest
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, junitFileName)
	if err := os.WriteFile(path, append([]byte(xml.Header), data...), 0o644); err != nil {
		return err
	}
	p.pc.Logger.Printf("plugin: wrote %s", path)
	return nil
}

type failOnIgnored struct{ pc *Context }

func (p *failOnIgnored) Name() string { return FailOnIgnored }

func (p *failOnIgnored) Summary(ctx context.Context, args *Args) error {
	if args.Summary == nil || args.Summary.Counts.Ignored == 0 {
		return nil
	}
	p.pc.Failures.RegisterFailure(FailOnIgnored, fmt.Sprintf("%d test(s) ignored", args.Summary.Counts.Ignored))
	return nil
}
