package pipeline

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"testrig/internal/report"
)

var (
	summaryPattern   = regexp.MustCompile(`(\d+)\s+Tests\s+(\d+)\s+Failures\s+(\d+)\s+Ignored`)
	separatorPattern = regexp.MustCompile(`^-+$`)
)

// resultLinePattern matches "<path/test_x.c>:<line>:<test>:<STATUS>[:<msg>]"
// with arbitrary text before the file name.
func resultLinePattern(source string) *regexp.Regexp {
	base := regexp.QuoteMeta(filepath.Base(source))
	return regexp.MustCompile(`^(.*?)(?:\S*[/\\])?` + base + `:(\d+):([^:]+):(PASS|FAIL|IGNORE)(?::\s?(.*))?$`)
}

// ParseOutput turns a fixture's console output into a TestResult. The result
// depends only on output and source.
func ParseOutput(source, output string) report.TestResult {
	r := report.TestResult{
		Source:    source,
		Name:      stem(source),
		Successes: []report.TestCase{},
		Failures:  []report.TestCase{},
		Ignores:   []report.TestCase{},
		Stdout:    []string{},
		RawOutput: output,
	}
	pattern := resultLinePattern(source)

	output = strings.ReplaceAll(output, "\r\n", "\n")
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || separatorPattern.MatchString(trimmed) {
			continue
		}

		if m := pattern.FindStringSubmatch(line); m != nil {
			lineNo, _ := strconv.Atoi(m[2])
			c := report.TestCase{
				Test:   strings.TrimSpace(m[3]),
				Line:   lineNo,
				Stdout: strings.TrimSpace(m[1]),
			}
			msg := strings.TrimSpace(m[5])
			switch m[4] {
			case "PASS":
				r.Successes = append(r.Successes, c)
			case "FAIL":
				c.Message = reason(msg)
				r.Failures = append(r.Failures, c)
			case "IGNORE":
				c.Message = reason(msg)
				r.Ignores = append(r.Ignores, c)
			}
			continue
		}

		if m := summaryPattern.FindStringSubmatch(trimmed); m != nil {
			total, _ := strconv.Atoi(m[1])
			failed, _ := strconv.Atoi(m[2])
			ignored, _ := strconv.Atoi(m[3])
			r.Summary = &report.Counts{Total: total, Failed: failed, Ignored: ignored, Passed: total - failed - ignored}
			continue
		}
		if trimmed == "OK" || trimmed == "FAIL" {
			continue
		}
		r.Stdout = append(r.Stdout, strings.TrimRight(line, " \t"))
	}

	if r.Summary != nil {
		r.Counts = *r.Summary
	} else {
		r.Counts = report.Counts{
			Total:   len(r.Successes) + len(r.Failures) + len(r.Ignores),
			Passed:  len(r.Successes),
			Failed:  len(r.Failures),
			Ignored: len(r.Ignores),
		}
	}
	return r
}

func reason(msg string) string {
	if msg == "" {
		return report.NoReason
	}
	return msg
}

// SanityError is returned in strict mode when a result does not add up.
type SanityError struct {
	File     string
	Messages []string
}

func (e *SanityError) Error() string {
	return fmt.Sprintf("%s: test results failed sanity checks:\n  %s", e.File, strings.Join(e.Messages, "\n  "))
}

// Sanity check levels.
const (
	SanityNone     = "none"
	SanityNormal   = "normal"
	SanityThorough = "thorough"
)

// SanityChecker compares parsed results with the fixture's own summary and
// exit code. Exit codes saturate at Ceiling on most platforms.
type SanityChecker struct {
	Level   string
	Strict  bool
	Ceiling int
}

// Check returns the mismatches found in r.
func (c SanityChecker) Check(r report.TestResult) []string {
	if c.Level == "" || c.Level == SanityNone {
		return nil
	}
	var msgs []string
	if r.Summary == nil {
		msgs = append(msgs, "no test summary found in output; the test executable may have crashed")
	} else {
		s := r.Summary
		if n := len(r.Ignores); n != s.Ignored {
			msgs = append(msgs, fmt.Sprintf("%d ignored test(s) reported but summary says %d", n, s.Ignored))
		}
		if n := len(r.Failures); n != s.Failed {
			msgs = append(msgs, fmt.Sprintf("%d failed test(s) reported but summary says %d", n, s.Failed))
		}
		if n := len(r.Successes) + len(r.Failures) + len(r.Ignores); n != s.Total {
			msgs = append(msgs, fmt.Sprintf("%d test result(s) reported but summary says %d tests", n, s.Total))
		}
	}

	if c.Level == SanityThorough {
		ceiling := c.Ceiling
		if ceiling <= 0 {
			ceiling = 255
		}
		failures := r.Counts.Failed
		exit := r.ExitCode
		switch {
		case exit < ceiling && failures != exit:
			msgs = append(msgs, fmt.Sprintf("%d failure(s) but exit code %d", failures, exit))
		case exit >= ceiling && failures < ceiling:
			msgs = append(msgs, fmt.Sprintf("%d failure(s) but exit code %d at the %d ceiling", failures, exit, ceiling))
		}
	}
	return msgs
}

// Verify runs Check and, in strict mode, turns mismatches into a SanityError.
func (c SanityChecker) Verify(r report.TestResult) ([]string, error) {
	msgs := c.Check(r)
	if len(msgs) > 0 && c.Strict {
		return msgs, &SanityError{File: r.Source, Messages: msgs}
	}
	return msgs, nil
}
