package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// FileCases groups test cases under the test file they came from.
type FileCases struct {
	Source string     `json:"source"`
	Cases  []TestCase `json:"cases"`
}

// Summary aggregates every result of a run.
type Summary struct {
	Counts   Counts       `json:"counts"`
	Results  []TestResult `json:"results"`
	Failures []FileCases  `json:"failures,omitempty"`
	Ignores  []FileCases  `json:"ignores,omitempty"`
	Stdout   []FileCases  `json:"stdout,omitempty"`
}

// Collect reads result files and aggregates them by source file. Files that
// do not exist are skipped; other read errors are joined.
func Collect(resultFiles []string) (Summary, error) {
	var (
		results []TestResult
		errs    []error
	)
	for _, path := range resultFiles {
		r, err := ReadResultFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		results = append(results, r)
	}
	return Aggregate(results), errors.Join(errs...)
}

// Aggregate builds a summary from in-memory results.
func Aggregate(results []TestResult) Summary {
	sorted := append([]TestResult(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Source < sorted[j].Source })

	var s Summary
	s.Results = sorted
	for _, r := range sorted {
		s.Counts.Add(r.Counts)
		source := filepath.Base(r.Source)
		if len(r.Failures) > 0 {
			s.Failures = append(s.Failures, FileCases{Source: source, Cases: r.Failures})
		}
		if len(r.Ignores) > 0 {
			s.Ignores = append(s.Ignores, FileCases{Source: source, Cases: r.Ignores})
		}
		var out []TestCase
		for _, group := range [][]TestCase{r.Successes, r.Failures, r.Ignores} {
			for _, c := range group {
				if c.Stdout != "" {
					out = append(out, TestCase{Test: c.Test, Line: c.Line, Message: c.Stdout})
				}
			}
		}
		for _, line := range r.Stdout {
			out = append(out, TestCase{Message: line})
		}
		if len(out) > 0 {
			s.Stdout = append(s.Stdout, FileCases{Source: source, Cases: out})
		}
	}
	return s
}

// Render prints the summary banners. header, when set, is printed first.
func Render(w io.Writer, s Summary, header string) {
	r := lipgloss.NewRenderer(w)
	title := r.NewStyle().Bold(true)
	failed := r.NewStyle().Foreground(lipgloss.Color("1"))
	ignored := r.NewStyle().Foreground(lipgloss.Color("3"))
	passed := r.NewStyle().Foreground(lipgloss.Color("2"))

	if header != "" {
		fmt.Fprintln(w, title.Render(header))
		fmt.Fprintln(w)
	}

	if s.Counts.Total == 0 {
		fmt.Fprintln(w, ignored.Render("No tests executed."))
		return
	}

	if len(s.Stdout) > 0 {
		banner(w, title, "TEST OUTPUT")
		for _, fc := range s.Stdout {
			fmt.Fprintf(w, "[%s]\n", fc.Source)
			for _, c := range fc.Cases {
				if c.Test != "" {
					fmt.Fprintf(w, "  - %s: %q\n", c.Test, c.Message)
				} else {
					fmt.Fprintf(w, "  - %q\n", c.Message)
				}
			}
		}
		fmt.Fprintln(w)
	}

	if len(s.Ignores) > 0 {
		banner(w, ignored, "IGNORED TEST SUMMARY")
		writeCases(w, s.Ignores)
	}
	if len(s.Failures) > 0 {
		banner(w, failed, "FAILED TEST SUMMARY")
		writeCases(w, s.Failures)
	}

	banner(w, title, "OVERALL TEST SUMMARY")
	fmt.Fprintf(w, "TESTED:  %d\n", s.Counts.Total)
	fmt.Fprintf(w, "PASSED:  %s\n", passed.Render(fmt.Sprint(s.Counts.Passed)))
	if s.Counts.Failed > 0 {
		fmt.Fprintf(w, "FAILED:  %s\n", failed.Render(fmt.Sprint(s.Counts.Failed)))
	} else {
		fmt.Fprintf(w, "FAILED:  %d\n", s.Counts.Failed)
	}
	if s.Counts.Ignored > 0 {
		fmt.Fprintf(w, "IGNORED: %s\n", ignored.Render(fmt.Sprint(s.Counts.Ignored)))
	} else {
		fmt.Fprintf(w, "IGNORED: %d\n", s.Counts.Ignored)
	}
	fmt.Fprintln(w)
}

func banner(w io.Writer, style lipgloss.Style, text string) {
	rule := strings.Repeat("-", len(text))
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, style.Render(text))
	fmt.Fprintln(w, rule)
}

func writeCases(w io.Writer, groups []FileCases) {
	for _, fc := range groups {
		fmt.Fprintf(w, "[%s]\n", fc.Source)
		for _, c := range fc.Cases {
			fmt.Fprintf(w, "  Test: %s\n", c.Test)
			fmt.Fprintf(w, "  At line (%d): %q\n", c.Line, c.Message)
		}
		fmt.Fprintln(w)
	}
}
