package engine

import (
	"testrig/internal/pipeline"
	"testrig/internal/plugin"
	"testrig/internal/report"
)

// Summary is everything one run produced. The process exit status is derived
// from it rather than tracked globally.
type Summary struct {
	RunID          string
	Report         report.Summary
	Outcomes       []pipeline.Outcome
	PluginFailures []plugin.Failure
	// Errors holds run-level failures outside any single test.
	Errors   []string
	Artifact string
	// SanityFailed is set when a strict sanity check rejected a result.
	SanityFailed       bool
	FailOnTestFailures bool
}

// ExitCode is 1 when any test errored, a plugin registered a failure, a
// strict sanity check failed, or run-level errors occurred. Failing tests
// only count when FailOnTestFailures is set.
func (s *Summary) ExitCode() int {
	if len(s.Errors) > 0 || len(s.PluginFailures) > 0 || s.SanityFailed {
		return 1
	}
	for _, o := range s.Outcomes {
		if o.Err != nil {
			return 1
		}
	}
	if s.FailOnTestFailures && s.Report.Counts.Failed > 0 {
		return 1
	}
	return 0
}

// TestError names a test that could not be built or run.
type TestError struct {
	Test  string `json:"test"`
	Error string `json:"error"`
}

// JSONSummary is the machine-readable form printed with --json.
type JSONSummary struct {
	RunID          string              `json:"run_id"`
	Counts         report.Counts       `json:"counts"`
	Results        []report.TestResult `json:"results"`
	TestErrors     []TestError         `json:"test_errors,omitempty"`
	Warnings       []string            `json:"warnings,omitempty"`
	PluginFailures []plugin.Failure    `json:"plugin_failures,omitempty"`
	Errors         []string            `json:"errors,omitempty"`
	Artifact       string              `json:"artifact,omitempty"`
	ExitCode       int                 `json:"exit_code"`
}

// JSON converts the summary for encoding.
func (s *Summary) JSON() JSONSummary {
	out := JSONSummary{
		RunID:          s.RunID,
		Counts:         s.Report.Counts,
		Results:        s.Report.Results,
		PluginFailures: s.PluginFailures,
		Errors:         s.Errors,
		Artifact:       s.Artifact,
		ExitCode:       s.ExitCode(),
	}
	if out.Results == nil {
		out.Results = []report.TestResult{}
	}
	for _, o := range s.Outcomes {
		if o.Err != nil {
			out.TestErrors = append(out.TestErrors, TestError{Test: o.Test, Error: o.Err.Error()})
		}
		out.Warnings = append(out.Warnings, o.Warnings...)
	}
	return out
}
