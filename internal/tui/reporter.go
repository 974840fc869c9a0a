package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"testrig/internal/config"
	"testrig/internal/pipeline"
)

// Column headers of the test table.
const (
	ColTest   = "TEST"
	ColStatus = "STATUS"
	ColResult = "RESULT"
	ColTime   = "TIME"
)

// TestColumns is the layout used for test runs.
func TestColumns() []Column {
	return []Column{
		{Header: ColTest, Width: 32},
		{Header: ColStatus, Width: 13},
		{Header: ColResult, Width: 24},
		{Header: ColTime, Width: 8},
	}
}

// NewTestModel pre-populates one pending row per test, keyed by path.
func NewTestModel(title string, tests []string) ProgressModel {
	m := NewProgressModel(title, TestColumns())
	for _, t := range tests {
		m.AddRow(t, []string{displayName(t), string(pipeline.StagePending), "", ""})
	}
	return m
}

// TestReporter adapts pipeline progress notifications to row updates.
type TestReporter struct {
	send func(tea.Msg)
}

// NewTestReporter sends every update through send.
func NewTestReporter(send func(tea.Msg)) *TestReporter {
	return &TestReporter{send: send}
}

// Start implements pipeline.ProgressReporter.
func (r *TestReporter) Start(test string) {
	r.send(RowUpdateMsg{Key: test, Fields: map[string]string{ColStatus: string(pipeline.StagePreprocessing)}})
}

// Stage implements pipeline.ProgressReporter.
func (r *TestReporter) Stage(test string, stage pipeline.Stage) {
	r.send(RowUpdateMsg{Key: test, Fields: map[string]string{ColStatus: string(stage)}})
}

// Complete implements pipeline.ProgressReporter.
func (r *TestReporter) Complete(o pipeline.Outcome) {
	r.send(RowUpdateMsg{Key: o.Test, Fields: CompleteFields(o)})
}

// CompleteFields renders the final columns for an outcome.
func CompleteFields(o pipeline.Outcome) map[string]string {
	result := "-"
	switch {
	case o.Err != nil:
		result, _, _ = strings.Cut(o.Err.Error(), "\n")
	case o.Result != nil && o.Result.Crashed():
		result = fmt.Sprintf("crashed (exit %d)", o.Result.ExitCode)
	case o.Result != nil:
		c := o.Result.Counts
		result = fmt.Sprintf("%d/%d passed", c.Passed, c.Total)
		if c.Failed > 0 {
			result += fmt.Sprintf(", %d failed", c.Failed)
		}
		if c.Ignored > 0 {
			result += fmt.Sprintf(", %d ignored", c.Ignored)
		}
	}
	return map[string]string{
		ColStatus: o.Status(),
		ColResult: result,
		ColTime:   formatElapsed(o.Elapsed.Round(time.Millisecond)),
	}
}

// StaticTable collects row updates without a terminal and renders the
// finished table once.
type StaticTable struct {
	mu    sync.Mutex
	model ProgressModel
}

// NewStaticTable wraps a pre-populated model.
func NewStaticTable(model ProgressModel) *StaticTable {
	return &StaticTable{model: model}
}

// Send accepts the same messages a running program would.
func (s *StaticTable) Send(msg tea.Msg) {
	u, ok := msg.(RowUpdateMsg)
	if !ok {
		return
	}
	s.mu.Lock()
	s.model.Apply(u)
	s.mu.Unlock()
}

// Render writes the final table to w.
func (s *StaticTable) Render(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model.Finish()
	_, err := io.WriteString(w, s.model.View())
	return err
}

func displayName(path string) string {
	return NonEmptyOrDash(config.TestName(path))
}
