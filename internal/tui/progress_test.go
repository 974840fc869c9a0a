package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"testrig/internal/pipeline"
	"testrig/internal/report"
)

func TestRowUpdateMsg(t *testing.T) {
	m := NewTestModel("Tests", []string{"test/test_a.c", "test/test_b.c"})

	updated, _ := m.Update(RowUpdateMsg{
		Key:    "test/test_a.c",
		Fields: map[string]string{ColStatus: "compiling", ColResult: "-"},
	})
	m = updated.(ProgressModel)

	if m.rows[0].Fields[1] != "compiling" {
		t.Errorf("expected STATUS=compiling, got %q", m.rows[0].Fields[1])
	}
	if m.rows[0].Fields[0] != "test_a" {
		t.Errorf("expected TEST=test_a, got %q", m.rows[0].Fields[0])
	}
	if m.rows[1].Fields[1] != "pending" {
		t.Errorf("expected row 2 STATUS=pending, got %q", m.rows[1].Fields[1])
	}
}

func TestRowUpdateMsg_UnknownKey(t *testing.T) {
	m := NewTestModel("", []string{"test/test_a.c"})

	updated, _ := m.Update(RowUpdateMsg{
		Key:    "test/test_zzz.c",
		Fields: map[string]string{ColStatus: "passed"},
	})
	m = updated.(ProgressModel)

	if m.rows[0].Fields[1] != "pending" {
		t.Errorf("expected STATUS unchanged, got %q", m.rows[0].Fields[1])
	}
}

func TestWorkDoneMsg(t *testing.T) {
	m := NewTestModel("", nil)

	updated, cmd := m.Update(WorkDoneMsg{})
	m = updated.(ProgressModel)

	if !m.Done() {
		t.Error("expected Done() to be true after WorkDoneMsg")
	}
	if cmd == nil {
		t.Error("expected tea.Quit command")
	}
}

func TestErrorMsg(t *testing.T) {
	m := NewTestModel("", nil)

	updated, cmd := m.Update(ErrorMsg{Err: errors.New("config broke")})
	m = updated.(ProgressModel)

	if !m.Done() || m.Err() == nil {
		t.Fatal("expected done with error after ErrorMsg")
	}
	if cmd == nil {
		t.Error("expected tea.Quit command")
	}
	if !strings.Contains(m.View(), "config broke") {
		t.Errorf("view should show the error, got %q", m.View())
	}
}

func TestView(t *testing.T) {
	m := NewTestModel("Unit tests", []string{"test/test_a.c", "test/test_b.c"})
	m.Apply(RowUpdateMsg{Key: "test/test_b.c", Fields: map[string]string{ColStatus: "passed", ColResult: "3/3 passed"}})

	view := m.View()
	for _, want := range []string{"Unit tests", ColTest, ColStatus, ColResult, ColTime, "test_a", "pending", "3/3 passed", "Testing 1/2"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q:\n%s", want, view)
		}
	}
}

func TestProgressCountsOnlyFinalStatuses(t *testing.T) {
	m := NewTestModel("", []string{"a.c", "b.c", "c.c", "d.c"})
	m.Apply(RowUpdateMsg{Key: "a.c", Fields: map[string]string{ColStatus: "compiling"}})
	m.Apply(RowUpdateMsg{Key: "b.c", Fields: map[string]string{ColStatus: "failed"}})
	m.Apply(RowUpdateMsg{Key: "c.c", Fields: map[string]string{ColStatus: "cached"}})

	finished, total := m.progressCounts()
	if total != 4 || finished != 2 {
		t.Errorf("progressCounts() = %d/%d, want 2/4", finished, total)
	}
}

func TestViewHidesSpinnerWhenDone(t *testing.T) {
	m := NewTestModel("", []string{"a.c"})
	updated, _ := m.Update(WorkDoneMsg{})
	m = updated.(ProgressModel)

	if strings.Contains(m.View(), "Testing") {
		t.Error("expected view to NOT contain the progress footer when done")
	}
}

func TestTickStopsAfterDone(t *testing.T) {
	m := NewTestModel("", []string{"a.c"})
	updated, cmd := m.Update(tickMsg{})
	m = updated.(ProgressModel)
	if m.tick != 1 || cmd == nil {
		t.Fatalf("expected tick=1 with another tick scheduled, got %d", m.tick)
	}

	updated, _ = m.Update(WorkDoneMsg{})
	m = updated.(ProgressModel)
	if _, cmd := m.Update(tickMsg{}); cmd != nil {
		t.Error("expected no tick command after done")
	}
}

func TestCtrlC(t *testing.T) {
	m := NewTestModel("", nil)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = updated.(ProgressModel)

	if !m.Done() {
		t.Error("expected Done() to be true after ctrl+c")
	}
	if cmd == nil {
		t.Error("expected tea.Quit command")
	}
}

func TestTestReporter(t *testing.T) {
	var msgs []tea.Msg
	r := NewTestReporter(func(m tea.Msg) { msgs = append(msgs, m) })

	r.Start("test/test_a.c")
	r.Stage("test/test_a.c", pipeline.StageLinking)
	r.Complete(pipeline.Outcome{
		Test:    "test/test_a.c",
		Result:  &report.TestResult{Counts: report.Counts{Total: 4, Passed: 2, Failed: 1, Ignored: 1}},
		Elapsed: 1500 * time.Millisecond,
	})

	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if got := msgs[1].(RowUpdateMsg).Fields[ColStatus]; got != "linking" {
		t.Errorf("stage status = %q", got)
	}
	final := msgs[2].(RowUpdateMsg)
	if final.Key != "test/test_a.c" {
		t.Errorf("key = %q", final.Key)
	}
	want := map[string]string{ColStatus: "failed", ColResult: "2/4 passed, 1 failed, 1 ignored", ColTime: "1.5s"}
	for k, v := range want {
		if final.Fields[k] != v {
			t.Errorf("%s = %q, want %q", k, final.Fields[k], v)
		}
	}
}

func TestCompleteFieldsError(t *testing.T) {
	f := CompleteFields(pipeline.Outcome{Err: errors.New("tool \"test_compiler\" exited with code 1\n> gcc ...")})
	if f[ColStatus] != "error" || f[ColResult] != `tool "test_compiler" exited with code 1` {
		t.Errorf("unexpected fields %v", f)
	}
}

func TestCompleteFieldsCrash(t *testing.T) {
	f := CompleteFields(pipeline.Outcome{Result: &report.TestResult{ExitCode: 139}})
	if f[ColStatus] != "failed" || f[ColResult] != "crashed (exit 139)" {
		t.Errorf("unexpected fields %v", f)
	}
}

func TestStaticTable(t *testing.T) {
	table := NewStaticTable(NewTestModel("", []string{"test/test_a.c"}))
	table.Send(RowUpdateMsg{Key: "test/test_a.c", Fields: map[string]string{ColStatus: "passed"}})
	table.Send(WorkDoneMsg{})

	var buf bytes.Buffer
	if err := table.Render(&buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "passed") || strings.Contains(out, "Testing") {
		t.Errorf("unexpected table:\n%s", out)
	}
}

func TestDetectMode(t *testing.T) {
	env := func(vals map[string]string) func(string) string {
		return func(k string) string { return vals[k] }
	}
	var buf bytes.Buffer
	tests := []struct {
		name       string
		noProgress bool
		json       bool
		env        map[string]string
		want       OutputMode
	}{
		{"json wins", true, true, nil, ModeJSON},
		{"no progress", true, false, nil, ModePlain},
		{"ci", false, false, map[string]string{"CI": "true"}, ModePlain},
		{"buffer is not a terminal", false, false, map[string]string{"TERM": "xterm"}, ModePlain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectMode(&buf, tt.noProgress, tt.json, env(tt.env)); got != tt.want {
				t.Errorf("detectMode() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTruncateWithEllipsis(t *testing.T) {
	tests := []struct {
		input string
		max   int
		want  string
	}{
		{"short", 10, "short"},
		{"a longer string here", 10, "...ng here"},
		{"abc", 3, "abc"},
		{"abcd", 3, "bcd"},
		{"", 5, ""},
		{"hello", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncateWithEllipsis(tt.input, tt.max); got != tt.want {
			t.Errorf("TruncateWithEllipsis(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
		}
	}
}

func TestMarqueeText(t *testing.T) {
	tests := []struct {
		text  string
		width int
		tick  int
		want  string
	}{
		{"short", 10, 0, "short"},
		{"hello world here", 5, 0, "hello"},
		{"hello world here", 5, 1, "ello "},
		{"abcdef", 4, 6, "   a"},
	}
	for _, tt := range tests {
		if got := marqueeText(tt.text, tt.width, tt.tick); got != tt.want {
			t.Errorf("marqueeText(%q, %d, %d) = %q, want %q", tt.text, tt.width, tt.tick, got, tt.want)
		}
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := map[time.Duration]string{
		250 * time.Millisecond:  "250ms",
		1500 * time.Millisecond: "1.5s",
		42 * time.Second:        "42s",
		125 * time.Second:       "2m05s",
	}
	for d, want := range tests {
		if got := formatElapsed(d); got != want {
			t.Errorf("formatElapsed(%s) = %q, want %q", d, got, want)
		}
	}
}

func TestStatusWriterPhases(t *testing.T) {
	clock := time.Unix(0, 0)
	var buf bytes.Buffer
	sw := newStatusWriter(&buf, func() time.Time { return clock })

	if got := sw.line(0); got != "" {
		t.Fatalf("no phase should render nothing, got %q", got)
	}
	sw.Phase("Resolving configuration")
	clock = clock.Add(250 * time.Millisecond)
	if got := sw.line(0); !strings.Contains(got, "[1] Resolving configuration (250ms)") {
		t.Errorf("unexpected status line %q", got)
	}
	sw.Phase("Loading plugins")
	clock = clock.Add(2 * time.Second)

	phases := sw.Stop()
	want := []PhaseTiming{
		{Name: "Resolving configuration", Elapsed: 250 * time.Millisecond},
		{Name: "Loading plugins", Elapsed: 2 * time.Second},
	}
	if len(phases) != len(want) {
		t.Fatalf("got %d phases, want %d", len(phases), len(want))
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase %d = %+v, want %+v", i, phases[i], want[i])
		}
	}
	if again := sw.Stop(); len(again) != 2 {
		t.Errorf("second Stop should return the same timings, got %v", again)
	}
}

func TestRunningRowsShowLiveTime(t *testing.T) {
	m := NewTestModel("", []string{"a.c", "b.c"})
	updated, _ := m.Update(RowUpdateMsg{Key: "a.c", Fields: map[string]string{ColStatus: "compiling"}})
	m = updated.(ProgressModel)
	updated, _ = m.Update(RowUpdateMsg{Key: "b.c", Fields: map[string]string{ColStatus: "failed", ColTime: "1.2s"}})
	m = updated.(ProgressModel)

	updated, _ = m.Update(tickMsg(time.Now().Add(3 * time.Second)))
	m = updated.(ProgressModel)

	if live, ok := m.runningTime(0); !ok || !strings.HasPrefix(live, "3.") {
		t.Errorf("runningTime(0) = %q, %v; want about 3s", live, ok)
	}
	if _, ok := m.runningTime(1); ok {
		t.Error("finished rows have no live time")
	}
	if !strings.Contains(m.View(), "1 failing") {
		t.Errorf("footer should count failing tests:\n%s", m.View())
	}
}
