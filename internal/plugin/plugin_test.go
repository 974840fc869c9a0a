package plugin

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"testrig/internal/config"
	"testrig/internal/paths"
	"testrig/internal/report"
	"testrig/internal/stream"
	"testrig/internal/tools"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newContext(t *testing.T, root string, enabled []string, loadPaths []string) *Context {
	t.Helper()
	en := make([]any, len(enabled))
	for i, e := range enabled {
		en[i] = e
	}
	lp := make([]any, len(loadPaths))
	for i, p := range loadPaths {
		lp[i] = p
	}
	doc := config.Document{
		"project": map[string]any{"build_root": "build"},
		"paths":   map[string]any{"test": []any{"test"}},
		"plugins": map[string]any{"enabled": en, "load_paths": lp},
	}
	r, err := config.Resolve(config.Options{Root: root}, config.Layer{Name: "test", Doc: doc})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return &Context{
		Config:   r,
		Executor: tools.NewExecutor(nil, tools.Shell{Program: "/bin/sh", Flag: "-c"}, root, nil, nil),
		Commands: tools.Builder{Lists: r},
		Paths:    r.Build,
	}
}

type recorder struct {
	name  string
	calls *[]string
	err   error
	panic bool
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) PreTest(ctx context.Context, args *Args) error {
	*r.calls = append(*r.calls, r.name+":"+args.Test)
	if r.panic {
		panic("kaboom")
	}
	return r.err
}

func TestManagerInvokesInLoadOrder(t *testing.T) {
	var calls []string
	m := NewManager(nil)
	m.Add(&recorder{name: "first", calls: &calls})
	m.Add(&recorder{name: "second", calls: &calls})

	if err := m.Invoke(context.Background(), PreTest, &Args{Test: "test_a.c"}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if diff := cmp.Diff([]string{"first:test_a.c", "second:test_a.c"}, calls); diff != "" {
		t.Fatalf("call order mismatch (-want +got):\n%s", diff)
	}
	if err := m.Invoke(context.Background(), PostTest, nil); err != nil {
		t.Fatalf("hooks without handlers are no-ops: %v", err)
	}
	if diff := cmp.Diff([]string{"first", "second"}, m.Handlers(PreTest)); diff != "" {
		t.Fatalf("handlers mismatch (-want +got):\n%s", diff)
	}
}

func TestManagerStopsOnFirstError(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	m := NewManager(nil)
	m.Add(&recorder{name: "bad", calls: &calls, err: boom})
	m.Add(&recorder{name: "never", calls: &calls})

	err := m.Invoke(context.Background(), PreTest, &Args{})
	var hookErr *HookError
	if !errors.As(err, &hookErr) {
		t.Fatalf("expected HookError, got %v", err)
	}
	if hookErr.Plugin != "bad" || hookErr.Hook != PreTest || !errors.Is(err, boom) {
		t.Fatalf("unexpected hook error: %+v", hookErr)
	}
	if len(calls) != 1 {
		t.Fatalf("chain should stop after the failure, calls = %v", calls)
	}
}

func TestManagerRecoversPanics(t *testing.T) {
	var calls []string
	m := NewManager(nil)
	m.Add(&recorder{name: "wild", calls: &calls, panic: true})

	err := m.Invoke(context.Background(), PreTest, &Args{})
	var hookErr *HookError
	if !errors.As(err, &hookErr) || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("expected recovered panic as HookError, got %v", err)
	}
}

func TestLoadBuiltinsDedupAndMissing(t *testing.T) {
	root := t.TempDir()
	pc := newContext(t, root, []string{FailOnIgnored, PrettyStdout, FailOnIgnored}, nil)
	m, err := Load(pc, Builtins())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff([]string{FailOnIgnored, PrettyStdout}, m.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}

	pc = newContext(t, root, []string{"nowhere"}, []string{"plugins"})
	_, err = Load(pc, Builtins())
	var missing *MissingPluginError
	if !errors.As(err, &missing) || missing.Name != "nowhere" {
		t.Fatalf("expected MissingPluginError, got %v", err)
	}
}

func TestCommandPluginRunsTool(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	root := t.TempDir()
	marker := filepath.Join(root, "marker.txt")
	writeFile(t, filepath.Join(root, "plugins", "stamp", "plugin.yml"), `
hooks:
  post_test:
    executable: echo
    arguments:
      - '"${1}" > "${2}"'
`)
	pc := newContext(t, root, []string{"stamp"}, []string{"plugins"})
	m, err := Load(pc, Builtins())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Invoke(context.Background(), PostTest, &Args{Test: "test_a.c", Output: marker}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	if strings.TrimSpace(string(data)) != "test_a.c" {
		t.Fatalf("marker = %q", data)
	}
}

func TestCommandPluginRejectsUnknownHook(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "plugins", "odd", "plugin.yml"), "hooks:\n  pre_lunch:\n    executable: echo\n")
	pc := newContext(t, root, []string{"odd"}, []string{"plugins"})
	if _, err := Load(pc, Builtins()); err == nil || !strings.Contains(err.Error(), "pre_lunch") {
		t.Fatalf("expected unknown hook error, got %v", err)
	}
}

func sampleSummary() *report.Summary {
	s := report.Aggregate([]report.TestResult{{
		Source:    "test/test_a.c",
		Name:      "test_a",
		Successes: []report.TestCase{{Test: "test_one", Line: 3}},
		Failures:  []report.TestCase{{Test: "test_two", Line: 9, Message: "Expected 1 Was 0"}},
		Ignores:   []report.TestCase{{Test: "test_three", Line: 12, Message: report.NoReason}},
		Counts:    report.Counts{Total: 3, Passed: 1, Failed: 1, Ignored: 1},
	}})
	return &s
}

func TestFailOnIgnoredRegistersFailure(t *testing.T) {
	pc := newContext(t, t.TempDir(), []string{FailOnIgnored}, nil)
	m, err := Load(pc, Builtins())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Invoke(context.Background(), SummaryHook, &Args{Summary: sampleSummary()}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	failures := m.Failures()
	if len(failures) != 1 || failures[0].Plugin != FailOnIgnored {
		t.Fatalf("unexpected failures: %+v", failures)
	}
}

func TestJUnitReportWritesXML(t *testing.T) {
	root := t.TempDir()
	pc := newContext(t, root, []string{JUnitReport}, nil)
	m, err := Load(pc, Builtins())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Invoke(context.Background(), SummaryHook, &Args{Summary: sampleSummary()}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(pc.Paths.ArtifactsTest, "report.xml"))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		`<testsuites tests="3" failures="1" skipped="1">`,
		`<testsuite name="test_a"`,
		`<failure message="Expected 1 Was 0">`,
		`<skipped message="No reason given">`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestRawOutputLogAndPrettyStdout(t *testing.T) {
	root := t.TempDir()
	pc := newContext(t, root, []string{RawOutputLog, PrettyStdout}, nil)
	var out bytes.Buffer
	pc.Stream = stream.New(&out, &out, stream.Normal, false)
	m, err := Load(pc, Builtins())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	res := &tools.Result{Output: "test_a.c:3:test_one:PASS\n"}
	if err := m.Invoke(context.Background(), PostTestFixtureExecute, &Args{Test: "test/test_a.c", Result: res}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	logData, err := os.ReadFile(filepath.Join(paths.NewBuildPaths(filepath.Join(root, "build")).ArtifactsTest, "test_a.log"))
	if err != nil {
		t.Fatalf("read raw log: %v", err)
	}
	if string(logData) != res.Output {
		t.Fatalf("raw log = %q", logData)
	}

	if err := m.Invoke(context.Background(), SummaryHook, &Args{Summary: sampleSummary()}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.Contains(out.String(), "OVERALL TEST SUMMARY") {
		t.Fatalf("summary not printed:\n%s", out.String())
	}
}
