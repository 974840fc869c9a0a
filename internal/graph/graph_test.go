package graph

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
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

func age(t *testing.T, path string, d time.Duration) {
	t.Helper()
	ts := time.Now().Add(-d)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

// copyAction writes the concatenated prerequisites into the target.
func copyAction(calls *int32) Action {
	return func(ctx context.Context, n *Node) error {
		atomic.AddInt32(calls, 1)
		return os.WriteFile(n.Target, []byte(n.Target), 0o644)
	}
}

func TestInvokeBuildsLeavesFirstAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.c")
	obj := filepath.Join(dir, "a.o")
	exe := filepath.Join(dir, "a.out")
	writeFile(t, src, "int a;")

	var order []string
	var mu sync.Mutex
	record := func(ctx context.Context, n *Node) error {
		mu.Lock()
		order = append(order, filepath.Base(n.Target))
		mu.Unlock()
		return os.WriteFile(n.Target, nil, 0o644)
	}

	g := New(nil)
	g.File(exe, []string{obj}, record)
	g.File(obj, []string{src}, record)

	if err := g.Invoke(context.Background(), exe); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if diff := cmp.Diff([]string{"a.o", "a.out"}, order); diff != "" {
		t.Fatalf("build order mismatch (-want +got):\n%s", diff)
	}

	// Fresh graph, same files: nothing to do.
	order = nil
	g2 := New(nil)
	g2.File(exe, []string{obj}, record)
	g2.File(obj, []string{src}, record)
	if err := g2.Invoke(context.Background(), exe); err != nil {
		t.Fatalf("second Invoke: %v", err)
	}
	if len(order) != 0 {
		t.Fatalf("expected zero actions on unchanged inputs, got %v", order)
	}
}

func TestInvokeRebuildsNewerPrerequisite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.c")
	obj := filepath.Join(dir, "a.o")
	writeFile(t, src, "x")
	writeFile(t, obj, "old")
	age(t, obj, time.Hour)

	var calls int32
	g := New(nil)
	g.File(obj, []string{src}, copyAction(&calls))

	stale, err := g.IsStale(obj)
	if err != nil || !stale {
		t.Fatalf("IsStale = %v, %v; want true", stale, err)
	}
	if err := g.Invoke(context.Background(), obj); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}

	// Satisfied nodes are not re-run until re-enabled.
	age(t, obj, 2*time.Hour)
	if err := g.Invoke(context.Background(), obj); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if calls != 1 {
		t.Fatalf("satisfied node ran again")
	}
	g.Reenable(obj)
	if err := g.Invoke(context.Background(), obj); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if calls != 2 {
		t.Fatalf("re-enabled node should rebuild, calls = %d", calls)
	}
}

func TestInvokeMissingPrerequisite(t *testing.T) {
	dir := t.TempDir()
	obj := filepath.Join(dir, "a.o")
	missing := filepath.Join(dir, "gone.h")

	var calls int32
	g := New(nil)
	g.DeepDependencies = true
	g.File(obj, []string{missing}, copyAction(&calls))

	err := g.Invoke(context.Background(), obj)
	var noRule *NoRuleError
	if !errors.As(err, &noRule) {
		t.Fatalf("expected NoRuleError, got %v", err)
	}
	if noRule.Prerequisite != missing || noRule.Target != obj || !noRule.DeepDependencies {
		t.Fatalf("unexpected error fields: %+v", noRule)
	}
	if calls != 0 {
		t.Fatalf("action must not run")
	}
}

func TestInvokeCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	var calls int32
	g := New(nil)
	g.File(a, []string{b}, copyAction(&calls))
	g.File(b, []string{a}, copyAction(&calls))

	err := g.Invoke(context.Background(), a)
	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CycleError, got %v", err)
	}
}

func TestInvokeActionFailure(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "x.o")
	boom := errors.New("boom")
	g := New(nil)
	g.File(target, nil, func(ctx context.Context, n *Node) error { return boom })

	err := g.Invoke(context.Background(), target)
	var taskErr *TaskError
	if !errors.As(err, &taskErr) || !errors.Is(err, boom) {
		t.Fatalf("expected TaskError wrapping boom, got %v", err)
	}
}

func TestFileAndEnhanceAppendPrerequisites(t *testing.T) {
	g := New(nil)
	var calls int32
	first := copyAction(&calls)
	g.File("t", []string{"a"}, first)
	g.File("t", []string{"b", "a"}, nil)
	g.Enhance("t", "c")

	n, ok := g.Node("t")
	if !ok {
		t.Fatalf("node missing")
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, n.Prereqs); diff != "" {
		t.Fatalf("prereqs mismatch (-want +got):\n%s", diff)
	}
	if n.Action == nil {
		t.Fatalf("action should be kept")
	}
}

func TestLoadDependencyFile(t *testing.T) {
	dir := t.TempDir()
	depPath := filepath.Join(dir, "a.d")
	writeFile(t, depPath, "# generated\n"+
		"out/a.o out/a2.o: src/a.c \\\n"+
		"  inc/my\\ header.h \"inc/quoted path.h\" # trailing\n"+
		"out/b.o: src/b.c\n")

	g := New(nil)
	if err := g.LoadDependencyFile(depPath); err != nil {
		t.Fatalf("LoadDependencyFile: %v", err)
	}
	want := []string{"src/a.c", "inc/my header.h", "inc/quoted path.h"}
	for _, target := range []string{"out/a.o", "out/a2.o"} {
		n, ok := g.Node(target)
		if !ok {
			t.Fatalf("missing node %s", target)
		}
		if diff := cmp.Diff(want, n.Prereqs); diff != "" {
			t.Fatalf("%s prereqs mismatch (-want +got):\n%s", target, diff)
		}
	}
	n, _ := g.Node("out/b.o")
	if diff := cmp.Diff([]string{"src/b.c"}, n.Prereqs); diff != "" {
		t.Fatalf("b.o prereqs mismatch (-want +got):\n%s", diff)
	}

	if err := g.LoadDependencyFile(filepath.Join(dir, "missing.d")); err != nil {
		t.Fatalf("missing dependency file should be ignored: %v", err)
	}
}

func TestParseDependenciesRejectsMalformed(t *testing.T) {
	if _, err := ParseDependencies("no colon here\n"); err == nil {
		t.Fatalf("expected error for rule without ':'")
	}
	rules, err := ParseDependencies(`C:\build\a.o: C:\src\a.c`)
	if err != nil {
		t.Fatalf("ParseDependencies: %v", err)
	}
	want := []Rule{{Targets: []string{`C:\build\a.o`}, Prereqs: []string{`C:\src\a.c`}}}
	if diff := cmp.Diff(want, rules); diff != "" {
		t.Fatalf("drive letter rule mismatch (-want +got):\n%s", diff)
	}
}

func TestInvokeBatchBuildsSharedTargetOnce(t *testing.T) {
	dir := t.TempDir()
	shared := filepath.Join(dir, "shared.o")
	var sharedCalls, exeCalls int32

	g := New(nil)
	g.File(shared, nil, copyAction(&sharedCalls))
	var targets []string
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		exe := filepath.Join(dir, name+".out")
		g.File(exe, []string{shared}, copyAction(&exeCalls))
		targets = append(targets, exe)
	}
	targets = append(targets, targets[0])

	inv := NewInvoker(g, 4)
	if err := inv.InvokeBatch(context.Background(), targets); err != nil {
		t.Fatalf("InvokeBatch: %v", err)
	}
	if sharedCalls != 1 {
		t.Fatalf("shared target built %d times, want 1", sharedCalls)
	}
	if exeCalls != 6 {
		t.Fatalf("executables built %d times, want 6", exeCalls)
	}
}

func TestInvokeBatchJoinsErrors(t *testing.T) {
	dir := t.TempDir()
	var okCalls int32
	g := New(nil)
	bad1 := filepath.Join(dir, "bad1")
	bad2 := filepath.Join(dir, "bad2")
	good := filepath.Join(dir, "good")
	fail := func(ctx context.Context, n *Node) error { return errors.New("failed " + filepath.Base(n.Target)) }
	g.File(bad1, nil, fail)
	g.File(bad2, nil, fail)
	g.File(good, nil, copyAction(&okCalls))

	err := NewInvoker(g, 2).InvokeBatch(context.Background(), []string{bad1, good, bad2})
	if err == nil {
		t.Fatalf("expected joined error")
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok || len(joined.Unwrap()) != 2 {
		t.Fatalf("expected two joined errors, got %v", err)
	}
	if okCalls != 1 {
		t.Fatalf("good target should still build")
	}
}
