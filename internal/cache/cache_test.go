package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"testrig/internal/paths"
)

func newTestCache(t *testing.T) (*Cache, paths.BuildPaths) {
	t.Helper()
	bp := paths.NewBuildPaths(filepath.Join(t.TempDir(), "build"))
	return New(bp, nil), bp
}

func TestHasConfigChangedPropagation(t *testing.T) {
	c, _ := newTestCache(t)
	cfg := map[string]any{
		"project": map[string]any{"build_root": "build", "compile_threads": 2},
		"defines": map[string]any{"test": []any{"A"}},
	}

	changed, err := c.HasConfigChanged(KindTest, cfg)
	if err != nil {
		t.Fatalf("first compare: %v", err)
	}
	if !changed {
		t.Fatalf("missing snapshot must count as changed")
	}

	changed, err = c.HasConfigChanged(KindTest, cfg)
	if err != nil {
		t.Fatalf("second compare: %v", err)
	}
	if changed {
		t.Fatalf("identical config must not count as changed")
	}

	cfg["defines"] = map[string]any{"test": []any{"A", "B"}}
	changed, _ = c.HasConfigChanged(KindTest, cfg)
	if !changed {
		t.Fatalf("edited config must count as changed")
	}
	changed, _ = c.HasConfigChanged(KindTest, cfg)
	if changed {
		t.Fatalf("change should only be reported once")
	}
}

func TestHasConfigChangedKindsAreIndependent(t *testing.T) {
	c, _ := newTestCache(t)
	cfg := map[string]any{"project": map[string]any{"build_root": "build"}}

	if changed, _ := c.HasConfigChanged(KindTest, cfg); !changed {
		t.Fatalf("expected first test compare to change")
	}
	if changed, _ := c.HasConfigChanged(KindRelease, cfg); !changed {
		t.Fatalf("release snapshot is separate from test snapshot")
	}
	if _, err := c.HasConfigChanged("bogus", cfg); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestHasConfigChangedCorruptSnapshot(t *testing.T) {
	c, bp := newTestCache(t)
	path := filepath.Join(bp.Test.Cache, configSnapshotFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not: [valid"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	changed, err := c.HasConfigChanged(KindTest, map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("corrupt snapshot should not error: %v", err)
	}
	if !changed {
		t.Fatalf("corrupt snapshot counts as missing")
	}
}

func TestHasDefinesChanged(t *testing.T) {
	c, _ := newTestCache(t)

	changed, err := c.HasDefinesChanged([]string{"a.c", "b.c"}, []string{"TEST"})
	if err != nil {
		t.Fatalf("HasDefinesChanged: %v", err)
	}
	if !changed {
		t.Fatalf("missing snapshot must count as changed")
	}

	if changed, _ := c.HasDefinesChanged([]string{"a.c", "b.c"}, []string{"TEST"}); changed {
		t.Fatalf("same defines must not count as changed")
	}

	// A new file alone never triggers a rebuild.
	if changed, _ := c.HasDefinesChanged([]string{"a.c", "c.c"}, []string{"TEST"}); changed {
		t.Fatalf("new files must not trigger a change")
	}

	if changed, _ := c.HasDefinesChanged([]string{"c.c"}, []string{"TEST", "EXTRA"}); !changed {
		t.Fatalf("merged file should now be compared")
	}
	if changed, _ := c.HasDefinesChanged([]string{"b.c"}, []string{"TEST"}); changed {
		t.Fatalf("untouched files keep their recorded defines")
	}
}

func TestTouchSentinel(t *testing.T) {
	c, _ := newTestCache(t)

	if err := c.EnsureSentinel(KindTest); err != nil {
		t.Fatalf("EnsureSentinel: %v", err)
	}
	path := c.SentinelPath(KindTest)
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if err := c.EnsureSentinel(KindTest); err != nil {
		t.Fatalf("EnsureSentinel: %v", err)
	}
	info, _ := os.Stat(path)
	if info.ModTime().After(old.Add(time.Minute)) {
		t.Fatalf("EnsureSentinel must not move an existing sentinel")
	}

	if err := c.TouchSentinel(KindTest); err != nil {
		t.Fatalf("TouchSentinel: %v", err)
	}
	info, _ = os.Stat(path)
	if !info.ModTime().After(old.Add(time.Minute)) {
		t.Fatalf("TouchSentinel should refresh the timestamp")
	}
}

func TestTouchSentinelIsNotNewerThanLaterWrites(t *testing.T) {
	c, _ := newTestCache(t)
	dir := t.TempDir()

	for i := 0; i < 20; i++ {
		if err := c.TouchSentinel(KindTest); err != nil {
			t.Fatalf("TouchSentinel: %v", err)
		}
		out := filepath.Join(dir, "runner.c")
		if err := os.WriteFile(out, []byte("int main(void) { return 0; }\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		sentinel, err := os.Stat(c.SentinelPath(KindTest))
		if err != nil {
			t.Fatalf("stat sentinel: %v", err)
		}
		written, err := os.Stat(out)
		if err != nil {
			t.Fatalf("stat output: %v", err)
		}
		if sentinel.ModTime().After(written.ModTime()) {
			t.Fatalf("iteration %d: sentinel %v newer than output written after it %v",
				i, sentinel.ModTime(), written.ModTime())
		}
	}
}

func TestChangedDefinesReportsOnlyChangedFiles(t *testing.T) {
	c, _ := newTestCache(t)

	all, err := c.ChangedDefines([]string{"out/b.o", "out/a.o"}, []string{"TEST"})
	if err != nil {
		t.Fatalf("ChangedDefines: %v", err)
	}
	if diff := cmp.Diff([]string{"out/a.o", "out/b.o"}, all); diff != "" {
		t.Fatalf("missing snapshot should report every file (-want +got):\n%s", diff)
	}

	// The same source built in a scoped subdir keeps its own entry.
	if got, _ := c.ChangedDefines([]string{"out/test_math/a.o"}, []string{"TEST", "SCOPED"}); len(got) != 0 {
		t.Fatalf("new scoped object must not count as changed, got %v", got)
	}
	if got, _ := c.ChangedDefines([]string{"out/a.o", "out/b.o"}, []string{"TEST"}); len(got) != 0 {
		t.Fatalf("unscoped objects unchanged, got %v", got)
	}
	if got, _ := c.ChangedDefines([]string{"out/test_math/a.o"}, []string{"TEST", "SCOPED"}); len(got) != 0 {
		t.Fatalf("scoped object unchanged, got %v", got)
	}

	got, err := c.ChangedDefines([]string{"out/a.o", "out/b.o"}, []string{"TEST", "EXTRA"})
	if err != nil {
		t.Fatalf("ChangedDefines: %v", err)
	}
	if diff := cmp.Diff([]string{"out/a.o", "out/b.o"}, got); diff != "" {
		t.Fatalf("changed objects (-want +got):\n%s", diff)
	}
}
