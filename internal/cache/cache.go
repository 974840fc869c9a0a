package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gopkg.in/yaml.v3"

	"testrig/internal/logx"
	"testrig/internal/paths"
)

// Snapshot kinds.
const (
	KindTest    = "test"
	KindRelease = "release"
)

const (
	configSnapshotFile  = "input.yml"
	definesSnapshotFile = "defines_dependency.yml"

	ReasonNoSnapshot = "no snapshot"
	ReasonChanged    = "changed"
	ReasonUnchanged  = "unchanged"
)

// Cache compares the current configuration and per-file defines against the
// snapshots left by the previous run. Calls must stay on one goroutine.
type Cache struct {
	build  paths.BuildPaths
	logger logx.Logger
}

// New creates a cache rooted at the build paths.
func New(build paths.BuildPaths, logger logx.Logger) *Cache {
	if logger == nil {
		logger = logx.Discard()
	}
	return &Cache{build: build, logger: logger}
}

func (c *Cache) configPath(kind string) (string, error) {
	switch kind {
	case KindTest:
		return filepath.Join(c.build.Test.Cache, configSnapshotFile), nil
	case KindRelease:
		return filepath.Join(c.build.Release.Cache, configSnapshotFile), nil
	}
	return "", fmt.Errorf("unknown cache kind %q", kind)
}

// SentinelPath is the force-rebuild file for kind.
func (c *Cache) SentinelPath(kind string) string {
	if kind == KindRelease {
		return c.build.Release.ForceBuild
	}
	return c.build.Test.ForceBuild
}

// HasConfigChanged compares current against the stored snapshot for kind and
// then stores current. A missing snapshot counts as a change.
func (c *Cache) HasConfigChanged(kind string, current map[string]any) (bool, error) {
	path, err := c.configPath(kind)
	if err != nil {
		return false, err
	}

	normalized, err := roundTrip(current)
	if err != nil {
		return false, fmt.Errorf("normalize %s config: %w", kind, err)
	}

	var previous map[string]any
	found, err := loadSnapshot(path, &previous)
	if err != nil {
		return false, fmt.Errorf("read %s config snapshot: %w", kind, err)
	}

	reason := ReasonUnchanged
	switch {
	case !found:
		reason = ReasonNoSnapshot
	case !cmp.Equal(previous, normalized, cmpopts.EquateEmpty()):
		reason = ReasonChanged
	}
	c.logger.Printf("cache: %s config %s", kind, reason)

	if err := saveSnapshot(path, normalized); err != nil {
		return false, fmt.Errorf("write %s config snapshot: %w", kind, err)
	}
	return reason != ReasonUnchanged, nil
}

// HasDefinesChanged compares the define list recorded for each file against
// defines. Only files already in the snapshot can trigger a change; new files
// are merged in. A missing snapshot counts as a change.
func (c *Cache) HasDefinesChanged(files []string, defines []string) (bool, error) {
	changedFiles, found, err := c.compareDefines(files, defines)
	if err != nil {
		return false, err
	}
	return !found || len(changedFiles) > 0, nil
}

// ChangedDefines is HasDefinesChanged reporting which files changed. Every
// file counts as changed when there is no snapshot yet. Callers key the files
// by their output so the same source built in two scopes keeps two entries.
func (c *Cache) ChangedDefines(files []string, defines []string) ([]string, error) {
	changedFiles, found, err := c.compareDefines(files, defines)
	if err != nil {
		return nil, err
	}
	if !found {
		all := append([]string{}, files...)
		sort.Strings(all)
		return all, nil
	}
	return changedFiles, nil
}

func (c *Cache) compareDefines(files []string, defines []string) ([]string, bool, error) {
	path := filepath.Join(c.build.Test.Cache, definesSnapshotFile)

	previous := map[string][]string{}
	found, err := loadSnapshot(path, &previous)
	if err != nil {
		return nil, false, fmt.Errorf("read defines snapshot: %w", err)
	}
	if previous == nil {
		previous = map[string][]string{}
	}

	var changedFiles []string
	seen := make(map[string]bool, len(files))
	for _, file := range files {
		if seen[file] {
			continue
		}
		seen[file] = true
		defs := append([]string{}, defines...)
		old, ok := previous[file]
		if ok && !cmp.Equal(old, defs, cmpopts.EquateEmpty()) {
			changedFiles = append(changedFiles, file)
		}
		previous[file] = defs
	}
	sort.Strings(changedFiles)
	if !found {
		c.logger.Printf("cache: defines %s", ReasonNoSnapshot)
	} else if len(changedFiles) > 0 {
		c.logger.Printf("cache: defines changed for %v", changedFiles)
	}

	if err := saveSnapshot(path, previous); err != nil {
		return nil, false, fmt.Errorf("write defines snapshot: %w", err)
	}
	return changedFiles, found, nil
}

// TouchSentinel refreshes the force-rebuild file for kind so that every node
// depending on it becomes stale. The file is rewritten rather than stamped
// with Chtimes so its mtime comes from the same filesystem clock as the
// outputs written after it.
func (c *Cache) TouchSentinel(kind string) error {
	path := c.SentinelPath(kind)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	stamp := time.Now().UTC().Format(time.RFC3339Nano) + "\n"
	if err := os.WriteFile(path, []byte(stamp), 0o644); err != nil {
		return fmt.Errorf("touch %s: %w", path, err)
	}
	return nil
}

// EnsureSentinel creates the force-rebuild file if absent without moving its
// timestamp.
func (c *Cache) EnsureSentinel(kind string) error {
	path := c.SentinelPath(kind)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return c.TouchSentinel(kind)
}

// roundTrip normalizes v through YAML so it compares equal to a loaded snapshot.
func roundTrip(v map[string]any) (map[string]any, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
