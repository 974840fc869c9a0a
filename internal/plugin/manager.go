package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"testrig/internal/cache"
	"testrig/internal/config"
	"testrig/internal/graph"
	"testrig/internal/logx"
	"testrig/internal/paths"
	"testrig/internal/stream"
	"testrig/internal/tools"
)

// Context is the shared toolbox handed to every plugin factory.
type Context struct {
	Config   *config.Resolved
	Scope    *config.Scope
	Executor *tools.Executor
	Commands tools.Builder
	Graph    *graph.Graph
	Stream   *stream.Streamer
	Cache    *cache.Cache
	Paths    paths.BuildPaths
	Logger   logx.Logger
	// Failures is how plugins mark the build as failed.
	Failures FailureRecorder
}

// FailureRecorder accumulates plugin-reported build failures.
type FailureRecorder interface {
	RegisterFailure(plugin, message string)
}

// Factory builds a plugin from the shared context.
type Factory func(pc *Context) (Plugin, error)

// Failure is one message registered by a plugin.
type Failure struct {
	Plugin  string `json:"plugin"`
	Message string `json:"message"`
}

// HookError names the plugin and hook that failed.
type HookError struct {
	Plugin string
	Hook   Hook
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("plugin %q hook %s: %v", e.Plugin, e.Hook, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// MissingPluginError reports an enabled plugin that could not be found.
type MissingPluginError struct {
	Name      string
	LoadPaths []string
}

func (e *MissingPluginError) Error() string {
	if len(e.LoadPaths) == 0 {
		return fmt.Sprintf("plugin %q is not built in and no plugins.load_paths are configured", e.Name)
	}
	return fmt.Sprintf("plugin %q not found in load paths [%s]", e.Name, strings.Join(e.LoadPaths, ", "))
}

type entry struct {
	plugin string
	fn     HookFunc
}

// Manager dispatches hooks to loaded plugins in load order. Invoke is safe
// for concurrent use.
type Manager struct {
	plugins []Plugin
	table   map[Hook][]entry
	logger  logx.Logger

	mu       sync.Mutex
	failures []Failure
}

// NewManager returns a manager with no plugins.
func NewManager(logger logx.Logger) *Manager {
	if logger == nil {
		logger = logx.Discard()
	}
	return &Manager{table: map[Hook][]entry{}, logger: logger}
}

// Load resolves every enabled plugin, first from builtins then from
// <load_path>/<name>/plugin.yml. Duplicate names load once.
func Load(pc *Context, builtins map[string]Factory) (*Manager, error) {
	if pc.Logger == nil {
		pc.Logger = logx.Discard()
	}
	m := NewManager(pc.Logger)
	if pc.Failures == nil {
		pc.Failures = m
	}

	cfg := pc.Config.Plugins
	seen := map[string]bool{}
	for _, name := range cfg.Enabled {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		if factory, ok := builtins[name]; ok {
			p, err := factory(pc)
			if err != nil {
				return nil, fmt.Errorf("load plugin %q: %w", name, err)
			}
			m.Add(p)
			continue
		}

		dir, ok := config.PluginDir(pc.Config.Root, cfg.LoadPaths, name)
		if !ok {
			return nil, &MissingPluginError{Name: name, LoadPaths: cfg.LoadPaths}
		}
		manifest := filepath.Join(dir, "plugin.yml")
		if _, err := os.Stat(manifest); err != nil {
			// Config-only plugins contribute layers and no hooks.
			m.logger.Printf("plugin: %s has no plugin.yml, config only", name)
			continue
		}
		p, err := LoadCommandPlugin(pc, name, manifest)
		if err != nil {
			return nil, err
		}
		m.Add(p)
	}
	return m, nil
}

// Add appends p to the load order and indexes its hooks.
func (m *Manager) Add(p Plugin) {
	m.plugins = append(m.plugins, p)
	for h, fn := range hooksOf(p) {
		m.table[h] = append(m.table[h], entry{plugin: p.Name(), fn: fn})
	}
	m.logger.Printf("plugin: loaded %s", p.Name())
}

// Names lists loaded plugins in load order.
func (m *Manager) Names() []string {
	names := make([]string, len(m.plugins))
	for i, p := range m.plugins {
		names[i] = p.Name()
	}
	return names
}

// Handlers lists the plugins registered for hook in call order.
func (m *Manager) Handlers(hook Hook) []string {
	var names []string
	for _, e := range m.table[hook] {
		names = append(names, e.plugin)
	}
	return names
}

// Invoke calls every callback registered for hook. The first error or panic
// stops the chain and is returned as a HookError.
func (m *Manager) Invoke(ctx context.Context, hook Hook, args *Args) error {
	if m == nil {
		return nil
	}
	if args == nil {
		args = &Args{}
	}
	for _, e := range m.table[hook] {
		if err := call(ctx, e, args); err != nil {
			m.logger.Printf("plugin: %s %s failed: %v", e.plugin, hook, err)
			return &HookError{Plugin: e.plugin, Hook: hook, Err: err}
		}
	}
	return nil
}

func call(ctx context.Context, e entry, args *Args) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.fn(ctx, args)
}

// RegisterFailure records a build failure reported by a plugin.
func (m *Manager) RegisterFailure(plugin, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, Failure{Plugin: plugin, Message: message})
	m.logger.Printf("plugin: %s registered failure: %s", plugin, message)
}

// Failures returns every registered failure.
func (m *Manager) Failures() []Failure {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Failure(nil), m.failures...)
}
