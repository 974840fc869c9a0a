package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"testrig/internal/cache"
	"testrig/internal/config"
	"testrig/internal/graph"
	"testrig/internal/logx"
	"testrig/internal/paths"
	"testrig/internal/pipeline"
	"testrig/internal/plugin"
	"testrig/internal/report"
	"testrig/internal/stream"
	"testrig/internal/tools"
)

// Options selects the project and console behaviour for Open.
type Options struct {
	ProjectDir  string
	ProjectFile string
	Mixins      []string
	// Verbosity overrides project.verbosity when set.
	Verbosity string
	Out       io.Writer
	Err       io.Writer
	Color     bool
	Getenv    func(string) string
	// Runner replaces process execution, for tests.
	Runner tools.Runner
	// Builtins replaces the compiled-in plugin set.
	Builtins map[string]plugin.Factory
	// Phase, when set, is told as each setup phase starts.
	Phase func(name string)
}

// Engine owns every component of one run.
type Engine struct {
	RunID    string
	Config   *config.Resolved
	Scope    *config.Scope
	Stream   *stream.Streamer
	Logger   logx.Logger
	Executor *tools.Executor
	Commands tools.Builder
	Cache    *cache.Cache
	Graph    *graph.Graph
	Plugins  *plugin.Manager
	Pipeline *pipeline.Pipeline

	closer io.Closer
}

// Open resolves the project configuration and wires every component.
func Open(opts Options) (*Engine, error) {
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	phase := opts.Phase
	if phase == nil {
		phase = func(string) {}
	}

	phase("Resolving configuration")
	pp, err := paths.Resolve(opts.ProjectDir, opts.ProjectFile)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(pp, config.LoadOptions{Mixins: opts.Mixins, Getenv: opts.Getenv})
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.ApplyEnvironment(); err != nil {
		return nil, err
	}

	e := &Engine{RunID: uuid.NewString(), Config: cfg, Scope: config.NewScope(cfg)}

	level := opts.Verbosity
	if level == "" {
		level = cfg.Project.Verbosity
	}
	verbosity, err := stream.ParseVerbosity(level)
	if err != nil {
		return nil, err
	}
	e.Stream = stream.New(opts.Out, opts.Err, verbosity, opts.Color)

	if cfg.Project.Logging {
		logger, closer, err := logx.New(cfg.Build.Logs, e.RunID)
		if err != nil {
			return nil, err
		}
		e.Logger, e.closer = logger, closer
	} else {
		e.Logger = logx.Discard()
	}
	e.Logger.Printf("engine: run %s for %s", e.RunID, pp.ProjectFile)

	shell := tools.DetectShell(opts.Getenv)
	e.Executor = tools.NewExecutor(opts.Runner, shell, cfg.Root, e.Logger, e.Stream)
	e.Commands = tools.Builder{Lists: e.Scope, Platform: shell.Platform(), Logging: cfg.Project.Logging}
	e.Cache = cache.New(cfg.Build, e.Logger)
	e.Graph = graph.New(e.Logger)
	e.Graph.DeepDependencies = cfg.Project.UseDeepDependencies

	phase("Loading plugins")
	builtins := opts.Builtins
	if builtins == nil {
		builtins = plugin.Builtins()
	}
	e.Plugins, err = plugin.Load(&plugin.Context{
		Config:   cfg,
		Scope:    e.Scope,
		Executor: e.Executor,
		Commands: e.Commands,
		Graph:    e.Graph,
		Stream:   e.Stream,
		Cache:    e.Cache,
		Paths:    cfg.Build,
		Logger:   e.Logger,
	}, builtins)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.Logger.Printf("engine: plugins %v", e.Plugins.Names())

	phase("Preparing build")
	e.Pipeline, err = pipeline.New(pipeline.Options{
		Config:   cfg,
		Scope:    e.Scope,
		Graph:    e.Graph,
		Cache:    e.Cache,
		Exec:     e.Executor,
		Commands: e.Commands,
		Hooks:    e.Plugins,
		Stream:   e.Stream,
		Logger:   e.Logger,
		RunID:    e.RunID,
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// Close flushes the run log.
func (e *Engine) Close() error {
	if e.closer == nil {
		return nil
	}
	err := e.closer.Close()
	e.closer = nil
	return err
}

// Tests maps command-line arguments to test files. No arguments selects
// every test; an argument may be a path or a test name such as test_widget.
func (e *Engine) Tests(args []string) ([]string, error) {
	all := e.Config.Collection("all_tests")
	if len(args) == 0 {
		return all, nil
	}
	byName := make(map[string]string, len(all))
	for _, t := range all {
		byName[config.TestName(t)] = t
	}

	var out []string
	var missing []string
	for _, arg := range args {
		if t, ok := byName[config.TestName(arg)]; ok && !strings.ContainsAny(arg, `/\`) {
			out = append(out, t)
			continue
		}
		path := paths.Join(e.Config.Root, arg)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			out = append(out, path)
			continue
		}
		missing = append(missing, arg)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("no test file found for %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// RunTests builds and runs tests between the pre_build and post_build hooks,
// aggregates the result files and runs the summary hook.
func (e *Engine) RunTests(ctx context.Context, tests []string, reporter pipeline.ProgressReporter) (*Summary, error) {
	s, err := e.BuildTests(ctx, tests, reporter)
	if err != nil {
		return nil, err
	}
	e.Finish(ctx, cache.KindTest, s)
	return s, nil
}

// BuildTests is RunTests without the summary and post_build hooks, for
// callers that own the terminal until the tests finish. Finish completes it.
func (e *Engine) BuildTests(ctx context.Context, tests []string, reporter pipeline.ProgressReporter) (*Summary, error) {
	s := &Summary{RunID: e.RunID, FailOnTestFailures: e.Config.Project.FailOnTestFailures}
	if err := e.Plugins.Invoke(ctx, plugin.PreBuild, &plugin.Args{Context: cache.KindTest}); err != nil {
		return nil, err
	}

	e.Pipeline.SetReporter(reporter)
	outcomes, err := e.Pipeline.RunTests(ctx, tests)
	if err != nil {
		return nil, err
	}
	s.Outcomes = outcomes

	var files []string
	for _, o := range outcomes {
		if o.ResultFile != "" {
			files = append(files, o.ResultFile)
		}
		var serr *pipeline.SanityError
		if errors.As(o.Err, &serr) {
			s.SanityFailed = true
		}
	}
	s.Report, err = report.Collect(files)
	if err != nil {
		e.Stream.Warnf("%v\n", err)
	}
	return s, nil
}

// RunRelease builds the release artifact between the pre_build and
// post_build hooks.
func (e *Engine) RunRelease(ctx context.Context) (*Summary, error) {
	s := &Summary{RunID: e.RunID}
	if err := e.Plugins.Invoke(ctx, plugin.PreBuild, &plugin.Args{Context: cache.KindRelease}); err != nil {
		return nil, err
	}
	artifact, err := e.Pipeline.RunRelease(ctx)
	if err != nil {
		e.Stream.Errorf("release: %v\n", err)
		s.Errors = append(s.Errors, err.Error())
		if herr := e.Plugins.Invoke(ctx, plugin.PostError, &plugin.Args{Context: cache.KindRelease, Err: err}); herr != nil {
			s.Errors = append(s.Errors, herr.Error())
		}
	}
	s.Artifact = artifact
	e.Finish(ctx, cache.KindRelease, s)
	return s, nil
}

// Finish runs the summary and post_build hooks and collects plugin failures.
// Hook errors are recorded in the summary.
func (e *Engine) Finish(ctx context.Context, kind string, s *Summary) {
	if kind == cache.KindTest {
		if err := e.Plugins.Invoke(ctx, plugin.SummaryHook, &plugin.Args{Context: kind, Summary: &s.Report}); err != nil {
			s.Errors = append(s.Errors, err.Error())
		}
	}
	if err := e.Plugins.Invoke(ctx, plugin.PostBuild, &plugin.Args{Context: kind}); err != nil {
		s.Errors = append(s.Errors, err.Error())
	}
	s.PluginFailures = e.Plugins.Failures()
	e.Logger.Printf("engine: run %s finished, exit code %d", e.RunID, s.ExitCode())
}

// CleanTargets lists the directories Clean removes: generated test and
// release intermediates, but not artifacts or logs.
func (e *Engine) CleanTargets() []string {
	b := e.Config.Build
	return []string{b.Test.Root, b.Release.Root, b.Temp}
}

// Clean removes every CleanTargets directory.
func (e *Engine) Clean() error {
	for _, dir := range e.CleanTargets() {
		if err := removeInside(e.Config.Build.Root, dir); err != nil {
			return err
		}
	}
	return nil
}

// Clobber removes the whole build root.
func (e *Engine) Clobber() error {
	return removeInside(e.Config.Root, e.Config.Build.Root)
}

// removeInside deletes dir after checking it lies strictly inside parent.
func removeInside(parent, dir string) error {
	rel, err := filepath.Rel(parent, dir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("refusing to remove %s outside %s", dir, parent)
	}
	return os.RemoveAll(dir)
}
