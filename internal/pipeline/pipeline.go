package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"testrig/internal/cache"
	"testrig/internal/config"
	"testrig/internal/graph"
	"testrig/internal/logx"
	"testrig/internal/plugin"
	"testrig/internal/report"
	"testrig/internal/stream"
	"testrig/internal/tools"
)

// Stage names the step a test is in.
type Stage string

const (
	StagePending       Stage = "pending"
	StagePreprocessing Stage = "preprocessing"
	StageMocking       Stage = "mocking"
	StageGenerating    Stage = "generating"
	StageCompiling     Stage = "compiling"
	StageLinking       Stage = "linking"
	StageRunning       Stage = "running"
)

// Outcome is what happened to one test file.
type Outcome struct {
	Test       string
	Result     *report.TestResult
	ResultFile string
	// Cached is set when a passing result newer than the executable was reused.
	Cached   bool
	Warnings []string
	Err      error
	Elapsed  time.Duration
}

// Status summarises the outcome for progress displays.
func (o Outcome) Status() string {
	switch {
	case o.Err != nil:
		return "error"
	case o.Result == nil:
		return "skipped"
	case !o.Result.Passed():
		return "failed"
	case o.Cached:
		return "cached"
	default:
		return "passed"
	}
}

// ProgressReporter receives notifications as tests move through the pipeline.
type ProgressReporter interface {
	Start(test string)
	Stage(test string, stage Stage)
	Complete(o Outcome)
}

type nopReporter struct{}

func (nopReporter) Start(string)        {}
func (nopReporter) Stage(string, Stage) {}
func (nopReporter) Complete(Outcome)    {}

// Hooks dispatches plugin hooks.
type Hooks interface {
	Invoke(ctx context.Context, hook plugin.Hook, args *plugin.Args) error
}

type nopHooks struct{}

func (nopHooks) Invoke(context.Context, plugin.Hook, *plugin.Args) error { return nil }

// Options wires a Pipeline. Config, Scope, Graph, Cache, Exec and Commands
// are required.
type Options struct {
	Config       *config.Resolved
	Scope        *config.Scope
	Graph        *graph.Graph
	Cache        *cache.Cache
	Exec         Execer
	Commands     CommandBuilder
	Hooks        Hooks
	Mocks        MockGenerator
	Runners      RunnerGenerator
	Preprocessor *Preprocessor
	Reporter     ProgressReporter
	Stream       *stream.Streamer
	Logger       logx.Logger
	RunID        string
}

// Pipeline builds and runs tests and release artifacts.
type Pipeline struct {
	cfg          *config.Resolved
	scope        *config.Scope
	layout       Layout
	graph        *graph.Graph
	invoker      *graph.Invoker
	cache        *cache.Cache
	exec         Execer
	commands     CommandBuilder
	hooks        Hooks
	mocks        MockGenerator
	runners      RunnerGenerator
	preprocessor *Preprocessor
	sanity       SanityChecker
	reporter     ProgressReporter
	stream       *stream.Streamer
	logger       logx.Logger
	runID        string
}

// New validates opts and fills in the tool-backed defaults.
func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New("pipeline: config is required")
	case opts.Graph == nil:
		return nil, errors.New("pipeline: graph is required")
	case opts.Cache == nil:
		return nil, errors.New("pipeline: cache is required")
	case opts.Exec == nil:
		return nil, errors.New("pipeline: executor is required")
	case opts.Commands == nil:
		return nil, errors.New("pipeline: command builder is required")
	}
	if opts.Scope == nil {
		opts.Scope = config.NewScope(opts.Config)
	}
	if opts.Hooks == nil {
		opts.Hooks = nopHooks{}
	}
	if opts.Reporter == nil {
		opts.Reporter = nopReporter{}
	}
	if opts.Logger == nil {
		opts.Logger = logx.Discard()
	}

	cfg := opts.Config
	layout := NewLayout(cfg)
	if opts.Preprocessor == nil {
		opts.Preprocessor = &Preprocessor{
			Layout:   layout,
			Enabled:  cfg.Project.UseTestPreprocessor,
			Tools:    cfg.Tools,
			Commands: opts.Commands,
			Exec:     opts.Exec,
			Logger:   opts.Logger,
		}
	}
	if opts.Mocks == nil {
		opts.Mocks = ToolMockGenerator{
			Tool:     cfg.Tools[config.ToolTestMockGenerator],
			Commands: opts.Commands,
			Exec:     opts.Exec,
			Prefix:   cfg.Mocks.Prefix,
		}
	}
	if opts.Runners == nil {
		opts.Runners = ToolRunnerGenerator{
			Tool:     cfg.Tools[config.ToolTestRunnerGenerator],
			Commands: opts.Commands,
			Exec:     opts.Exec,
		}
	}

	return &Pipeline{
		cfg:          cfg,
		scope:        opts.Scope,
		layout:       layout,
		graph:        opts.Graph,
		invoker:      graph.NewInvoker(opts.Graph, cfg.Project.CompileThreads),
		cache:        opts.Cache,
		exec:         opts.Exec,
		commands:     opts.Commands,
		hooks:        opts.Hooks,
		mocks:        opts.Mocks,
		runners:      opts.Runners,
		preprocessor: opts.Preprocessor,
		sanity: SanityChecker{
			Level:   cfg.Project.SanityChecks,
			Strict:  cfg.Project.StrictSanityChecks,
			Ceiling: cfg.Project.ExitCodeCeiling,
		},
		reporter: opts.Reporter,
		stream:   opts.Stream,
		logger:   opts.Logger,
		runID:    opts.RunID,
	}, nil
}

// SetReporter replaces the progress reporter. Call it before RunTests.
func (p *Pipeline) SetReporter(r ProgressReporter) {
	if r == nil {
		r = nopReporter{}
	}
	p.reporter = r
}

// Layout exposes the artifact naming rules.
func (p *Pipeline) Layout() Layout { return p.layout }

func (p *Pipeline) hook(ctx context.Context, h plugin.Hook, args *plugin.Args) error {
	return p.hooks.Invoke(ctx, h, args)
}

func (p *Pipeline) tool(name string) (tools.Descriptor, error) {
	t, ok := p.cfg.Tools[name]
	if !ok {
		return tools.Descriptor{}, fmt.Errorf("tool %q is not configured", name)
	}
	return t, nil
}
