package plugin

import (
	"context"

	"testrig/internal/report"
	"testrig/internal/tools"
)

// Hook names a point in the build where plugins are called.
type Hook string

const (
	PreBuild               Hook = "pre_build"
	PostBuild              Hook = "post_build"
	PostError              Hook = "post_error"
	PreTest                Hook = "pre_test"
	PostTest               Hook = "post_test"
	PreMockGenerate        Hook = "pre_mock_generate"
	PostMockGenerate       Hook = "post_mock_generate"
	PreRunnerGenerate      Hook = "pre_runner_generate"
	PostRunnerGenerate     Hook = "post_runner_generate"
	PreCompileExecute      Hook = "pre_compile_execute"
	PostCompileExecute     Hook = "post_compile_execute"
	PreLinkExecute         Hook = "pre_link_execute"
	PostLinkExecute        Hook = "post_link_execute"
	PreTestFixtureExecute  Hook = "pre_test_fixture_execute"
	PostTestFixtureExecute Hook = "post_test_fixture_execute"
	PreRelease             Hook = "pre_release"
	PostRelease            Hook = "post_release"
	SummaryHook            Hook = "summary"
)

// AllHooks lists every hook in invocation-table order.
var AllHooks = []Hook{
	PreBuild, PostBuild, PostError, PreTest, PostTest,
	PreMockGenerate, PostMockGenerate, PreRunnerGenerate, PostRunnerGenerate,
	PreCompileExecute, PostCompileExecute, PreLinkExecute, PostLinkExecute,
	PreTestFixtureExecute, PostTestFixtureExecute, PreRelease, PostRelease,
	SummaryHook,
}

// ParseHook validates a hook name.
func ParseHook(name string) (Hook, bool) {
	for _, h := range AllHooks {
		if string(h) == name {
			return h, true
		}
	}
	return "", false
}

// Args carries whatever the calling step knows. Unused fields stay zero.
type Args struct {
	// Context is "test" or "release".
	Context string
	Test    string
	Input   string
	Output  string

	Command    *tools.Command
	Result     *tools.Result
	TestResult *report.TestResult
	Summary    *report.Summary
	Err        error
}

// HookFunc is one plugin callback.
type HookFunc func(ctx context.Context, args *Args) error

// Plugin is the common surface; hooks are optional interfaces.
type Plugin interface {
	Name() string
}

type PreBuilder interface {
	PreBuild(ctx context.Context, args *Args) error
}

type PostBuilder interface {
	PostBuild(ctx context.Context, args *Args) error
}

type PostErrorer interface {
	PostError(ctx context.Context, args *Args) error
}

type PreTester interface {
	PreTest(ctx context.Context, args *Args) error
}

type PostTester interface {
	PostTest(ctx context.Context, args *Args) error
}

type PreMockGenerator interface {
	PreMockGenerate(ctx context.Context, args *Args) error
}

type PostMockGenerator interface {
	PostMockGenerate(ctx context.Context, args *Args) error
}

type PreRunnerGenerator interface {
	PreRunnerGenerate(ctx context.Context, args *Args) error
}

type PostRunnerGenerator interface {
	PostRunnerGenerate(ctx context.Context, args *Args) error
}

type PreCompileExecuter interface {
	PreCompileExecute(ctx context.Context, args *Args) error
}

type PostCompileExecuter interface {
	PostCompileExecute(ctx context.Context, args *Args) error
}

type PreLinkExecuter interface {
	PreLinkExecute(ctx context.Context, args *Args) error
}

type PostLinkExecuter interface {
	PostLinkExecute(ctx context.Context, args *Args) error
}

type PreTestFixtureExecuter interface {
	PreTestFixtureExecute(ctx context.Context, args *Args) error
}

type PostTestFixtureExecuter interface {
	PostTestFixtureExecute(ctx context.Context, args *Args) error
}

type PreReleaser interface {
	PreRelease(ctx context.Context, args *Args) error
}

type PostReleaser interface {
	PostRelease(ctx context.Context, args *Args) error
}

type Summarizer interface {
	Summary(ctx context.Context, args *Args) error
}

// HookProvider lets a plugin declare its callbacks as a table instead of
// methods. Command plugins use it.
type HookProvider interface {
	HookFuncs() map[Hook]HookFunc
}

// hooksOf returns the callbacks p implements.
func hooksOf(p Plugin) map[Hook]HookFunc {
	out := map[Hook]HookFunc{}
	if hp, ok := p.(HookProvider); ok {
		for h, fn := range hp.HookFuncs() {
			if fn != nil {
				out[h] = fn
			}
		}
	}
	if h, ok := p.(PreBuilder); ok {
		out[PreBuild] = h.PreBuild
	}
	if h, ok := p.(PostBuilder); ok {
		out[PostBuild] = h.PostBuild
	}
	if h, ok := p.(PostErrorer); ok {
		out[PostError] = h.PostError
	}
	if h, ok := p.(PreTester); ok {
		out[PreTest] = h.PreTest
	}
	if h, ok := p.(PostTester); ok {
		out[PostTest] = h.PostTest
	}
	if h, ok := p.(PreMockGenerator); ok {
		out[PreMockGenerate] = h.PreMockGenerate
	}
	if h, ok := p.(PostMockGenerator); ok {
		out[PostMockGenerate] = h.PostMockGenerate
	}
	if h, ok := p.(PreRunnerGenerator); ok {
		out[PreRunnerGenerate] = h.PreRunnerGenerate
	}
	if h, ok := p.(PostRunnerGenerator); ok {
		out[PostRunnerGenerate] = h.PostRunnerGenerate
	}
	if h, ok := p.(PreCompileExecuter); ok {
		out[PreCompileExecute] = h.PreCompileExecute
	}
	if h, ok := p.(PostCompileExecuter); ok {
		out[PostCompileExecute] = h.PostCompileExecute
	}
	if h, ok := p.(PreLinkExecuter); ok {
		out[PreLinkExecute] = h.PreLinkExecute
	}
	if h, ok := p.(PostLinkExecuter); ok {
		out[PostLinkExecute] = h.PostLinkExecute
	}
	if h, ok := p.(PreTestFixtureExecuter); ok {
		out[PreTestFixtureExecute] = h.PreTestFixtureExecute
	}
	if h, ok := p.(PostTestFixtureExecuter); ok {
		out[PostTestFixtureExecute] = h.PostTestFixtureExecute
	}
	if h, ok := p.(PreReleaser); ok {
		out[PreRelease] = h.PreRelease
	}
	if h, ok := p.(PostReleaser); ok {
		out[PostRelease] = h.PostRelease
	}
	if h, ok := p.(Summarizer); ok {
		out[SummaryHook] = h.Summary
	}
	return out
}
