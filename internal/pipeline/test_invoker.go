package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"testrig/internal/cache"
	"testrig/internal/config"
	"testrig/internal/graph"
	"testrig/internal/paths"
	"testrig/internal/plugin"
	"testrig/internal/report"
	"testrig/internal/stream"
	"testrig/internal/tools"
)

const definesList = "collection_defines_test_and_vendor"

// RunTests builds and runs each test in order. A failing test is recorded in
// its Outcome and the remaining tests still run. A plugin hook error is fatal:
// it stops the run and is returned with the outcomes so far. Otherwise the
// returned error covers setup problems only.
func (p *Pipeline) RunTests(ctx context.Context, tests []string) ([]Outcome, error) {
	if err := paths.EnsureDirs(p.cfg.Build.TestDirs()...); err != nil {
		return nil, err
	}
	if err := p.prepareCache(cache.KindTest); err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, 0, len(tests))
	for _, test := range tests {
		p.reporter.Start(test)
		start := time.Now()
		o := p.runTest(ctx, test)
		o.Elapsed = time.Since(start)
		if o.Err != nil {
			p.stream.Errorf("%s: %v\n", filepath.Base(test), o.Err)
			if herr := p.hook(ctx, plugin.PostError, &plugin.Args{Context: cache.KindTest, Test: test, Err: o.Err}); herr != nil {
				o.Err = errors.Join(o.Err, herr)
			}
		}
		p.reporter.Complete(o)
		outcomes = append(outcomes, o)
		var herr *plugin.HookError
		if errors.As(o.Err, &herr) {
			return outcomes, fmt.Errorf("%s: %w", filepath.Base(test), herr)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return outcomes, nil
}

// prepareCache makes sure the sentinel exists and refreshes it when the
// configuration changed since the last run of kind.
func (p *Pipeline) prepareCache(kind string) error {
	if err := p.cache.EnsureSentinel(kind); err != nil {
		return err
	}
	changed, err := p.cache.HasConfigChanged(kind, p.cfg.Document())
	if err != nil {
		return err
	}
	if changed {
		p.logger.Printf("pipeline: %s configuration changed, forcing rebuild", kind)
		return p.cache.TouchSentinel(kind)
	}
	return nil
}

func (p *Pipeline) runTest(ctx context.Context, test string) (o Outcome) {
	o.Test = test
	name := config.TestName(test)
	sentinel := p.cache.SentinelPath(cache.KindTest)

	if err := p.hook(ctx, plugin.PreTest, &plugin.Args{Context: cache.KindTest, Test: test}); err != nil {
		o.Err = err
		return o
	}

	p.reporter.Stage(test, StagePreprocessing)
	includes, err := p.preprocessor.Includes(ctx, test)
	if err != nil {
		o.Err = err
		return o
	}

	var mockSources []string
	if p.cfg.Project.UseMocks {
		p.reporter.Stage(test, StageMocking)
		mockSources, err = p.generateMocks(ctx, test, includes, sentinel)
		if err != nil {
			o.Err = err
			return o
		}
	}

	p.reporter.Stage(test, StageGenerating)
	runner, err := p.generateRunner(ctx, test, sentinel)
	if err != nil {
		o.Err = err
		return o
	}

	override, scoped := p.overrideFor(name)
	if scoped {
		p.scope.Push(override)
		defer p.scope.Pop()
	}
	subdir := p.scope.OutputSubdir()

	sources, err := p.testSources(test, runner, includes, mockSources)
	if err != nil {
		o.Err = err
		return o
	}

	p.reporter.Stage(test, StageCompiling)
	objects, err := p.compile(ctx, test, sources, subdir, sentinel)
	if err != nil {
		o.Err = err
		return o
	}

	p.reporter.Stage(test, StageLinking)
	exe := p.layout.Executable(test, subdir)
	if err := p.link(ctx, test, objects, exe, subdir); err != nil {
		o.Err = err
		return o
	}

	p.reporter.Stage(test, StageRunning)
	result, resultFile, cached, err := p.execute(ctx, test, exe)
	if err != nil {
		o.Err = err
		return o
	}
	o.Result, o.ResultFile, o.Cached = result, resultFile, cached

	if !cached {
		warnings, serr := p.sanity.Verify(*result)
		o.Warnings = warnings
		for _, w := range warnings {
			p.stream.Warnf("%s: %s\n", filepath.Base(test), w)
		}
		if serr != nil {
			o.Err = serr
			return o
		}
	}

	if err := p.hook(ctx, plugin.PostTest, &plugin.Args{Context: cache.KindTest, Test: test, TestResult: result}); err != nil {
		o.Err = err
	}
	return o
}

// overrideFor builds the scoped define list for a test with its own defines
// or when every test gets a define named after itself.
func (p *Pipeline) overrideFor(name string) (config.Override, bool) {
	defs, perTest := p.cfg.Defines.ForTest(name)
	useName := p.cfg.Defines.UseTestDefinition
	if !perTest && !useName {
		return config.Override{}, false
	}

	list, _ := p.cfg.Lookup(definesList)
	if perTest {
		list = append([]string(nil), defs...)
		list = append(list, p.cfg.Defines.Vendor...)
		if p.cfg.Project.UseMocks {
			list = append(list, p.cfg.Mocks.Defines...)
		}
	}
	if useName {
		list = append(list, testDefine(name))
	}
	return config.Override{
		Name:         name,
		Lists:        map[string][]string{definesList: list},
		OutputSubdir: name,
	}, true
}

// testDefine turns test_my-thing into TEST_MY_THING.
func testDefine(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func (p *Pipeline) generateMocks(ctx context.Context, test string, includes []string, sentinel string) ([]string, error) {
	headers := indexByBase(p.cfg.Collection("all_headers"))
	var sources []string
	for _, inc := range includes {
		if !p.layout.IsMock(inc) {
			continue
		}
		mockName := stem(inc)
		header, ok := headers[p.layout.MockedHeader(inc)]
		if !ok {
			return nil, fmt.Errorf("found no header %s to generate %s", p.layout.MockedHeader(inc), mockName)
		}
		input, err := p.preprocessor.File(ctx, header)
		if err != nil {
			return nil, err
		}
		out := p.layout.Mock(mockName)
		p.graph.File(out, []string{input, sentinel}, func(ctx context.Context, n *graph.Node) error {
			args := &plugin.Args{Context: cache.KindTest, Test: test, Input: input, Output: n.Target}
			if err := p.hook(ctx, plugin.PreMockGenerate, args); err != nil {
				return err
			}
			if err := p.mocks.GenerateMock(ctx, input, filepath.Dir(n.Target)); err != nil {
				return err
			}
			return p.hook(ctx, plugin.PostMockGenerate, args)
		})
		sources = append(sources, out)
	}
	if err := p.invoker.InvokeBatch(ctx, sources); err != nil {
		return nil, err
	}
	return sources, nil
}

func (p *Pipeline) generateRunner(ctx context.Context, test, sentinel string) (string, error) {
	input, err := p.preprocessor.File(ctx, test)
	if err != nil {
		return "", err
	}
	runner := p.layout.Runner(test)
	p.graph.File(runner, []string{input, sentinel}, func(ctx context.Context, n *graph.Node) error {
		args := &plugin.Args{Context: cache.KindTest, Test: test, Input: input, Output: n.Target}
		if err := p.hook(ctx, plugin.PreRunnerGenerate, args); err != nil {
			return err
		}
		if err := p.runners.GenerateRunner(ctx, input, n.Target); err != nil {
			return err
		}
		return p.hook(ctx, plugin.PostRunnerGenerate, args)
	})
	if err := p.graph.Invoke(ctx, runner); err != nil {
		return "", err
	}
	return runner, nil
}

// testSources lists everything compiled into a test executable: the test,
// its runner, its mocks, the source or support file behind every included
// header, and the fixture's extra link objects.
func (p *Pipeline) testSources(test, runner string, includes, mocks []string) ([]string, error) {
	code := indexByBase(append(p.cfg.Collection("all_source"), p.cfg.Collection("all_support")...))
	sources := []string{test, runner}
	sources = append(sources, mocks...)
	for _, inc := range includes {
		if p.layout.IsMock(inc) {
			continue
		}
		if src, ok := code[stem(inc)+p.layout.Ext.Source]; ok {
			sources = append(sources, src)
		}
	}
	for _, obj := range p.cfg.Collection("test_fixture_extra_link_objects") {
		src, ok := code[stem(obj)+p.layout.Ext.Source]
		if !ok {
			return nil, fmt.Errorf("no source found for test fixture link object %s", obj)
		}
		sources = append(sources, src)
	}
	return dedupe(sources), nil
}

func (p *Pipeline) compile(ctx context.Context, test string, sources []string, subdir, sentinel string) ([]string, error) {
	tool, err := p.tool(config.ToolTestCompiler)
	if err != nil {
		return nil, err
	}
	wanted := make([]string, 0, len(sources))
	for _, src := range sources {
		wanted = append(wanted, p.layout.Object(src, subdir))
	}
	defines, _ := p.scope.Lookup(definesList)
	changedObjects, err := p.cache.ChangedDefines(wanted, defines)
	if err != nil {
		return nil, err
	}
	changed := make(map[string]bool, len(changedObjects))
	for _, obj := range changedObjects {
		changed[obj] = true
	}

	flagTable := p.cfg.FlagsFor("test", "compile")
	objects := make([]string, 0, len(sources))
	for _, src := range sources {
		src := src
		obj := p.layout.Object(src, subdir)
		dep := p.layout.Dependency(src, subdir)
		list := p.layout.List(src, subdir)
		if changed[obj] {
			if err := os.Remove(obj); err != nil && !os.IsNotExist(err) {
				return nil, err
			}
			p.graph.Reenable(obj)
		}
		p.graph.File(obj, []string{src, sentinel}, func(ctx context.Context, n *graph.Node) error {
			if err := paths.EnsureDirs(filepath.Dir(n.Target), filepath.Dir(dep)); err != nil {
				return err
			}
			cmd, err := p.commands.BuildCommandLine(tool, FlagsFor(flagTable, src), src, n.Target, list, dep)
			if err != nil {
				return err
			}
			args := &plugin.Args{Context: cache.KindTest, Test: test, Input: src, Output: n.Target, Command: &cmd}
			if err := p.hook(ctx, plugin.PreCompileExecute, args); err != nil {
				return err
			}
			p.stream.Printf(stream.Normal, "Compiling %s...\n", filepath.Base(src))
			res, err := p.exec.Exec(ctx, cmd, tools.Options{})
			if err != nil {
				return err
			}
			args.Result = &res
			return p.hook(ctx, plugin.PostCompileExecute, args)
		})
		if p.cfg.Project.UseDeepDependencies {
			if err := p.graph.LoadDependencyFile(dep); err != nil {
				return nil, err
			}
		}
		objects = append(objects, obj)
	}
	if err := p.invoker.InvokeBatch(ctx, objects); err != nil {
		return nil, err
	}
	return objects, nil
}

func (p *Pipeline) link(ctx context.Context, test string, objects []string, exe, subdir string) error {
	tool, err := p.tool(config.ToolTestLinker)
	if err != nil {
		return err
	}
	flags := FlagsFor(p.cfg.FlagsFor("test", "link"), test)
	libs := p.cfg.Libraries.LinkArgs(p.cfg.Libraries.Test)
	mapFile := p.layout.Map(test, subdir)

	p.graph.File(exe, objects, func(ctx context.Context, n *graph.Node) error {
		if err := paths.EnsureDirs(filepath.Dir(n.Target)); err != nil {
			return err
		}
		cmd, err := p.commands.BuildCommandLine(tool, flags, objects, n.Target, mapFile, libs)
		if err != nil {
			return err
		}
		args := &plugin.Args{Context: cache.KindTest, Test: test, Output: n.Target, Command: &cmd}
		if err := p.hook(ctx, plugin.PreLinkExecute, args); err != nil {
			return err
		}
		p.stream.Printf(stream.Normal, "Linking %s...\n", filepath.Base(n.Target))
		res, err := p.exec.Exec(ctx, cmd, tools.Options{})
		if err != nil {
			return err
		}
		args.Result = &res
		return p.hook(ctx, plugin.PostLinkExecute, args)
	})
	return p.graph.Invoke(ctx, exe)
}

// execute runs the test executable unless a passing result newer than it
// already exists, parses the output, and stores the result file.
func (p *Pipeline) execute(ctx context.Context, test, exe string) (*report.TestResult, string, bool, error) {
	passFile := p.layout.ResultPass(test)
	failFile := p.layout.ResultFail(test)

	if fresh(passFile, exe) {
		if r, err := report.ReadResultFile(passFile); err == nil {
			p.logger.Printf("pipeline: %s unchanged, reusing %s", filepath.Base(test), passFile)
			return &r, passFile, true, nil
		}
	}

	tool, err := p.tool(config.ToolTestFixture)
	if err != nil {
		return nil, "", false, err
	}
	flags := FlagsFor(p.cfg.FlagsFor("test", "execute"), test)
	cmd, err := p.commands.BuildCommandLine(tool, flags, exe)
	if err != nil {
		return nil, "", false, err
	}
	args := &plugin.Args{Context: cache.KindTest, Test: test, Input: exe, Command: &cmd}
	if err := p.hook(ctx, plugin.PreTestFixtureExecute, args); err != nil {
		return nil, "", false, err
	}
	p.stream.Printf(stream.Normal, "Running %s...\n", filepath.Base(exe))
	res, err := p.exec.Exec(ctx, cmd, tools.Options{NoFail: true})
	if err != nil {
		return nil, "", false, err
	}
	args.Result = &res
	if err := p.hook(ctx, plugin.PostTestFixtureExecute, args); err != nil {
		return nil, "", false, err
	}

	result := ParseOutput(test, res.Output)
	result.ExitCode = res.ExitCode
	result.Elapsed = res.Elapsed
	result.RunID = p.runID
	result.Executable = exe

	keep, drop := passFile, failFile
	if !result.Passed() {
		keep, drop = failFile, passFile
	}
	if err := report.WriteResultFile(keep, result); err != nil {
		return nil, "", false, fmt.Errorf("write result: %w", err)
	}
	if err := os.Remove(drop); err != nil && !os.IsNotExist(err) {
		return nil, "", false, err
	}
	return &result, keep, false, nil
}

func indexByBase(files []string) map[string]string {
	idx := make(map[string]string, len(files))
	for _, f := range files {
		base := filepath.Base(f)
		if _, ok := idx[base]; !ok {
			idx[base] = f
		}
	}
	return idx
}
