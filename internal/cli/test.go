package cli

import (
	"context"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"testrig/internal/cache"
	"testrig/internal/engine"
	"testrig/internal/stream"
	"testrig/internal/tui"
)

var testNoProgress bool

func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test [files...]",
		Short: "Build and run unit tests (all tests when no files are given)",
		RunE:  runTest,
	}

	cmd.Flags().BoolVar(&testNoProgress, "no-progress", false, "Disable the interactive progress table")

	return cmd
}

func runTest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	out := cmd.OutOrStdout()
	mode := tui.DetectMode(out, testNoProgress, outputJSON)

	var (
		status *tui.StatusWriter
		phase  func(string)
	)
	if mode == tui.ModeTUI {
		status = tui.NewStatusWriter(out)
		phase = status.Phase
	}
	e, err := openEngine(cmd, phase)
	var phases []tui.PhaseTiming
	if status != nil {
		phases = status.Stop()
	}
	if err != nil {
		return err
	}
	defer e.Close()
	for _, p := range phases {
		e.Logger.Printf("setup: %s took %s", p.Name, p.Elapsed)
	}

	tests, err := e.Tests(args)
	if err != nil {
		return err
	}

	var summary *engine.Summary
	switch mode {
	case tui.ModeTUI:
		summary, err = runTestsInteractive(ctx, cmd, e, tests)
	case tui.ModePlain:
		summary, err = runTestsPlain(ctx, cmd, e, tests)
	default:
		summary, err = e.RunTests(ctx, tests, nil)
	}
	if err != nil {
		return err
	}
	return reportRun(cmd, summary)
}

// runTestsInteractive silences the console while the live table owns the
// terminal, then restores it for the summary hooks.
func runTestsInteractive(ctx context.Context, cmd *cobra.Command, e *engine.Engine, tests []string) (*engine.Summary, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	level := e.Stream.Level()
	e.Stream.SetLevel(stream.Silent)

	var (
		summary  *engine.Summary
		buildErr error
	)
	built := make(chan struct{})
	model := tui.NewTestModel(fmt.Sprintf("Testing %s", filepath.Base(e.Config.Root)), tests)
	err := tui.RunWithWork(cmd.OutOrStdout(), model, func(send func(tea.Msg)) error {
		defer close(built)
		summary, buildErr = e.BuildTests(runCtx, tests, tui.NewTestReporter(send))
		return buildErr
	})
	// Quitting the table early cancels the remaining tests.
	cancel()
	<-built
	e.Stream.SetLevel(level)

	if err != nil {
		return nil, err
	}
	if buildErr != nil {
		return nil, buildErr
	}
	e.Finish(ctx, cache.KindTest, summary)
	return summary, nil
}

func runTestsPlain(ctx context.Context, cmd *cobra.Command, e *engine.Engine, tests []string) (*engine.Summary, error) {
	table := tui.NewStaticTable(tui.NewTestModel("", tests))
	summary, err := e.BuildTests(ctx, tests, tui.NewTestReporter(table.Send))
	if err != nil {
		return nil, err
	}
	if e.Stream.Enabled(stream.Normal) {
		fmt.Fprintln(cmd.OutOrStdout())
		if err := table.Render(cmd.OutOrStdout()); err != nil {
			return nil, err
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}
	e.Finish(ctx, cache.KindTest, summary)
	return summary, nil
}

// reportRun prints the summary as JSON or lists run-level problems, and
// turns a failing run into an ExitError.
func reportRun(cmd *cobra.Command, s *engine.Summary) error {
	if outputJSON {
		if err := writeJSON(cmd, s.JSON()); err != nil {
			return err
		}
	} else {
		errw := cmd.ErrOrStderr()
		for _, o := range s.Outcomes {
			if o.Err != nil {
				fmt.Fprintf(errw, "%s: %v\n", filepath.Base(o.Test), o.Err)
			}
		}
		for _, f := range s.PluginFailures {
			fmt.Fprintf(errw, "plugin %s: %s\n", f.Plugin, f.Message)
		}
		for _, msg := range s.Errors {
			fmt.Fprintf(errw, "error: %s\n", msg)
		}
	}
	if code := s.ExitCode(); code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
