package tools

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"testrig/internal/logx"
	"testrig/internal/stream"
)

// ExecError reports a tool that exited non-zero.
type ExecError struct {
	Tool     string
	Command  string
	Output   string
	ExitCode int
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("tool %q exited with code %d\n> %s", e.Tool, e.ExitCode, e.Command)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

// Options tweaks a single execution.
type Options struct {
	// NoFail returns a non-zero exit as a normal Result.
	NoFail bool
	Dir    string
	Env    []string
}

// Result is the outcome of one tool invocation.
type Result struct {
	Command  string
	Output   string
	Stderr   string
	ExitCode int
	Elapsed  time.Duration
}

// Executor runs expanded commands through the platform shell.
type Executor struct {
	Runner Runner
	Shell  Shell
	Dir    string
	Logger logx.Logger
	Stream *stream.Streamer
}

// NewExecutor binds an executor to a working directory.
func NewExecutor(runner Runner, shell Shell, dir string, logger logx.Logger, st *stream.Streamer) *Executor {
	if runner == nil {
		runner = CmdRunner{}
	}
	if logger == nil {
		logger = logx.Discard()
	}
	return &Executor{Runner: runner, Shell: shell, Dir: dir, Logger: logger, Stream: st}
}

// Exec runs cmd and captures its output. At debug verbosity the output is
// also echoed to the console as the tool writes it.
func (e *Executor) Exec(ctx context.Context, cmd Command, opts Options) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	dir := opts.Dir
	if dir == "" {
		dir = e.Dir
	}

	e.Stream.Printf(stream.Obnoxious, "> %s\n", cmd.Line)
	e.Logger.Printf("exec [%s]: %s", cmd.Tool, cmd.Line)

	start := time.Now()
	run := RunOptions{
		Dir:     dir,
		Env:     opts.Env,
		Echo:    e.Stream.Writer(stream.Debug),
		EchoErr: e.Stream.Writer(stream.Debug),
	}
	out, err := e.Runner.Run(ctx, e.Shell.Program, []string{e.Shell.Flag, cmd.Line}, run)
	res := Result{
		Command: cmd.Line,
		Output:  string(out.Stdout),
		Stderr:  string(out.Stderr),
		Elapsed: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			e.Logger.Printf("exec [%s] failed to start: %v", cmd.Tool, err)
			return res, fmt.Errorf("run tool %q: %w", cmd.Tool, err)
		}
		res.ExitCode = exitErr.ExitCode()
	}

	e.Logger.Printf("exec [%s] exit %d in %s", cmd.Tool, res.ExitCode, res.Elapsed.Round(time.Millisecond))
	if trimmed := strings.TrimSpace(res.Output); trimmed != "" {
		e.Logger.Printf("exec [%s] output:\n%s", cmd.Tool, trimmed)
	}
	if trimmed := strings.TrimSpace(res.Stderr); trimmed != "" {
		e.Logger.Printf("exec [%s] stderr:\n%s", cmd.Tool, trimmed)
	}

	if res.ExitCode != 0 && !opts.NoFail {
		return res, &ExecError{
			Tool:     cmd.Tool,
			Command:  cmd.Line,
			Output:   strings.TrimSpace(res.Output + "\n" + res.Stderr),
			ExitCode: res.ExitCode,
		}
	}
	return res, nil
}
