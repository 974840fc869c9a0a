package tools

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
)

// RunOptions describes where a tool process runs and who else sees its
// output while it runs.
type RunOptions struct {
	Dir string
	// Env is appended to the inherited environment.
	Env []string
	// Echo and EchoErr receive stdout and stderr as the tool writes them.
	// Both are optional; the full output is always captured.
	Echo    io.Writer
	EchoErr io.Writer
}

// RunResult holds the captured streams of a finished tool process.
type RunResult struct {
	Stdout []byte
	Stderr []byte
}

// Runner starts a process. Tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, command string, args []string, opts RunOptions) (RunResult, error)
}

// CmdRunner runs tools with os/exec.
type CmdRunner struct{}

func (CmdRunner) Run(ctx context.Context, command string, args []string, opts RunOptions) (RunResult, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = echoed(&stdout, opts.Echo)
	cmd.Stderr = echoed(&stderr, opts.EchoErr)

	err := cmd.Run()
	return RunResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, err
}

func echoed(capture *bytes.Buffer, echo io.Writer) io.Writer {
	if echo == nil {
		return capture
	}
	return io.MultiWriter(capture, echo)
}

var _ Runner = CmdRunner{}
