package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"testrig/internal/tools"
)

// MockGenerator writes a mock source for header into outDir.
type MockGenerator interface {
	GenerateMock(ctx context.Context, header, outDir string) error
}

// RunnerGenerator writes the runner source for test.
type RunnerGenerator interface {
	GenerateRunner(ctx context.Context, test, runner string) error
}

// ToolMockGenerator runs the configured mock generator tool with
// ${1}=header, ${2}=output directory, ${3}=mock prefix.
type ToolMockGenerator struct {
	Tool     tools.Descriptor
	Commands CommandBuilder
	Exec     Execer
	Prefix   string
}

func (g ToolMockGenerator) GenerateMock(ctx context.Context, header, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	cmd, err := g.Commands.BuildCommandLine(g.Tool, nil, header, outDir, g.Prefix)
	if err != nil {
		return err
	}
	if _, err := g.Exec.Exec(ctx, cmd, tools.Options{}); err != nil {
		return fmt.Errorf("generate mock for %s: %w", filepath.Base(header), err)
	}
	return nil
}

// ToolRunnerGenerator runs the configured runner generator tool with
// ${1}=test file, ${2}=runner file.
type ToolRunnerGenerator struct {
	Tool     tools.Descriptor
	Commands CommandBuilder
	Exec     Execer
}

func (g ToolRunnerGenerator) GenerateRunner(ctx context.Context, test, runner string) error {
	if err := os.MkdirAll(filepath.Dir(runner), 0o755); err != nil {
		return err
	}
	cmd, err := g.Commands.BuildCommandLine(g.Tool, nil, test, runner)
	if err != nil {
		return err
	}
	if _, err := g.Exec.Exec(ctx, cmd, tools.Options{}); err != nil {
		return fmt.Errorf("generate runner for %s: %w", filepath.Base(test), err)
	}
	return nil
}
