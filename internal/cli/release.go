package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"testrig/internal/stream"
)

func newReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release",
		Short: "Compile and link the release artifact",
		Args:  cobra.NoArgs,
		RunE:  runRelease,
	}
}

func runRelease(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	e, err := openEngine(cmd, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	if !e.Config.Project.ReleaseBuild {
		return fmt.Errorf("release builds are disabled; set project.release_build in %s", e.Config.Root)
	}

	summary, err := e.RunRelease(ctx)
	if err != nil {
		return err
	}
	if !outputJSON && summary.Artifact != "" && e.Stream.Enabled(stream.Normal) {
		fmt.Fprintf(cmd.OutOrStdout(), "release artifact: %s\n", summary.Artifact)
	}
	return reportRun(cmd, summary)
}
