package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"testrig/internal/engine"
)

var (
	projectDir  string
	projectFile string
	mixins      []string
	verbosity   string
	outputJSON  bool
)

// ExitError carries a non-zero run status that has already been reported.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Execute runs the root cobra command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		var exit *ExitError
		if errors.As(err, &exit) {
			os.Exit(exit.Code)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "testrig",
		Short:         "Build and run C unit tests",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&projectDir, "project", "", "Path to project directory")
	cmd.PersistentFlags().StringVar(&projectFile, "file", "", "Project file relative to the project directory (default project.yml)")
	cmd.PersistentFlags().StringSliceVar(&mixins, "mixin", nil, "Merge an extra configuration file or named mixin (repeat flag for multiple)")
	cmd.PersistentFlags().StringVar(&verbosity, "verbosity", "", "Override project.verbosity (silent, errors, warnings, normal, obnoxious, debug)")
	cmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output machine-readable JSON")

	cmd.AddCommand(newTestCmd())
	cmd.AddCommand(newReleaseCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newToolsCmd())
	cmd.AddCommand(newFilesCmd())
	cmd.AddCommand(newPluginsCmd())
	cmd.AddCommand(newCleanCmd())
	cmd.AddCommand(newClobberCmd())

	return cmd
}

// openEngine wires a run from the global flags. JSON output keeps stdout
// free of console chatter. phase may be nil.
func openEngine(cmd *cobra.Command, phase func(string)) (*engine.Engine, error) {
	level := verbosity
	if outputJSON {
		level = "silent"
	}
	return engine.Open(engine.Options{
		ProjectDir:  projectDir,
		ProjectFile: projectFile,
		Mixins:      mixins,
		Verbosity:   level,
		Out:         cmd.OutOrStdout(),
		Err:         cmd.ErrOrStderr(),
		Color:       !color.NoColor,
		Phase:       phase,
	})
}

// writeJSON prints v indented on stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
