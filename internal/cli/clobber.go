package cli

import (
	"github.com/spf13/cobra"
)

var clobberDryRun bool

func newClobberCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clobber",
		Short: "Remove the whole build root, including artifacts and logs",
		Args:  cobra.NoArgs,
		RunE:  runClobber,
	}

	cmd.Flags().BoolVar(&clobberDryRun, "dry-run", false, "List what would be removed without deleting")

	return cmd
}

func runClobber(cmd *cobra.Command, _ []string) error {
	e, err := openEngine(cmd, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	out := cmd.OutOrStdout()
	result, err := measureDirs([]string{e.Config.Build.Root}, out, clobberDryRun)
	if err != nil {
		return err
	}
	if !clobberDryRun {
		if err := e.Clobber(); err != nil {
			return err
		}
	}
	return writeCleanResult(out, "clobber", result)
}
