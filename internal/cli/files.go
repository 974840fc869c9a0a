package cli

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var filesRelative bool

// fileKinds maps the files subcommand argument to its collection.
var fileKinds = map[string]string{
	"tests":    "all_tests",
	"source":   "all_source",
	"headers":  "all_headers",
	"support":  "all_support",
	"assembly": "all_assembly",
}

func newFilesCmd() *cobra.Command {
	kinds := make([]string, 0, len(fileKinds))
	for k := range fileKinds {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	cmd := &cobra.Command{
		Use:       "files [" + strings.Join(kinds, "|") + "]",
		Short:     "List the files a collection resolves to (tests when omitted)",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: kinds,
		RunE:      runFiles,
	}
	cmd.Flags().BoolVar(&filesRelative, "relative", false, "Print paths relative to the project root")
	return cmd
}

func runFiles(cmd *cobra.Command, args []string) error {
	kind := "tests"
	if len(args) == 1 {
		kind = strings.ToLower(args[0])
	}
	collection, ok := fileKinds[kind]
	if !ok {
		return fmt.Errorf("unknown file kind %q", kind)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	files := make([]string, 0, len(cfg.Collection(collection)))
	for _, f := range cfg.Collection(collection) {
		if filesRelative {
			if rel, err := filepath.Rel(cfg.Root, f); err == nil {
				f = rel
			}
		}
		files = append(files, f)
	}

	if outputJSON {
		return writeJSON(cmd, files)
	}
	out := cmd.OutOrStdout()
	for _, f := range files {
		fmt.Fprintln(out, f)
	}
	return nil
}
