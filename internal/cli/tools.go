package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"testrig/internal/tools"
)

var toolsRequiredOnly bool

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect configured external tools",
	}

	cmd.AddCommand(newToolsListCmd())

	return cmd
}

func newToolsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured tools and whether their executables resolve",
		RunE:  runToolsList,
	}
	cmd.Flags().BoolVar(&toolsRequiredOnly, "required", false, "Only list tools the enabled features need, and fail if any is missing")
	return cmd
}

func runToolsList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	descriptors := cfg.Tools
	if toolsRequiredOnly {
		descriptors = make(map[string]tools.Descriptor)
		for _, name := range cfg.RequiredTools() {
			if desc, ok := cfg.Tools[name]; ok {
				descriptors[name] = desc
			}
		}
	}
	statuses := tools.Detect(cfg.Root, descriptors)

	if outputJSON {
		if err := writeJSON(cmd, statuses); err != nil {
			return err
		}
	} else {
		printStatusTable(cmd, statuses)
	}

	if toolsRequiredOnly {
		var missing int
		for _, st := range statuses {
			if !st.Available && !st.Optional {
				missing++
			}
		}
		if missing > 0 {
			return fmt.Errorf("%d required tool(s) not found", missing)
		}
	}
	return nil
}

func printStatusTable(cmd *cobra.Command, statuses []tools.Status) {
	out := cmd.OutOrStdout()
	if len(statuses) == 0 {
		fmt.Fprintln(out, "(no tools configured)")
		return
	}

	fmt.Fprintf(out, "%-28s %-24s %-5s %s\n", "Tool", "Executable", "OK", "Path")
	for _, st := range statuses {
		ok := "no"
		if st.Available {
			ok = "yes"
		}
		path := st.Path
		switch {
		case st.Templated:
			path = "(resolved at run time)"
		case path == "":
			path = "(missing)"
		}
		fmt.Fprintf(out, "%-28s %-24s %-5s %s\n", st.Tool, st.Executable, ok, path)
		if st.Error != "" && !st.Optional {
			fmt.Fprintf(out, "  error: %s\n", st.Error)
		}
	}
}
