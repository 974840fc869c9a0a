package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"testrig/internal/plugin"
)

func newPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect enabled plugins",
	}

	cmd.AddCommand(newPluginsListCmd())

	return cmd
}

func newPluginsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List loaded plugins and the hooks each one handles",
		RunE:  runPluginsList,
	}
}

type pluginInfo struct {
	Name  string   `json:"name"`
	Hooks []string `json:"hooks"`
}

func runPluginsList(cmd *cobra.Command, _ []string) error {
	e, err := openEngine(cmd, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	infos := pluginInfos(e.Plugins)

	if outputJSON {
		return writeJSON(cmd, infos)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "(no plugins enabled)")
		return nil
	}
	for _, info := range infos {
		hooks := strings.Join(info.Hooks, ", ")
		if hooks == "" {
			hooks = "(config only)"
		}
		fmt.Fprintf(out, "%-32s %s\n", info.Name, hooks)
	}
	return nil
}

// pluginInfos lists plugins in load order with their hooks in invocation
// order.
func pluginInfos(m *plugin.Manager) []pluginInfo {
	byPlugin := map[string][]string{}
	for _, h := range plugin.AllHooks {
		for _, name := range m.Handlers(h) {
			byPlugin[name] = append(byPlugin[name], string(h))
		}
	}
	infos := make([]pluginInfo, 0, len(m.Names()))
	for _, name := range m.Names() {
		infos = append(infos, pluginInfo{Name: name, Hooks: append([]string{}, byPlugin[name]...)})
	}
	return infos
}
