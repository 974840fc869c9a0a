package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"testrig/internal/config"
	"testrig/internal/paths"
)

var configShowFlat bool

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect project configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigCheckCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration in YAML",
		RunE:  runConfigShow,
	}
	cmd.Flags().BoolVar(&configShowFlat, "flat", false, "Print the flattened accessor table instead")
	return cmd
}

func newConfigCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and the tools it needs",
		RunE:  runConfigCheck,
	}
}

func loadConfig() (*config.Resolved, error) {
	pp, err := paths.Resolve(projectDir, projectFile)
	if err != nil {
		return nil, err
	}
	return config.Load(pp, config.LoadOptions{Mixins: mixins})
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if configShowFlat {
		keys := cfg.FlatKeys()
		if outputJSON {
			table := make(map[string]any, len(keys))
			for _, k := range keys {
				table[k], _ = cfg.Value(k)
			}
			return writeJSON(cmd, table)
		}
		for _, k := range keys {
			v, _ := cfg.Value(k)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", k, formatValue(v))
		}
		return nil
	}

	if outputJSON {
		return writeJSON(cmd, cfg.Document())
	}
	data, err := cfg.Document().Marshal()
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), string(data))
	if len(data) == 0 || data[len(data)-1] != '\n' {
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}

func formatValue(v any) string {
	if list, ok := v.([]string); ok {
		return "[" + strings.Join(list, ", ") + "]"
	}
	if list, ok := v.([]any); ok {
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = fmt.Sprint(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprint(v)
}

func runConfigCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	results := cfg.Check()
	if err := cfg.ValidateTools(cfg.RequiredTools()...); err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			for _, v := range verrs {
				results = append(results, config.ValidationResult{Level: "error", Message: v.Error()})
			}
		} else {
			results = append(results, config.ValidationResult{Level: "error", Message: err.Error()})
		}
	}

	var errs []string
	for _, r := range results {
		if r.Level == "error" {
			errs = append(errs, r.Message)
		}
	}

	if outputJSON {
		payload := struct {
			Project     string                    `json:"project"`
			Validations []config.ValidationResult `json:"validations"`
		}{
			Project:     cfg.Root,
			Validations: append([]config.ValidationResult{}, results...),
		}
		if err := writeJSON(cmd, payload); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", r.Level, r.Message)
		}
		if len(errs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "configuration OK: %s\n", cfg.Root)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
