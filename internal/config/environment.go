package config

import (
	"fmt"
	"os"
	"strings"
)

// EnvVar is one entry of the environment section.
type EnvVar struct {
	Name  string
	Value string
}

// parseEnvironment reads the ordered list of single-key mappings. List values
// join with the OS path-list separator for PATH and with nothing otherwise.
func parseEnvironment(doc Document) ([]EnvVar, error) {
	raw, ok := doc["environment"]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("environment must be a list of single-key mappings")
	}

	vars := make([]EnvVar, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok || len(m) != 1 {
			return nil, fmt.Errorf("environment[%d] must be a single-key mapping", i)
		}
		for key, val := range m {
			name := strings.ToUpper(key)
			values, ok := toStrings(val)
			if !ok {
				return nil, fmt.Errorf("environment.%s must be a string or list", key)
			}
			sep := ""
			if name == "PATH" {
				sep = string(os.PathListSeparator)
			}
			vars = append(vars, EnvVar{Name: name, Value: strings.Join(values, sep)})
		}
	}
	return vars, nil
}

// ApplyEnvironment exports the environment section into the process. Call it
// once, before any parallel work starts.
func (r *Resolved) ApplyEnvironment() error {
	for _, v := range r.Environment {
		if err := os.Setenv(v.Name, v.Value); err != nil {
			return fmt.Errorf("set %s: %w", v.Name, err)
		}
	}
	return nil
}
