package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"testrig/internal/tools"
)

//go:embed schema.json
var schemaJSON string

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// ValidationResult captures a single validation finding.
type ValidationResult struct {
	Level   string `json:"level"` // "error" or "warning"
	Message string `json:"message"`
}

// MissingKeysError lists required keys absent from every layer.
type MissingKeysError struct {
	Keys []string
}

func (e *MissingKeysError) Error() string {
	return "missing required configuration: " + strings.Join(e.Keys, ", ")
}

// ValidationError is one invalid configuration value.
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors aggregates every invalid value found.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, v := range e {
		parts[i] = v.Error()
	}
	return "invalid configuration:\n  " + strings.Join(parts, "\n  ")
}

var requiredKeys = []string{"project.build_root", "paths.test"}

func missingKeys(doc Document) []string {
	var missing []string
	for _, key := range requiredKeys {
		v, ok := doc.Get(key)
		if !ok || isEmpty(v) {
			missing = append(missing, key)
		}
	}
	if release, _ := doc.Get("project.release_build"); release == true {
		if v, ok := doc.Get("paths.source"); !ok || isEmpty(v) {
			missing = append(missing, "paths.source")
		}
	}
	return missing
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonschema.CompileString("testrig-project.schema.json", schemaJSON)
	})
	return compiledSchema, schemaErr
}

func validateSchema(doc Document) error {
	s, err := schema()
	if err != nil {
		return fmt.Errorf("compile configuration schema: %w", err)
	}
	err = s.Validate(map[string]any(doc))
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("validate configuration: %w", err)
	}
	var out ValidationErrors
	collectLeaves(ve, &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func collectLeaves(ve *jsonschema.ValidationError, out *ValidationErrors) {
	if len(ve.Causes) == 0 {
		*out = append(*out, ValidationError{Path: dottedPath(ve.InstanceLocation), Message: ve.Message})
		return
	}
	for _, c := range ve.Causes {
		collectLeaves(c, out)
	}
}

func dottedPath(pointer string) string {
	p := strings.Trim(pointer, "/")
	if p == "" {
		return "(root)"
	}
	return strings.ReplaceAll(p, "/", ".")
}

// ValidateTools checks that every named non-optional tool resolves to an
// executable. Optional tools are checked on first use.
func (r *Resolved) ValidateTools(names ...string) error {
	var out ValidationErrors
	for _, name := range names {
		desc, ok := r.Tools[name]
		if !ok {
			out = append(out, ValidationError{Path: "tools." + name, Message: "tool is not defined"})
			continue
		}
		if desc.Optional || desc.Templated() {
			continue
		}
		if st := tools.DetectOne(r.Root, desc); !st.Available {
			out = append(out, ValidationError{Path: "tools." + name + ".executable", Message: fmt.Sprintf("%s %s", desc.Executable, st.Error)})
		}
	}
	if len(out) > 0 {
		return out
	}
	return nil
}

// Check reports non-fatal findings about the resolved project.
func (r *Resolved) Check() []ValidationResult {
	var results []ValidationResult
	keys := make([]string, 0, len(r.Paths))
	for k := range r.Paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, dir := range r.Collections["collection_paths_"+k] {
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				results = append(results, ValidationResult{
					Level:   "warning",
					Message: fmt.Sprintf("paths.%s: directory %q does not exist", k, dir),
				})
			}
		}
	}
	if len(r.Collections["collection_all_tests"]) == 0 {
		results = append(results, ValidationResult{
			Level:   "warning",
			Message: fmt.Sprintf("no test files matching %s*%s found", r.Project.TestFilePrefix, r.Extension.Source),
		})
	}
	return results
}
