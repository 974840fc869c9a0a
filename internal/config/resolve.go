package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"testrig/internal/paths"
)

// Options controls how layers are resolved.
type Options struct {
	// Root anchors every relative path in the configuration.
	Root string
	// Getenv backs inline ENV expressions; os.Getenv when nil.
	Getenv func(string) string
}

// Resolved is the immutable result of merging every configuration layer.
// Per-test overrides go through a Scope rather than mutating it.
type Resolved struct {
	Settings
	Root        string
	Build       paths.BuildPaths
	Collections map[string][]string
	Environment []EnvVar

	opts   Options
	layers []Layer
	doc    Document
	flat   map[string]any
}

// Resolve merges layers in order over the built-in defaults, evaluates inline
// expressions, installs default tools, validates, and derives paths and
// collections.
func Resolve(opts Options, layers ...Layer) (*Resolved, error) {
	if opts.Root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve root: %w", err)
		}
		opts.Root = wd
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}

	explicit := Document{}
	for _, l := range layers {
		if l.FillOnly {
			explicit = Fill(explicit, l.Doc)
		} else {
			explicit = Merge(explicit, l.Doc)
		}
	}
	doc := Fill(explicit, defaultDocument())

	doc, err := evaluate(doc, opts.Getenv)
	if err != nil {
		return nil, err
	}

	if missing := missingKeys(doc); len(missing) > 0 {
		return nil, &MissingKeysError{Keys: missing}
	}
	if err := validateSchema(doc); err != nil {
		return nil, err
	}

	var project Project
	var release ReleaseBuild
	if err := decode(doc["project"], &project); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	if err := decode(doc["release_build"], &release); err != nil {
		return nil, fmt.Errorf("decode release_build: %w", err)
	}
	applyToolDefaults(doc, project, release)

	var settings Settings
	if err := decode(map[string]any(doc), &settings); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	settings.ApplyDefaults()

	env, err := parseEnvironment(doc)
	if err != nil {
		return nil, err
	}

	build := paths.NewBuildPaths(paths.Join(opts.Root, settings.Project.BuildRoot))
	if settings.Mocks.Path == "" {
		settings.Mocks.Path = build.Test.Mocks
	} else {
		settings.Mocks.Path = paths.Join(opts.Root, settings.Mocks.Path)
	}
	collections := deriveCollections(opts.Root, settings, settings.Mocks.Path)

	r := &Resolved{
		Settings:    settings,
		Root:        opts.Root,
		Build:       build,
		Collections: collections,
		Environment: env,
		opts:        opts,
		layers:      append([]Layer(nil), layers...),
		doc:         doc,
	}
	r.flat = flatten(doc, collections)
	return r, nil
}

// Supplement returns a new resolution with layer merged after the existing ones.
func (r *Resolved) Supplement(layer Layer) (*Resolved, error) {
	layers := append(append([]Layer(nil), r.layers...), layer)
	return Resolve(r.opts, layers...)
}

// Document returns a copy of the merged document.
func (r *Resolved) Document() Document {
	return r.doc.Clone()
}

// Lookup returns a flattened key (case-insensitive) as a list of strings.
func (r *Resolved) Lookup(name string) ([]string, bool) {
	v, ok := r.flat[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return toStrings(v)
}

// Value returns the raw flattened value for name.
func (r *Resolved) Value(name string) (any, bool) {
	v, ok := r.flat[strings.ToLower(name)]
	return v, ok
}

// FlatKeys lists every flattened accessor name in order.
func (r *Resolved) FlatKeys() []string {
	return sortedKeys(r.flat)
}

// Collection returns a derived collection by short or full name, e.g.
// "all_tests" or "collection_all_tests".
func (r *Resolved) Collection(name string) []string {
	name = strings.ToLower(name)
	if !strings.HasPrefix(name, "collection_") {
		name = "collection_" + name
	}
	return r.Collections[name]
}

// TestName is the base name of a test file without extension.
func TestName(file string) string {
	return strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
}

func applyToolDefaults(doc Document, p Project, rb ReleaseBuild) {
	section, ok := doc["tools"].(map[string]any)
	if !ok {
		section = map[string]any{}
		doc["tools"] = section
	}
	defaults := defaultTools()
	for _, name := range requiredTools(p, rb) {
		if _, exists := section[name]; !exists {
			section[name] = clone(defaults[name])
		}
	}
	for name, v := range section {
		tool, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if _, ok := tool["name"]; !ok {
			tool["name"] = name
		}
		if _, ok := tool["stderr_redirect"]; !ok {
			tool["stderr_redirect"] = "none"
		}
		if _, ok := tool["background_exec"]; !ok {
			tool["background_exec"] = "none"
		}
		if _, ok := tool["optional"]; !ok {
			tool["optional"] = false
		}
		// A top-level <tool>: {arguments: [...]} augments the tool's template.
		if extra, ok := doc[name].(map[string]any); ok {
			if more, ok := extra["arguments"].([]any); ok {
				args, _ := tool["arguments"].([]any)
				tool["arguments"] = append(clone(args).([]any), clone(more).([]any)...)
			}
		}
	}
}

// flatten builds the <section>_<key> accessor table.
func flatten(doc Document, collections map[string][]string) map[string]any {
	flat := map[string]any{}
	for section, v := range doc {
		section = strings.ToLower(section)
		switch t := v.(type) {
		case map[string]any:
			for k, val := range t {
				flat[section+"_"+strings.ToLower(k)] = val
			}
		case []any:
			flat[section] = t
			for _, item := range t {
				if m, ok := item.(map[string]any); ok && len(m) == 1 {
					for k, val := range m {
						flat[section+"_"+strings.ToLower(k)] = val
					}
				}
			}
		default:
			flat[section] = t
		}
	}
	names := make([]string, 0, len(collections))
	for k := range collections {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		flat[k] = append([]string(nil), collections[k]...)
	}
	return flat
}
