package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a decoded configuration tree.
type Document map[string]any

// Layer is one ordered source of configuration.
type Layer struct {
	Name string
	Doc  Document
	// FillOnly layers contribute keys only where nothing is set yet.
	FillOnly bool
}

// LoadLayer reads a YAML file into a layer. A missing file yields an empty
// layer when optional is set.
func LoadLayer(name, path string, optional bool) (Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return Layer{Name: name, Doc: Document{}}, nil
		}
		return Layer{}, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return Layer{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return Layer{Name: name, Doc: doc}, nil
}

// ParseDocument decodes YAML bytes into a normalized document.
func ParseDocument(data []byte) (Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return Document{}, nil
	}
	m, ok := normalize(raw).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("top level must be a mapping, got %T", raw)
	}
	return Document(m), nil
}

// normalize converts YAML-decoded values into map[string]any / []any trees.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = val
		}
		return out
	}
	return v
}

// Merge overlays src on dst: scalars override, lists concatenate, and
// mappings recurse. Neither input is modified.
func Merge(dst, src Document) Document {
	return Document(mergeMaps(dst, src, false))
}

// Fill adds keys from src that dst lacks, recursing into shared mappings.
func Fill(dst, src Document) Document {
	return Document(mergeMaps(dst, src, true))
}

func mergeMaps(dst, src map[string]any, fillOnly bool) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = clone(v)
	}
	for k, sv := range src {
		dv, exists := out[k]
		if !exists {
			out[k] = clone(sv)
			continue
		}
		if sm, ok := sv.(map[string]any); ok {
			if dm, ok := dv.(map[string]any); ok {
				out[k] = mergeMaps(dm, sm, fillOnly)
				continue
			}
		}
		if fillOnly {
			continue
		}
		if sl, ok := sv.([]any); ok {
			if dl, ok := dv.([]any); ok {
				merged := make([]any, 0, len(dl)+len(sl))
				merged = append(merged, dl...)
				merged = append(merged, clone(sl).([]any)...)
				out[k] = merged
				continue
			}
		}
		out[k] = clone(sv)
	}
	return out
}

func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = clone(val)
		}
		return out
	case Document:
		return clone(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = clone(val)
		}
		return out
	}
	return v
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	if d == nil {
		return Document{}
	}
	return Document(clone(map[string]any(d)).(map[string]any))
}

// Section returns the mapping stored under key, if any.
func (d Document) Section(key string) (map[string]any, bool) {
	m, ok := d[key].(map[string]any)
	return m, ok
}

// Get walks a dotted key path.
func (d Document) Get(dotted string) (any, bool) {
	var cur any = map[string]any(d)
	for _, part := range strings.Split(dotted, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set assigns a value at a dotted key path, creating mappings as needed.
func (d Document) Set(dotted string, value any) {
	parts := strings.Split(dotted, ".")
	cur := map[string]any(d)
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

// Marshal renders the document as YAML with sorted keys.
func (d Document) Marshal() ([]byte, error) {
	return yaml.Marshal(map[string]any(d))
}

// decode maps a subtree onto a typed value through the YAML node model.
func decode(v any, out any) error {
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return err
	}
	return node.Decode(out)
}

// toStrings flattens a scalar or list into strings.
func toStrings(v any) ([]string, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case []any:
		out := make([]string, 0, len(t))
		for _, el := range t {
			switch el.(type) {
			case map[string]any, []any:
				return nil, false
			}
			out = append(out, fmt.Sprint(el))
		}
		return out, true
	case []string:
		return append([]string(nil), t...), true
	case map[string]any:
		return nil, false
	}
	return []string{fmt.Sprint(v)}, true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
