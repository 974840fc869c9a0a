package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	inlinePattern = regexp.MustCompile(`#\{([^}]*)\}`)
	envPattern    = regexp.MustCompile(`^\s*ENV\[\s*['"]([A-Za-z_][A-Za-z0-9_]*)['"]\s*\]\s*$`)
)

// ExpressionError reports an inline expression that cannot be evaluated.
type ExpressionError struct {
	Path       string
	Expression string
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("%s: unsupported inline expression %q", e.Path, e.Expression)
}

// evaluate replaces every #{...} expression in string leaves of doc.
func evaluate(doc Document, getenv func(string) string) (Document, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	out, err := evalValue("", map[string]any(doc), getenv)
	if err != nil {
		return nil, err
	}
	return Document(out.(map[string]any)), nil
}

func evalValue(path string, v any, getenv func(string) string) (any, error) {
	switch t := v.(type) {
	case string:
		return evalString(path, t, getenv)
	case map[string]any:
		out := make(map[string]any, len(t))
		for _, k := range sortedKeys(t) {
			val, err := evalValue(joinPath(path, k), t[k], getenv)
			if err != nil {
				return nil, err
			}
			// Keys may carry expressions too, e.g. argument markers.
			key, err := evalString(joinPath(path, k), k, getenv)
			if err != nil {
				return nil, err
			}
			out[key] = val
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			val, err := evalValue(fmt.Sprintf("%s[%d]", path, i), el, getenv)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	}
	return v, nil
}

func evalString(path, s string, getenv func(string) string) (string, error) {
	if !strings.Contains(s, "#{") {
		return s, nil
	}
	var firstErr error
	out := inlinePattern.ReplaceAllStringFunc(s, func(expr string) string {
		inner := inlinePattern.FindStringSubmatch(expr)[1]
		if m := envPattern.FindStringSubmatch(inner); m != nil {
			return getenv(m[1])
		}
		if firstErr == nil {
			firstErr = &ExpressionError{Path: path, Expression: expr}
		}
		return expr
	})
	return out, firstErr
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
