package tools

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	placeholderPattern = regexp.MustCompile(`\$\{(\d+)\}`)
	templateToken      = regexp.MustCompile(`\\\$|\$\{(\d+)\}`)
)

// Lists resolves named lists referenced by marker arguments.
type Lists interface {
	Lookup(name string) ([]string, bool)
}

// TemplateError reports an argument template that cannot be expanded.
type TemplateError struct {
	Tool    string
	Element string
	Message string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("tool %q: %s (in %q)", e.Tool, e.Message, e.Element)
}

// Command is a fully expanded tool invocation.
type Command struct {
	Tool       string
	Executable string
	Line       string
	Optional   bool
}

// Platform captures the host details that change redirect and background syntax.
type Platform struct {
	Windows bool
	CShell  bool
}

// Builder expands tool descriptors into command lines.
type Builder struct {
	Lists    Lists
	Platform Platform
	// Logging forces stderr into captured output so it reaches the run log.
	Logging bool
}

// BuildCommandLine expands tool's executable and argument template against
// args and appends extraFlags. Positional args may be string, []string, or nil.
func (b Builder) BuildCommandLine(tool Descriptor, extraFlags []string, args ...any) (Command, error) {
	name := tool.Name
	exeParts, err := expandLiteral(name, tool.Executable, args)
	if err != nil {
		return Command{}, err
	}
	if len(exeParts) != 1 {
		return Command{}, &TemplateError{Tool: name, Element: tool.Executable, Message: "executable must expand to exactly one value"}
	}
	exe := exeParts[0]

	parts := []string{b.backgroundPrefix(tool), exe}
	for _, arg := range tool.Arguments {
		var expanded []string
		if arg.IsExpansion() {
			expanded, err = b.expandMarker(name, arg)
		} else {
			expanded, err = expandLiteral(name, arg.Literal, args)
		}
		if err != nil {
			return Command{}, err
		}
		parts = append(parts, expanded...)
	}
	parts = append(parts, extraFlags...)
	parts = append(parts, b.redirect(tool), b.backgroundSuffix(tool))

	return Command{
		Tool:       name,
		Executable: exe,
		Line:       joinNonEmpty(parts),
		Optional:   tool.Optional,
	}, nil
}

func expandLiteral(tool, element string, args []any) ([]string, error) {
	matches := placeholderPattern.FindAllStringSubmatch(element, -1)
	if len(matches) == 0 {
		return single(substitute(element, nil)), nil
	}

	values := make(map[int]string, len(matches))
	listIndex := -1
	var list []string
	for _, m := range matches {
		n, _ := strconv.Atoi(m[1])
		idx := n - 1
		if idx < 0 || idx >= len(args) || args[idx] == nil {
			return nil, &TemplateError{Tool: tool, Element: element, Message: fmt.Sprintf("expected argument data for %s", m[0])}
		}
		switch v := args[idx].(type) {
		case string:
			values[n] = v
		case []string:
			if listIndex < 0 || listIndex == n {
				listIndex = n
				list = v
			} else {
				values[n] = strings.Join(v, " ")
			}
		case fmt.Stringer:
			values[n] = v.String()
		case int:
			values[n] = strconv.Itoa(v)
		default:
			return nil, &TemplateError{Tool: tool, Element: element, Message: fmt.Sprintf("cannot expand argument %s of type %T", m[0], v)}
		}
	}

	if listIndex < 0 {
		return single(substitute(element, values)), nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		values[listIndex] = item
		out = append(out, single(substitute(element, values))...)
	}
	return out, nil
}

// substitute replaces ${N} tokens from values and unescapes \$.
func substitute(element string, values map[int]string) string {
	return templateToken.ReplaceAllStringFunc(element, func(tok string) string {
		if tok == `\$` {
			return "$"
		}
		n, _ := strconv.Atoi(tok[2 : len(tok)-1])
		if v, ok := values[n]; ok {
			return v
		}
		return tok
	})
}

func (b Builder) expandMarker(tool string, arg Argument) ([]string, error) {
	var elements []string
	for _, listName := range arg.Lists {
		if b.Lists == nil {
			return nil, &TemplateError{Tool: tool, Element: arg.String(), Message: fmt.Sprintf("cannot expand nonexistent value %q", listName)}
		}
		values, ok := b.Lists.Lookup(listName)
		if !ok {
			return nil, &TemplateError{Tool: tool, Element: arg.String(), Message: fmt.Sprintf("cannot expand nonexistent value %q", listName)}
		}
		elements = append(elements, values...)
	}

	out := make([]string, 0, len(elements))
	for _, el := range elements {
		out = append(out, single(replaceMarker(arg.Marker, el))...)
	}
	return out, nil
}

// replaceMarker substitutes value for the first unescaped $ in marker.
func replaceMarker(marker, value string) string {
	var b strings.Builder
	replaced := false
	for i := 0; i < len(marker); i++ {
		c := marker[i]
		if c == '\\' && i+1 < len(marker) && marker[i+1] == '$' {
			b.WriteByte('$')
			i++
			continue
		}
		if c == '$' && !replaced {
			b.WriteString(value)
			replaced = true
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func (b Builder) redirect(tool Descriptor) string {
	mode := tool.StderrRedirect
	if b.Logging && mode.named() {
		mode = RedirectAuto
	}
	switch mode {
	case "", RedirectNone:
		return ""
	case RedirectAuto:
		if !b.Platform.Windows && b.Platform.CShell {
			return "|&"
		}
		return "2>&1"
	case RedirectWin, RedirectUnix:
		return "2>&1"
	case RedirectTcsh:
		return "|&"
	}
	return string(mode)
}

func (b Builder) backgroundPrefix(tool Descriptor) string {
	switch tool.BackgroundExec {
	case BackgroundAuto:
		if b.Platform.Windows {
			return "start"
		}
	case BackgroundWin:
		return "start"
	}
	return ""
}

func (b Builder) backgroundSuffix(tool Descriptor) string {
	switch tool.BackgroundExec {
	case BackgroundAuto:
		if !b.Platform.Windows {
			return "&"
		}
	case BackgroundUnix:
		return "&"
	}
	return ""
}

func single(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return []string{s}
}

func joinNonEmpty(parts []string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
