package tools

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// StderrRedirect selects how a tool's stderr is folded into its captured output.
// Any value outside the named modes is appended to the command line verbatim.
type StderrRedirect string

const (
	RedirectNone StderrRedirect = "none"
	RedirectAuto StderrRedirect = "auto"
	RedirectWin  StderrRedirect = "win"
	RedirectUnix StderrRedirect = "unix"
	RedirectTcsh StderrRedirect = "tcsh"
)

func (r StderrRedirect) named() bool {
	switch r {
	case "", RedirectNone, RedirectAuto, RedirectWin, RedirectUnix, RedirectTcsh:
		return true
	}
	return false
}

// BackgroundExec selects whether a tool is detached from the build.
type BackgroundExec string

const (
	BackgroundNone BackgroundExec = "none"
	BackgroundAuto BackgroundExec = "auto"
	BackgroundWin  BackgroundExec = "win"
	BackgroundUnix BackgroundExec = "unix"
)

// Argument is one element of a tool's argument template: either a literal
// (possibly containing ${N} placeholders) or a marker/list pair such as
// {"-I$": COLLECTION_PATHS_TEST}.
type Argument struct {
	Literal string
	Marker  string
	Lists   []string
}

// Lit builds a literal argument.
func Lit(s string) Argument { return Argument{Literal: s} }

// Expand builds a marker/list argument.
func Expand(marker string, lists ...string) Argument {
	return Argument{Marker: marker, Lists: lists}
}

// IsExpansion reports whether the argument is a marker/list pair.
func (a Argument) IsExpansion() bool { return a.Marker != "" }

func (a Argument) String() string {
	if a.IsExpansion() {
		return fmt.Sprintf("{%s: %s}", a.Marker, strings.Join(a.Lists, ", "))
	}
	return a.Literal
}

// UnmarshalYAML accepts a scalar literal or a single-key mapping.
func (a *Argument) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		a.Literal = value.Value
		return nil
	case yaml.MappingNode:
		if len(value.Content) != 2 {
			return fmt.Errorf("line %d: argument mapping must have exactly one key", value.Line)
		}
		a.Marker = value.Content[0].Value
		if a.Marker == "" {
			return fmt.Errorf("line %d: argument marker is empty", value.Line)
		}
		names := value.Content[1]
		switch names.Kind {
		case yaml.ScalarNode:
			a.Lists = []string{names.Value}
		case yaml.SequenceNode:
			if err := names.Decode(&a.Lists); err != nil {
				return err
			}
		default:
			return fmt.Errorf("line %d: argument %q must name a list", value.Line, a.Marker)
		}
		return nil
	}
	return fmt.Errorf("line %d: unsupported argument form", value.Line)
}

// MarshalYAML mirrors UnmarshalYAML.
func (a Argument) MarshalYAML() (any, error) {
	if !a.IsExpansion() {
		return a.Literal, nil
	}
	if len(a.Lists) == 1 {
		return map[string]string{a.Marker: a.Lists[0]}, nil
	}
	return map[string][]string{a.Marker: a.Lists}, nil
}

// Descriptor describes an external tool and its argument template.
type Descriptor struct {
	Name           string         `yaml:"name,omitempty" json:"name,omitempty"`
	Executable     string         `yaml:"executable" json:"executable"`
	Arguments      []Argument     `yaml:"arguments,omitempty" json:"arguments,omitempty"`
	StderrRedirect StderrRedirect `yaml:"stderr_redirect,omitempty" json:"stderr_redirect,omitempty"`
	BackgroundExec BackgroundExec `yaml:"background_exec,omitempty" json:"background_exec,omitempty"`
	Optional       bool           `yaml:"optional,omitempty" json:"optional,omitempty"`
}

// Templated reports whether the executable itself is filled in at run time.
func (d Descriptor) Templated() bool {
	return placeholderPattern.MatchString(d.Executable)
}
