package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"testrig/internal/tools"
)

// Settings is the typed view of the merged project document.
type Settings struct {
	Project      Project                                   `yaml:"project"`
	ReleaseBuild ReleaseBuild                              `yaml:"release_build"`
	Paths        map[string][]string                       `yaml:"paths"`
	Files        map[string][]string                       `yaml:"files"`
	Defines      Defines                                   `yaml:"defines"`
	Libraries    Libraries                                 `yaml:"libraries"`
	Flags        map[string]map[string]map[string][]string `yaml:"flags"`
	Extension    Extension                                 `yaml:"extension"`
	Mocks        Mocks                                     `yaml:"mocks"`
	TestRunner   TestRunner                                `yaml:"test_runner"`
	TestFixture  TestFixture                               `yaml:"test_fixture"`
	Plugins      Plugins                                   `yaml:"plugins"`
	Tools        map[string]tools.Descriptor               `yaml:"tools"`
	Import       []string                                  `yaml:"import,omitempty"`
}

// Project holds the top-level switches.
type Project struct {
	Name                string `yaml:"name"`
	BuildRoot           string `yaml:"build_root"`
	UseMocks            bool   `yaml:"use_mocks"`
	UseTestPreprocessor bool   `yaml:"use_test_preprocessor"`
	UseDeepDependencies bool   `yaml:"use_deep_dependencies"`
	TestFilePrefix      string `yaml:"test_file_prefix"`
	CompileThreads      int    `yaml:"compile_threads"`
	TestThreads         int    `yaml:"test_threads"`
	ReleaseBuild        bool   `yaml:"release_build"`
	Logging             bool   `yaml:"logging"`
	Verbosity           string `yaml:"verbosity"`
	SanityChecks        string `yaml:"sanity_checks"`
	StrictSanityChecks  bool   `yaml:"strict_sanity_checks"`
	ExitCodeCeiling     int    `yaml:"exit_code_ceiling"`
	FailOnTestFailures  bool   `yaml:"fail_on_test_failures"`
}

// ReleaseBuild configures the release artifact.
type ReleaseBuild struct {
	Output      string `yaml:"output"`
	UseAssembly bool   `yaml:"use_assembly"`
}

// Defines groups preprocessor symbol lists. Any key other than the named ones
// holds per-test symbols keyed by test file base name.
type Defines struct {
	Test              []string
	TestPreprocess    []string
	Release           []string
	ReleasePreprocess []string
	Vendor            []string
	UseTestDefinition bool
	PerTest           map[string][]string
}

// UnmarshalYAML splits named lists from per-test entries.
func (d *Defines) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*d = Defines{PerTest: map[string][]string{}}
	for key, v := range raw {
		if key == "use_test_definition" {
			b, ok := v.(bool)
			if !ok {
				return fmt.Errorf("defines.use_test_definition must be a boolean")
			}
			d.UseTestDefinition = b
			continue
		}
		list, ok := toStrings(normalize(v))
		if !ok {
			return fmt.Errorf("defines.%s must be a list", key)
		}
		switch key {
		case "test":
			d.Test = list
		case "test_preprocess":
			d.TestPreprocess = list
		case "release":
			d.Release = list
		case "release_preprocess":
			d.ReleasePreprocess = list
		case "vendor":
			d.Vendor = list
		default:
			d.PerTest[key] = list
		}
	}
	return nil
}

// ForTest returns the per-test symbol list for a test base name.
func (d Defines) ForTest(name string) ([]string, bool) {
	list, ok := d.PerTest[name]
	return list, ok
}

// Libraries lists link inputs.
type Libraries struct {
	Flag    string   `yaml:"flag"`
	Test    []string `yaml:"test"`
	Release []string `yaml:"release"`
	System  []string `yaml:"system"`
}

// LinkArgs formats library names with the configured flag. Entries that
// already look like flags or paths pass through.
func (l Libraries) LinkArgs(names []string) []string {
	out := make([]string, 0, len(names)+len(l.System))
	for _, n := range append(append([]string(nil), names...), l.System...) {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if l.Flag == "" || strings.HasPrefix(n, "-") || strings.ContainsAny(n, `/\.`) {
			out = append(out, n)
			continue
		}
		out = append(out, strings.ReplaceAll(l.Flag, "${1}", n))
	}
	return out
}

// Extension holds file extensions used to form artifact names.
type Extension struct {
	Header       string `yaml:"header"`
	Source       string `yaml:"source"`
	Assembly     string `yaml:"assembly"`
	Object       string `yaml:"object"`
	Executable   string `yaml:"executable"`
	Map          string `yaml:"map"`
	List         string `yaml:"list"`
	TestPass     string `yaml:"testpass"`
	TestFail     string `yaml:"testfail"`
	Dependencies string `yaml:"dependencies"`
}

// Mocks configures mock discovery.
type Mocks struct {
	Prefix  string   `yaml:"mock_prefix"`
	Path    string   `yaml:"mock_path"`
	Defines []string `yaml:"defines"`
}

// TestRunner configures generated runner names.
type TestRunner struct {
	FileSuffix string `yaml:"file_suffix"`
}

// TestFixture lists sources always linked into every test executable.
type TestFixture struct {
	LinkObjects []string `yaml:"link_objects"`
}

// Plugins names plugin search roots and the enabled set.
type Plugins struct {
	LoadPaths []string `yaml:"load_paths"`
	Enabled   []string `yaml:"enabled"`
}

// ApplyDefaults clamps values the schema cannot express.
func (s *Settings) ApplyDefaults() {
	if s.Project.CompileThreads < 1 {
		s.Project.CompileThreads = 1
	}
	if s.Project.TestThreads < 1 {
		s.Project.TestThreads = 1
	}
	if s.Project.ExitCodeCeiling <= 0 {
		s.Project.ExitCodeCeiling = 255
	}
	if s.Project.SanityChecks == "" {
		s.Project.SanityChecks = "normal"
	}
	if s.ReleaseBuild.Output == "" {
		s.ReleaseBuild.Output = "project"
	}
	if s.Mocks.Prefix == "" {
		s.Mocks.Prefix = "Mock"
	}
	if s.TestRunner.FileSuffix == "" {
		s.TestRunner.FileSuffix = "_runner"
	}
	if s.Defines.PerTest == nil {
		s.Defines.PerTest = map[string][]string{}
	}
	if s.Paths == nil {
		s.Paths = map[string][]string{}
	}
	if s.Files == nil {
		s.Files = map[string][]string{}
	}
	if s.Tools == nil {
		s.Tools = map[string]tools.Descriptor{}
	}
}

// FlagsFor returns the flag table for a context and operation, e.g.
// ("test", "compile").
func (s Settings) FlagsFor(context, operation string) map[string][]string {
	ops, ok := s.Flags[context]
	if !ok {
		return nil
	}
	return ops[operation]
}
