package tools

import (
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type listTable map[string][]string

func (l listTable) Lookup(name string) ([]string, bool) {
	v, ok := l[strings.ToLower(name)]
	return v, ok
}

func compilerDescriptor() Descriptor {
	return Descriptor{
		Name:       "test_compiler",
		Executable: "gcc",
		Arguments: []Argument{
			Expand(`-I"$"`, "COLLECTION_PATHS_TEST"),
			Expand("-D$", "COLLECTION_DEFINES_TEST_AND_VENDOR"),
			Lit("-c ${1}"),
			Lit("-o ${2}"),
		},
	}
}

func TestBuildCommandLineCompiler(t *testing.T) {
	b := Builder{Lists: listTable{
		"collection_paths_test":              {"test", "test/support"},
		"collection_defines_test_and_vendor": {"TEST", "UNITY_INT_WIDTH=16"},
	}}

	cmd, err := b.BuildCommandLine(compilerDescriptor(), nil, "test/test_a.c", "build/test/out/test_a.o")
	if err != nil {
		t.Fatalf("BuildCommandLine: %v", err)
	}
	want := `gcc -I"test" -I"test/support" -DTEST -DUNITY_INT_WIDTH=16 -c test/test_a.c -o build/test/out/test_a.o`
	if cmd.Line != want {
		t.Fatalf("unexpected line\n got: %s\nwant: %s", cmd.Line, want)
	}
	if cmd.Executable != "gcc" || cmd.Tool != "test_compiler" {
		t.Fatalf("unexpected command %+v", cmd)
	}
}

func TestBuildCommandLineEmptyListVanishes(t *testing.T) {
	b := Builder{Lists: listTable{
		"collection_paths_test":              {},
		"collection_defines_test_and_vendor": nil,
	}}

	cmd, err := b.BuildCommandLine(compilerDescriptor(), nil, "a.c", "a.o")
	if err != nil {
		t.Fatalf("BuildCommandLine: %v", err)
	}
	if cmd.Line != "gcc -c a.c -o a.o" {
		t.Fatalf("unexpected line %q", cmd.Line)
	}
}

func TestBuildCommandLineListArgumentRepeats(t *testing.T) {
	linker := Descriptor{
		Name:       "test_linker",
		Executable: "gcc",
		Arguments:  []Argument{Lit(`"${1}"`), Lit("-o ${2}"), Lit(""), Lit("${4}")},
	}
	b := Builder{}

	cmd, err := b.BuildCommandLine(linker, []string{"-lm"}, []string{"a.o", "b.o"}, "test_a.out", "test_a.map", []string{})
	if err != nil {
		t.Fatalf("BuildCommandLine: %v", err)
	}
	if cmd.Line != `gcc "a.o" "b.o" -o test_a.out -lm` {
		t.Fatalf("unexpected line %q", cmd.Line)
	}
}

func TestBuildCommandLineTemplatedExecutable(t *testing.T) {
	fixture := Descriptor{Name: "test_fixture", Executable: "${1}"}
	cmd, err := Builder{}.BuildCommandLine(fixture, nil, "build/test/out/test_a.out")
	if err != nil {
		t.Fatalf("BuildCommandLine: %v", err)
	}
	if cmd.Line != "build/test/out/test_a.out" || cmd.Executable != "build/test/out/test_a.out" {
		t.Fatalf("unexpected command %+v", cmd)
	}
	if !fixture.Templated() {
		t.Fatalf("expected templated executable")
	}
}

func TestBuildCommandLineMissingArgument(t *testing.T) {
	_, err := Builder{}.BuildCommandLine(Descriptor{Name: "t", Executable: "cc", Arguments: []Argument{Lit("-o ${2}")}}, nil, "only-one")
	var tmplErr *TemplateError
	if !errors.As(err, &tmplErr) {
		t.Fatalf("expected TemplateError, got %v", err)
	}

	_, err = Builder{}.BuildCommandLine(Descriptor{Name: "t", Executable: "cc", Arguments: []Argument{Lit("${1}")}}, nil, nil)
	if !errors.As(err, &tmplErr) {
		t.Fatalf("expected TemplateError for nil argument, got %v", err)
	}
}

func TestBuildCommandLineUnknownList(t *testing.T) {
	b := Builder{Lists: listTable{}}
	_, err := b.BuildCommandLine(Descriptor{Name: "t", Executable: "cc", Arguments: []Argument{Expand("-I$", "NOPE")}}, nil)
	var tmplErr *TemplateError
	if !errors.As(err, &tmplErr) {
		t.Fatalf("expected TemplateError, got %v", err)
	}
	if !strings.Contains(tmplErr.Message, "NOPE") {
		t.Fatalf("error should name the list: %v", err)
	}
}

func TestBuildCommandLineMarkerCollapsesLists(t *testing.T) {
	b := Builder{Lists: listTable{"a": {"x"}, "b": {"y", "z"}}}
	cmd, err := b.BuildCommandLine(Descriptor{Name: "t", Executable: "cc", Arguments: []Argument{Expand(`-D$ \$`, "A", "B")}}, nil)
	if err != nil {
		t.Fatalf("BuildCommandLine: %v", err)
	}
	if cmd.Line != "cc -Dx $ -Dy $ -Dz $" {
		t.Fatalf("unexpected line %q", cmd.Line)
	}
}

func TestBuildCommandLineEscapedDollar(t *testing.T) {
	cmd, err := Builder{}.BuildCommandLine(Descriptor{Name: "t", Executable: "echo", Arguments: []Argument{Lit(`\$HOME`)}}, nil)
	if err != nil {
		t.Fatalf("BuildCommandLine: %v", err)
	}
	if cmd.Line != "echo $HOME" {
		t.Fatalf("unexpected line %q", cmd.Line)
	}
}

func TestRedirectModes(t *testing.T) {
	base := Descriptor{Name: "t", Executable: "cc"}
	cases := []struct {
		name     string
		mode     StderrRedirect
		platform Platform
		logging  bool
		want     string
	}{
		{"none", RedirectNone, Platform{}, false, "cc"},
		{"auto posix", RedirectAuto, Platform{}, false, "cc 2>&1"},
		{"auto csh", RedirectAuto, Platform{CShell: true}, false, "cc |&"},
		{"auto windows", RedirectAuto, Platform{Windows: true}, false, "cc 2>&1"},
		{"win", RedirectWin, Platform{}, false, "cc 2>&1"},
		{"tcsh", RedirectTcsh, Platform{}, false, "cc |&"},
		{"custom", StderrRedirect("2>err.log"), Platform{}, false, "cc 2>err.log"},
		{"logging forces auto", RedirectNone, Platform{}, true, "cc 2>&1"},
		{"logging keeps custom", StderrRedirect("2>/dev/null"), Platform{}, true, "cc 2>/dev/null"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := base
			d.StderrRedirect = tc.mode
			cmd, err := Builder{Platform: tc.platform, Logging: tc.logging}.BuildCommandLine(d, nil)
			if err != nil {
				t.Fatalf("BuildCommandLine: %v", err)
			}
			if cmd.Line != tc.want {
				t.Fatalf("got %q, want %q", cmd.Line, tc.want)
			}
		})
	}
}

func TestBackgroundModes(t *testing.T) {
	d := Descriptor{Name: "t", Executable: "sim", BackgroundExec: BackgroundAuto}

	cmd, _ := Builder{}.BuildCommandLine(d, nil)
	if cmd.Line != "sim &" {
		t.Fatalf("posix auto: %q", cmd.Line)
	}
	cmd, _ = Builder{Platform: Platform{Windows: true}}.BuildCommandLine(d, nil)
	if cmd.Line != "start sim" {
		t.Fatalf("windows auto: %q", cmd.Line)
	}
	d.BackgroundExec = BackgroundUnix
	cmd, _ = Builder{}.BuildCommandLine(d, nil)
	if cmd.Line != "sim &" {
		t.Fatalf("unix: %q", cmd.Line)
	}
}

func TestArgumentYAML(t *testing.T) {
	src := `
executable: gcc
arguments:
  - -g
  - {"-I\"$\"": COLLECTION_PATHS_TEST}
  - {"-D$": [DEFINES_A, DEFINES_B]}
`
	var d Descriptor
	if err := yaml.Unmarshal([]byte(src), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(d.Arguments) != 3 {
		t.Fatalf("expected 3 arguments, got %d", len(d.Arguments))
	}
	if d.Arguments[0].Literal != "-g" {
		t.Fatalf("unexpected literal %+v", d.Arguments[0])
	}
	if d.Arguments[1].Marker != `-I"$"` || d.Arguments[1].Lists[0] != "COLLECTION_PATHS_TEST" {
		t.Fatalf("unexpected marker %+v", d.Arguments[1])
	}
	if len(d.Arguments[2].Lists) != 2 {
		t.Fatalf("unexpected lists %+v", d.Arguments[2])
	}
}
