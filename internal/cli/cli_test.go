package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"testrig/internal/config"
	"testrig/internal/engine"
	"testrig/internal/plugin"
	"testrig/internal/report"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

const (
	alphaTest = "echo \"test/test_alpha.c:1:test_one:PASS\"\n" +
		"echo \"test/test_alpha.c:2:test_two:PASS\"\n" +
		"echo \"2 Tests 0 Failures 0 Ignored\"\n"
	betaTest = "echo \"test/test_beta.c:1:test_one:PASS\"\n" +
		"echo \"test/test_beta.c:2:test_two:FAIL: expected 2\"\n" +
		"echo \"2 Tests 1 Failures 0 Ignored\"\n" +
		"exit 1\n"
)

// newProject writes a two-test project built by shell-script tools.
func newProject(t *testing.T, extra config.Document) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake toolchain needs /bin/sh")
	}
	root := t.TempDir()
	scripts := filepath.Join(root, "scripts")
	writeFile(t, filepath.Join(scripts, "compile.sh"), "cp \"$1\" \"$2\"\n")
	writeFile(t, filepath.Join(scripts, "link.sh"), "out=\"$1\"; shift\n{ echo '#!/bin/sh'; cat \"$@\"; } > \"$out\"\nchmod +x \"$out\"\n")
	writeFile(t, filepath.Join(root, "test", "test_alpha.c"), alphaTest)
	writeFile(t, filepath.Join(root, "test", "test_beta.c"), betaTest)
	writeFile(t, filepath.Join(root, "src", "alpha.c"), "# alpha\n")
	writeFile(t, filepath.Join(root, "src", "alpha.h"), "# alpha\n")

	doc := config.Document{
		"project": map[string]any{"build_root": "build", "use_mocks": false, "verbosity": "normal"},
		"paths":   map[string]any{"test": []any{"test"}, "source": []any{"src"}},
		"tools": map[string]any{
			"test_compiler": map[string]any{
				"executable": "/bin/sh",
				"arguments":  []any{`"` + filepath.Join(scripts, "compile.sh") + `"`, `"${1}"`, `"${2}"`},
			},
			"test_linker": map[string]any{
				"executable": "/bin/sh",
				"arguments":  []any{`"` + filepath.Join(scripts, "link.sh") + `"`, `"${2}"`, `"${1}"`},
			},
			"test_runner_generator": map[string]any{
				"executable": "touch",
				"arguments":  []any{`"${2}"`},
			},
		},
	}
	if extra != nil {
		doc = config.Merge(doc, extra)
	}
	data, err := doc.Marshal()
	if err != nil {
		t.Fatalf("marshal project: %v", err)
	}
	writeFile(t, filepath.Join(root, "project.yml"), string(data))
	return root
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestTestCommandJSON(t *testing.T) {
	root := newProject(t, nil)

	out, _, err := execute(t, "--project", root, "--json", "test")
	if err != nil {
		t.Fatalf("test command returned error: %v", err)
	}

	var got engine.JSONSummary
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("stdout is not a JSON summary: %v\n%s", err, out)
	}
	want := report.Counts{Total: 4, Passed: 3, Failed: 1}
	if diff := cmp.Diff(want, got.Counts); diff != "" {
		t.Fatalf("counts mismatch (-want +got):\n%s", diff)
	}
	if got.RunID == "" || got.ExitCode != 0 {
		t.Fatalf("unexpected summary %+v", got)
	}
}

func TestTestCommandPlainTable(t *testing.T) {
	root := newProject(t, nil)

	out, _, err := execute(t, "--project", root, "test", "test_alpha")
	if err != nil {
		t.Fatalf("test command returned error: %v", err)
	}
	for _, want := range []string{"TEST", "STATUS", "test_alpha", "2/2 passed"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "test_beta") {
		t.Errorf("only test_alpha was selected:\n%s", out)
	}
}

func TestTestCommandFailingRunExitsNonZero(t *testing.T) {
	root := newProject(t, config.Document{"project": map[string]any{"fail_on_test_failures": true}})

	_, _, err := execute(t, "--project", root, "--verbosity", "silent", "test")
	var exit *ExitError
	if !errors.As(err, &exit) || exit.Code != 1 {
		t.Fatalf("expected exit status 1, got %v", err)
	}
}

func TestTestCommandUnknownTest(t *testing.T) {
	root := newProject(t, nil)

	_, _, err := execute(t, "--project", root, "test", "test_gamma")
	if err == nil || !strings.Contains(err.Error(), "test_gamma") {
		t.Fatalf("expected error naming test_gamma, got %v", err)
	}
}

func TestFilesCommand(t *testing.T) {
	root := newProject(t, nil)

	out, _, err := execute(t, "--project", root, "files", "--relative")
	if err != nil {
		t.Fatalf("files command returned error: %v", err)
	}
	want := filepath.Join("test", "test_alpha.c") + "\n" + filepath.Join("test", "test_beta.c") + "\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}

	out, _, err = execute(t, "--project", root, "--json", "files", "headers")
	if err != nil {
		t.Fatalf("files headers returned error: %v", err)
	}
	var headers []string
	if err := json.Unmarshal([]byte(out), &headers); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if diff := cmp.Diff([]string{filepath.Join(root, "src", "alpha.h")}, headers); diff != "" {
		t.Fatalf("headers mismatch (-want +got):\n%s", diff)
	}

	if _, _, err := execute(t, "--project", root, "files", "objects"); err == nil {
		t.Fatal("expected error for unknown file kind")
	}
}

func TestConfigShow(t *testing.T) {
	root := newProject(t, nil)

	out, _, err := execute(t, "--project", root, "config", "show", "--flat")
	if err != nil {
		t.Fatalf("config show returned error: %v", err)
	}
	if !strings.Contains(out, "project_build_root: build\n") {
		t.Errorf("expected flattened build root:\n%s", out)
	}
	if !strings.Contains(out, "collection_all_tests: [") {
		t.Errorf("expected derived collections:\n%s", out)
	}

	out, _, err = execute(t, "--project", root, "config", "show")
	if err != nil {
		t.Fatalf("config show returned error: %v", err)
	}
	doc, err := config.ParseDocument([]byte(out))
	if err != nil {
		t.Fatalf("config show is not YAML: %v", err)
	}
	if v, _ := doc.Get("project.build_root"); v != "build" {
		t.Errorf("project.build_root = %v", v)
	}
}

func TestConfigCheckReportsMissingTool(t *testing.T) {
	root := newProject(t, config.Document{
		"tools": map[string]any{
			"test_linker": map[string]any{"executable": "testrig-no-such-linker"},
		},
	})

	_, stderr, err := execute(t, "--project", root, "config", "check")
	if err == nil || !strings.Contains(err.Error(), "tools.test_linker.executable") {
		t.Fatalf("expected missing linker error, got %v", err)
	}
	if !strings.Contains(stderr, "error: tools.test_linker.executable") {
		t.Errorf("expected finding on stderr, got %q", stderr)
	}
}

func TestPluginsList(t *testing.T) {
	root := newProject(t, config.Document{
		"plugins": map[string]any{"enabled": []any{plugin.FailOnIgnored, plugin.JUnitReport}},
	})

	out, _, err := execute(t, "--project", root, "--json", "plugins", "list")
	if err != nil {
		t.Fatalf("plugins list returned error: %v", err)
	}
	var got []pluginInfo
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(got) != 2 || got[0].Name != plugin.FailOnIgnored || got[1].Name != plugin.JUnitReport {
		t.Fatalf("unexpected plugins %+v", got)
	}
	if diff := cmp.Diff([]string{"summary"}, got[0].Hooks); diff != "" {
		t.Errorf("fail_on_ignored hooks mismatch (-want +got):\n%s", diff)
	}
}

func TestCleanAndClobber(t *testing.T) {
	root := newProject(t, nil)
	object := filepath.Join(root, "build", "test", "out", "test_alpha.o")
	artifact := filepath.Join(root, "build", "artifacts", "test", "report.xml")
	writeFile(t, object, "obj")
	writeFile(t, artifact, "<xml/>")

	out, _, err := execute(t, "--project", root, "clean", "--dry-run")
	if err != nil {
		t.Fatalf("clean --dry-run returned error: %v", err)
	}
	if !strings.Contains(out, "would remove") {
		t.Errorf("expected dry-run listing:\n%s", out)
	}
	if _, err := os.Stat(object); err != nil {
		t.Fatalf("dry run must not delete: %v", err)
	}

	if _, _, err := execute(t, "--project", root, "clean"); err != nil {
		t.Fatalf("clean returned error: %v", err)
	}
	if _, err := os.Stat(object); !os.IsNotExist(err) {
		t.Fatalf("clean should remove test intermediates")
	}
	if _, err := os.Stat(artifact); err != nil {
		t.Fatalf("clean should keep artifacts: %v", err)
	}

	if _, _, err := execute(t, "--project", root, "clobber"); err != nil {
		t.Fatalf("clobber returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "build")); !os.IsNotExist(err) {
		t.Fatalf("clobber should remove the build root")
	}
}

func TestToolsListRequired(t *testing.T) {
	root := newProject(t, nil)

	out, _, err := execute(t, "--project", root, "--json", "tools", "list", "--required")
	if err != nil {
		t.Fatalf("tools list returned error: %v", err)
	}
	var statuses []struct {
		Tool      string `json:"tool"`
		Available bool   `json:"available"`
	}
	if err := json.Unmarshal([]byte(out), &statuses); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	found := false
	for _, st := range statuses {
		if !st.Available {
			t.Errorf("%s should be available", st.Tool)
		}
		if st.Tool == "test_compiler" {
			found = true
		}
	}
	if !found {
		t.Errorf("test_compiler missing from %s", out)
	}
}

func TestFormatSize(t *testing.T) {
	tests := map[int64]string{0: "-", 512: "512 B", 2048: "2.0 KB", 3 << 20: "3.0 MB"}
	for in, want := range tests {
		if got := formatSize(in); got != want {
			t.Errorf("formatSize(%d) = %q, want %q", in, got, want)
		}
	}
}
