package config

import "runtime"

// Built-in tool keys.
const (
	ToolTestCompiler             = "test_compiler"
	ToolTestLinker               = "test_linker"
	ToolTestFixture              = "test_fixture"
	ToolTestIncludesPreprocessor = "test_includes_preprocessor"
	ToolTestFilePreprocessor     = "test_file_preprocessor"
	ToolTestMockGenerator        = "test_mock_generator"
	ToolTestRunnerGenerator      = "test_runner_generator"
	ToolReleaseCompiler          = "release_compiler"
	ToolReleaseAssembler         = "release_assembler"
	ToolReleaseLinker            = "release_linker"
)

func executableExtension() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ".out"
}

func defaultDocument() Document {
	return Document{
		"project": map[string]any{
			"use_mocks":             true,
			"use_test_preprocessor": false,
			"use_deep_dependencies": false,
			"test_file_prefix":      "test_",
			"compile_threads":       1,
			"test_threads":          1,
			"release_build":         false,
			"logging":               false,
			"verbosity":             "normal",
			"sanity_checks":         "normal",
			"strict_sanity_checks":  false,
			"exit_code_ceiling":     255,
			"fail_on_test_failures": false,
		},
		"release_build": map[string]any{
			"output":       "project",
			"use_assembly": false,
		},
		"paths":       map[string]any{},
		"files":       map[string]any{},
		"environment": []any{},
		"defines": map[string]any{
			"test":                []any{},
			"test_preprocess":     []any{},
			"release":             []any{},
			"release_preprocess":  []any{},
			"vendor":              []any{},
			"use_test_definition": false,
		},
		"libraries": map[string]any{
			"flag":    "-l${1}",
			"test":    []any{},
			"release": []any{},
			"system":  []any{},
		},
		"flags": map[string]any{},
		"extension": map[string]any{
			"header":       ".h",
			"source":       ".c",
			"assembly":     ".s",
			"object":       ".o",
			"executable":   executableExtension(),
			"map":          ".map",
			"list":         ".lst",
			"testpass":     ".pass",
			"testfail":     ".fail",
			"dependencies": ".d",
		},
		"mocks": map[string]any{
			"mock_prefix": "Mock",
			"defines":     []any{},
		},
		"test_runner": map[string]any{
			"file_suffix": "_runner",
		},
		"test_fixture": map[string]any{
			"link_objects": []any{},
		},
		"plugins": map[string]any{
			"load_paths": []any{},
			"enabled":    []any{},
		},
		"tools": map[string]any{},
	}
}

func includeArg(list string) map[string]any { return map[string]any{`-I"$"`: list} }
func defineArg(list string) map[string]any  { return map[string]any{"-D$": list} }

// defaultTools returns the built-in descriptor for each tool key.
func defaultTools() map[string]map[string]any {
	return map[string]map[string]any{
		ToolTestCompiler: {
			"executable": "gcc",
			"arguments": []any{
				includeArg("COLLECTION_PATHS_TEST_SUPPORT_SOURCE_INCLUDE_VENDOR"),
				defineArg("COLLECTION_DEFINES_TEST_AND_VENDOR"),
				"-DGNU_COMPILER",
				"-g",
				`-c "${1}"`,
				`-o "${2}"`,
				"-MMD",
				`-MF "${4}"`,
			},
		},
		ToolTestLinker: {
			"executable": "gcc",
			"arguments": []any{
				`"${1}"`,
				`-o "${2}"`,
				"",
				"${4}",
			},
		},
		ToolTestFixture: {
			"executable":      "${1}",
			"stderr_redirect": "auto",
		},
		ToolTestIncludesPreprocessor: {
			"executable": "gcc",
			"arguments": []any{
				"-E",
				"-MM",
				"-MG",
				includeArg("COLLECTION_PATHS_TEST_SUPPORT_SOURCE_INCLUDE_VENDOR"),
				defineArg("COLLECTION_DEFINES_TEST_AND_VENDOR"),
				defineArg("DEFINES_TEST_PREPROCESS"),
				"-DGNU_COMPILER",
				`"${1}"`,
			},
		},
		ToolTestFilePreprocessor: {
			"executable": "gcc",
			"arguments": []any{
				"-E",
				includeArg("COLLECTION_PATHS_TEST_SUPPORT_SOURCE_INCLUDE_VENDOR"),
				defineArg("COLLECTION_DEFINES_TEST_AND_VENDOR"),
				defineArg("DEFINES_TEST_PREPROCESS"),
				"-DGNU_COMPILER",
				`"${1}"`,
				`-o "${2}"`,
			},
		},
		ToolTestMockGenerator: {
			"executable": "cmock",
			"optional":   true,
			"arguments": []any{
				"--mock_prefix=${3}",
				`--mock_path="${2}"`,
				`"${1}"`,
			},
		},
		ToolTestRunnerGenerator: {
			"executable": "generate_test_runner",
			"optional":   true,
			"arguments": []any{
				`"${1}"`,
				`"${2}"`,
			},
		},
		ToolReleaseCompiler: {
			"executable": "gcc",
			"arguments": []any{
				includeArg("COLLECTION_PATHS_SOURCE_INCLUDE_VENDOR"),
				defineArg("COLLECTION_DEFINES_RELEASE_AND_VENDOR"),
				"-DGNU_COMPILER",
				`-c "${1}"`,
				`-o "${2}"`,
				"-MMD",
				`-MF "${4}"`,
			},
		},
		ToolReleaseAssembler: {
			"executable": "as",
			"arguments": []any{
				includeArg("COLLECTION_PATHS_SOURCE_AND_INCLUDE"),
				`"${1}"`,
				`-o "${2}"`,
			},
		},
		ToolReleaseLinker: {
			"executable": "gcc",
			"arguments": []any{
				`"${1}"`,
				`-o "${2}"`,
				"",
				"${4}",
			},
		},
	}
}

// requiredTools lists the tool keys the enabled features need.
func requiredTools(p Project, rb ReleaseBuild) []string {
	names := []string{ToolTestCompiler, ToolTestLinker, ToolTestFixture}
	if p.UseTestPreprocessor {
		names = append(names, ToolTestIncludesPreprocessor, ToolTestFilePreprocessor)
	}
	if p.UseMocks {
		names = append(names, ToolTestMockGenerator)
	}
	names = append(names, ToolTestRunnerGenerator)
	if p.ReleaseBuild {
		names = append(names, ToolReleaseCompiler, ToolReleaseLinker)
		if rb.UseAssembly {
			names = append(names, ToolReleaseAssembler)
		}
	}
	return names
}

// RequiredTools lists the tool keys the enabled features of r need.
func (r *Resolved) RequiredTools() []string {
	return requiredTools(r.Project, r.ReleaseBuild)
}
