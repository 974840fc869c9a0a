package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// ProjectPaths captures canonical locations for a testrig project.
type ProjectPaths struct {
	Root        string
	ProjectFile string
	UserFile    string
}

// Resolve determines the project root using the optional --project flag or the
// current working directory when the flag is empty. fileFlag overrides the
// project file name and may be absolute.
func Resolve(projectFlag, fileFlag string) (ProjectPaths, error) {
	var (
		root string
		err  error
	)

	if projectFlag != "" {
		root, err = filepath.Abs(projectFlag)
	} else {
		root, err = os.Getwd()
	}
	if err != nil {
		return ProjectPaths{}, fmt.Errorf("resolve project root: %w", err)
	}

	pp := ProjectPaths{
		Root:        root,
		ProjectFile: filepath.Join(root, "project.yml"),
		UserFile:    filepath.Join(root, "user.yml"),
	}
	if fileFlag != "" {
		pp.ProjectFile = Join(root, fileFlag)
	}
	return pp, nil
}

// Join resolves value against root unless it is already absolute.
func Join(root, value string) string {
	if filepath.IsAbs(value) {
		return filepath.Clean(value)
	}
	return filepath.Join(root, value)
}

// TestPaths are the directories used while building and running tests.
type TestPaths struct {
	Root               string
	Runners            string
	Results            string
	Out                string
	Cache              string
	Dependencies       string
	Mocks              string
	PreprocessIncludes string
	PreprocessFiles    string
	ForceBuild         string
}

// ReleasePaths are the directories used by release builds.
type ReleasePaths struct {
	Root         string
	Out          string
	OutC         string
	OutAsm       string
	Cache        string
	Dependencies string
	ForceBuild   string
}

// BuildPaths is the full directory layout below the configured build root.
type BuildPaths struct {
	Root             string
	ArtifactsTest    string
	ArtifactsRelease string
	Logs             string
	Temp             string
	Test             TestPaths
	Release          ReleasePaths
}

// NewBuildPaths derives every build directory from root.
func NewBuildPaths(root string) BuildPaths {
	test := filepath.Join(root, "test")
	release := filepath.Join(root, "release")
	return BuildPaths{
		Root:             root,
		ArtifactsTest:    filepath.Join(root, "artifacts", "test"),
		ArtifactsRelease: filepath.Join(root, "artifacts", "release"),
		Logs:             filepath.Join(root, "logs"),
		Temp:             filepath.Join(root, "temp"),
		Test: TestPaths{
			Root:               test,
			Runners:            filepath.Join(test, "runners"),
			Results:            filepath.Join(test, "results"),
			Out:                filepath.Join(test, "out"),
			Cache:              filepath.Join(test, "cache"),
			Dependencies:       filepath.Join(test, "dependencies"),
			Mocks:              filepath.Join(test, "mocks"),
			PreprocessIncludes: filepath.Join(test, "preprocess", "includes"),
			PreprocessFiles:    filepath.Join(test, "preprocess", "files"),
			ForceBuild:         filepath.Join(test, "dependencies", "force_build"),
		},
		Release: ReleasePaths{
			Root:         release,
			Out:          filepath.Join(release, "out"),
			OutC:         filepath.Join(release, "out", "c"),
			OutAsm:       filepath.Join(release, "out", "asm"),
			Cache:        filepath.Join(release, "cache"),
			Dependencies: filepath.Join(release, "dependencies"),
			ForceBuild:   filepath.Join(release, "dependencies", "force_build"),
		},
	}
}

// TestDirs lists the directories a test run needs.
func (b BuildPaths) TestDirs() []string {
	t := b.Test
	return []string{
		b.ArtifactsTest, b.Logs, b.Temp,
		t.Runners, t.Results, t.Out, t.Cache, t.Dependencies, t.Mocks,
		t.PreprocessIncludes, t.PreprocessFiles,
	}
}

// ReleaseDirs lists the directories a release build needs.
func (b BuildPaths) ReleaseDirs() []string {
	r := b.Release
	return []string{b.ArtifactsRelease, b.Logs, b.Temp, r.Out, r.OutC, r.OutAsm, r.Cache, r.Dependencies}
}

// EnsureDirs creates every directory in dirs.
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirExists reports whether a path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
