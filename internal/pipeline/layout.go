package pipeline

import (
	"path/filepath"
	"strings"

	"testrig/internal/config"
	"testrig/internal/paths"
)

// Layout forms every artifact path from a source or test file.
type Layout struct {
	Build        paths.BuildPaths
	Ext          config.Extension
	RunnerSuffix string
	MockPrefix   string
	MockPath     string
}

// NewLayout derives the layout from a resolved configuration.
func NewLayout(r *config.Resolved) Layout {
	return Layout{
		Build:        r.Build,
		Ext:          r.Extension,
		RunnerSuffix: r.TestRunner.FileSuffix,
		MockPrefix:   r.Mocks.Prefix,
		MockPath:     r.Mocks.Path,
	}
}

func stem(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (l Layout) Runner(test string) string {
	return filepath.Join(l.Build.Test.Runners, stem(test)+l.RunnerSuffix+l.Ext.Source)
}

func (l Layout) Object(src, subdir string) string {
	return filepath.Join(l.Build.Test.Out, subdir, stem(src)+l.Ext.Object)
}

func (l Layout) Dependency(src, subdir string) string {
	return filepath.Join(l.Build.Test.Dependencies, subdir, stem(src)+l.Ext.Dependencies)
}

func (l Layout) List(src, subdir string) string {
	return filepath.Join(l.Build.Test.Out, subdir, stem(src)+l.Ext.List)
}

func (l Layout) Executable(test, subdir string) string {
	return filepath.Join(l.Build.Test.Out, subdir, stem(test)+l.Ext.Executable)
}

func (l Layout) Map(test, subdir string) string {
	return filepath.Join(l.Build.Test.Out, subdir, stem(test)+l.Ext.Map)
}

func (l Layout) ResultPass(test string) string {
	return filepath.Join(l.Build.Test.Results, stem(test)+l.Ext.TestPass)
}

func (l Layout) ResultFail(test string) string {
	return filepath.Join(l.Build.Test.Results, stem(test)+l.Ext.TestFail)
}

// Mock is the generated source for a mock named like MockWidget.
func (l Layout) Mock(name string) string {
	return filepath.Join(l.MockPath, name+l.Ext.Source)
}

// IsMock reports whether an include names a mock header.
func (l Layout) IsMock(include string) bool {
	return l.MockPrefix != "" && strings.HasPrefix(stem(include), l.MockPrefix) && len(stem(include)) > len(l.MockPrefix)
}

// MockedHeader strips the mock prefix: MockWidget.h -> Widget.h.
func (l Layout) MockedHeader(include string) string {
	return strings.TrimPrefix(stem(include), l.MockPrefix) + l.Ext.Header
}

func (l Layout) IncludesCache(test string) string {
	return filepath.Join(l.Build.Test.PreprocessIncludes, stem(test)+".yml")
}

func (l Layout) Preprocessed(file string) string {
	return filepath.Join(l.Build.Test.PreprocessFiles, filepath.Base(file))
}

func (l Layout) ReleaseObject(src string) string {
	return filepath.Join(l.Build.Release.OutC, stem(src)+l.Ext.Object)
}

func (l Layout) ReleaseAsmObject(src string) string {
	return filepath.Join(l.Build.Release.OutAsm, stem(src)+l.Ext.Object)
}

func (l Layout) ReleaseDependency(src string) string {
	return filepath.Join(l.Build.Release.Dependencies, stem(src)+l.Ext.Dependencies)
}

// ReleaseArtifact is the linked release image; output gets the executable
// extension when it has none.
func (l Layout) ReleaseArtifact(output string) string {
	if filepath.Ext(output) == "" {
		output += l.Ext.Executable
	}
	return filepath.Join(l.Build.Release.Root, output)
}

func (l Layout) ReleaseMap(output string) string {
	return filepath.Join(l.Build.Release.Root, stem(output)+l.Ext.Map)
}
