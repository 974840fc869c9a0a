package tools

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Status captures availability details for a configured tool.
type Status struct {
	Tool       string `json:"tool"`
	Executable string `json:"executable"`
	Path       string `json:"path,omitempty"`
	Available  bool   `json:"available"`
	Optional   bool   `json:"optional,omitempty"`
	Templated  bool   `json:"templated,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Detect resolves every descriptor's executable against root and PATH.
func Detect(root string, descriptors map[string]Descriptor) []Status {
	statuses := make([]Status, 0, len(descriptors))
	for key, desc := range descriptors {
		status := DetectOne(root, desc)
		if status.Tool == "" {
			status.Tool = key
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Tool < statuses[j].Tool })
	return statuses
}

// DetectOne resolves a single descriptor. Templated executables are only
// known at run time and are reported available.
func DetectOne(root string, desc Descriptor) Status {
	status := Status{Tool: desc.Name, Executable: desc.Executable, Optional: desc.Optional}
	if desc.Templated() {
		status.Templated = true
		status.Available = true
		return status
	}

	exe := firstField(desc.Executable)
	if exe == "" {
		status.Error = "executable not set"
		return status
	}

	if strings.ContainsAny(exe, `/\`) {
		candidate := exe
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(root, candidate)
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			status.Path = candidate
			status.Available = true
			return status
		}
	}

	path, err := exec.LookPath(exe)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			status.Error = "not found"
		} else {
			status.Error = err.Error()
		}
		return status
	}
	status.Path = path
	status.Available = true
	return status
}

func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], `"`)
}
