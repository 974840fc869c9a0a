package tui

import (
	"io"
	"os"
	"runtime"
	"strings"
)

// OutputMode describes how test progress is rendered.
type OutputMode int

const (
	// ModeTUI redraws a live table with bubbletea.
	ModeTUI OutputMode = iota
	// ModePlain writes the build log as it happens and a static table at the end.
	ModePlain
	// ModeJSON writes the summary as JSON and nothing else on stdout.
	ModeJSON
)

func (m OutputMode) String() string {
	switch m {
	case ModeTUI:
		return "tui"
	case ModePlain:
		return "plain"
	case ModeJSON:
		return "json"
	}
	return "unknown"
}

// DetectMode picks the output mode for out. Anything that is not an
// interactive terminal, or a CI job, gets plain output.
func DetectMode(out io.Writer, noProgress, jsonOutput bool) OutputMode {
	return detectMode(out, noProgress, jsonOutput, os.Getenv)
}

func detectMode(out io.Writer, noProgress, jsonOutput bool, getenv func(string) string) OutputMode {
	if jsonOutput {
		return ModeJSON
	}
	if noProgress || getenv("CI") != "" {
		return ModePlain
	}
	file, ok := out.(*os.File)
	if !ok {
		return ModePlain
	}
	info, err := file.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice == 0 {
		return ModePlain
	}
	if runtime.GOOS != "windows" {
		term := getenv("TERM")
		if term == "" || strings.EqualFold(term, "dumb") {
			return ModePlain
		}
	}
	return ModeTUI
}
