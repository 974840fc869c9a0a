package tools

import (
	"path/filepath"
	"runtime"
	"strings"
)

// Shell is the interpreter every command line is handed to.
type Shell struct {
	Program string
	Flag    string
	CShell  bool
}

// DetectShell picks cmd on Windows, the user's csh-family shell when that is
// what $SHELL names, and /bin/sh otherwise.
func DetectShell(getenv func(string) string) Shell {
	return detectShell(runtime.GOOS, getenv)
}

func detectShell(goos string, getenv func(string) string) Shell {
	if goos == "windows" {
		return Shell{Program: "cmd", Flag: "/C"}
	}
	if getenv != nil {
		if sh := getenv("SHELL"); sh != "" {
			base := filepath.Base(sh)
			if strings.HasSuffix(base, "csh") {
				return Shell{Program: sh, Flag: "-c", CShell: true}
			}
		}
	}
	return Shell{Program: "/bin/sh", Flag: "-c"}
}

// Platform derives the command-line syntax flavour for this shell.
func (s Shell) Platform() Platform {
	return Platform{Windows: s.Program == "cmd", CShell: s.CShell}
}
