package stream

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"
)

// Verbosity orders console chattiness from silent to debug.
type Verbosity int

const (
	Silent Verbosity = iota
	Errors
	Complain
	Normal
	Obnoxious
	Debug
)

var verbosityNames = []string{"silent", "errors", "warnings", "normal", "obnoxious", "debug"}

func (v Verbosity) String() string {
	if int(v) >= 0 && int(v) < len(verbosityNames) {
		return verbosityNames[v]
	}
	return fmt.Sprintf("verbosity(%d)", int(v))
}

// ParseVerbosity accepts a level name or its number.
func ParseVerbosity(s string) (Verbosity, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Normal, nil
	}
	for i, name := range verbosityNames {
		if s == name || s == fmt.Sprint(i) {
			return Verbosity(i), nil
		}
	}
	if s == "complain" {
		return Complain, nil
	}
	return Normal, fmt.Errorf("unknown verbosity %q", s)
}

// Streamer writes console output filtered by verbosity. A nil *Streamer
// discards everything.
type Streamer struct {
	mu    sync.Mutex
	out   io.Writer
	err   io.Writer
	level atomic.Int32

	red    *color.Color
	yellow *color.Color
	green  *color.Color
	faint  *color.Color
}

// New creates a streamer. colorize toggles ANSI styling independent of the
// writers' terminal detection.
func New(out, errw io.Writer, level Verbosity, colorize bool) *Streamer {
	s := &Streamer{
		out:    out,
		err:    errw,
		red:    color.New(color.FgRed, color.Bold),
		yellow: color.New(color.FgYellow),
		green:  color.New(color.FgGreen),
		faint:  color.New(color.Faint),
	}
	s.level.Store(int32(level))
	for _, c := range []*color.Color{s.red, s.yellow, s.green, s.faint} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return s
}

// Level returns the configured verbosity.
func (s *Streamer) Level() Verbosity {
	if s == nil {
		return Silent
	}
	return Verbosity(s.level.Load())
}

// SetLevel changes the verbosity, e.g. to keep a live progress table clean.
func (s *Streamer) SetLevel(level Verbosity) {
	if s != nil {
		s.level.Store(int32(level))
	}
}

// Enabled reports whether messages at level are shown.
func (s *Streamer) Enabled(level Verbosity) bool {
	return s != nil && level <= s.Level()
}

// Printf writes a plain message to stdout when level is enabled.
func (s *Streamer) Printf(level Verbosity, format string, args ...any) {
	if !s.Enabled(level) || s.out == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if level >= Obnoxious {
		s.faint.Fprintf(s.out, format, args...)
		return
	}
	fmt.Fprintf(s.out, format, args...)
}

// Successf writes a green status line at normal verbosity.
func (s *Streamer) Successf(format string, args ...any) {
	if !s.Enabled(Normal) || s.out == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.green.Fprintf(s.out, format, args...)
}

// Warnf writes a yellow warning to stderr.
func (s *Streamer) Warnf(format string, args ...any) {
	if !s.Enabled(Complain) || s.err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.yellow.Fprintf(s.err, "WARNING: "+format, args...)
}

// Errorf writes a red error to stderr.
func (s *Streamer) Errorf(format string, args ...any) {
	if !s.Enabled(Errors) || s.err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.red.Fprintf(s.err, "ERROR: "+format, args...)
}

// Out exposes the stdout writer for rendered reports.
func (s *Streamer) Out() io.Writer {
	if s == nil || s.out == nil {
		return io.Discard
	}
	return s.out
}

// Writer returns a writer that prints raw bytes at level, or nil when level is
// not enabled. Writes are serialized with the other console output.
func (s *Streamer) Writer(level Verbosity) io.Writer {
	if !s.Enabled(level) || s.out == nil {
		return nil
	}
	return &levelWriter{s: s, level: level}
}

type levelWriter struct {
	s     *Streamer
	level Verbosity
}

func (w *levelWriter) Write(p []byte) (int, error) {
	if !w.s.Enabled(w.level) {
		return len(p), nil
	}
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	var err error
	if w.level >= Obnoxious {
		_, err = w.s.faint.Fprint(w.s.out, string(p))
	} else {
		_, err = w.s.out.Write(p)
	}
	return len(p), err
}
