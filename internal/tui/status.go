package tui

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const statusInterval = 100 * time.Millisecond

// PhaseTiming records how long one setup phase took.
type PhaseTiming struct {
	Name    string
	Elapsed time.Duration
}

// StatusWriter shows the current setup phase (configuration, plugins, build
// layout) behind a spinner until the test table takes over the terminal.
type StatusWriter struct {
	w   io.Writer
	now func() time.Time

	mu      sync.Mutex
	current string
	started time.Time
	phases  []PhaseTiming

	done   chan struct{}
	exited chan struct{}
	once   sync.Once
}

// NewStatusWriter starts the spinner on w.
func NewStatusWriter(w io.Writer) *StatusWriter {
	sw := newStatusWriter(w, time.Now)
	sw.exited = make(chan struct{})
	go sw.loop()
	return sw
}

func newStatusWriter(w io.Writer, now func() time.Time) *StatusWriter {
	return &StatusWriter{w: w, now: now, done: make(chan struct{})}
}

// Phase closes the running phase and starts name.
func (sw *StatusWriter) Phase(name string) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.closePhase()
	sw.current = name
	sw.started = sw.now()
}

// closePhase requires sw.mu.
func (sw *StatusWriter) closePhase() {
	if sw.current == "" {
		return
	}
	sw.phases = append(sw.phases, PhaseTiming{Name: sw.current, Elapsed: sw.now().Sub(sw.started)})
	sw.current = ""
}

// Stop clears the status line and returns every phase in order. Calling it
// again returns the same timings.
func (sw *StatusWriter) Stop() []PhaseTiming {
	sw.once.Do(func() {
		close(sw.done)
		if sw.exited != nil {
			<-sw.exited
		}
		fmt.Fprint(sw.w, "\r\033[K")
		sw.mu.Lock()
		sw.closePhase()
		sw.mu.Unlock()
	})
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return append([]PhaseTiming(nil), sw.phases...)
}

func (sw *StatusWriter) loop() {
	defer close(sw.exited)
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for tick := 0; ; tick++ {
		select {
		case <-sw.done:
			return
		case <-ticker.C:
			fmt.Fprint(sw.w, sw.line(tick))
		}
	}
}

// line renders one spinner frame: the step number, the phase and its
// running time.
func (sw *StatusWriter) line(tick int) string {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.current == "" {
		return ""
	}
	spinner := spinnerFrames[tick%len(spinnerFrames)]
	return fmt.Sprintf("\r\033[K%s [%d] %s (%s)", spinner, len(sw.phases)+1, sw.current, formatElapsed(sw.now().Sub(sw.started)))
}

// formatElapsed formats a duration for the status line and the TIME column.
func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < 10*time.Second {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
