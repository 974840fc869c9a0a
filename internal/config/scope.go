package config

import (
	"strings"
	"sync"
)

// Override temporarily replaces flattened lists and redirects test output.
type Override struct {
	Name         string
	Lists        map[string][]string
	OutputSubdir string
}

// Scope layers a stack of overrides over a resolved configuration. The
// resolved value is never modified; Pop must always follow Push.
type Scope struct {
	base *Resolved

	mu    sync.RWMutex
	stack []Override
}

// NewScope wraps r with an empty override stack.
func NewScope(r *Resolved) *Scope {
	return &Scope{base: r}
}

// Resolved returns the wrapped configuration.
func (s *Scope) Resolved() *Resolved {
	return s.base
}

// Push adds an override on top of the stack.
func (s *Scope) Push(o Override) {
	normalized := Override{Name: o.Name, OutputSubdir: o.OutputSubdir, Lists: map[string][]string{}}
	for k, v := range o.Lists {
		normalized.Lists[strings.ToLower(k)] = append([]string(nil), v...)
	}
	s.mu.Lock()
	s.stack = append(s.stack, normalized)
	s.mu.Unlock()
}

// Pop removes the top override. Popping an empty stack is a no-op.
func (s *Scope) Pop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stack) > 0 {
		s.stack = s.stack[:len(s.stack)-1]
	}
}

// Depth reports how many overrides are active.
func (s *Scope) Depth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stack)
}

// Lookup consults overrides top-down before the resolved configuration.
func (s *Scope) Lookup(name string) ([]string, bool) {
	key := strings.ToLower(name)
	s.mu.RLock()
	for i := len(s.stack) - 1; i >= 0; i-- {
		if v, ok := s.stack[i].Lists[key]; ok {
			s.mu.RUnlock()
			return append([]string(nil), v...), true
		}
	}
	s.mu.RUnlock()
	return s.base.Lookup(name)
}

// OutputSubdir returns the innermost non-empty output subdirectory.
func (s *Scope) OutputSubdir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i].OutputSubdir != "" {
			return s.stack[i].OutputSubdir
		}
	}
	return ""
}
