package graph

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stevenle/topsort"

	"testrig/internal/logx"
)

// Action builds a node's target. It runs only when the target is stale.
type Action func(ctx context.Context, n *Node) error

// Node is one file target with its prerequisites.
type Node struct {
	Target  string
	Prereqs []string
	Action  Action

	run       sync.Mutex // held while the action executes
	mu        sync.Mutex
	satisfied bool
	built     bool
}

// NoRuleError reports a prerequisite that neither exists nor has a rule.
type NoRuleError struct {
	Target       string
	Prerequisite string
	// DeepDependencies marks that the prerequisite may come from a stale
	// dependency file rather than from the project.
	DeepDependencies bool
}

func (e *NoRuleError) Error() string {
	msg := fmt.Sprintf("don't know how to build task '%s' (needed by %s)", e.Prerequisite, e.Target)
	if e.DeepDependencies {
		msg += "; it may be listed in a stale dependency file, try a clean build"
	}
	return msg
}

// CycleError reports a circular prerequisite chain.
type CycleError struct {
	Target string
	Err    error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("prerequisite cycle while resolving %s: %v", e.Target, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

// TaskError wraps a failed action.
type TaskError struct {
	Target string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("build %s: %v", e.Target, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Graph holds file nodes keyed by target path. It is safe for concurrent use.
type Graph struct {
	// DeepDependencies adds a hint to NoRuleError.
	DeepDependencies bool

	mu     sync.RWMutex
	nodes  map[string]*Node
	logger logx.Logger
}

// New creates an empty graph.
func New(logger logx.Logger) *Graph {
	if logger == nil {
		logger = logx.Discard()
	}
	return &Graph{nodes: map[string]*Node{}, logger: logger}
}

// File creates target or extends it. Prerequisites are appended and the
// action is set only when the node has none yet.
func (g *Graph) File(target string, prereqs []string, action Action) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.nodes[target]
	if n == nil {
		n = &Node{Target: target}
		g.nodes[target] = n
	}
	n.mu.Lock()
	n.Prereqs = appendUnique(n.Prereqs, prereqs...)
	if n.Action == nil {
		n.Action = action
	}
	n.mu.Unlock()
	return n
}

// Enhance appends prerequisites to target, creating an action-less node if
// needed.
func (g *Graph) Enhance(target string, extra ...string) {
	g.File(target, extra, nil)
}

// Node returns the node for target.
func (g *Graph) Node(target string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[target]
	return n, ok
}

// Reenable clears the satisfied flag so the next Invoke re-evaluates target.
func (g *Graph) Reenable(target string) {
	if n, ok := g.Node(target); ok {
		n.mu.Lock()
		n.satisfied = false
		n.built = false
		n.mu.Unlock()
	}
}

// LoadDependencyFile reads make-style rules from path into the graph. A
// missing file is not an error.
func (g *Graph) LoadDependencyFile(path string) error {
	rules, err := ParseDependencyFile(path)
	if err != nil {
		return err
	}
	for _, r := range rules {
		for _, t := range r.Targets {
			g.Enhance(t, r.Prereqs...)
		}
	}
	return nil
}

// IsStale reports whether target is missing or older than any prerequisite.
func (g *Graph) IsStale(target string) (bool, error) {
	n, ok := g.Node(target)
	var prereqs []string
	if ok {
		n.mu.Lock()
		prereqs = append(prereqs, n.Prereqs...)
		n.mu.Unlock()
	}
	return g.stale(target, prereqs)
}

func (g *Graph) stale(target string, prereqs []string) (bool, error) {
	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	mtime := info.ModTime()
	for _, p := range prereqs {
		if pn, ok := g.Node(p); ok {
			pn.mu.Lock()
			built := pn.built
			pn.mu.Unlock()
			if built {
				return true, nil
			}
		}
		pinfo, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				return true, nil
			}
			return false, err
		}
		if pinfo.ModTime().After(mtime) {
			return true, nil
		}
	}
	return false, nil
}

// Invoke brings target up to date, building prerequisites leaves first.
func (g *Graph) Invoke(ctx context.Context, target string) error {
	order, err := g.order(target)
	if err != nil {
		return err
	}
	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := g.invokeOne(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) order(target string) ([]string, error) {
	ts := topsort.NewGraph()
	ts.AddNode(target)

	seen := map[string]bool{}
	queue := []string{target}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		seen[name] = true

		n, ok := g.Node(name)
		if !ok {
			continue
		}
		n.mu.Lock()
		prereqs := append([]string(nil), n.Prereqs...)
		n.mu.Unlock()
		for _, p := range prereqs {
			ts.AddNode(p)
			ts.AddEdge(name, p)
			queue = append(queue, p)
		}
	}

	order, err := ts.TopSort(target)
	if err != nil {
		return nil, &CycleError{Target: target, Err: err}
	}
	return order, nil
}

func (g *Graph) invokeOne(ctx context.Context, name string) error {
	n, ok := g.Node(name)
	if !ok {
		if _, err := os.Stat(name); err != nil {
			return &NoRuleError{Target: g.dependent(name), Prerequisite: name, DeepDependencies: g.DeepDependencies}
		}
		return nil
	}

	n.run.Lock()
	defer n.run.Unlock()

	n.mu.Lock()
	satisfied := n.satisfied
	prereqs := append([]string(nil), n.Prereqs...)
	action := n.Action
	n.mu.Unlock()
	if satisfied {
		return nil
	}

	stale, err := g.stale(n.Target, prereqs)
	if err != nil {
		return &TaskError{Target: n.Target, Err: err}
	}
	built := false
	if stale && action != nil {
		start := time.Now()
		if err := action(ctx, n); err != nil {
			g.logger.Printf("graph: %s failed: %v", n.Target, err)
			return &TaskError{Target: n.Target, Err: err}
		}
		built = true
		g.logger.Printf("graph: built %s in %s", n.Target, time.Since(start).Round(time.Millisecond))
	} else if stale {
		// An action-less node whose file is absent cannot be satisfied.
		if _, err := os.Stat(n.Target); err != nil {
			return &NoRuleError{Target: g.dependent(name), Prerequisite: name, DeepDependencies: g.DeepDependencies}
		}
	}

	n.mu.Lock()
	n.satisfied = true
	n.built = built
	n.mu.Unlock()
	return nil
}

// dependent finds a node listing name as prerequisite, for error messages.
func (g *Graph) dependent(name string) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var owners []string
	for target, n := range g.nodes {
		for _, p := range n.Prereqs {
			if p == name {
				owners = append(owners, target)
				break
			}
		}
	}
	if len(owners) == 0 {
		return name
	}
	sort.Strings(owners)
	return strings.Join(owners, ", ")
}

func appendUnique(list []string, items ...string) []string {
	for _, item := range items {
		if item == "" {
			continue
		}
		dup := false
		for _, existing := range list {
			if existing == item {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, item)
		}
	}
	return list
}
