package graph

import (
	"context"
	"errors"
	"sync"
)

// Invoker runs batches of targets on a bounded worker pool.
type Invoker struct {
	Graph   *Graph
	Threads int
}

// NewInvoker creates an invoker with at least one worker.
func NewInvoker(g *Graph, threads int) *Invoker {
	if threads < 1 {
		threads = 1
	}
	return &Invoker{Graph: g, Threads: threads}
}

// InvokeBatch brings every target up to date. Workers pull from a shared
// queue; a failing target does not stop the others. All errors are joined and
// returned once the batch has drained.
func (inv *Invoker) InvokeBatch(ctx context.Context, targets []string) error {
	if len(targets) == 0 {
		return nil
	}

	queue := make(chan string)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	workers := inv.Threads
	if workers > len(targets) {
		workers = len(targets)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range queue {
				if err := inv.Graph.Invoke(ctx, target); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}
		}()
	}

	seen := make(map[string]bool, len(targets))
	for _, t := range targets {
		if seen[t] {
			continue
		}
		seen[t] = true
		queue <- t
	}
	close(queue)
	wg.Wait()

	return errors.Join(errs...)
}
