// Package dispatcher fans a batch of tasks out to a bounded pool of goroutines.
package dispatcher

import (
	"context"
	"sync"
)

// Pool runs fn over a batch of items with at most maxWorkers goroutines in flight.
type Pool[T, R any] struct {
	maxWorkers int
}

// New creates a Pool. A non-positive maxWorkers is treated as 1.
func New[T, R any](maxWorkers int) *Pool[T, R] {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Pool[T, R]{maxWorkers: maxWorkers}
}

// Workers reports the configured concurrency bound.
func (p *Pool[T, R]) Workers() int {
	return p.maxWorkers
}

// Run submits every item and returns a channel yielding one result per item in
// completion order. The channel closes once all tasks have finished. Items
// dequeued after ctx is done are still handed to fn, which sees the cancelled
// context, so consumers always receive len(items) results.
func (p *Pool[T, R]) Run(ctx context.Context, items []T, fn func(context.Context, T) R) <-chan R {
	results := make(chan R, len(items))
	if len(items) == 0 {
		close(results)
		return results
	}

	tasks := make(chan T, len(items))
	for _, item := range items {
		tasks <- item
	}
	close(tasks)

	workers := min(p.maxWorkers, len(items))
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range tasks {
				results <- fn(ctx, item)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}
