package engine

import (
	"context"
	"sync"
	"time"
)

// ProgressInfo is passed to progress callbacks as phases advance.
type ProgressInfo struct {
	Phase   string // "assigning", "clustering", "searching"
	Current int
	Total   int
	Message string
}

const defaultConcurrency = 4

// workerPool bounds concurrent work units with a semaphore. Units run
// on disjoint data, so the pool provides no ordering guarantees.
type workerPool struct {
	concurrency int
}

func newWorkerPool(concurrency int) *workerPool {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &workerPool{concurrency: concurrency}
}

// Run dispatches n work units and returns one error slot per unit.
// Cancellation is cooperative: units scheduled after the context is
// done report ctx.Err() without running.
func (p *workerPool) Run(ctx context.Context, n int, fn func(i int) error) []error {
	errs := make([]error, n)
	semaphore := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if err := ctx.Err(); err != nil {
				errs[idx] = err
				return
			}
			errs[idx] = fn(idx)
		}(i)
	}

	wg.Wait()
	return errs
}

const (
	retryAttempts    = 3
	retryBaseBackoff = 200 * time.Millisecond
)

// retryWithBackoff retries fn on failure with exponential backoff.
// Store I/O is the only blocking work in this engine and both stores
// are safe to retry: assignment and suggestion creation are
// idempotent by construction.
func retryWithBackoff(ctx context.Context, fn func() error) error {
	var err error
	backoff := retryBaseBackoff
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}
