package workers

import (
	"context"
	"sync"
)

// Pool provides lightweight parallel execution for maintenance sweeps over
// stored artifacts. Work fans out onto goroutines bounded by a semaphore so
// a large catalog cannot exhaust file descriptors.
type Pool struct {
	workers int
}

// NewPool creates a pool that runs at most workerCount items concurrently.
// A workerCount below one falls back to a small default.
func NewPool(workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 8
	}
	return &Pool{workers: workerCount}
}

// Item identifies one artifact to check.
type Item struct {
	Namespace string
	Filename  string
}

// Failure pairs an item with the error its check produced.
type Failure struct {
	Namespace string
	Filename  string
	Err       error
}

// ParallelCheck runs check over every item concurrently and returns the
// failures in item order. A cancelled context fails the remaining items
// with the context's error rather than abandoning them silently.
func (p *Pool) ParallelCheck(ctx context.Context, items []Item, check func(ctx context.Context, namespace, filename string) error) []Failure {
	errs := make([]error, len(items))
	sem := make(chan struct{}, p.workers)

	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errs[index] = ctx.Err()
				return
			}

			if err := ctx.Err(); err != nil {
				errs[index] = err
				return
			}
			errs[index] = check(ctx, items[index].Namespace, items[index].Filename)
		}(i)
	}
	wg.Wait()

	var failures []Failure
	for i, err := range errs {
		if err != nil {
			failures = append(failures, Failure{
				Namespace: items[i].Namespace,
				Filename:  items[i].Filename,
				Err:       err,
			})
		}
	}
	return failures
}
