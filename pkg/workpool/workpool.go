// Package workpool provides a bounded executor for blocking work such as
// batched detail lookups. A Pool is created once by the process and handed to
// the components that need it.
package workpool

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultSize matches the worker count the discovery clients were tuned for.
const DefaultSize = 5

// Pool bounds the number of concurrently running tasks.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

// New creates a pool running at most size tasks at once.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

// Size returns the concurrency limit.
func (p *Pool) Size() int { return int(p.size) }

// Run executes fn once per index in [0, n), at most Size at a time, and
// returns the per-index errors. It stops scheduling new work when ctx ends;
// unscheduled indexes report ctx.Err().
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			for j := i; j < n; j++ {
				errs[j] = err
			}
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer p.sem.Release(1)
			errs[i] = fn(ctx, i)
		}(i)
	}

	wg.Wait()
	return errs
}
