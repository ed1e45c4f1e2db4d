package concurrent

import (
	"context"
	"sync/atomic"
)

// WorkerPool caps how many jobs run at the same time. Callers block in Do
// until a slot frees up or their context ends.
type WorkerPool struct {
	sem    chan struct{}
	active atomic.Int64
}

// NewWorkerPool creates a pool with maxWorkers slots (default 4).
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &WorkerPool{sem: make(chan struct{}, maxWorkers)}
}

// Do runs fn once a slot is available. It returns ctx.Err() without running
// fn when the context ends first.
func (wp *WorkerPool) Do(ctx context.Context, fn func(context.Context) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case wp.sem <- struct{}{}:
	}
	wp.active.Add(1)
	defer func() {
		wp.active.Add(-1)
		<-wp.sem
	}()
	return fn(ctx)
}

// Size is the number of slots.
func (wp *WorkerPool) Size() int { return cap(wp.sem) }

// Active is the number of jobs currently running.
func (wp *WorkerPool) Active() int { return int(wp.active.Load()) }
