package concurrent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	wp := NewWorkerPool(2)
	require.Equal(t, 2, wp.Size())

	var (
		running atomic.Int32
		peak    atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = wp.Do(context.Background(), func(context.Context) error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 0, wp.Active())
}

func TestWorkerPoolPropagatesError(t *testing.T) {
	wp := NewWorkerPool(1)
	want := errors.New("failed")
	err := wp.Do(context.Background(), func(context.Context) error { return want })
	assert.ErrorIs(t, err, want)
}

func TestWorkerPoolHonoursCancelledContext(t *testing.T) {
	wp := NewWorkerPool(1)
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = wp.Do(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ran := false
	err := wp.Do(ctx, func(context.Context) error {
		ran = true
		return nil
	})
	close(release)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)
}

func TestNewWorkerPoolDefault(t *testing.T) {
	assert.Equal(t, 4, NewWorkerPool(0).Size())
}
