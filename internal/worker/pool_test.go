package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsSubmittedJobs(t *testing.T) {
	pool := NewPool(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	var executed atomic.Int32
	done := make(chan struct{})

	for i := 0; i < 4; i++ {
		last := i == 3
		ok := pool.Submit(func(context.Context) {
			executed.Add(1)
			if last {
				close(done)
			}
		})
		require.True(t, ok)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("jobs did not complete")
	}

	require.Eventually(t, func() bool {
		return executed.Load() == 4
	}, time.Second, 10*time.Millisecond)
}

func TestPoolSubmitRejectsWhenQueueFull(t *testing.T) {
	pool := NewPool(1)
	// Not started, so nothing drains the queue of capacity 2.
	require.True(t, pool.Submit(func(context.Context) {}))
	require.True(t, pool.Submit(func(context.Context) {}))
	assert.False(t, pool.Submit(func(context.Context) {}))
}

func TestPoolStopWaitsForWorkers(t *testing.T) {
	pool := NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	var finished atomic.Bool
	require.True(t, pool.Submit(func(context.Context) {
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	}))

	// Give the worker time to pick the job up before closing the channel.
	time.Sleep(10 * time.Millisecond)
	pool.Stop()
	assert.True(t, finished.Load())
}
