package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolProcessesJobs(t *testing.T) {
	pool := NewPool(2, 8)
	pool.Start()
	defer pool.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	processed := 0

	for i := 0; i < 5; i++ {
		wg.Add(1)
		ok := pool.TryEnqueue(JobFunc(func(ctx context.Context) error {
			defer wg.Done()
			mu.Lock()
			processed++
			mu.Unlock()
			return nil
		}))
		assert.True(t, ok)
	}

	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, processed)
}

func TestPoolTryEnqueueFullQueue(t *testing.T) {
	// No workers started, so the queue never drains.
	pool := NewPool(0, 1)

	assert.True(t, pool.TryEnqueue(JobFunc(func(ctx context.Context) error { return nil })))
	assert.False(t, pool.TryEnqueue(JobFunc(func(ctx context.Context) error { return nil })))
}

func TestPoolSurvivesJobError(t *testing.T) {
	pool := NewPool(1, 4)
	pool.Start()
	defer pool.Stop()

	done := make(chan struct{})
	pool.TryEnqueue(JobFunc(func(ctx context.Context) error {
		return errors.New("job failed")
	}))
	pool.TryEnqueue(JobFunc(func(ctx context.Context) error {
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker stopped processing after a failed job")
	}
}

func TestPoolStopWaitsForWorkers(t *testing.T) {
	pool := NewPool(2, 4)
	pool.Start()

	started := make(chan struct{})
	var finished bool
	var mu sync.Mutex
	pool.TryEnqueue(JobFunc(func(ctx context.Context) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		finished = true
		mu.Unlock()
		return nil
	}))

	<-started
	pool.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, finished, "Stop returned before the in-flight job completed")
}
