package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/thrumwood/thrumwood/internal/worker"
)

func TestSchedulerRunsJobAtInterval(t *testing.T) {
	pool := worker.NewPool(1, 16)
	pool.Start()
	defer pool.Stop()

	var mu sync.Mutex
	runs := 0
	job := worker.JobFunc(func(ctx context.Context) error {
		mu.Lock()
		runs++
		mu.Unlock()
		return nil
	})

	s := New(pool)
	s.Schedule("test-job", 10*time.Millisecond, job)

	time.Sleep(100 * time.Millisecond)
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, runs, 3, "job should have run repeatedly")
}

func TestSchedulerStopHaltsTicks(t *testing.T) {
	pool := worker.NewPool(1, 16)
	pool.Start()
	defer pool.Stop()

	var mu sync.Mutex
	runs := 0
	s := New(pool)
	s.Schedule("test-job", 10*time.Millisecond, worker.JobFunc(func(ctx context.Context) error {
		mu.Lock()
		runs++
		mu.Unlock()
		return nil
	}))

	time.Sleep(50 * time.Millisecond)
	s.Stop()

	mu.Lock()
	after := runs
	mu.Unlock()

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, runs, after+1, "ticks kept firing after Stop")
}

func TestSchedulerDropsTickWhenQueueFull(t *testing.T) {
	// No workers, queue of one: the first tick fills the queue and every
	// later tick must be dropped without blocking the scheduler.
	pool := worker.NewPool(0, 1)

	s := New(pool)
	s.Schedule("test-job", 5*time.Millisecond, worker.JobFunc(func(ctx context.Context) error {
		return nil
	}))

	done := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler blocked on a full worker queue")
	}
}
