package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	var got []Event
	bus.Subscribe(CycleProduced, func(ctx context.Context, e Event) error {
		got = append(got, e)
		return nil
	})

	err := bus.Publish(ctx, New(CycleProduced, "payload"))
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, CycleProduced, got[0].Type)
	assert.Equal(t, SchemaVersion, got[0].Version)
	assert.Equal(t, "payload", got[0].Payload)
}

func TestMemoryBusNoSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	assert.NoError(t, bus.Publish(context.Background(), New(SessionEnded, nil)))
}

func TestMemoryBusMultipleHandlers(t *testing.T) {
	bus := NewMemoryBus()
	count := 0
	for i := 0; i < 3; i++ {
		bus.Subscribe(SessionStarted, func(ctx context.Context, e Event) error {
			count++
			return nil
		})
	}

	require.NoError(t, bus.Publish(context.Background(), New(SessionStarted, nil)))
	assert.Equal(t, 3, count)
}

func TestMemoryBusCollectsHandlerErrors(t *testing.T) {
	bus := NewMemoryBus()
	ran := false
	bus.Subscribe(VitalisDepleted, func(ctx context.Context, e Event) error {
		return errors.New("observer broke")
	})
	bus.Subscribe(VitalisDepleted, func(ctx context.Context, e Event) error {
		ran = true
		return nil
	})

	err := bus.Publish(context.Background(), New(VitalisDepleted, nil))
	assert.Error(t, err)
	assert.True(t, ran, "later handlers still run after an earlier failure")
}

func TestPublishAsync(t *testing.T) {
	bus := NewMemoryBus()

	var mu sync.Mutex
	var got *Event
	done := make(chan struct{})
	bus.Subscribe(ItemsMoved, func(ctx context.Context, e Event) error {
		mu.Lock()
		got = &e
		mu.Unlock()
		close(done)
		return nil
	})

	// The publishing context is already cancelled; delivery must still
	// happen because observers outlive the request that triggered them.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	PublishAsync(ctx, bus, New(ItemsMoved, "moved"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, got)
	assert.Equal(t, "moved", got.Payload)
}
