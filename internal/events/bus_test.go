package events

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/sambatan/internal/models"
)

func TestBusDeliversToTypedAndWildcardSubscribers(t *testing.T) {
	bus, err := NewBus(BusOptions{Buffer: 16, Workers: 4})
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		joined   []string
		everyone []Type
		wg       sync.WaitGroup
	)
	wg.Add(3)
	bus.Subscribe(ParticipantJoined, func(_ context.Context, e Event) {
		defer wg.Done()
		mu.Lock()
		joined = append(joined, e.UserID)
		mu.Unlock()
	})
	bus.SubscribeAll(func(_ context.Context, e Event) {
		defer wg.Done()
		mu.Lock()
		everyone = append(everyone, e.Type)
		mu.Unlock()
	})

	go bus.Run(context.Background())

	bus.Publish(context.Background(), Event{Type: ParticipantJoined, UserID: "alice"})
	bus.Publish(context.Background(), Event{Type: GroupPurchaseCompleted})

	waitOrFail(t, &wg)
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"alice"}, joined)
	assert.ElementsMatch(t, []Type{ParticipantJoined, GroupPurchaseCompleted}, everyone)
}

func TestBusDropsWhenFull(t *testing.T) {
	var dropped atomic.Int32
	bus, err := NewBus(BusOptions{Buffer: 1, Workers: 1, OnDrop: func(Event) { dropped.Add(1) }})
	require.NoError(t, err)

	// Run is not started, so the second event cannot be queued
	bus.Publish(context.Background(), Event{Type: ParticipantJoined})
	bus.Publish(context.Background(), Event{Type: ParticipantJoined})
	assert.Equal(t, int32(1), dropped.Load())

	go bus.Run(context.Background())
	bus.Close()

	bus.Publish(context.Background(), Event{Type: ParticipantJoined})
	assert.Equal(t, int32(2), dropped.Load(), "publish after close should drop")
}

func TestBusCloseWaitsForHandlers(t *testing.T) {
	bus, err := NewBus(BusOptions{Buffer: 4, Workers: 2})
	require.NoError(t, err)

	var finished atomic.Bool
	bus.SubscribeAll(func(context.Context, Event) {
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	})

	go bus.Run(context.Background())
	bus.Publish(context.Background(), Event{Type: GroupPurchaseClosed})
	bus.Close()

	assert.True(t, finished.Load())
}

func TestStatusEvent(t *testing.T) {
	tests := []struct {
		status string
		want   Type
		ok     bool
	}{
		{"completed", GroupPurchaseCompleted, true},
		{"closed", GroupPurchaseClosed, true},
		{"cancelled", GroupPurchaseCancelled, true},
		{"open", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			got, ok := StatusEvent(models.Status(tt.status))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event delivery")
	}
}
