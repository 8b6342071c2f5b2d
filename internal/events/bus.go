package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// BusOptions configures a Bus.
type BusOptions struct {
	// Buffer is the number of events queued before Publish starts dropping.
	Buffer int
	// Workers bounds how many handlers run at once.
	Workers int
	// OnDrop is called for every event that could not be queued.
	OnDrop func(e Event)
}

// Bus is an in-process message bus. Publishers hand events to a buffered
// channel and return immediately; a dispatcher goroutine fans each event out
// to subscribers on a worker pool.
type Bus struct {
	queue  chan Event
	pool   *ants.Pool
	onDrop func(e Event)

	mu       sync.RWMutex
	closed   bool
	handlers map[Type][]Handler
	all      []Handler

	inflight sync.WaitGroup
	done     chan struct{}
}

var _ Publisher = (*Bus)(nil)

// NewBus creates a Bus. Call Run to start delivery and Close to stop it.
func NewBus(opts BusOptions) (*Bus, error) {
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}

	pool, err := ants.NewPool(opts.Workers, ants.WithPanicHandler(func(p any) {
		slog.Error("Event handler panicked", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create event worker pool: %w", err)
	}

	return &Bus{
		queue:    make(chan Event, opts.Buffer),
		pool:     pool,
		onDrop:   opts.OnDrop,
		handlers: make(map[Type][]Handler),
		done:     make(chan struct{}),
	}, nil
}

// Subscribe registers h for events of type t.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// SubscribeAll registers h for every event type.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish queues e for delivery without blocking. If the buffer is full or
// the bus is closed the event is dropped.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.drop(e, "bus closed")
		return
	}

	select {
	case b.queue <- e:
	default:
		b.drop(e, "buffer full")
	}
}

func (b *Bus) drop(e Event, reason string) {
	slog.Warn("Dropping domain event",
		"event_type", e.Type,
		"group_purchase_id", e.GroupPurchaseID,
		"reason", reason,
	)
	if b.onDrop != nil {
		b.onDrop(e)
	}
}

// Run dispatches queued events until Close is called. Handlers receive ctx,
// so cancelling it tells in-flight handlers to stop early.
func (b *Bus) Run(ctx context.Context) {
	defer close(b.done)

	for e := range b.queue {
		b.mu.RLock()
		targets := make([]Handler, 0, len(b.handlers[e.Type])+len(b.all))
		targets = append(targets, b.handlers[e.Type]...)
		targets = append(targets, b.all...)
		b.mu.RUnlock()

		for _, h := range targets {
			h := h
			ev := e
			b.inflight.Add(1)
			if err := b.pool.Submit(func() {
				defer b.inflight.Done()
				h(ctx, ev)
			}); err != nil {
				b.inflight.Done()
				slog.Error("Failed to submit event handler", "event_type", ev.Type, "error", err)
			}
		}
	}
}

// Close stops accepting events, waits for queued events to be dispatched and
// for running handlers to return, then releases the worker pool. Run must
// have been started.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	<-b.done
	b.inflight.Wait()
	b.pool.Release()
}
