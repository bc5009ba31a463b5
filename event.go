package connpool

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Event is a pool lifecycle notification. It is a closed tagged variant;
// handlers are registered per-Event.
type Event int

const (
	EventConnectionCreated Event = iota
	EventConnectionClosed
	EventConnectionInvalid
	EventPoolGrow
	EventPoolShrink
)

// String renders the event the way log lines and tests expect to see it.
func (e Event) String() string {
	switch e {
	case EventConnectionCreated:
		return "connection_created"
	case EventConnectionClosed:
		return "connection_closed"
	case EventConnectionInvalid:
		return "connection_invalid"
	case EventPoolGrow:
		return "pool_grow"
	case EventPoolShrink:
		return "pool_shrink"
	default:
		return "unknown"
	}
}

// Handler observes a lifecycle Event for a Connection. It must not Acquire
// from the pool it is observing — deadlock risk, documented as a caller
// contract in spec.md §5.
type Handler func(ctx context.Context, conn Connection) error

// EventDispatcher fans an Event out to every Handler registered for it, in
// registration order. Handlers are invoked synchronously with respect to
// the dispatching call; a Handler that panics or returns an error is
// logged and swallowed — it never propagates to the pool operation that
// triggered the event.
type EventDispatcher struct {
	mu       sync.RWMutex
	handlers map[Event][]Handler
	logger   zerolog.Logger
}

// NewEventDispatcher creates a dispatcher that logs handler failures
// through logger. A zero zerolog.Logger is the library default: silent.
func NewEventDispatcher(logger zerolog.Logger) *EventDispatcher {
	return &EventDispatcher{
		handlers: make(map[Event][]Handler),
		logger:   logger,
	}
}

// AddHandler registers a subscriber for event.
func (d *EventDispatcher) AddHandler(event Event, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[event] = append(d.handlers[event], handler)
}

// Fire dispatches event for conn to every registered handler. Must be
// called without the pool's critical section held — handlers may be slow
// or may (against contract) attempt to call back into the pool.
func (d *EventDispatcher) Fire(ctx context.Context, event Event, conn Connection) {
	d.mu.RLock()
	handlers := d.handlers[event]
	d.mu.RUnlock()
	for _, h := range handlers {
		d.invoke(ctx, event, conn, h)
	}
}

func (d *EventDispatcher) invoke(ctx context.Context, event Event, conn Connection, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Stringer("event", event).Msg("pool event handler panicked")
		}
	}()
	if err := h(ctx, conn); err != nil {
		d.logger.Error().Err(err).Stringer("event", event).Msg("pool event handler failed")
	}
}
