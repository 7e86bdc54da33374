package events

import (
	"errors"
	"fmt"
	"sync"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("event bus closed")

// Handler consumes an event at publish time. Handlers run synchronously on
// the publisher's goroutine, so delivery order matches the orchestrator's
// commit order; a handler must not call back into its publisher.
type Handler func(Event) error

// Bus distributes core events to two kinds of consumers. Typed handlers
// (fleet assignment, counters) are invoked inline by Publish and see every
// event exactly once, in order. Streams (WebSocket and NATS fan-out) are
// buffered channels that may lag; rather than ever blocking the core, a
// full stream drops the event and the loss is counted.
type Bus struct {
	mu       sync.Mutex
	handlers map[EventType][]Handler
	streams  map[int]chan Event
	nextID   int
	closed   bool
	dropped  uint64
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
		streams:  make(map[int]chan Event),
	}
}

// Subscribe registers a synchronous handler for one event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Stream registers a buffered fan-out subscription for all events. The
// returned cancel func closes the channel and detaches it from the bus.
func (b *Bus) Stream(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.streams[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.streams[id]; ok {
			delete(b.streams, id)
			close(s)
		}
	}
	return ch, cancel
}

// Publish delivers an event: typed handlers first, synchronously, then a
// non-blocking send to every stream. Handler errors are joined into the
// return value; a lagging stream loses the event instead of stalling the
// caller.
func (b *Bus) Publish(event Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	handlers := append([]Handler(nil), b.handlers[event.Type]...)
	b.mu.Unlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, fmt.Errorf("%s handler: %w", event.Type, err))
		}
	}

	// Stream sends stay under the lock so a concurrent cancel cannot close
	// a channel mid-send.
	b.mu.Lock()
	if !b.closed {
		for _, ch := range b.streams {
			select {
			case ch <- event:
			default:
				b.dropped++
			}
		}
	}
	b.mu.Unlock()

	return errors.Join(errs...)
}

// Dropped reports how many events were lost to full streams.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close rejects further publishes and closes every stream.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.streams {
		delete(b.streams, id)
		close(ch)
	}
}
