package events

import (
	"context"
	"sync"
)

// Publisher is the narrow interface the billing engines depend on.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Subscriber receives events from a Bus.
type Subscriber struct {
	ch     chan Event
	closed bool
	mu     sync.Mutex
}

// Events returns the channel delivering events to this subscriber.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Close stops delivery and closes the channel. Idempotent.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *Subscriber) send(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
	default:
		// Slow consumers drop events rather than blocking the engine.
		// Billing state lives in the stores; events are best-effort signals.
	}
}

// Bus is an in-memory event broadcaster safe for concurrent use.
type Bus struct {
	subscribers map[*Subscriber]struct{}
	bufferSize  int
	closed      bool
	mu          sync.RWMutex
}

// NewBus creates a Bus whose subscribers buffer up to bufferSize events.
func NewBus(bufferSize int) *Bus {
	return &Bus{
		subscribers: make(map[*Subscriber]struct{}),
		bufferSize:  max(bufferSize, 1),
	}
}

// Subscribe registers a new subscriber. The subscription is removed when the
// context is cancelled or the subscriber is closed.
func (b *Bus) Subscribe(ctx context.Context) *Subscriber {
	sub := &Subscriber{ch: make(chan Event, b.bufferSize)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.Close()
		return sub
	}
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			b.unsubscribe(sub)
		}()
	}
	return sub
}

// Publish delivers the event to all current subscribers without blocking.
func (b *Bus) Publish(_ context.Context, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.subscribers {
		sub.send(event)
	}
}

// Close shuts down the bus and all subscribers.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subscribers {
		sub.Close()
	}
	b.subscribers = make(map[*Subscriber]struct{})
}

func (b *Bus) unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	delete(b.subscribers, sub)
	b.mu.Unlock()
	sub.Close()
}

// NopPublisher discards all events. Useful in tests and for callers that
// don't care about notifications.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}
