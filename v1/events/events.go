// Package events provides an in-process notification bus for lock lifecycle
// events. Subscribers receive a signal per published topic; delivery is
// best-effort and never blocks the publisher.
package events

import (
	"context"
	"sync"
	"sync/atomic"
)

// Topic helpers for the lock lifecycle. The lock package publishes on these
// topics when an event bus is attached.

// Acquired is the topic signalled when the named lock is granted.
func Acquired(name string) string { return "acquired:" + name }

// Released is the topic signalled when the named lock is released.
func Released(name string) string { return "released:" + name }

// TimedOut is the topic signalled when a waiter abandons the named lock.
func TimedOut(name string) string { return "timeout:" + name }

// Bus delivers lock lifecycle notifications to in-process subscribers.
type Bus interface {
	Publish(ctx context.Context, topic string) error
	Subscribe(ctx context.Context, topic string) (<-chan struct{}, error)
	Unsubscribe(ctx context.Context, topic string, ch <-chan struct{}) error
}

// InMemoryBus is the local implementation of Bus.
type InMemoryBus struct {
	mu        sync.Mutex
	subs      map[string][]chan struct{}
	published atomic.Uint64
	delivered atomic.Uint64
}

// NewInMemoryBus returns a new InMemoryBus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{subs: make(map[string][]chan struct{})}
}

// Publish implements Bus.Publish.
func (b *InMemoryBus) Publish(ctx context.Context, topic string) error {
	b.mu.Lock()
	chans := append([]chan struct{}(nil), b.subs[topic]...)
	b.mu.Unlock()
	b.published.Add(1)
	for _, ch := range chans {
		select {
		case ch <- struct{}{}:
			b.delivered.Add(1)
		default:
		}
	}
	return nil
}

// Subscribe implements Bus.Subscribe. The returned channel is buffered; a
// subscriber that falls behind coalesces signals rather than blocking
// publishers.
func (b *InMemoryBus) Subscribe(ctx context.Context, topic string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()
	return ch, nil
}

// Unsubscribe implements Bus.Unsubscribe. The channel is closed once removed.
func (b *InMemoryBus) Unsubscribe(ctx context.Context, topic string, ch <-chan struct{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[topic]
	for i, c := range subs {
		if c == ch {
			subs = append(subs[:i], subs[i+1:]...)
			close(c)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.subs, topic)
	} else {
		b.subs[topic] = subs
	}
	return nil
}

// Metrics reports bus delivery counters.
type Metrics struct {
	Published uint64
	Delivered uint64
}

// Metrics returns a snapshot of the bus counters.
func (b *InMemoryBus) Metrics() Metrics {
	return Metrics{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
	}
}
