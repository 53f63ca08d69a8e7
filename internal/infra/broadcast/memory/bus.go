// Package memory fans committed change events out to in-process subscribers.
package memory

import (
	"alignercore/pkg/domain"
	"context"
	"sync"
)

// Bus delivers every published event to each live subscriber, in order.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan domain.ChangeEvent
	next   int
	buffer int
}

// New returns a bus whose subscribers buffer up to buffer events. A full
// subscriber drops events rather than blocking publishers.
func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{subs: make(map[int]chan domain.ChangeEvent), buffer: buffer}
}

// Publish hands event to every subscriber.
func (b *Bus) Publish(_ context.Context, event domain.ChangeEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe calls fn for each event until ctx is done. It returns once the
// subscription is registered.
func (b *Bus) Subscribe(ctx context.Context, fn func(domain.ChangeEvent)) error {
	ch := make(chan domain.ChangeEvent, b.buffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-ch:
				fn(event)
			}
		}
	}()
	return nil
}

// Close is a no-op; subscriptions end with their context.
func (b *Bus) Close() error { return nil }
