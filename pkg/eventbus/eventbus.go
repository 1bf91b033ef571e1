// Package eventbus provides typed in-process pub/sub.
package eventbus

import (
	"sync"
)

// Handler handles one event.
type Handler[T any] func(event T)

// Bus fans events out to subscribers.
type Bus[T any] struct {
	mu       sync.RWMutex
	handlers []Handler[T]
}

// New creates an empty Bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{}
}

// Subscribe registers a handler for every event published on the bus.
func (b *Bus[T]) Subscribe(h Handler[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers event to each subscriber on its own goroutine.
func (b *Bus[T]) Publish(event T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, h := range b.handlers {
		go h(event)
	}
}

// PublishSync delivers event to each subscriber in registration order.
func (b *Bus[T]) PublishSync(event T) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()
	for _, h := range handlers {
		h(event)
	}
}

// HasSubscribers returns true if anything is subscribed.
func (b *Bus[T]) HasSubscribers() bool {
	return b.SubscriberCount() > 0
}

// SubscriberCount returns the number of subscribers.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
