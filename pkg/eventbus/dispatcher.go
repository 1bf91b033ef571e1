package eventbus

import "sync"

// Dispatcher delivers events to a Bus from a single goroutine, preserving
// enqueue order. Enqueue never blocks; when the queue is full the event is
// dropped and onDrop is called.
type Dispatcher[T any] struct {
	bus    *Bus[T]
	queue  chan T
	onDrop func(T)

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher starts a dispatcher with the given queue size.
func NewDispatcher[T any](bus *Bus[T], size int, onDrop func(T)) *Dispatcher[T] {
	if size < 1 {
		size = 1
	}
	d := &Dispatcher[T]{
		bus:    bus,
		queue:  make(chan T, size),
		onDrop: onDrop,
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher[T]) run() {
	defer close(d.done)
	for ev := range d.queue {
		d.bus.PublishSync(ev)
	}
}

// Enqueue reports whether the event was accepted.
func (d *Dispatcher[T]) Enqueue(ev T) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- ev:
		return true
	default:
		if d.onDrop != nil {
			d.onDrop(ev)
		}
		return false
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher[T]) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
}
