// Package buffer provides the unbounded queue backing the step-event stream.
package buffer

import "sync"

// Unbounded is a queue with non-blocking sends and unlimited capacity.
// A producer calls Send without ever blocking; a background goroutine drains
// queued items to the Receive channel, which closes after Close once the
// queue is empty.
type Unbounded[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []T
	closed bool
	out    chan T
}

// NewUnbounded creates a buffer ready for Send.
func NewUnbounded[T any]() *Unbounded[T] {
	b := &Unbounded[T]{out: make(chan T, 1)}
	b.cond = sync.NewCond(&b.mu)
	go b.drain()
	return b
}

func (b *Unbounded[T]) drain() {
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 {
			b.mu.Unlock()
			close(b.out)
			return
		}
		item := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		// May block on a slow consumer; the queue keeps absorbing sends.
		b.out <- item
	}
}

// Send enqueues an item. Never blocks. Items sent after Close are dropped.
func (b *Unbounded[T]) Send(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.queue = append(b.queue, item)
	b.cond.Signal()
}

// Receive returns the consumer channel. It closes after Close once all
// queued items have been delivered.
func (b *Unbounded[T]) Receive() <-chan T {
	return b.out
}

// Close stops the buffer. Safe to call multiple times.
func (b *Unbounded[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.cond.Signal()
}

// Len reports the number of undelivered items still queued.
func (b *Unbounded[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
