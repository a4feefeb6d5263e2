// Package queue implements a fixed-capacity blocking FIFO with a one-way
// closed state, used to connect the stages of the server pipeline.
package queue

import (
	"errors"
	"sync"
)

var (
	// ErrClosed is returned by Push on a closed queue and by Pop once the
	// queue is closed and fully drained.
	ErrClosed = errors.New("queue: closed")

	// ErrFull is returned by TryPush when no slot is free.
	ErrFull = errors.New("queue: full")
)

// BoundedQueue is a circular buffer guarded by a single mutex with two
// conditions: notFull for producers and notEmpty for consumers.
//
// Close wakes every waiter. Producers fail from then on, while consumers keep
// receiving the items still buffered and only fail once the queue is empty.
type BoundedQueue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	items  []T
	head   int
	size   int
	closed bool
}

// New creates a queue holding at most capacity items. It panics if capacity
// is not positive.
func New[T any](capacity int) *BoundedQueue[T] {
	if capacity <= 0 {
		panic("queue: capacity must be positive")
	}
	q := &BoundedQueue[T]{items: make([]T, capacity)}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push appends item, blocking while the queue is full. It returns ErrClosed
// if the queue is closed on entry or becomes closed while waiting.
func (q *BoundedQueue[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == len(q.items) && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return ErrClosed
	}
	q.enqueue(item)
	return nil
}

// TryPush appends item without blocking.
func (q *BoundedQueue[T]) TryPush(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if q.size == len(q.items) {
		return ErrFull
	}
	q.enqueue(item)
	return nil
}

// Pop removes the head item, blocking while the queue is empty and open.
// Buffered items are still returned after Close; ErrClosed is returned only
// when the queue is both closed and empty.
func (q *BoundedQueue[T]) Pop() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.size == 0 {
		var zero T
		return zero, ErrClosed
	}

	var zero T
	item := q.items[q.head]
	q.items[q.head] = zero // drop the reference held by the ring
	q.head = (q.head + 1) % len(q.items)
	q.size--
	q.notFull.Signal()
	return item, nil
}

// Close marks the queue closed and wakes all blocked producers and
// consumers. Calling Close more than once is a no-op.
func (q *BoundedQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Len returns the number of buffered items.
func (q *BoundedQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the fixed capacity.
func (q *BoundedQueue[T]) Cap() int {
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *BoundedQueue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// enqueue must be called with mu held and a free slot available.
func (q *BoundedQueue[T]) enqueue(item T) {
	tail := (q.head + q.size) % len(q.items)
	q.items[tail] = item
	q.size++
	q.notEmpty.Signal()
}
