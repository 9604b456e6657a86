package queue

import (
	"context"
	"sync"
)

// FIFO is a mutex-protected first-in first-out queue with a context-aware
// blocking Pop. It supports removal from the middle, which a channel cannot.
type FIFO[T any] struct {
	mu    sync.Mutex
	items []T
	// wake holds at most one pending signal; Push never blocks on it.
	wake chan struct{}
}

// NewFIFO returns an empty queue.
func NewFIFO[T any]() *FIFO[T] {
	return &FIFO[T]{wake: make(chan struct{}, 1)}
}

// Push appends item and wakes a blocked Pop.
func (q *FIFO[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.signal()
}

func (q *FIFO[T]) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// TryPop removes and returns the head of the queue without blocking.
func (q *FIFO[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return item, true
}

// Pop blocks until an item is available or ctx is done. It returns ctx.Err()
// on cancellation.
func (q *FIFO[T]) Pop(ctx context.Context) (T, error) {
	for {
		if item, ok := q.TryPop(); ok {
			if q.Len() > 0 {
				q.signal()
			}
			return item, nil
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.wake:
		}
	}
}

// RemoveFunc deletes every item for which match returns true and reports how
// many were removed. Order of the remaining items is preserved.
func (q *FIFO[T]) RemoveFunc(match func(T) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	removed := 0
	for _, item := range q.items {
		if match(item) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	var zero T
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = zero
	}
	q.items = kept
	return removed
}

// Len returns the number of queued items.
func (q *FIFO[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
