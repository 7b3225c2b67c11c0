package bus

import (
	"context"
	"sync"
	"time"
)

// Queue is an unbounded FIFO of pending requests. Enqueue never blocks and is
// safe from any number of producers; the bus driver is the only consumer.
type Queue struct {
	mu     sync.Mutex
	items  []Request
	notify chan struct{}
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Enqueue appends a request
func (q *Queue) Enqueue(r Request) {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// EnqueueUnique appends r unless a request for the same address and kind is
// still pending. Returns false when r was skipped.
func (q *Queue) EnqueueUnique(r Request) bool {
	q.mu.Lock()
	for _, pending := range q.items {
		if pending.Address == r.Address && pending.Kind == r.Kind {
			q.mu.Unlock()
			return false
		}
	}
	q.items = append(q.items, r)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Dequeue removes the oldest request, waiting up to timeout for one to arrive.
// Returns false on timeout or context cancellation.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (Request, bool) {
	if r, ok := q.pop(); ok {
		return r, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return Request{}, false
		case <-timer.C:
			return q.pop()
		case <-q.notify:
			if r, ok := q.pop(); ok {
				return r, true
			}
		}
	}
}

func (q *Queue) pop() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Request{}, false
	}
	r := q.items[0]
	q.items[0] = Request{}
	q.items = q.items[1:]
	// More work left: keep the wake-up signal armed
	if len(q.items) > 0 {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return r, true
}

// Len returns the number of pending requests
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
