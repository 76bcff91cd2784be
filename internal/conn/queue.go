package conn

import (
	"sync"

	"github.com/tmarcondes/pulse/internal/wire"
)

// Queue buffers outbound commands that cannot be delivered immediately.
// It is a bounded buffer with a drop-oldest overflow policy: queue order
// is arrival order, not delivery priority, and dropping the oldest entry
// is deliberate backpressure, not a fault.
type Queue struct {
	mu    sync.Mutex
	items []wire.Outbound
	cap   int
}

// NewQueue creates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 100
	}
	return &Queue{cap: capacity}
}

// Push appends a command, evicting the oldest queued command first when
// the queue is full.
func (q *Queue) Push(f wire.Outbound) {
	q.mu.Lock()
	if len(q.items) >= q.cap {
		q.items = q.items[1:]
	}
	q.items = append(q.items, f)
	q.mu.Unlock()
}

// Drain returns every queued command in original enqueue order and
// clears the queue.
func (q *Queue) Drain() []wire.Outbound {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}

// Len returns the number of queued commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
