package buffer

import "sync"

// Ring is a thread-safe sliding window over the last N values added.
// Unlike ChunkQueue it never blocks and never rejects: when full, Add
// overwrites the oldest value. It holds recent history for display,
// such as the tail of a log stream.
type Ring[T any] struct {
	mu         sync.Mutex
	items      []T
	head, tail int64
}

// NewRing creates a ring keeping the most recent capacity values.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Add appends v, evicting the oldest value when the ring is full.
func (r *Ring[T]) Add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.tail%int64(len(r.items))] = v
	r.tail++
	if r.tail-r.head > int64(len(r.items)) {
		r.head++
	}
}

// Len returns the number of values currently held.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.tail - r.head)
}

// Snapshot returns a copy of the held values, oldest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, 0, r.tail-r.head)
	for i := r.head; i < r.tail; i++ {
		out = append(out, r.items[i%int64(len(r.items))])
	}
	return out
}
