// Package buffer provides a bounded producer/consumer chunk queue used to
// decouple real-time audio paths from slower sinks.
package buffer

import (
	"fmt"
	"io"
	"sync"
)

// ChunkQueue is a thread-safe bounded FIFO of values. Producers never
// block: Push drops the value when the queue is full. Consumers block in
// Pop until a value arrives or the queue is closed.
//
// This shape fits side channels fed from real-time loops (call recording,
// simulator statistics) where stalling the producer would stall audio, and
// dropping under pressure is the correct trade.
type ChunkQueue[T any] struct {
	cond *sync.Cond

	mu         sync.Mutex
	items      []T
	head, tail int64
	dropped    int64
	closeWrite bool
	closeErr   error
}

// NewChunkQueue creates a queue holding at most capacity values.
func NewChunkQueue[T any](capacity int) *ChunkQueue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	q := &ChunkQueue[T]{items: make([]T, capacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends v without blocking. It reports false when the value was
// dropped: the queue is full or closed.
func (q *ChunkQueue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closeWrite || q.closeErr != nil {
		return false
	}
	if int(q.tail-q.head) == len(q.items) {
		q.dropped++
		return false
	}
	q.items[q.tail%int64(len(q.items))] = v
	q.tail++
	q.cond.Signal()
	return true
}

// Pop removes and returns the oldest value, blocking until one is
// available. After CloseWrite, Pop drains remaining values and then
// returns io.EOF. After CloseWithError, Pop returns that error
// immediately, discarding anything still queued.
func (q *ChunkQueue[T]) Pop() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	for {
		if q.closeErr != nil {
			return zero, fmt.Errorf("buffer: pop from closed queue: %w", q.closeErr)
		}
		if q.head != q.tail {
			v := q.items[q.head%int64(len(q.items))]
			q.items[q.head%int64(len(q.items))] = zero
			q.head++
			return v, nil
		}
		if q.closeWrite {
			return zero, io.EOF
		}
		q.cond.Wait()
	}
}

// CloseWrite marks the queue as complete. Queued values remain readable;
// Pop returns io.EOF once they are drained.
func (q *ChunkQueue[T]) CloseWrite() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closeWrite = true
	q.cond.Broadcast()
}

// CloseWithError aborts the queue. Pending and future Pops return err.
func (q *ChunkQueue[T]) CloseWithError(err error) {
	if err == nil {
		err = io.ErrClosedPipe
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeErr == nil {
		q.closeErr = err
	}
	q.cond.Broadcast()
}

// Len returns the number of values currently queued.
func (q *ChunkQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int(q.tail - q.head)
}

// Dropped returns how many values Push has discarded because the queue
// was full.
func (q *ChunkQueue[T]) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
