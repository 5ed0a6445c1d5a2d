// Package queue provides the bounded, drop-when-full FIFO that carries
// scalar readings from one acquisition worker to the display loop.
//
// Design:
//   - One producer (the sensor's worker), one consumer (the display loop).
//   - TryPush never blocks: on a full queue the NEW value is dropped and
//     counted. Older queued values are kept.
//   - TryPop never blocks: an empty queue reports ok=false.
//
// Loss under backpressure is expected. A slow display discards the newest
// readings, so the consumer may lag the producer by up to Cap() values.
package queue

import (
	"fmt"
	"sync/atomic"
)

// Bounded is a fixed-capacity FIFO backed by a buffered channel.
type Bounded[T any] struct {
	ch chan T

	pushed  atomic.Uint64
	dropped atomic.Uint64
	popped  atomic.Uint64
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Pushed  uint64 `json:"pushed"`
	Dropped uint64 `json:"dropped"`
	Popped  uint64 `json:"popped"`
	Len     int    `json:"len"`
	Cap     int    `json:"cap"`
}

// New creates a queue holding at most capacity values.
func New[T any](capacity int) (*Bounded[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("queue: invalid capacity %d (must be > 0)", capacity)
	}
	return &Bounded[T]{ch: make(chan T, capacity)}, nil
}

// TryPush enqueues v if there is room. It reports false and counts a drop
// when the queue is full.
func (q *Bounded[T]) TryPush(v T) bool {
	select {
	case q.ch <- v:
		q.pushed.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// TryPop dequeues the oldest value, or reports ok=false if the queue is empty.
func (q *Bounded[T]) TryPop() (v T, ok bool) {
	select {
	case v = <-q.ch:
		q.popped.Add(1)
		return v, true
	default:
		return v, false
	}
}

// Full reports whether the queue is at capacity. Advisory only: with a
// concurrent consumer the answer may be stale by the time it is used.
func (q *Bounded[T]) Full() bool {
	return len(q.ch) == cap(q.ch)
}

// Len returns the number of queued values.
func (q *Bounded[T]) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Bounded[T]) Cap() int {
	return cap(q.ch)
}

// Stats returns queue counters.
func (q *Bounded[T]) Stats() Stats {
	return Stats{
		Pushed:  q.pushed.Load(),
		Dropped: q.dropped.Load(),
		Popped:  q.popped.Load(),
		Len:     len(q.ch),
		Cap:     cap(q.ch),
	}
}
