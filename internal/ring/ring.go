// Package ring provides the fixed-capacity single-producer/single-consumer
// queue used between capture handlers and the main loop.
package ring

import (
	"fmt"
	"sync/atomic"

	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/irq"
)

// Queue is a bounded SPSC FIFO. The producer owns head and the consumer owns
// tail; each side only reads the other's index. A full queue discards the
// newest element and counts the drop instead of blocking or overwriting.
//
// One slot is kept empty to tell full from empty, so a Queue built with
// capacity n holds n-1 elements, like the firmware rings it replaces.
type Queue[T any] struct {
	buf     []T
	mask    uint32
	head    atomic.Uint32
	tail    atomic.Uint32
	dropped irq.Counter
	high    atomic.Uint32
}

// New returns a queue with the given power-of-two capacity. Drops are
// counted on dropped, which may be shared between queues.
func New[T any](capacity int, dropped irq.Counter) *Queue[T] {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		panic(fmt.Sprintf("ring: capacity %d is not a power of two >= 2", capacity))
	}
	if dropped == nil {
		dropped = &irq.AtomicCounter{}
	}
	return &Queue[T]{
		buf:     make([]T, capacity),
		mask:    uint32(capacity - 1),
		dropped: dropped,
	}
}

// TryPush appends v. It reports false and counts a drop when the queue is full.
// Producer side only.
func (q *Queue[T]) TryPush(v T) bool {
	head := q.head.Load()
	next := (head + 1) & q.mask
	tail := q.tail.Load()
	if next == tail {
		q.dropped.Inc()
		return false
	}
	q.buf[head] = v
	q.head.Store(next)

	fill := (next - tail) & q.mask
	for {
		hw := q.high.Load()
		if fill <= hw || q.high.CompareAndSwap(hw, fill) {
			break
		}
	}
	return true
}

// TryPop removes the oldest element. Consumer side only.
func (q *Queue[T]) TryPop() (T, bool) {
	var zero T
	tail := q.tail.Load()
	if tail == q.head.Load() {
		return zero, false
	}
	v := q.buf[tail]
	q.buf[tail] = zero
	q.tail.Store((tail + 1) & q.mask)
	return v, true
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int {
	return int((q.head.Load() - q.tail.Load()) & q.mask)
}

// Cap returns the number of elements the queue can hold.
func (q *Queue[T]) Cap() int {
	return len(q.buf) - 1
}

// HighWater returns the largest fill level seen since the last reset.
func (q *Queue[T]) HighWater() int {
	return int(q.high.Load())
}

// ResetHighWater clears the high-water mark.
func (q *Queue[T]) ResetHighWater() {
	q.high.Store(0)
}

// Dropped returns the drop counter this queue reports to.
func (q *Queue[T]) Dropped() irq.Counter {
	return q.dropped
}
