// Package irq holds state shared between capture handlers and the main loop.
//
// On a microcontroller each operation here is a single read-modify-write
// inside a brief interrupt-masked section. On a hosted target the same
// contract is met with sync/atomic, so the core runs unchanged in tests and
// on Linux where capture handlers are goroutines.
package irq

import "sync/atomic"

// Counter is an interrupt-safe event counter. Inc may be called from any
// handler; Load from the main loop.
type Counter interface {
	Load() uint32
	Inc()
}

// AtomicCounter is the hosted Counter.
type AtomicCounter struct {
	v atomic.Uint32
}

// Load returns the current count.
func (c *AtomicCounter) Load() uint32 {
	return c.v.Load()
}

// Inc adds one to the count.
func (c *AtomicCounter) Inc() {
	c.v.Add(1)
}
