// Package tick provides the shared 32-bit oscillator timebase.
//
// Every timestamp in the system is a Tick: a count of oscillator cycles since
// start that wraps at 2^32. Differences are taken with Since, which is
// well-defined across a wrap as long as the interval is shorter than 2^32
// ticks (about 268 s at 16 MHz).
package tick

import "sync/atomic"

// Tick is a modular count of oscillator ticks.
type Tick uint32

// DefaultNominalHz is the oscillator frequency the counters run at.
const DefaultNominalHz = 16_000_000

// Since returns the number of ticks from then to now, modulo 2^32.
func Since(now, then Tick) Tick {
	return now - then
}

// Source returns the current time on the shared timebase.
type Source interface {
	Now() Tick
}

// Counter16 is a free-running 16-bit hardware counter register.
type Counter16 interface {
	Count() uint16
}

// Clock extends a 16-bit counter into a 32-bit timebase using an overflow
// count maintained by the counter's overflow interrupt.
//
// The overflow count is written only by OnOverflow. Now may run concurrently
// with it and still returns a coherent value, provided OnOverflow cannot
// fire twice between the two overflow reads inside Now.
type Clock struct {
	hw  Counter16
	ovf atomic.Uint32
}

// NewClock returns a Clock reading the given counter.
func NewClock(hw Counter16) *Clock {
	return &Clock{hw: hw}
}

// OnOverflow is the counter overflow handler.
func (c *Clock) OnOverflow() {
	c.ovf.Add(1)
}

// Now returns {overflow:16, counter:16} read without masking interrupts.
func (c *Clock) Now() Tick {
	o1 := uint16(c.ovf.Load())
	cnt := c.hw.Count()
	o2 := uint16(c.ovf.Load())
	if o1 != o2 {
		// The counter wrapped between the reads; a fresh read belongs to o2.
		cnt = c.hw.Count()
		o1 = o2
	}
	return Tick(uint32(o1)<<16 | uint32(cnt))
}

// FromMillis converts a millisecond interval to ticks at hz.
func FromMillis(ms uint32, hz uint32) Tick {
	return Tick(uint64(ms) * uint64(hz) / 1000)
}
