// Package sim is a desktop bench for the timing pipeline: a simulated
// 16-bit timer with its overflow interrupt, capture units with a programmable
// interrupt latency, and a pendulum and PPS edge generator.
//
// Everything runs on the caller's goroutine. "Interrupts" are plain calls
// made while the bench advances simulated time.
package sim

// Counter is a free-running 16-bit timer counting oscillator cycles.
type Counter struct {
	cycles     uint64
	onOverflow func()
}

// NewCounter returns a counter at zero.
func NewCounter() *Counter {
	return &Counter{}
}

// OnOverflow sets the handler called each time the counter wraps.
func (c *Counter) OnOverflow(fn func()) {
	c.onOverflow = fn
}

// Count returns the 16-bit counter register.
func (c *Counter) Count() uint16 {
	return uint16(c.cycles)
}

// Cycles returns the absolute cycle count since start.
func (c *Counter) Cycles() uint64 {
	return c.cycles
}

// AdvanceTo moves the counter forward to cycle at, raising one overflow per
// wrap crossed. Moving backwards is a no-op.
func (c *Counter) AdvanceTo(at uint64) {
	if at <= c.cycles {
		return
	}
	wraps := at>>16 - c.cycles>>16
	c.cycles = at
	if c.onOverflow == nil {
		return
	}
	for ; wraps > 0; wraps-- {
		c.onOverflow()
	}
}

// Advance moves the counter forward by n cycles.
func (c *Counter) Advance(n uint64) {
	c.AdvanceTo(c.cycles + n)
}
