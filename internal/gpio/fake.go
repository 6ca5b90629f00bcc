package gpio

import "github.com/flynnr2/Arduino.RP20240.TickTock/internal/capture"

// FakeUnit is a test double with scripted counter values.
type FakeUnit struct {
	// Bits is the counter width reported by CounterBits. Zero means 16.
	Bits uint

	// Latched and Live are returned by ReadLatched and ReadLive.
	Latched uint32
	Live    uint32

	// Armed records every ArmNextEdge call in order.
	Armed []capture.EdgeKind

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeUnit creates a FakeUnit with the given counter width.
func NewFakeUnit(bits uint) *FakeUnit {
	return &FakeUnit{Bits: bits}
}

// ArmNextEdge records the armed kind.
func (f *FakeUnit) ArmNextEdge(kind capture.EdgeKind) {
	f.Armed = append(f.Armed, kind)
}

// ReadLatched returns the scripted latched value.
func (f *FakeUnit) ReadLatched() uint32 {
	return f.Latched
}

// ReadLive returns the scripted live value.
func (f *FakeUnit) ReadLive() uint32 {
	return f.Live
}

// CounterBits returns the configured width.
func (f *FakeUnit) CounterBits() uint {
	if f.Bits == 0 {
		return 16
	}
	return f.Bits
}

// SetLatency scripts a capture whose handler runs latency counts after the
// edge was latched at at.
func (f *FakeUnit) SetLatency(at, latency uint32) {
	f.Latched = at
	f.Live = at + latency
}

// LastArmed returns the most recently armed kind.
func (f *FakeUnit) LastArmed() (capture.EdgeKind, bool) {
	if len(f.Armed) == 0 {
		return 0, false
	}
	return f.Armed[len(f.Armed)-1], true
}

// Close marks the unit as closed.
func (f *FakeUnit) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded calls.
func (f *FakeUnit) Reset() {
	f.Armed = nil
	f.Closed = false
}
