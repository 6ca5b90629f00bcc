package sim

import (
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/capture"
)

// Unit is a simulated input-capture unit clocked by a Counter. An edge of
// the armed kind latches the counter; the interrupt then runs Latency cycles
// later.
type Unit struct {
	Latency uint32

	counter *Counter
	bits    uint
	armed   capture.EdgeKind
	latched uint32
	isr     func()

	captured uint32
	missed   uint32
}

// NewUnit returns a unit with a bits-wide counter view.
func NewUnit(counter *Counter, bits uint, latency uint32) *Unit {
	return &Unit{Latency: latency, counter: counter, bits: bits}
}

// Attach sets the interrupt body run after each capture.
func (u *Unit) Attach(isr func()) {
	u.isr = isr
}

func (u *Unit) ArmNextEdge(k capture.EdgeKind) { u.armed = k }
func (u *Unit) ReadLatched() uint32            { return u.latched }
func (u *Unit) CounterBits() uint              { return u.bits }

// ReadLive returns the counter as the unit sees it.
func (u *Unit) ReadLive() uint32 {
	return uint32(u.counter.Cycles()) & mask(u.bits)
}

// Edge delivers an input edge at absolute cycle at. Edges of the wrong
// kind are ignored by the edge selector, as in hardware.
func (u *Unit) Edge(at uint64, k capture.EdgeKind) bool {
	if k != u.armed {
		u.missed++
		return false
	}
	u.counter.AdvanceTo(at)
	u.latched = uint32(at) & mask(u.bits)
	u.counter.AdvanceTo(at + uint64(u.Latency))
	u.captured++
	if u.isr != nil {
		u.isr()
	}
	return true
}

// Captured returns the number of edges latched.
func (u *Unit) Captured() uint32 { return u.captured }

// Missed returns the number of edges the selector rejected.
func (u *Unit) Missed() uint32 { return u.missed }

func mask(bits uint) uint32 {
	if bits == 0 || bits >= 32 {
		return ^uint32(0)
	}
	return 1<<bits - 1
}
