// Package capture timestamps physical edges on the shared timebase and hands
// them to the main loop through bounded queues.
package capture

import (
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/irq"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/ring"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/tick"
)

// Queue sizes. Each must absorb the worst-case edge count between two polls.
const (
	IRQueueSize    = 64
	PPSQueueSize   = 16
	SwingQueueSize = 64
)

// Channel identifies a capture input.
type Channel uint8

const (
	IR Channel = iota
	PPS
)

func (c Channel) String() string {
	switch c {
	case IR:
		return "IR"
	case PPS:
		return "PPS"
	default:
		return "unknown"
	}
}

// EdgeKind is the direction of a transition.
type EdgeKind uint8

const (
	Rising EdgeKind = iota
	Falling
)

func (k EdgeKind) String() string {
	if k == Falling {
		return "falling"
	}
	return "rising"
}

// Opposite returns the other edge direction.
func (k EdgeKind) Opposite() EdgeKind {
	if k == Rising {
		return Falling
	}
	return Rising
}

// EdgeEvent is one physical transition, backdated to the instant the
// capture unit latched it.
type EdgeEvent struct {
	Timestamp tick.Tick
	Channel   Channel
	Kind      EdgeKind
}

// Unit is a hardware capture unit: a free-running counter that latches its
// value when the armed edge arrives.
type Unit interface {
	// ArmNextEdge selects the edge direction that triggers the next capture.
	ArmNextEdge(kind EdgeKind)
	// ReadLatched returns the counter value latched at the edge.
	ReadLatched() uint32
	// ReadLive returns the unit's counter value now.
	ReadLive() uint32
	// CounterBits is the width of the unit's counter.
	CounterBits() uint
}

// Handler is the capture interrupt body for one channel.
type Handler struct {
	ch    Channel
	unit  Unit
	clock tick.Source
	q     *ring.Queue[EdgeEvent]
	mask  uint32
	armed EdgeKind
}

// NewHandler returns a handler pushing onto q and arms unit for first.
// IR handlers alternate the armed edge after every capture.
func NewHandler(ch Channel, unit Unit, clock tick.Source, q *ring.Queue[EdgeEvent], first EdgeKind) *Handler {
	h := &Handler{
		ch:    ch,
		unit:  unit,
		clock: clock,
		q:     q,
		mask:  widthMask(unit.CounterBits()),
		armed: first,
	}
	unit.ArmNextEdge(first)
	return h
}

// OnCapture handles one capture interrupt. It never blocks; a full queue
// counts a drop.
func (h *Handler) OnCapture() {
	latched := h.unit.ReadLatched()
	live := h.unit.ReadLive()
	latency := (live - latched) & h.mask
	now := h.clock.Now()

	h.q.TryPush(EdgeEvent{
		Timestamp: now - tick.Tick(latency),
		Channel:   h.ch,
		Kind:      h.armed,
	})

	if h.ch == IR {
		h.armed = h.armed.Opposite()
		h.unit.ArmNextEdge(h.armed)
	}
}

func widthMask(bits uint) uint32 {
	if bits == 0 || bits >= 32 {
		return ^uint32(0)
	}
	return uint32(1)<<bits - 1
}

// Bank owns the per-channel queues and the drop counter they share.
type Bank struct {
	Dropped *irq.AtomicCounter
	IR      *ring.Queue[EdgeEvent]
	PPS     *ring.Queue[EdgeEvent]
}

// NewBank returns a Bank with the standard queue sizes.
func NewBank() *Bank {
	dropped := &irq.AtomicCounter{}
	return &Bank{
		Dropped: dropped,
		IR:      ring.New[EdgeEvent](IRQueueSize, dropped),
		PPS:     ring.New[EdgeEvent](PPSQueueSize, dropped),
	}
}
