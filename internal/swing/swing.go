// Package swing reassembles pendulum swings from photo-interrupter edges.
// Like the rest of the core it has no I/O and takes time only from the
// event timestamps it is given.
package swing

import (
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/capture"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/ring"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/tick"
)

// Phase is the decoder state.
type Phase uint8

const (
	WaitFirstFallingEdge Phase = iota
	InBlockPhase
	InTickPhase
	InTockBlockPhase
	InTockPhase
)

func (p Phase) String() string {
	switch p {
	case WaitFirstFallingEdge:
		return "WAIT_FIRST_FALLING"
	case InBlockPhase:
		return "TICK_BLOCK"
	case InTickPhase:
		return "TICK"
	case InTockBlockPhase:
		return "TOCK_BLOCK"
	case InTockPhase:
		return "TOCK"
	default:
		return "UNKNOWN"
	}
}

// FullSwing is one complete beam cycle. Block phases are beam occluded;
// Tick and Tock are the beam-clear phases in alternating directions.
type FullSwing struct {
	TickBlock tick.Tick
	Tick      tick.Tick
	TockBlock tick.Tick
	Tock      tick.Tick
}

// Decoder turns IR edges into FullSwing records.
type Decoder struct {
	phase   Phase
	start   tick.Tick
	cur     FullSwing
	out     *ring.Queue[FullSwing]
	ignored uint32
	swings  uint32
}

// NewDecoder returns a decoder pushing completed swings to out.
func NewDecoder(out *ring.Queue[FullSwing]) *Decoder {
	return &Decoder{out: out}
}

// Process advances the state machine by one edge. An edge of the wrong kind
// for the current phase is consumed without changing state, which drops the
// cycle in progress but keeps the decoder aligned.
func (d *Decoder) Process(ev capture.EdgeEvent) {
	if ev.Channel != capture.IR {
		d.ignored++
		return
	}

	want := capture.Falling
	if d.phase == InBlockPhase || d.phase == InTockBlockPhase {
		want = capture.Rising
	}
	if ev.Kind != want {
		d.ignored++
		return
	}

	dur := tick.Since(ev.Timestamp, d.start)
	switch d.phase {
	case WaitFirstFallingEdge:
		d.phase = InBlockPhase
	case InBlockPhase:
		d.cur.TickBlock = dur
		d.phase = InTickPhase
	case InTickPhase:
		d.cur.Tick = dur
		d.phase = InTockBlockPhase
	case InTockBlockPhase:
		d.cur.TockBlock = dur
		d.phase = InTockPhase
	case InTockPhase:
		d.cur.Tock = dur
		if d.out.TryPush(d.cur) {
			d.swings++
		}
		d.cur = FullSwing{}
		// This falling edge also opens the next block phase.
		d.phase = InBlockPhase
	}
	d.start = ev.Timestamp
}

// Drain processes every queued edge in arrival order and returns the count.
func (d *Decoder) Drain(q *ring.Queue[capture.EdgeEvent]) int {
	n := 0
	for {
		ev, ok := q.TryPop()
		if !ok {
			return n
		}
		d.Process(ev)
		n++
	}
}

// Phase returns the current decoder state.
func (d *Decoder) Phase() Phase {
	return d.phase
}

// PhaseStart returns the timestamp that opened the current phase.
func (d *Decoder) PhaseStart() tick.Tick {
	return d.start
}

// Ignored returns the number of edges discarded as out of sequence.
func (d *Decoder) Ignored() uint32 {
	return d.ignored
}

// Swings returns the number of swings queued since start.
func (d *Decoder) Swings() uint32 {
	return d.swings
}
