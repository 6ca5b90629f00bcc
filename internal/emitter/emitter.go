// Package emitter joins completed swings with the current correction into
// the sample stream handed to transports.
package emitter

import (
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/discipline"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/irq"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/ring"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/swing"
)

// Sample is one emitted swing.
type Sample struct {
	Seq   uint64
	Units Units

	Tick      uint32
	Tock      uint32
	TickBlock uint32
	TockBlock uint32

	CorrInstPpm  int32
	CorrBlendPpm int32
	GpsStatus    uint8
	State        discipline.State
	Dropped      uint32
}

// Emitter converts swings to samples. Seq increases by one per swing.
type Emitter struct {
	nominal uint32
	dropped irq.Counter
	seq     uint64
}

// New returns an Emitter reporting drops from dropped.
func New(nominalHz uint32, dropped irq.Counter) *Emitter {
	return &Emitter{nominal: nominalHz, dropped: dropped}
}

// Emit converts one swing using the active denominator of corr.
func (e *Emitter) Emit(fs swing.FullSwing, corr discipline.Correction, state discipline.State, units Units) Sample {
	denom := corr.ActiveDenominator
	if denom == 0 {
		denom = e.nominal
	}
	e.seq++
	s := Sample{
		Seq:          e.seq,
		Units:        units,
		Tick:         units.Convert(uint32(fs.Tick), denom),
		Tock:         units.Convert(uint32(fs.Tock), denom),
		TickBlock:    units.Convert(uint32(fs.TickBlock), denom),
		TockBlock:    units.Convert(uint32(fs.TockBlock), denom),
		CorrInstPpm:  corr.InstPpm,
		CorrBlendPpm: corr.BlendPpm,
		GpsStatus:    state.WireStatus(),
		State:        state,
	}
	if e.dropped != nil {
		s.Dropped = e.dropped.Load()
	}
	return s
}

// Drain emits every queued swing in completion order.
func (e *Emitter) Drain(q *ring.Queue[swing.FullSwing], corr discipline.Correction, state discipline.State, units Units) []Sample {
	var out []Sample
	for {
		fs, ok := q.TryPop()
		if !ok {
			return out
		}
		out = append(out, e.Emit(fs, corr, state, units))
	}
}

// Seq returns the sequence number of the last emitted sample.
func (e *Emitter) Seq() uint64 {
	return e.seq
}
