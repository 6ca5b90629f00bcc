// Package core runs one main-loop pass over the capture queues: PPS
// discipline first, then swing decoding, then sample emission.
package core

import (
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/capture"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/discipline"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/emitter"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/ring"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/swing"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/tick"
)

// Settings is the live configuration the core reads on every poll.
type Settings interface {
	discipline.ParamSource
	DataUnits() emitter.Units
}

// Core owns the pipeline state. Capture handlers write to Bank from their
// own context; everything else belongs to the goroutine calling Poll.
type Core struct {
	Bank   *capture.Bank
	Swings *ring.Queue[swing.FullSwing]

	clock    tick.Source
	settings Settings
	decoder  *swing.Decoder
	engine   *discipline.Engine
	emitter  *emitter.Emitter
	polls    uint64

	transitions []Transition
}

// Transition is one discipline state change.
type Transition struct {
	From, To discipline.State
}

// New builds a core reading time from clock.
func New(clock tick.Source, nominalHz uint32, settings Settings) *Core {
	bank := capture.NewBank()
	swings := ring.New[swing.FullSwing](capture.SwingQueueSize, bank.Dropped)
	c := &Core{
		Bank:     bank,
		Swings:   swings,
		clock:    clock,
		settings: settings,
		decoder:  swing.NewDecoder(swings),
		engine:   discipline.NewEngine(nominalHz, settings),
		emitter:  emitter.New(nominalHz, bank.Dropped),
	}
	c.engine.OnStateChange = func(from, to discipline.State) {
		c.transitions = append(c.transitions, Transition{From: from, To: to})
	}
	return c
}

// Poll runs one pass and returns the samples completed since the last one,
// in swing-completion order.
func (c *Core) Poll() []emitter.Sample {
	c.polls++
	c.engine.Poll(c.clock.Now(), c.Bank.PPS)
	c.decoder.Drain(c.Bank.IR)
	return c.emitter.Drain(c.Swings, c.engine.Correction(), c.engine.State(), c.settings.DataUnits())
}

// Transitions returns the state changes since the last call, oldest first.
// A single poll can record several, e.g. holdover and relock after a stall.
func (c *Core) Transitions() []Transition {
	t := c.transitions
	c.transitions = nil
	return t
}

// Engine returns the discipline engine.
func (c *Core) Engine() *discipline.Engine {
	return c.engine
}

// Decoder returns the swing decoder.
func (c *Core) Decoder() *swing.Decoder {
	return c.decoder
}

// Stats is a point-in-time view of the pipeline for status reporting.
type Stats struct {
	Discipline discipline.Snapshot
	Phase      swing.Phase

	Dropped uint32
	Ignored uint32
	Swings  uint32
	Samples uint64
	Polls   uint64

	IRFill    int
	PPSFill   int
	SwingFill int
	IRCap     int
	PPSCap    int
	SwingCap  int
}

// Stats gathers counters and queue high-water marks.
func (c *Core) Stats() Stats {
	return Stats{
		Discipline: c.engine.Snapshot(),
		Phase:      c.decoder.Phase(),
		Dropped:    c.Bank.Dropped.Load(),
		Ignored:    c.decoder.Ignored(),
		Swings:     c.decoder.Swings(),
		Samples:    c.emitter.Seq(),
		Polls:      c.polls,
		IRFill:     c.Bank.IR.HighWater(),
		PPSFill:    c.Bank.PPS.HighWater(),
		SwingFill:  c.Swings.HighWater(),
		IRCap:      c.Bank.IR.Cap(),
		PPSCap:     c.Bank.PPS.Cap(),
		SwingCap:   c.Swings.Cap(),
	}
}

// ResetHighWater clears the queue fill marks reported by Stats.
func (c *Core) ResetHighWater() {
	c.Bank.IR.ResetHighWater()
	c.Bank.PPS.ResetHighWater()
	c.Swings.ResetHighWater()
}
