// Package discipline turns PPS timestamps into a filtered estimate of the
// oscillator frequency, a lock state, and correction factors.
//
// The pipeline per pulse: clamp the raw interval, Hampel filter, optional
// median-of-3, fast EWMA on the filtered interval, slow EWMA on the fast
// output, drift/jitter metrics, lock state machine, Q16 blend of fast and
// slow into the active denominator.
package discipline

import (
	"log"
	"math"

	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/capture"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/ring"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/tick"
)

// CorrScale converts a correction fraction to the integer ppm carried on the wire.
const CorrScale = 1_000_000

// BlendOne is the Q16 weight selecting the fast estimate exclusively.
const BlendOne = 1 << 16

// Estimate holds the interval estimates of one GPS second, in ticks.
type Estimate struct {
	Instantaneous uint32
	Fast          uint32
	Slow          uint32
}

// Metrics are the per-pulse quality measures.
type Metrics struct {
	RPpm   uint32 // |fast-slow|/slow
	JPpm   uint32 // MAD/slow
	MAD    uint32 // ticks
	Within bool   // |inst-slow|/slow <= CorrectionJumpThresh
}

// Correction is the output read by the sample emitter.
type Correction struct {
	InstPpm           int32
	BlendPpm          int32
	ActiveDenominator uint32
	BlendWeight       uint32 // Q16, 0 = slow only, BlendOne = fast only
}

// Snapshot is a copy of the engine's state.
type Snapshot struct {
	State      State
	Estimate   Estimate
	Metrics    Metrics
	Correction Correction
	LockStable uint8
	UnlockCtr  uint8
	Pulses     uint32
	LastPulse  tick.Tick
	HasPulse   bool
	NominalHz  uint32
	HampelFill uint8
}

// Engine is the PPS discipline state machine. It is owned by the main loop
// and is not safe for concurrent use.
type Engine struct {
	nominal uint32
	params  ParamSource

	state   State
	hasRef  bool
	last    tick.Tick
	pulses  uint32
	inst    uint32
	fast    int64
	slow    int64
	hampel  Hampel
	m3      [2]uint32
	m3n     uint8
	metrics Metrics

	lockStable uint8
	unlockCtr  uint8
	corr       Correction

	// OnStateChange, if set, is called after every transition.
	OnStateChange func(from, to State)
}

// NewEngine returns an engine in NoPps with both estimates seeded at the
// nominal frequency.
func NewEngine(nominalHz uint32, params ParamSource) *Engine {
	if nominalHz == 0 {
		nominalHz = tick.DefaultNominalHz
	}
	e := &Engine{nominal: nominalHz, params: params}
	e.Reset()
	return e
}

// Reset returns the engine to NoPps and reseeds the estimates.
func (e *Engine) Reset() {
	cb := e.OnStateChange
	*e = Engine{nominal: e.nominal, params: e.params, OnStateChange: cb}
	e.inst = e.nominal
	e.fast = int64(e.nominal)
	e.slow = int64(e.nominal)
	e.corr = Correction{ActiveDenominator: e.nominal}
}

// Poll runs the staleness watchdog against now and then processes every
// queued PPS edge in order.
func (e *Engine) Poll(now tick.Tick, q *ring.Queue[capture.EdgeEvent]) int {
	p := e.params.DisciplineParams()
	if e.hasRef && tick.Since(now, e.last) > e.holdoverTicks(p) {
		e.setState(Holdover)
	}

	n := 0
	for {
		ev, ok := q.TryPop()
		if !ok {
			return n
		}
		e.OnPulse(ev.Timestamp)
		n++
	}
}

// OnPulse advances the pipeline by one PPS edge and returns the updated
// correction. The first pulse after a reset only records the reference.
func (e *Engine) OnPulse(ts tick.Tick) Correction {
	if !e.hasRef {
		e.hasRef = true
		e.last = ts
		e.pulses++
		if e.state == NoPps {
			e.setState(Acquiring)
		}
		return e.corr
	}

	p := e.params.DisciplineParams()
	elapsed := tick.Since(ts, e.last)
	e.last = ts
	e.pulses++

	raw := e.clamp(uint32(elapsed))
	e.inst = raw

	clean := e.hampel.Filter(raw, p.HampelWindow, p.HampelKx100)
	if p.Median3 {
		d0 := clean
		if e.m3n >= 2 {
			clean = median3(d0, e.m3[0], e.m3[1])
		} else {
			e.m3n++
		}
		e.m3[1], e.m3[0] = e.m3[0], d0
	} else {
		e.m3n = 0
	}

	e.fast = ewma(e.fast, int64(clean), shiftOr(p.FastShift, DefaultFastShift))
	e.slow = ewma(e.slow, e.fast, shiftOr(p.SlowShift, DefaultSlowShift))

	slow := float64(e.slow)
	e.metrics = Metrics{
		RPpm:   ppm(math.Abs(float64(e.fast-e.slow)) / slow),
		JPpm:   ppm(float64(e.hampel.MAD()) / slow),
		MAD:    e.hampel.MAD(),
		Within: math.Abs(float64(int64(raw)-e.slow))/slow <= p.CorrectionJumpThresh,
	}

	e.advance(e.metrics, elapsed > e.holdoverTicks(p), p)

	w := e.blendWeight(e.metrics.RPpm, p)
	active := (e.slow*int64(BlendOne-w) + e.fast*int64(w)) >> 16
	e.corr = Correction{
		InstPpm:           corrPpm(e.nominal, uint64(raw)),
		BlendPpm:          corrPpm(e.nominal, uint64(active)),
		ActiveDenominator: uint32(active),
		BlendWeight:       w,
	}
	return e.corr
}

// advance runs the lock state machine for one pulse.
func (e *Engine) advance(m Metrics, stale bool, p Params) {
	next := e.state
	if stale {
		next = Holdover
	}
	if next == NoPps {
		next = Acquiring
	}

	lockReady := m.RPpm <= p.LockRppm && m.JPpm <= p.LockJppm && m.Within
	if lockReady {
		e.lockStable = satInc(e.lockStable)
	} else {
		e.lockStable = 0
	}
	if e.lockStable >= LockStableCount {
		next = Locked
	}

	unlockR := m.RPpm >= p.UnlockRppm
	unlockJ := m.JPpm >= p.UnlockJppm
	if unlockR || unlockJ {
		e.unlockCtr = satInc(e.unlockCtr)
	} else {
		e.unlockCtr = 0
	}
	count := p.UnlockCount
	if count == 0 {
		count = DefaultUnlockCount
	}
	if next == Locked && e.unlockCtr >= count {
		if unlockJ {
			next = BadJitter
		} else {
			next = Acquiring
		}
	}

	e.setState(next)
}

// blendWeight interpolates R between the blend thresholds into a Q16 weight.
func (e *Engine) blendWeight(r uint32, p Params) uint32 {
	switch e.state {
	case Locked:
		return 0
	case Acquiring:
		return BlendOne
	}
	lo, hi := p.BlendLoPpm, p.BlendHiPpm
	switch {
	case r <= lo:
		return 0
	case r >= hi || hi <= lo:
		return BlendOne
	}
	return uint32(uint64(r-lo) << 16 / uint64(hi-lo))
}

func (e *Engine) clamp(d uint32) uint32 {
	lo := e.nominal / 4
	hi := uint32(min(uint64(e.nominal)*4, math.MaxUint32))
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

func (e *Engine) holdoverTicks(p Params) tick.Tick {
	ms := p.HoldoverMs
	if ms == 0 {
		ms = DefaultHoldoverMs
	}
	return tick.FromMillis(ms, e.nominal)
}

func (e *Engine) setState(s State) {
	if s == e.state {
		return
	}
	from := e.state
	e.state = s
	log.Printf("discipline: state %s -> %s (R=%dppm J=%dppm)", from, s, e.metrics.RPpm, e.metrics.JPpm)
	if e.OnStateChange != nil {
		e.OnStateChange(from, s)
	}
}

// State returns the current discipline state.
func (e *Engine) State() State {
	return e.state
}

// Correction returns the latest correction.
func (e *Engine) Correction() Correction {
	return e.corr
}

// Snapshot returns a copy of the engine state.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		State: e.state,
		Estimate: Estimate{
			Instantaneous: e.inst,
			Fast:          uint32(e.fast),
			Slow:          uint32(e.slow),
		},
		Metrics:    e.metrics,
		Correction: e.corr,
		LockStable: e.lockStable,
		UnlockCtr:  e.unlockCtr,
		Pulses:     e.pulses,
		LastPulse:  e.last,
		HasPulse:   e.hasRef,
		NominalHz:  e.nominal,
		HampelFill: e.hampel.Filled(),
	}
}

// ewma moves acc toward target by (target-acc)>>shift. When the shifted
// step truncates to zero the estimate still moves one tick, so a constant
// input converges exactly instead of stalling within 2^shift of it.
func ewma(acc, target int64, shift uint8) int64 {
	err := target - acc
	step := err >> shift
	if step == 0 && err != 0 {
		if err > 0 {
			step = 1
		} else {
			step = -1
		}
	}
	return acc + step
}

func shiftOr(s, def uint8) uint8 {
	if s == 0 {
		return def
	}
	return s
}

func ppm(frac float64) uint32 {
	return uint32(math.Round(math.Abs(frac) * 1e6))
}

func corrPpm(nominal uint32, denom uint64) int32 {
	if denom == 0 {
		return 0
	}
	f := float64(nominal) / float64(denom)
	return int32(math.Round((f - 1) * CorrScale))
}

func satInc(v uint8) uint8 {
	if v == math.MaxUint8 {
		return v
	}
	return v + 1
}
