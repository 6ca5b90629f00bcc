package sim

import (
	"math"
	"math/rand"
	"time"

	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/capture"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/tick"
)

// Config describes the simulated hardware and signals.
type Config struct {
	NominalHz uint32
	// OscPpm is the oscillator's frequency error; positive runs fast.
	OscPpm float64
	// CounterBits is the capture unit counter width.
	CounterBits uint
	// Latency is the capture interrupt latency in cycles.
	Latency uint32

	// Swing segments in true time, in decoder order.
	TickBlock time.Duration
	Tick      time.Duration
	TockBlock time.Duration
	Tock      time.Duration
	// PendulumStart is the first falling edge.
	PendulumStart time.Duration

	// PPS disables the PPS generator when false.
	PPS bool
	// PPSStart is the first pulse.
	PPSStart time.Duration
	// PPSJitter is the standard deviation of pulse placement.
	PPSJitter time.Duration
	// PPSOutages lists seconds (pulse indices) whose pulse is suppressed.
	PPSOutages map[int]bool

	Seed int64
}

// DefaultConfig is a one-second-beat pendulum on a 16 MHz oscillator running
// 20 ppm fast, with a clean PPS.
func DefaultConfig() Config {
	return Config{
		NominalHz:     tick.DefaultNominalHz,
		OscPpm:        20,
		CounterBits:   16,
		Latency:       40,
		TickBlock:     25 * time.Millisecond,
		Tick:          975 * time.Millisecond,
		TockBlock:     25 * time.Millisecond,
		Tock:          975 * time.Millisecond,
		PendulumStart: 100 * time.Millisecond,
		PPS:           true,
		PPSStart:      500 * time.Millisecond,
		Seed:          1,
	}
}

// Bench drives simulated edges into a capture.Bank.
type Bench struct {
	cfg     Config
	hz      float64
	rng     *rand.Rand
	counter *Counter
	clock   *tick.Clock

	ir, pps       *Unit
	irISR, ppsISR *capture.Handler

	// true-time seconds of the next edges
	pendT    float64
	pendIdx  int
	ppsT     float64
	ppsIdx   int
	ppsReady bool
}

// NewBench builds the timer, the clock on top of it and both capture units,
// with handlers pushing into bank. Use Clock as the core's time source.
func NewBench(cfg Config, bank *capture.Bank) *Bench {
	if cfg.NominalHz == 0 {
		cfg.NominalHz = tick.DefaultNominalHz
	}
	counter := NewCounter()
	clock := tick.NewClock(counter)
	counter.OnOverflow(clock.OnOverflow)

	b := &Bench{
		cfg:     cfg,
		hz:      float64(cfg.NominalHz) * (1 + cfg.OscPpm/1e6),
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		counter: counter,
		clock:   clock,
		ir:      NewUnit(counter, cfg.CounterBits, cfg.Latency),
		pps:     NewUnit(counter, cfg.CounterBits, cfg.Latency),
		pendT:   cfg.PendulumStart.Seconds(),
	}
	b.irISR = capture.NewHandler(capture.IR, b.ir, clock, bank.IR, capture.Falling)
	b.ppsISR = capture.NewHandler(capture.PPS, b.pps, clock, bank.PPS, capture.Rising)
	b.ir.Attach(b.irISR.OnCapture)
	b.pps.Attach(b.ppsISR.OnCapture)
	return b
}

// Clock returns the 32-bit timebase extended from the simulated timer.
func (b *Bench) Clock() *tick.Clock { return b.clock }

// Counter returns the simulated timer.
func (b *Bench) Counter() *Counter { return b.counter }

// IR returns the IR capture unit.
func (b *Bench) IR() *Unit { return b.ir }

// PPS returns the PPS capture unit.
func (b *Bench) PPS() *Unit { return b.pps }

// Hz returns the true oscillator frequency.
func (b *Bench) Hz() float64 { return b.hz }

// Elapsed returns simulated true time since start.
func (b *Bench) Elapsed() time.Duration {
	return time.Duration(float64(b.counter.Cycles()) / b.hz * float64(time.Second))
}

// Advance runs simulated time forward by d, delivering every edge that
// falls inside the interval in time order.
func (b *Bench) Advance(d time.Duration) {
	end := b.counter.Cycles() + b.cycles(d.Seconds())
	for {
		pendAt, pendOK := b.nextSwingEdge()
		ppsAt, ppsOK := b.nextPPS()
		if !pendOK && !ppsOK {
			break
		}

		if ppsOK && (!pendOK || ppsAt <= pendAt) {
			if ppsAt > end {
				break
			}
			b.pps.Edge(ppsAt, capture.Rising)
			b.ppsIdx++
			b.ppsReady = false
			continue
		}
		if pendAt > end {
			break
		}
		b.ir.Edge(pendAt, b.pendKind())
		b.pendT += b.segment().Seconds()
		b.pendIdx++
	}
	b.counter.AdvanceTo(end)
}

// AdvanceTicks runs forward by n nominal ticks.
func (b *Bench) AdvanceTicks(n uint64) {
	b.Advance(time.Duration(float64(n) / float64(b.cfg.NominalHz) * float64(time.Second)))
}

// nextSwingEdge returns the cycle of the next IR edge. A pendulum with no
// segment durations never moves.
func (b *Bench) nextSwingEdge() (uint64, bool) {
	if b.cfg.TickBlock+b.cfg.Tick+b.cfg.TockBlock+b.cfg.Tock <= 0 {
		return 0, false
	}
	return b.cycles(b.pendT), true
}

// nextPPS returns the cycle of the next delivered pulse, skipping outages.
func (b *Bench) nextPPS() (uint64, bool) {
	if !b.cfg.PPS {
		return 0, false
	}
	if !b.ppsReady {
		for b.cfg.PPSOutages[b.ppsIdx] {
			b.ppsIdx++
		}
		b.ppsT = b.cfg.PPSStart.Seconds() + float64(b.ppsIdx)
		if b.cfg.PPSJitter > 0 {
			b.ppsT += b.rng.NormFloat64() * b.cfg.PPSJitter.Seconds()
		}
		b.ppsReady = true
	}
	return b.cycles(b.ppsT), true
}

// pendKind is the edge at pendIdx: falling when the beam is blocked,
// rising when it clears.
func (b *Bench) pendKind() capture.EdgeKind {
	if b.pendIdx%2 == 0 {
		return capture.Falling
	}
	return capture.Rising
}

// segment is the duration from edge pendIdx to the next one.
func (b *Bench) segment() time.Duration {
	switch b.pendIdx % 4 {
	case 0:
		return b.cfg.TickBlock
	case 1:
		return b.cfg.Tick
	case 2:
		return b.cfg.TockBlock
	default:
		return b.cfg.Tock
	}
}

func (b *Bench) cycles(seconds float64) uint64 {
	if seconds <= 0 {
		return 0
	}
	return uint64(math.Round(seconds * b.hz))
}

// ExpectedTicks returns the raw tick count a segment of d should measure.
func (b *Bench) ExpectedTicks(d time.Duration) uint32 {
	return uint32(math.Round(d.Seconds() * b.hz))
}
