package emitter

import (
	"testing"

	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/discipline"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/irq"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/ring"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/swing"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/tick"
)

const nominal = 16_000_000

func TestConvert(t *testing.T) {
	tests := []struct {
		name  string
		units Units
		ticks uint32
		denom uint32
		want  uint32
	}{
		{"raw", RawCycles, 12345, nominal, 12345},
		{"us nominal", AdjustedUs, 16_000, nominal, 1000},
		{"ns nominal", AdjustedNs, 16, nominal, 1000},
		{"ms nominal", AdjustedMs, 16_000_000, nominal, 1000},
		{"ms truncates via us", AdjustedMs, 15_999, nominal, 0},
		{"us corrected fast oscillator", AdjustedUs, 16_000_160, 16_000_160, 1_000_000},
		{"ns large value", AdjustedNs, 32_000_000, nominal, 2_000_000_000},
		{"zero denom passes through", AdjustedUs, 77, 0, 77},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.units.Convert(tt.ticks, tt.denom); got != tt.want {
				t.Errorf("Convert(%d, %d) = %d, want %d", tt.ticks, tt.denom, got, tt.want)
			}
		})
	}
}

func TestParseUnits(t *testing.T) {
	for _, name := range UnitNames() {
		u, err := ParseUnits(name)
		if err != nil {
			t.Fatalf("ParseUnits(%q): %v", name, err)
		}
		if u.String() != name {
			t.Errorf("round trip %q -> %q", name, u.String())
		}
	}
	if u, err := ParseUnits("ADJUSTED_US"); err != nil || u != AdjustedUs {
		t.Errorf("case-insensitive parse failed: %v %v", u, err)
	}
	if _, err := ParseUnits("furlongs"); err == nil {
		t.Error("expected error for unknown units")
	}
}

func TestUnitsText(t *testing.T) {
	var u Units
	if err := u.UnmarshalText([]byte("adjusted_ns")); err != nil || u != AdjustedNs {
		t.Fatalf("UnmarshalText: %v %v", u, err)
	}
	b, err := AdjustedMs.MarshalText()
	if err != nil || string(b) != "adjusted_ms" {
		t.Errorf("MarshalText = %q, %v", b, err)
	}
	if _, err := Units(9).MarshalText(); err == nil {
		t.Error("expected error for invalid units")
	}
}

func TestDrainPreservesCountAndOrder(t *testing.T) {
	var dropped irq.AtomicCounter
	q := ring.New[swing.FullSwing](64, &dropped)
	e := New(nominal, &dropped)

	var in []swing.FullSwing
	for i := 1; i <= 20; i++ {
		fs := swing.FullSwing{
			TickBlock: tick.Tick(i),
			Tick:      tick.Tick(100 * i),
			TockBlock: tick.Tick(i + 1),
			Tock:      tick.Tick(100*i + 1),
		}
		in = append(in, fs)
		q.TryPush(fs)
	}

	corr := discipline.Correction{ActiveDenominator: nominal}
	out := e.Drain(q, corr, discipline.Locked, RawCycles)

	if len(out) != len(in) {
		t.Fatalf("got %d samples, want %d", len(out), len(in))
	}
	for i, s := range out {
		if s.Seq != uint64(i+1) {
			t.Errorf("sample %d seq = %d", i, s.Seq)
		}
		if s.Tick != uint32(in[i].Tick) || s.Tock != uint32(in[i].Tock) ||
			s.TickBlock != uint32(in[i].TickBlock) || s.TockBlock != uint32(in[i].TockBlock) {
			t.Errorf("sample %d = %+v, want %+v", i, s, in[i])
		}
	}
	if q.Len() != 0 {
		t.Error("queue not drained")
	}
	if more := e.Drain(q, corr, discipline.Locked, RawCycles); len(more) != 0 {
		t.Errorf("empty drain returned %d samples", len(more))
	}
}

func TestEmitAttachesCorrectionState(t *testing.T) {
	var dropped irq.AtomicCounter
	dropped.Inc()
	dropped.Inc()
	e := New(nominal, &dropped)

	corr := discipline.Correction{InstPpm: -21, BlendPpm: -20, ActiveDenominator: 16_000_320}
	fs := swing.FullSwing{TickBlock: 16_000_320, Tick: 8_000_160, TockBlock: 0, Tock: 32_000_640}
	s := e.Emit(fs, corr, discipline.Holdover, AdjustedUs)

	if s.TickBlock != 1_000_000 || s.Tick != 500_000 || s.Tock != 2_000_000 || s.TockBlock != 0 {
		t.Errorf("converted durations = %+v", s)
	}
	if s.CorrInstPpm != -21 || s.CorrBlendPpm != -20 {
		t.Errorf("corrections = %d/%d", s.CorrInstPpm, s.CorrBlendPpm)
	}
	if s.GpsStatus != discipline.WireAcquiring || s.State != discipline.Holdover {
		t.Errorf("status = %d state = %v", s.GpsStatus, s.State)
	}
	if s.Dropped != 2 {
		t.Errorf("dropped = %d, want 2", s.Dropped)
	}
	if s.Units != AdjustedUs {
		t.Errorf("units = %v", s.Units)
	}
}

func TestEmitZeroDenominatorUsesNominal(t *testing.T) {
	e := New(nominal, nil)
	s := e.Emit(swing.FullSwing{Tick: 16_000}, discipline.Correction{}, discipline.NoPps, AdjustedUs)
	if s.Tick != 1000 {
		t.Errorf("tick = %d, want 1000", s.Tick)
	}
	if s.GpsStatus != discipline.WireNoPps {
		t.Errorf("gps status = %d", s.GpsStatus)
	}
}
