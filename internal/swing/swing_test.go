package swing

import (
	"testing"

	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/capture"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/irq"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/ring"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/tick"
)

func fall(ts tick.Tick) capture.EdgeEvent {
	return capture.EdgeEvent{Timestamp: ts, Channel: capture.IR, Kind: capture.Falling}
}

func rise(ts tick.Tick) capture.EdgeEvent {
	return capture.EdgeEvent{Timestamp: ts, Channel: capture.IR, Kind: capture.Rising}
}

func newDecoder(t *testing.T) (*Decoder, *ring.Queue[FullSwing], *irq.AtomicCounter) {
	t.Helper()
	dropped := &irq.AtomicCounter{}
	out := ring.New[FullSwing](capture.SwingQueueSize, dropped)
	return NewDecoder(out), out, dropped
}

func TestDecodeOneSwing(t *testing.T) {
	d, out, _ := newDecoder(t)

	for _, ev := range []capture.EdgeEvent{fall(0), rise(10), fall(30), rise(45), fall(70)} {
		d.Process(ev)
	}

	if out.Len() != 1 {
		t.Fatalf("expected 1 swing, got %d", out.Len())
	}
	got, _ := out.TryPop()
	want := FullSwing{TickBlock: 10, Tick: 20, TockBlock: 15, Tock: 25}
	if got != want {
		t.Errorf("swing = %+v, want %+v", got, want)
	}
	if d.Phase() != InBlockPhase {
		t.Errorf("phase = %v, want %v", d.Phase(), InBlockPhase)
	}
	if d.PhaseStart() != 70 {
		t.Errorf("phase start = %d, want 70", d.PhaseStart())
	}
}

func TestDecodeConsecutiveSwings(t *testing.T) {
	d, out, _ := newDecoder(t)

	edges := []capture.EdgeEvent{
		fall(0), rise(10), fall(30), rise(45), fall(70),
		rise(81), fall(102), rise(118), fall(144),
	}
	for _, ev := range edges {
		d.Process(ev)
	}

	want := []FullSwing{
		{TickBlock: 10, Tick: 20, TockBlock: 15, Tock: 25},
		{TickBlock: 11, Tick: 21, TockBlock: 16, Tock: 26},
	}
	if out.Len() != len(want) {
		t.Fatalf("expected %d swings, got %d", len(want), out.Len())
	}
	for i, w := range want {
		got, _ := out.TryPop()
		if got != w {
			t.Errorf("swing %d = %+v, want %+v", i, got, w)
		}
	}
	if d.Swings() != 2 {
		t.Errorf("Swings() = %d, want 2", d.Swings())
	}
}

func TestDecodeWaitsForFirstFalling(t *testing.T) {
	d, out, _ := newDecoder(t)

	d.Process(rise(5))
	if d.Phase() != WaitFirstFallingEdge {
		t.Fatalf("rising edge should not start decoding, phase = %v", d.Phase())
	}
	for _, ev := range []capture.EdgeEvent{fall(100), rise(110), fall(130), rise(145), fall(170)} {
		d.Process(ev)
	}
	got, ok := out.TryPop()
	if !ok {
		t.Fatal("expected a swing")
	}
	if got.TickBlock != 10 || got.Tock != 25 {
		t.Errorf("unexpected swing %+v", got)
	}
	if d.Ignored() != 1 {
		t.Errorf("Ignored() = %d, want 1", d.Ignored())
	}
}

func TestDecodeIgnoresGlitch(t *testing.T) {
	tests := []struct {
		name  string
		edges []capture.EdgeEvent
		want  FullSwing
	}{
		{
			name:  "extra falling in block phase",
			edges: []capture.EdgeEvent{fall(0), fall(5), rise(10), fall(30), rise(45), fall(70)},
			want:  FullSwing{TickBlock: 10, Tick: 20, TockBlock: 15, Tock: 25},
		},
		{
			name:  "extra rising in tick phase",
			edges: []capture.EdgeEvent{fall(0), rise(10), rise(20), fall(30), rise(45), fall(70)},
			want:  FullSwing{TickBlock: 10, Tick: 20, TockBlock: 15, Tock: 25},
		},
		{
			name:  "PPS event on IR path",
			edges: []capture.EdgeEvent{fall(0), {Timestamp: 3, Channel: capture.PPS, Kind: capture.Rising}, rise(10), fall(30), rise(45), fall(70)},
			want:  FullSwing{TickBlock: 10, Tick: 20, TockBlock: 15, Tock: 25},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, out, _ := newDecoder(t)
			for _, ev := range tt.edges {
				d.Process(ev)
			}
			got, ok := out.TryPop()
			if !ok {
				t.Fatal("expected a swing")
			}
			if got != tt.want {
				t.Errorf("swing = %+v, want %+v", got, tt.want)
			}
			if d.Ignored() != 1 {
				t.Errorf("Ignored() = %d, want 1", d.Ignored())
			}
		})
	}
}

func TestDecodeAcrossTickWrap(t *testing.T) {
	d, out, _ := newDecoder(t)
	base := tick.Tick(0xFFFFFFF0)

	for _, ev := range []capture.EdgeEvent{fall(base), rise(base + 10), fall(base + 30), rise(base + 45), fall(base + 70)} {
		d.Process(ev)
	}

	got, _ := out.TryPop()
	want := FullSwing{TickBlock: 10, Tick: 20, TockBlock: 15, Tock: 25}
	if got != want {
		t.Errorf("swing = %+v, want %+v", got, want)
	}
}

func TestDrainConsumesQueueInOrder(t *testing.T) {
	d, out, _ := newDecoder(t)
	in := ring.New[capture.EdgeEvent](capture.IRQueueSize, nil)
	for _, ev := range []capture.EdgeEvent{fall(0), rise(10), fall(30), rise(45), fall(70)} {
		in.TryPush(ev)
	}

	if n := d.Drain(in); n != 5 {
		t.Errorf("Drain = %d, want 5", n)
	}
	if in.Len() != 0 {
		t.Errorf("input queue not drained: %d left", in.Len())
	}
	if out.Len() != 1 {
		t.Errorf("expected 1 swing, got %d", out.Len())
	}
}

func TestSwingRingOverflowCountsDrop(t *testing.T) {
	d, out, dropped := newDecoder(t)

	ts := tick.Tick(0)
	d.Process(fall(ts))
	for i := 0; i < out.Cap()+1; i++ {
		for _, step := range []struct {
			dt   tick.Tick
			kind capture.EdgeKind
		}{{10, capture.Rising}, {20, capture.Falling}, {15, capture.Rising}, {25, capture.Falling}} {
			ts += step.dt
			d.Process(capture.EdgeEvent{Timestamp: ts, Channel: capture.IR, Kind: step.kind})
		}
	}

	if dropped.Load() != 1 {
		t.Errorf("dropped = %d, want 1", dropped.Load())
	}
	if out.Len() != out.Cap() {
		t.Errorf("len = %d, want %d", out.Len(), out.Cap())
	}
	if d.Phase() != InBlockPhase {
		t.Errorf("decoder should keep running after a drop, phase = %v", d.Phase())
	}
}

func TestPhaseString(t *testing.T) {
	if InTockPhase.String() != "TOCK" {
		t.Errorf("got %q", InTockPhase.String())
	}
	if Phase(42).String() != "UNKNOWN" {
		t.Errorf("got %q", Phase(42).String())
	}
}
