package internal

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/capture"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/config"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/core"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/discipline"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/emitter"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/gpio"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/mqtt"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/protocol"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/status"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/tick"
)

const (
	nominalHz = 16000000
	trueHz    = 16000320 // +20 ppm
	latency   = 40
)

// manualClock is set to the interrupt time before each capture.
type manualClock struct{ now tick.Tick }

func (m *manualClock) Now() tick.Tick { return m.now }

type edge struct {
	at  uint64 // true-frequency cycles
	pps bool
}

// script lays out PPS pulses and pendulum edges over d, in time order.
// Swings are 25 ms blocked then 975 ms clear, starting at 100 ms; pulses
// start at 500 ms.
func script(from, d time.Duration) []edge {
	cyc := func(t time.Duration) uint64 { return uint64(math.Round(t.Seconds() * trueHz)) }
	var edges []edge
	for t := 500 * time.Millisecond; t < from+d; t += time.Second {
		if t >= from {
			edges = append(edges, edge{at: cyc(t), pps: true})
		}
	}
	segments := []time.Duration{25 * time.Millisecond, 975 * time.Millisecond}
	i := 0
	for t := 100 * time.Millisecond; t < from+d; t += segments[i%2] {
		if t >= from {
			edges = append(edges, edge{at: cyc(t)})
		}
		i++
	}
	sort.Slice(edges, func(a, b int) bool { return edges[a].at < edges[b].at })
	return edges
}

type rig struct {
	clock   *manualClock
	store   *config.Store
	core    *core.Core
	ir, pps *gpio.FakeUnit
	irISR   *capture.Handler
	ppsISR  *capture.Handler
}

func newRig() *rig {
	r := &rig{
		clock: &manualClock{},
		store: config.NewStore(config.Default(), ""),
		ir:    gpio.NewFakeUnit(16),
		pps:   gpio.NewFakeUnit(16),
	}
	r.core = core.New(r.clock, nominalHz, r.store)
	r.irISR = capture.NewHandler(capture.IR, r.ir, r.clock, r.core.Bank.IR, capture.Falling)
	r.ppsISR = capture.NewHandler(capture.PPS, r.pps, r.clock, r.core.Bank.PPS, capture.Rising)
	return r
}

// play delivers each edge through its capture unit and polls after each one.
func (r *rig) play(edges []edge) []emitter.Sample {
	var out []emitter.Sample
	for _, e := range edges {
		unit, isr := r.ir, r.irISR
		if e.pps {
			unit, isr = r.pps, r.ppsISR
		}
		unit.SetLatency(uint32(e.at)&0xFFFF, latency)
		r.clock.now = tick.Tick(e.at + latency)
		isr.OnCapture()
		out = append(out, r.core.Poll()...)
	}
	return out
}

func near(got, want, tol uint32) bool {
	if got > want {
		return got-want <= tol
	}
	return want-got <= tol
}

// TestIntegrationFullFlow drives scripted captures through the core and
// out through every sink: serial lines, MQTT payloads and status JSON.
func TestIntegrationFullFlow(t *testing.T) {
	r := newRig()
	publisher := mqtt.NewFakePublisher()
	tracker := status.NewTracker(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), status.Config{Source: "test"})

	samples := r.play(script(0, 25*time.Second))

	var lines []string
	for _, s := range samples {
		lines = append(lines, protocol.SampleLine(s))
		tracker.RecordSample(s)
		if err := publisher.PublishSample(s); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	tracker.Update(r.core.Stats(), r.store.Tunables())

	if len(samples) < 10 {
		t.Fatalf("expected at least 10 samples, got %d", len(samples))
	}
	if st := r.core.Engine().State(); st != discipline.Locked {
		t.Fatalf("state = %s, want LOCKED", st)
	}

	wantTick := uint32(math.Round(0.975 * trueHz))
	wantBlock := uint32(math.Round(0.025 * trueHz))
	for i, s := range samples {
		if !near(s.Tick, wantTick, 1) || !near(s.Tock, wantTick, 1) {
			t.Errorf("sample %d: tick/tock %d/%d, want %d", i, s.Tick, s.Tock, wantTick)
		}
		if !near(s.TickBlock, wantBlock, 1) || !near(s.TockBlock, wantBlock, 1) {
			t.Errorf("sample %d: blocks %d/%d, want %d", i, s.TickBlock, s.TockBlock, wantBlock)
		}
		if !strings.HasPrefix(lines[i], protocol.Tag16MHz+",") {
			t.Errorf("line %d = %q, want raw cycle tag", i, lines[i])
		}
	}

	// IR alternates edges; PPS stays on rising.
	if len(r.ir.Armed) < 4 || r.ir.Armed[0] != capture.Falling || r.ir.Armed[1] != capture.Rising {
		t.Errorf("IR arming = %v, want alternating from falling", r.ir.Armed)
	}
	for i, k := range r.pps.Armed {
		if k != capture.Rising {
			t.Errorf("PPS arm %d = %v, want rising", i, k)
		}
	}

	// Last MQTT payload
	var payload mqtt.SamplePayload
	if err := json.Unmarshal(publisher.SamplePayloads[len(publisher.SamplePayloads)-1], &payload); err != nil {
		t.Fatalf("unmarshal sample payload: %v", err)
	}
	if payload.Sample.State != "LOCKED" || payload.Sample.Units != "raw_cycles" {
		t.Errorf("payload state/units = %s/%s", payload.Sample.State, payload.Sample.Units)
	}
	if payload.Sample.GpsStatus != discipline.WireLocked {
		t.Errorf("payload gps_status = %d, want %d", payload.Sample.GpsStatus, discipline.WireLocked)
	}

	// Status JSON
	var st status.StatusJSON
	if err := json.Unmarshal(status.FormatJSON(tracker.Snapshot()), &st); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if st.Status.State != "LOCKED" || !st.Status.Locked {
		t.Errorf("status state = %s locked=%v", st.Status.State, st.Status.Locked)
	}
	if st.Status.Pendulum.LastSample == nil {
		t.Fatal("status missing last sample")
	}
	if st.Status.Discipline.Pulses != 25 {
		t.Errorf("pulses = %d, want 25", st.Status.Discipline.Pulses)
	}
	if st.Status.Tunables["dataUnits"] != "raw_cycles" {
		t.Errorf("tunables dataUnits = %q", st.Status.Tunables["dataUnits"])
	}
}

// TestIntegrationUnitsChangeMidStream switches units over the command
// interface and checks the next samples and header follow.
func TestIntegrationUnitsChangeMidStream(t *testing.T) {
	r := newRig()
	cmds := protocol.NewCommands(r.store, r.core)

	before := r.play(script(0, 25*time.Second))
	if len(before) == 0 {
		t.Fatal("no samples before the change")
	}

	resp := cmds.Handle("set dataUnits adjusted_us")
	if !resp.ResendHeader {
		t.Fatalf("set dataUnits should resend the header: %+v", resp)
	}
	if hdr := protocol.HeaderLine(r.store.DataUnits()); !strings.HasPrefix(hdr, protocol.TagHDR+",tick_us,tock_us") {
		t.Errorf("header = %q", hdr)
	}

	after := r.play(script(25*time.Second, 5*time.Second))
	if len(after) == 0 {
		t.Fatal("no samples after the change")
	}
	for i, s := range after {
		if s.Units != emitter.AdjustedUs {
			t.Errorf("sample %d units = %v, want adjusted_us", i, s.Units)
		}
		if s.Seq != before[len(before)-1].Seq+uint64(i)+1 {
			t.Errorf("sample %d seq = %d, sequence should continue", i, s.Seq)
		}
		// Locked output lags the true rate while the slow estimate settles,
		// so allow the 20 ppm oscillator error.
		if !near(s.Tick, 975000, 25) {
			t.Errorf("sample %d tick = %d us, want ~975000", i, s.Tick)
		}
		if !strings.HasPrefix(protocol.SampleLine(s), protocol.TagUSec+",") {
			t.Errorf("sample %d line = %q", i, protocol.SampleLine(s))
		}
	}

	stats := cmds.Handle("stats")
	if len(stats.Lines) != 1 || !strings.Contains(stats.Lines[0], "state=LOCKED") {
		t.Errorf("stats = %q", stats.Lines)
	}
}
