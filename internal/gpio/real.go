//go:build linux

package gpio

import (
	"fmt"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"

	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/capture"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/tick"
)

// RealUnit is a capture unit on a GPIO line. The kernel timestamps every edge
// on CLOCK_MONOTONIC; that timestamp is the latched value and the host clock
// is the live counter, so the handler's latency correction removes the
// delivery delay of the event handler goroutine.
type RealUnit struct {
	chip   string
	offset int
	clk    *tick.HostClock

	line    *gpiocdev.Line
	armed   atomic.Uint32
	latched atomic.Uint32
}

// NewRealUnit returns an unstarted unit for offset on chip.
func NewRealUnit(chip string, offset int, clk *tick.HostClock) *RealUnit {
	return &RealUnit{chip: chip, offset: offset, clk: clk}
}

// Start requests the line and calls isr for every edge matching the armed
// kind. isr runs on the gpiocdev event goroutine.
func (u *RealUnit) Start(isr func()) error {
	handler := func(evt gpiocdev.LineEvent) {
		kind := capture.Rising
		if evt.Type == gpiocdev.LineEventFallingEdge {
			kind = capture.Falling
		}
		if uint32(kind) != u.armed.Load() {
			return
		}
		u.latched.Store(uint32(u.clk.FromDuration(evt.Timestamp)))
		isr()
	}

	line, err := gpiocdev.RequestLine(u.chip, u.offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithBothEdges,
		gpiocdev.WithConsumer("pendulum-timer"),
		gpiocdev.WithEventHandler(handler))
	if err != nil {
		return fmt.Errorf("request line %s:%d: %w", u.chip, u.offset, err)
	}
	u.line = line
	return nil
}

// ArmNextEdge selects the edge kind reported to the handler.
func (u *RealUnit) ArmNextEdge(kind capture.EdgeKind) {
	u.armed.Store(uint32(kind))
}

// ReadLatched returns the tick time of the last accepted edge.
func (u *RealUnit) ReadLatched() uint32 {
	return u.latched.Load()
}

// ReadLive returns the host clock now.
func (u *RealUnit) ReadLive() uint32 {
	return uint32(u.clk.Now())
}

// CounterBits reports the full 32-bit host timebase.
func (u *RealUnit) CounterBits() uint {
	return 32
}

// Close releases the line.
// Reconfigures it to input with pull-down (matching Pi boot defaults) before
// closing so attached hardware sees a clean state on shutdown/reboot.
func (u *RealUnit) Close() error {
	if u.line == nil {
		return nil
	}
	var errs []error
	if err := u.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure line %d: %w", u.offset, err))
	}
	if err := u.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close line %d: %w", u.offset, err))
	}
	u.line = nil

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
