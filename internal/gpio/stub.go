//go:build !linux

package gpio

import (
	"errors"

	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/capture"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/tick"
)

// RealUnit is not available on non-Linux platforms.
type RealUnit struct{}

// NewRealUnit returns a unit whose Start always fails.
func NewRealUnit(chip string, offset int, clk *tick.HostClock) *RealUnit {
	return &RealUnit{}
}

// Start returns an error on non-Linux platforms.
func (u *RealUnit) Start(isr func()) error {
	return errors.New("gpio: not supported on this platform (requires Linux)")
}

// ArmNextEdge is a no-op on non-Linux platforms.
func (u *RealUnit) ArmNextEdge(kind capture.EdgeKind) {}

// ReadLatched is not implemented on non-Linux platforms.
func (u *RealUnit) ReadLatched() uint32 { return 0 }

// ReadLive is not implemented on non-Linux platforms.
func (u *RealUnit) ReadLive() uint32 { return 0 }

// CounterBits reports the full 32-bit width.
func (u *RealUnit) CounterBits() uint { return 32 }

// Close is not implemented on non-Linux platforms.
func (u *RealUnit) Close() error {
	return nil
}
