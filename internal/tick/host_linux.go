//go:build linux

package tick

import (
	"time"

	"golang.org/x/sys/unix"
)

// HostClock is the timebase on a hosted Linux target: CLOCK_MONOTONIC scaled
// to the nominal oscillator frequency. GPIO edge events from the kernel are
// stamped on the same clock, so FromDuration maps them onto this timebase.
type HostClock struct {
	hz uint32
}

// NewHostClock returns a HostClock ticking at hz.
func NewHostClock(hz uint32) *HostClock {
	return &HostClock{hz: hz}
}

// Now returns the current monotonic time in ticks.
func (h *HostClock) Now() Tick {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// CLOCK_MONOTONIC is always present on Linux; fall back to the runtime clock.
		return h.FromDuration(time.Duration(time.Now().UnixNano()))
	}
	return h.FromDuration(time.Duration(ts.Nano()))
}

// FromDuration converts a CLOCK_MONOTONIC reading to ticks.
func (h *HostClock) FromDuration(d time.Duration) Tick {
	return Tick(scale(uint64(d), h.hz))
}

// Hz returns the tick rate.
func (h *HostClock) Hz() uint32 {
	return h.hz
}

func scale(ns uint64, hz uint32) uint64 {
	sec := ns / uint64(time.Second)
	rem := ns % uint64(time.Second)
	return sec*uint64(hz) + rem*uint64(hz)/uint64(time.Second)
}
