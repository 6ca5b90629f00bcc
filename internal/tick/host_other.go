//go:build !linux

package tick

import "time"

// HostClock is the timebase on a hosted non-Linux target. There is no GPIO
// capture there, so any monotonic origin will do.
type HostClock struct {
	hz    uint32
	start time.Time
}

// NewHostClock returns a HostClock ticking at hz.
func NewHostClock(hz uint32) *HostClock {
	return &HostClock{hz: hz, start: time.Now()}
}

// Now returns the time since the clock was created, in ticks.
func (h *HostClock) Now() Tick {
	return h.FromDuration(time.Since(h.start))
}

// FromDuration converts a duration to ticks.
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
