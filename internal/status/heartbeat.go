package status

import "time"

// Heartbeat decides when the periodic HEARTBEAT event is due.
type Heartbeat struct {
	interval time.Duration
	last     time.Time
}

// NewHeartbeat starts the interval at start. An interval <= 0 disables it.
func NewHeartbeat(start time.Time, interval time.Duration) *Heartbeat {
	return &Heartbeat{interval: interval, last: start}
}

// Due reports whether the interval has elapsed since the last heartbeat
// (or start) and, if so, restarts the interval at now.
func (h *Heartbeat) Due(now time.Time) bool {
	if h.interval <= 0 {
		return false
	}
	if now.Sub(h.last) < h.interval {
		return false
	}
	h.last = now
	return true
}

// Interval returns the configured interval.
func (h *Heartbeat) Interval() time.Duration {
	return h.interval
}
