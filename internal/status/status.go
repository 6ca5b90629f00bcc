// Package status provides a thread-safe status tracker for the pendulum-timer
// daemon. It is read by the HTTP handlers and the MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/config"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/core"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/emitter"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs       int64
	HeartbeatMs  int64
	NominalHz    uint32
	Source       string // "gpio" or "sim"
	Broker       string
	HTTPAddr     string
	SerialPort   string
	TunablesFile string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Stats         core.Stats
	Tunables      config.Tunables
	LastSample    emitter.Sample
	HasSample     bool
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Tunables:  *config.Default(),
		},
	}
}

// Update records the pipeline counters and the tunables in effect.
// Called from runLoop on every poll.
func (t *Tracker) Update(stats core.Stats, tun config.Tunables) {
	t.mu.Lock()
	t.snap.Stats = stats
	t.snap.Tunables = tun
	t.mu.Unlock()
}

// RecordSample keeps the most recent emitted sample.
func (t *Tracker) RecordSample(s emitter.Sample) {
	t.mu.Lock()
	t.snap.LastSample = s
	t.snap.HasSample = true
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
