// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/emitter"
)

// TopicSamples is the MQTT topic for per-swing samples.
const TopicSamples = "pendulum/timer/samples"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "pendulum/timer/system"

// Publisher publishes samples and lifecycle events to MQTT.
type Publisher interface {
	// PublishSample sends one swing sample to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishSample(s emitter.Sample) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SamplePayload is the MQTT message payload for a swing sample.
type SamplePayload struct {
	Sample SampleInner `json:"sample"`
}

// SampleInner mirrors one CSV data line plus its sequence number and state name.
type SampleInner struct {
	Seq          uint64 `json:"seq"`
	Units        string `json:"units"`
	Tick         uint32 `json:"tick"`
	Tock         uint32 `json:"tock"`
	TickBlock    uint32 `json:"tick_block"`
	TockBlock    uint32 `json:"tock_block"`
	CorrInstPpm  int32  `json:"corr_inst_ppm"`
	CorrBlendPpm int32  `json:"corr_blend_ppm"`
	GpsStatus    uint8  `json:"gps_status"`
	State        string `json:"state"`
	Dropped      uint32 `json:"dropped"`
}

// FormatSamplePayload creates the JSON payload for a sample.
func FormatSamplePayload(s emitter.Sample) ([]byte, error) {
	return json.Marshal(SamplePayload{
		Sample: SampleInner{
			Seq:          s.Seq,
			Units:        s.Units.String(),
			Tick:         s.Tick,
			Tock:         s.Tock,
			TickBlock:    s.TickBlock,
			TockBlock:    s.TockBlock,
			CorrInstPpm:  s.CorrInstPpm,
			CorrBlendPpm: s.CorrBlendPpm,
			GpsStatus:    s.GpsStatus,
			State:        s.State.String(),
			Dropped:      s.Dropped,
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
