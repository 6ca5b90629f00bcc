package mqtt

import (
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/emitter"
)

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	// Samples contains all swing samples that were published.
	Samples []emitter.Sample

	// SamplePayloads contains the JSON payloads for samples.
	SamplePayloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by PublishSample.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishSample records the sample.
func (f *FakePublisher) PublishSample(s emitter.Sample) error {
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatSamplePayload(s)
	if err != nil {
		return err
	}
	f.Samples = append(f.Samples, s)
	f.SamplePayloads = append(f.SamplePayloads, payload)

	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.Samples = nil
	f.SamplePayloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
