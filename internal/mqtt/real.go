package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/emitter"
)

// BufferSize is the number of messages held while the broker is unreachable.
// About ten minutes of samples at a one-second pendulum.
const BufferSize = 600

// DefaultClientID identifies the daemon to the broker.
const DefaultClientID = "pendulum-timer"

// ConnectTimeout bounds the wait for the first broker connection.
const ConnectTimeout = 10 * time.Second

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client

	mu       sync.Mutex
	buf      *ringBuffer
	connects int
	now      func() time.Time
}

// NewRealPublisher creates a publisher for the given broker. If the broker
// does not answer within ConnectTimeout the publisher is still returned and
// buffers until the background retry connects.
func NewRealPublisher(broker, clientID string) (*RealPublisher, error) {
	if clientID == "" {
		clientID = DefaultClientID
	}
	p := newPublisher(nil)
	p.client = paho.NewClient(p.clientOptions(broker, clientID))

	if err := p.connect(ConnectTimeout); err != nil {
		return nil, err
	}
	return p, nil
}

// connect waits up to timeout for the first connection. A broker that is
// still unreachable is not an error: the client keeps retrying and messages
// buffer until onConnect replays them. A connect that fails outright stops
// the client.
func (p *RealPublisher) connect(timeout time.Duration) error {
	token := p.client.Connect()
	if !token.WaitTimeout(timeout) {
		log.Printf("mqtt: broker not reachable after %v, buffering until connected", timeout)
		return nil
	}
	if err := token.Error(); err != nil {
		p.client.Disconnect(0)
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

func newPublisher(client paho.Client) *RealPublisher {
	return &RealPublisher{
		client: client,
		buf:    newRingBuffer(BufferSize),
		now:    time.Now,
	}
}

func (p *RealPublisher) clientOptions(broker, clientID string) *paho.ClientOptions {
	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: p.now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	return paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)
}

// onConnect replays buffered messages, then announces a reconnect after
// the first connection.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	p.connects++
	reconnect := p.connects > 1
	pending := p.buf.drainAll()
	p.mu.Unlock()

	if len(pending) > 0 {
		log.Printf("mqtt: connected, replaying %d buffered messages", len(pending))
	}
	for i, m := range pending {
		token := c.Publish(m.topic, m.qos, m.retained, m.payload)
		if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
			log.Printf("mqtt: replay stopped after %d messages", i)
			p.requeue(pending[i:])
			return
		}
	}

	if reconnect {
		payload, err := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
		if err != nil {
			return
		}
		c.Publish(TopicSystem, 1, false, payload)
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	log.Printf("mqtt: connection lost: %v", err)
}

func (p *RealPublisher) requeue(msgs []bufferedMsg) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		p.buf.push(m)
	}
}

// publish sends now when connected, otherwise buffers for replay.
func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	msg := bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained}
	if !p.client.IsConnectionOpen() {
		p.requeue([]bufferedMsg{msg})
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		p.requeue([]bufferedMsg{msg})
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		p.requeue([]bufferedMsg{msg})
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishSample sends a swing sample to the MQTT broker.
func (p *RealPublisher) PublishSample(s emitter.Sample) error {
	payload, err := FormatSamplePayload(s)
	if err != nil {
		return fmt.Errorf("format sample payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(TopicSamples, 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	if err := p.publish(TopicSystem, 1, event.Retained, payload); err != nil {
		return fmt.Errorf("system: %w", err)
	}
	return nil
}

// IsConnected reports whether the client currently has an open connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for replay.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	if n := p.Buffered(); n > 0 {
		log.Printf("mqtt: closing with %d unsent messages", n)
	}
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
