package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	logger "github.com/sirupsen/logrus"

	"github.com/sweeney/rain-gauge/internal/rain"
)

// ClientID is the MQTT client identifier.
const ClientID = "rain-gauge"

// transport is the slice of the paho client the publisher needs.
type transport interface {
	IsConnected() bool
	send(topic string, qos byte, retained bool, payload []byte) error
}

type pahoTransport struct {
	client paho.Client
}

func (t pahoTransport) IsConnected() bool {
	return t.client.IsConnected()
}

func (t pahoTransport) send(topic string, qos byte, retained bool, payload []byte) error {
	token := t.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	return token.Error()
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the broker is unreachable are held in a ring buffer and replayed in order
// once the client reconnects.
type RealPublisher struct {
	t      transport
	client paho.Client

	mu       sync.Mutex
	buf      *ringBuffer
	flushing bool
}

// NewRealPublisher creates a publisher for the given broker. If the broker
// is not reachable within the connect timeout the publisher is still
// returned; paho keeps retrying in the background.
func NewRealPublisher(broker string, bufferSize int) (*RealPublisher, error) {
	p := &RealPublisher{buf: newRingBuffer(bufferSize)}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     EventOffline,
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) {
			logger.Infof("mqtt: connected to %s", broker)
			p.flush()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warnf("mqtt: connection lost [%v]", err)
		})

	p.client = paho.NewClient(opts)
	p.t = pahoTransport{client: p.client}

	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		logger.Warnf("mqtt: %s not reachable yet, buffering until connected", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func newPublisherWithTransport(t transport, bufferSize int) *RealPublisher {
	return &RealPublisher{t: t, buf: newRingBuffer(bufferSize)}
}

// Publish sends a rollover event to the MQTT broker.
func (p *RealPublisher) Publish(event rain.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 1: a missed rollover report cannot be recomputed by subscribers.
	return p.publish(bufferedMsg{topic: Topic, payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	p.mu.Lock()
	connected := p.t.IsConnected()
	// Keep ordering: while anything is still queued, new messages go behind it.
	if !connected || p.flushing || p.buf.len() > 0 {
		p.buf.push(msg)
		kick := connected && !p.flushing
		p.mu.Unlock()
		if kick {
			go p.flush()
		}
		return nil
	}
	p.mu.Unlock()

	if err := p.t.send(msg.topic, msg.qos, msg.retained, msg.payload); err != nil {
		p.mu.Lock()
		p.buf.push(msg)
		p.mu.Unlock()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// flush replays buffered messages oldest first. Called on (re)connect. The
// lock is not held while sending, so publishers never wait on the broker.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	if p.flushing {
		p.mu.Unlock()
		return
	}
	p.flushing = true
	if p.buf.dropped > 0 {
		logger.Warnf("mqtt: %d buffered messages were dropped while offline", p.buf.dropped)
		p.buf.dropped = 0
	}
	p.mu.Unlock()

	sent := 0
	defer func() {
		p.mu.Lock()
		p.flushing = false
		left := p.buf.len()
		p.mu.Unlock()
		if sent > 0 {
			logger.Infof("mqtt: replayed %d buffered messages, %d left", sent, left)
		}
	}()

	for {
		p.mu.Lock()
		m, ok := p.buf.peek()
		dropped := p.buf.dropped
		p.mu.Unlock()
		if !ok || !p.t.IsConnected() {
			return
		}
		if err := p.t.send(m.topic, m.qos, m.retained, m.payload); err != nil {
			logger.Warnf("mqtt: replay failed [%v], keeping buffered messages", err)
			return
		}
		p.mu.Lock()
		// An overflow during the send already evicted m.
		if p.buf.dropped == dropped {
			p.buf.pop()
		}
		p.mu.Unlock()
		sent++
	}
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.t.IsConnected()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.mu.Lock()
	lost := p.buf.drainAll()
	p.mu.Unlock()
	if len(lost) > 0 {
		logger.Warnf("mqtt: closing with %d undelivered messages", len(lost))
	}
	if p.client != nil {
		p.client.Disconnect(1000) // 1 second timeout
	}
	return nil
}

var _ Publisher = (*RealPublisher)(nil)
var _ ConnectionStatus = (*RealPublisher)(nil)
