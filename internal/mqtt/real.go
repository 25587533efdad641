package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/layer-threshold/internal/keymap"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Options configures the broker connection.
type Options struct {
	Broker   string
	ClientID string
}

// client is the subset of paho.Client the publisher uses.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker. Messages published
// while the connection is down are held in an outbox and replayed,
// oldest first, when it comes back.
type RealPublisher struct {
	client client
	logger *slog.Logger

	mu       sync.Mutex
	buf      *outbox
	connects int
}

func newPublisher(c client, logger *slog.Logger) *RealPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RealPublisher{
		client: c,
		logger: logger.With("component", "mqtt"),
		buf:    newOutbox(outboxLimit),
	}
}

// NewRealPublisher creates a publisher connected to the given broker.
// An unreachable broker is not an error: the client keeps retrying in the
// background and messages are buffered until it connects.
func NewRealPublisher(opts Options, logger *slog.Logger) (*RealPublisher, error) {
	p := newPublisher(nil, logger)

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.logger.Warn("connection lost", "error", err)
		})

	c := paho.NewClient(co)
	p.client = c

	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		p.logger.Warn("broker not reachable yet, buffering until connected", "broker", opts.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// Publish sends a layer change to the MQTT broker.
func (p *RealPublisher) Publish(change keymap.Change) error {
	payload, err := FormatPayload(change)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.publish(message{topic: Topic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	return p.publish(message{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Pending returns the number of buffered messages.
func (p *RealPublisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) publish(msg message) error {
	// The connection check and add happen under mu so a message cannot
	// land in the buffer after onConnect has drained it.
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		dropped := p.buf.add(msg)
		pending := p.buf.len()
		p.mu.Unlock()
		if dropped {
			p.logger.Warn("buffer full, dropping oldest", "capacity", outboxLimit)
		}
		p.logger.Debug("buffered while disconnected", "topic", msg.topic, "pending", pending)
		return nil
	}
	p.mu.Unlock()

	return p.send(msg)
}

func (p *RealPublisher) send(msg message) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// onConnect replays buffered messages. After the first connection it also
// announces RECONNECTED on the system topic.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	p.connects++
	reconnect := p.connects > 1
	pending := p.buf.flush()
	p.mu.Unlock()

	if reconnect {
		p.logger.Info("reconnected to broker", "replaying", len(pending))
	} else {
		p.logger.Info("connected to broker", "replaying", len(pending))
	}

	for _, msg := range pending {
		if err := p.send(msg); err != nil {
			p.logger.Warn("replay failed", "topic", msg.topic, "error", err)
		}
	}

	if !reconnect {
		return
	}
	payload, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
	if err != nil {
		p.logger.Warn("format reconnected payload", "error", err)
		return
	}
	if err := p.send(message{topic: TopicSystem, payload: payload, qos: 1}); err != nil {
		p.logger.Warn("publish reconnected", "error", err)
	}
}
