package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Publisher defaults.
const (
	DefaultClientID   = "vent-controller"
	DefaultBufferSize = 1000

	connectWait    = 2 * time.Second
	publishTimeout = 5 * time.Second
)

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string             // DefaultClientID if empty
	BufferSize int                // DefaultBufferSize if zero
	Log        *zap.SugaredLogger // no-op if nil

	// OnStatus, if set, is called whenever the connection comes up or drops.
	OnStatus func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are held in a ring buffer and replayed on reconnect.
type RealPublisher struct {
	client   paho.Client
	log      *zap.SugaredLogger
	onStatus func(bool)

	mu            sync.Mutex
	buf           *ringBuffer
	connectedOnce bool
}

// NewRealPublisher creates a publisher and starts connecting to the broker.
// It does not wait for the broker to be reachable: paho keeps retrying in the
// background and messages are buffered until it succeeds.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.Broker == "" {
		return nil, errors.New("no broker configured")
	}
	if opts.ClientID == "" {
		opts.ClientID = DefaultClientID
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	p := &RealPublisher{
		log:      log,
		onStatus: opts.OnStatus,
		buf:      newRingBuffer(opts.BufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: EventOffline})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	popts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.handleConnect).
		SetConnectionLostHandler(p.handleConnectionLost)

	p.client = paho.NewClient(popts)
	token := p.client.Connect()
	if token.WaitTimeout(connectWait) {
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("connect to broker: %w", err)
		}
	} else {
		log.Warnf("mqtt: broker %s not reachable yet, buffering until connected", opts.Broker)
	}
	return p, nil
}

func (p *RealPublisher) handleConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.connectedOnce
	p.connectedOnce = true
	msgs, dropped := p.buf.drainAll()
	p.mu.Unlock()

	p.log.Infof("mqtt: connected")
	if p.onStatus != nil {
		p.onStatus(true)
	}

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: EventReconnected})
		msgs = append([]bufferedMsg{{topic: TopicSystem, payload: payload, qos: 1, retained: false}}, msgs...)
	}
	if dropped > 0 {
		p.log.Warnf("mqtt: %d buffered messages were dropped while disconnected", dropped)
	}
	for _, m := range msgs {
		token := c.Publish(m.topic, m.qos, m.retained, m.payload)
		if token.WaitTimeout(publishTimeout) && token.Error() != nil {
			p.log.Warnf("mqtt: replay to %s: %v", m.topic, token.Error())
		}
	}
	if len(msgs) > 0 {
		p.log.Infof("mqtt: replayed %d messages", len(msgs))
	}
}

func (p *RealPublisher) handleConnectionLost(_ paho.Client, err error) {
	p.log.Warnf("mqtt: connection lost: %v", err)
	if p.onStatus != nil {
		p.onStatus(false)
	}
}

// IsConnected reports whether the broker connection is currently open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// publish sends or buffers one message. When wait is false the call returns
// as soon as the message is handed to paho.
func (p *RealPublisher) publish(msg bufferedMsg, wait bool) error {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		if p.buf.push(msg) {
			p.log.Warnf("mqtt: buffer full (%d messages), dropping oldest", p.buf.capacity)
		}
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !wait {
		return nil
	}
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.topic, err)
	}
	return nil
}

// PublishSample sends a sample without waiting for the broker, so a slow
// broker never delays the control loop.
func (p *RealPublisher) PublishSample(sample Sample) error {
	payload, err := FormatSamplePayload(sample)
	if err != nil {
		return fmt.Errorf("format sample payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(bufferedMsg{topic: TopicSamples, payload: payload}, false)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) so shutdown events get delivered
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained}, true)
}

// Close disconnects from the broker. Messages still buffered are lost.
func (p *RealPublisher) Close() error {
	p.mu.Lock()
	pending := p.buf.len()
	p.mu.Unlock()
	if pending > 0 {
		p.log.Warnf("mqtt: closing with %d unsent messages", pending)
	}
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
