package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/sweeney/humidex-sensor/internal/entity"
	"github.com/sweeney/humidex-sensor/internal/metrics"
)

// Options configures the broker connection.
type Options struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	Topics         Topics
	BufferSize     int
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

const inboxSize = 256

type inbound struct {
	topic   string
	payload []byte
}

// RealClient publishes derived entities to an actual MQTT broker and feeds
// statestream messages into a StateSink.
type RealClient struct {
	client  paho.Client
	opts    Options
	sink    StateSink
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
	clock   clockwork.Clock

	mu            sync.Mutex
	buffer        *ringBuffer
	connectedOnce bool
	inbox         chan inbound
	done          chan struct{}
	pumpFinished  chan struct{}
	closeOnce     sync.Once
}

// NewRealClient connects to the broker, subscribes to the statestream and
// starts delivering messages to sink.
func NewRealClient(opts Options, sink StateSink, logger *zap.SugaredLogger, m *metrics.Metrics, clock clockwork.Clock) (*RealClient, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	c := &RealClient{
		opts:         opts,
		sink:         sink,
		logger:       logger,
		metrics:      m,
		clock:        clock,
		buffer:       newRingBuffer(opts.BufferSize, logger),
		inbox:        make(chan inbound, inboxSize),
		done:         make(chan struct{}),
		pumpFinished: make(chan struct{}),
	}

	will, err := FormatSystemPayload(WillEvent(clock.Now()))
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetWill(opts.Topics.System(), string(will), 1, true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	c.client = paho.NewClient(po)
	go c.pump()

	token := c.client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		c.client.Disconnect(0)
		c.stopPump()
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		c.client.Disconnect(0)
		c.stopPump()
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return c, nil
}

func (c *RealClient) onConnect(client paho.Client) {
	c.metrics.BrokerConnected.Set(1)

	filters := make(map[string]byte)
	for _, f := range c.opts.Topics.StatestreamFilters() {
		filters[f] = 0
	}
	token := client.SubscribeMultiple(filters, c.onMessage)
	if !token.WaitTimeout(c.opts.ConnectTimeout) || token.Error() != nil {
		c.logger.Errorw("statestream subscribe failed", "filters", c.opts.Topics.StatestreamFilters(), "error", token.Error())
	} else {
		c.logger.Infow("subscribed to statestream", "prefix", c.opts.Topics.StatePrefix)
	}

	c.mu.Lock()
	pending := c.buffer.drainLatest()
	reconnect := c.connectedOnce
	c.connectedOnce = true
	c.mu.Unlock()
	c.metrics.BufferedMessages.Set(0)

	for _, msg := range pending {
		if err := c.send(msg); err != nil {
			c.logger.Warnw("replay buffered message failed", "topic", msg.topic, "error", err)
		}
	}
	if len(pending) > 0 {
		c.logger.Infow("replayed buffered messages", "count", len(pending))
	}

	if reconnect {
		if err := c.PublishSystem(SystemEvent{Timestamp: c.clock.Now(), Event: "RECONNECTED"}); err != nil {
			c.logger.Warnw("publish reconnected event failed", "error", err)
		}
	}
}

func (c *RealClient) onConnectionLost(_ paho.Client, err error) {
	c.metrics.BrokerConnected.Set(0)
	c.logger.Warnw("mqtt connection lost", "error", err)
}

// onMessage runs on paho's router goroutine; it must not block on publishes.
func (c *RealClient) onMessage(_ paho.Client, msg paho.Message) {
	select {
	case c.inbox <- inbound{topic: msg.Topic(), payload: msg.Payload()}:
	case <-c.done:
	}
}

func (c *RealClient) pump() {
	defer close(c.pumpFinished)
	for {
		select {
		case in := <-c.inbox:
			attr := HandleStatestream(c.sink, c.opts.Topics.StatePrefix, in.topic, in.payload)
			c.metrics.StatestreamMessages.WithLabelValues(attr).Inc()
		case <-c.done:
			return
		}
	}
}

func (c *RealClient) stopPump() {
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.pumpFinished
	})
}

// publish sends a message, or buffers it while the connection is down.
func (c *RealClient) publish(msg bufferedMsg) error {
	if !c.client.IsConnectionOpen() {
		c.mu.Lock()
		c.buffer.push(msg)
		n := c.buffer.len()
		c.mu.Unlock()
		c.metrics.BufferedMessages.Set(float64(n))
		return nil
	}
	return c.send(msg)
}

func (c *RealClient) send(msg bufferedMsg) error {
	token := c.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(c.opts.PublishTimeout) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// PublishEntity sends the retained JSON state and availability of an entity.
func (c *RealClient) PublishEntity(e entity.Entity) error {
	payload, err := entity.Encode(e)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	t := c.opts.Topics
	if err := c.publish(bufferedMsg{topic: t.State(e.ObjectID), payload: payload, qos: 1, retained: true}); err != nil {
		c.metrics.PublishErrors.WithLabelValues("entity").Inc()
		return err
	}
	if err := c.publish(bufferedMsg{topic: t.Availability(e.ObjectID), payload: AvailabilityPayload(e), qos: 1, retained: true}); err != nil {
		c.metrics.PublishErrors.WithLabelValues("entity").Inc()
		return err
	}
	return nil
}

// PublishDiscovery sends the retained discovery config of an entity.
func (c *RealClient) PublishDiscovery(e entity.Entity) error {
	payload, err := FormatDiscovery(c.opts.Topics, e)
	if err != nil {
		return fmt.Errorf("format discovery: %w", err)
	}
	if err := c.publish(bufferedMsg{topic: c.opts.Topics.Discovery(e.ObjectID), payload: payload, qos: 1, retained: true}); err != nil {
		c.metrics.PublishErrors.WithLabelValues("discovery").Inc()
		return err
	}
	return nil
}

// ClearEntity publishes empty retained payloads so the broker forgets the entity.
func (c *RealClient) ClearEntity(e entity.Entity) error {
	t := c.opts.Topics
	for _, topic := range []string{t.Discovery(e.ObjectID), t.State(e.ObjectID), t.Availability(e.ObjectID)} {
		if err := c.publish(bufferedMsg{topic: topic, payload: []byte{}, qos: 1, retained: true}); err != nil {
			c.metrics.PublishErrors.WithLabelValues("clear").Inc()
			return err
		}
	}
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	if err := c.publish(bufferedMsg{topic: c.opts.Topics.System(), payload: payload, qos: 1, retained: event.Retained}); err != nil {
		c.metrics.PublishErrors.WithLabelValues("system").Inc()
		return err
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close stops statestream delivery and disconnects from the broker.
func (c *RealClient) Close() error {
	c.stopPump()
	c.client.Disconnect(1000) // 1 second timeout
	c.metrics.BrokerConnected.Set(0)
	return nil
}
