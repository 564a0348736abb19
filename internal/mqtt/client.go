// Package mqtt wraps the Eclipse Paho client behind a small publishing
// interface so the bridge can be tested without a broker.
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Publisher is the broker surface the daemon needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	Connected() bool
	Close()
}

// Options configures a Client.
type Options struct {
	Broker         string
	Port           int
	Username       string
	Password       string
	ClientID       string
	QoS            byte
	PublishTimeout time.Duration
}

// Client is a Publisher backed by paho.mqtt.golang with automatic
// reconnection. Reconnects are surfaced on a channel so the daemon can
// republish retained discovery configs after a broker restart.
type Client struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
	logger  *zap.Logger

	mu   sync.Mutex
	subs map[string]func(topic string, payload []byte)

	reconnects chan struct{}
}

// NewClient creates a Client. Connect must be called before publishing.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 30 * time.Second
	}

	c := &Client{
		qos:        opts.QoS,
		timeout:    opts.PublishTimeout,
		logger:     logger,
		subs:       make(map[string]func(topic string, payload []byte)),
		reconnects: make(chan struct{}, 1),
	}

	mqttOpts := mqtt.NewClientOptions()
	mqttOpts.AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Broker, opts.Port))
	mqttOpts.SetClientID(opts.ClientID)
	if opts.Username != "" {
		mqttOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		mqttOpts.SetPassword(opts.Password)
	}
	mqttOpts.SetAutoReconnect(true)
	mqttOpts.SetConnectTimeout(30 * time.Second)
	mqttOpts.SetKeepAlive(30 * time.Second)

	mqttOpts.OnConnect = func(mc mqtt.Client) {
		logger.Info("MQTT connected", zap.String("broker", opts.Broker))
		c.resubscribe(mc)
		select {
		case c.reconnects <- struct{}{}:
		default: // A reconnect is already pending.
		}
	}
	mqttOpts.OnConnectionLost = func(mc mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	}

	c.client = mqtt.NewClient(mqttOpts)
	return c
}

// Connect connects to the broker and blocks until the connection is
// established or fails.
func (c *Client) Connect() error {
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return nil
}

// Publish publishes a payload and waits for broker acknowledgement up
// to the publish timeout.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	token := c.client.Publish(topic, c.qos, retain, payload)

	deadline := c.timeout
	if d, ok := ctx.Deadline(); ok {
		if until := time.Until(d); until < deadline {
			deadline = until
		}
	}

	if !token.WaitTimeout(deadline) {
		return fmt.Errorf("mqtt publish to %s: timed out after %s", topic, deadline)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers a handler for a topic. Subscriptions are replayed
// after every reconnect.
func (c *Client) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()

	token := c.client.Subscribe(topic, c.qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt subscribe to %s: %w", topic, token.Error())
	}
	return nil
}

func (c *Client) resubscribe(mc mqtt.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, handler := range c.subs {
		h := handler
		token := mc.Subscribe(topic, c.qos, func(_ mqtt.Client, msg mqtt.Message) {
			h(msg.Topic(), msg.Payload())
		})
		if token.Wait() && token.Error() != nil {
			c.logger.Error("MQTT resubscribe failed", zap.String("topic", topic), zap.Error(token.Error()))
		}
	}
}

// Connected reports whether the client currently has a broker
// connection.
func (c *Client) Connected() bool {
	return c.client.IsConnectionOpen()
}

// Reconnects returns the channel signalled on every (re)connect,
// including the first.
func (c *Client) Reconnects() <-chan struct{} {
	return c.reconnects
}

// Close disconnects with a short linger so in-flight messages drain.
func (c *Client) Close() {
	c.client.Disconnect(250)
}
