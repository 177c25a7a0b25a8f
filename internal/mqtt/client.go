package mqtt

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nongbuhae/cropdoc/internal/errors"
	"github.com/nongbuhae/cropdoc/internal/logger"
)

// client implements the Client interface.
type client struct {
	config         Config
	internalClient mqtt.Client
	mu             sync.Mutex
	log            logger.Logger
}

// NewClient creates a new MQTT client. Zero timeouts take their defaults.
func NewClient(config Config) (Client, error) {
	u, err := url.Parse(config.Broker)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf("invalid MQTT broker URL %q", config.Broker).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}

	defaults := DefaultConfig()
	if config.ClientID == "" {
		config.ClientID = defaults.ClientID
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaults.ConnectTimeout
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = defaults.PublishTimeout
	}
	if config.DisconnectTimeout <= 0 {
		config.DisconnectTimeout = defaults.DisconnectTimeout
	}

	return &client{
		config: config,
		log:    logger.Global().Module("mqtt").With(logger.String("broker", u.Host)),
	}, nil
}

// Connect establishes the broker connection.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		c.log.Info("connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.log.Warn("connection to MQTT broker lost", logger.Error(err))
	})

	c.internalClient = mqtt.NewClient(opts)
	token := c.internalClient.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return c.networkError(fmt.Errorf("connect: %w", ctx.Err()))
	}
	if err := token.Error(); err != nil {
		return c.networkError(fmt.Errorf("connection error: %w", err))
	}
	return nil
}

// Publish sends payload to topic with QoS 0.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnectedLocked() {
		return c.networkError(fmt.Errorf("not connected to MQTT broker"))
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.PublishTimeout)
	defer cancel()

	token := c.internalClient.Publish(topic, 0, c.config.Retain, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return c.networkError(fmt.Errorf("publish to %s: %w", topic, ctx.Err()))
	}
	if err := token.Error(); err != nil {
		return c.networkError(fmt.Errorf("publish to %s: %w", topic, err))
	}

	c.log.Debug("message published", logger.String("topic", topic), logger.Int("size", len(payload)))
	return nil
}

// IsConnected reports whether the broker connection is up.
func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnectedLocked()
}

func (c *client) isConnectedLocked() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the broker connection.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isConnectedLocked() {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
	}
}

func (c *client) networkError(err error) error {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryNetwork).
		Context("broker", c.config.Broker).
		Build()
}
