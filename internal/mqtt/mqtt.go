// Package mqtt publishes diagnosis events to an MQTT broker.
package mqtt

import (
	"context"
	"time"
)

// Client defines the MQTT operations used by the notification dispatcher.
type Client interface {
	// Connect connects to the broker. Later connection losses are recovered
	// automatically.
	Connect(ctx context.Context) error
	// Publish sends payload to topic.
	Publish(ctx context.Context, topic string, payload []byte) error
	IsConnected() bool
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker            string // e.g. tcp://localhost:1883
	ClientID          string
	Username          string
	Password          string
	Retain            bool
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns timeouts suitable for a broker on the local network.
func DefaultConfig() Config {
	return Config{
		ClientID:          "cropdoc",
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}
