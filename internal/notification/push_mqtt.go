package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nongbuhae/cropdoc/internal/mqtt"
)

// MQTTProvider publishes notifications as JSON to a broker topic. The
// connection is opened on first use.
type MQTTProvider struct {
	name    string
	enabled bool
	topic   string
	client  mqtt.Client

	connectMu sync.Mutex
}

// NewMQTTProvider creates a provider publishing to topic through client.
func NewMQTTProvider(client mqtt.Client, topic string, enabled bool) *MQTTProvider {
	return &MQTTProvider{
		name:    "mqtt",
		enabled: enabled,
		topic:   topic,
		client:  client,
	}
}

func (p *MQTTProvider) GetName() string        { return p.name }
func (p *MQTTProvider) IsEnabled() bool        { return p.enabled }
func (p *MQTTProvider) SupportsType(Type) bool { return true }

func (p *MQTTProvider) ValidateConfig() error {
	if !p.enabled {
		return nil
	}
	if p.client == nil {
		return fmt.Errorf("mqtt client is required")
	}
	if p.topic == "" {
		return fmt.Errorf("mqtt topic is required")
	}
	return nil
}

// Send publishes n as JSON.
func (p *MQTTProvider) Send(ctx context.Context, n *Notification) error {
	if err := p.ensureConnected(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return p.client.Publish(ctx, p.topic, payload)
}

func (p *MQTTProvider) ensureConnected(ctx context.Context) error {
	p.connectMu.Lock()
	defer p.connectMu.Unlock()
	if p.client.IsConnected() {
		return nil
	}
	return p.client.Connect(ctx)
}

// Close disconnects from the broker.
func (p *MQTTProvider) Close() error {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect()
	}
	return nil
}
