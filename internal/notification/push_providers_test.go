package notification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nongbuhae/cropdoc/internal/errors"
)

// fakeMQTTClient implements mqtt.Client in memory.
type fakeMQTTClient struct {
	mu         sync.Mutex
	connected  bool
	connects   int
	connectErr error
	published  map[string][][]byte
}

func (c *fakeMQTTClient) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if c.connectErr != nil {
		return c.connectErr
	}
	c.connected = true
	return nil
}

func (c *fakeMQTTClient) Publish(_ context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.published == nil {
		c.published = make(map[string][][]byte)
	}
	c.published[topic] = append(c.published[topic], payload)
	return nil
}

func (c *fakeMQTTClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeMQTTClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func TestMQTTProvider_Send(t *testing.T) {
	client := &fakeMQTTClient{}
	p := NewMQTTProvider(client, "cropdoc/diagnoses", true)
	require.NoError(t, p.ValidateConfig())

	n := NewDiagnosisNotification(DiagnosisEvent{UserID: "u1", RecordID: 3, Crop: "tomato", Disease: "역병", Confidence: 70})
	require.NoError(t, p.Send(context.Background(), n))
	require.NoError(t, p.Send(context.Background(), n))

	assert.Equal(t, 1, client.connects, "connects lazily once")
	require.Len(t, client.published["cropdoc/diagnoses"], 2)

	var got Notification
	require.NoError(t, json.Unmarshal(client.published["cropdoc/diagnoses"][0], &got))
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, TypeDiagnosis, got.Type)
	assert.Equal(t, "역병", got.Metadata["disease"])

	require.NoError(t, p.Close())
	assert.False(t, client.IsConnected())
}

func TestMQTTProvider_ConnectFailure(t *testing.T) {
	client := &fakeMQTTClient{connectErr: errors.NewStd("refused")}
	p := NewMQTTProvider(client, "t", true)

	err := p.Send(context.Background(), NewNotification(TypeSystem, "t", "m"))
	require.Error(t, err)
	assert.Empty(t, client.published)
}

func TestMQTTProvider_ValidateConfig(t *testing.T) {
	assert.Error(t, NewMQTTProvider(nil, "t", true).ValidateConfig())
	assert.Error(t, NewMQTTProvider(&fakeMQTTClient{}, "", true).ValidateConfig())
	assert.NoError(t, NewMQTTProvider(nil, "", false).ValidateConfig())
}

func TestShoutrrrProvider_ValidateConfig(t *testing.T) {
	p := NewShoutrrrProvider("", true, nil, nil, time.Second)
	assert.Equal(t, "shoutrrr", p.GetName())
	assert.True(t, p.SupportsType(TypeDiagnosis))
	assert.Error(t, p.ValidateConfig())

	p = NewShoutrrrProvider("push", true, []string{"nosuchservice://token@host"}, nil, time.Second)
	assert.Error(t, p.ValidateConfig())

	p = NewShoutrrrProvider("push", false, nil, nil, time.Second)
	assert.NoError(t, p.ValidateConfig())

	p = NewShoutrrrProvider("push", true, []string{"generic://example.com/hook"}, []Type{TypeSystem}, time.Second)
	assert.NoError(t, p.ValidateConfig())
	assert.False(t, p.SupportsType(TypeDiagnosis))
}

func TestShoutrrrProvider_SendNotInitialized(t *testing.T) {
	p := NewShoutrrrProvider("push", true, []string{"generic://example.com/hook"}, nil, time.Second)
	err := p.Send(context.Background(), NewNotification(TypeSystem, "t", "m"))
	assert.Error(t, err)
}

func TestShoutrrrProvider_SendGenericWebhook(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	hookURL := "generic://" + strings.TrimPrefix(server.URL, "http://") + "/hook?disabletls=yes"
	p := NewShoutrrrProvider("push", true, []string{hookURL}, nil, 2*time.Second)
	require.NoError(t, p.ValidateConfig())

	n := NewDiagnosisNotification(DiagnosisEvent{RecordID: 1, Crop: "tomato", Disease: "역병", Confidence: 70})
	require.NoError(t, p.Send(context.Background(), n))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)
	assert.Contains(t, bodies[0], "역병")
}

func TestShoutrrrProvider_SendCanceled(t *testing.T) {
	p := NewShoutrrrProvider("push", true, []string{"generic://example.com/hook"}, nil, time.Second)
	require.NoError(t, p.ValidateConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Send(ctx, NewNotification(TypeSystem, "t", "m"))
	assert.ErrorIs(t, err, context.Canceled)
}
