package notification

import (
	"context"
	"sync"
	"time"

	"github.com/nongbuhae/cropdoc/internal/conf"
	"github.com/nongbuhae/cropdoc/internal/errors"
	"github.com/nongbuhae/cropdoc/internal/logger"
	"github.com/nongbuhae/cropdoc/internal/mqtt"
	"github.com/nongbuhae/cropdoc/internal/observability/metrics"
)

const defaultSendTimeout = 10 * time.Second

// Dispatcher fans notifications out to providers in the background.
type Dispatcher struct {
	providers []Provider
	timeout   time.Duration
	metrics   *metrics.NotificationMetrics
	log       logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a dispatcher for providers. Providers that are
// disabled or fail ValidateConfig are skipped with a log entry.
func NewDispatcher(providers []Provider, timeout time.Duration, m *metrics.NotificationMetrics) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		timeout: timeout,
		metrics: m,
		log:     logger.Global().Module("notification"),
		ctx:     ctx,
		cancel:  cancel,
	}

	for _, p := range providers {
		if p == nil || !p.IsEnabled() {
			continue
		}
		if err := p.ValidateConfig(); err != nil {
			d.log.Error("push provider config invalid",
				logger.String("provider", p.GetName()),
				logger.Error(err))
			continue
		}
		d.providers = append(d.providers, p)
	}
	return d
}

// NewDispatcherFromConfig builds the providers enabled in settings.
func NewDispatcherFromConfig(settings *conf.NotificationSettings, m *metrics.NotificationMetrics) (*Dispatcher, error) {
	var providers []Provider

	if settings.Push.Enabled {
		providers = append(providers,
			NewShoutrrrProvider("shoutrrr", true, settings.Push.URLs, nil, settings.Timeout))
	}

	if settings.MQTT.Enabled {
		cfg := mqtt.DefaultConfig()
		cfg.Broker = settings.MQTT.Broker
		if settings.MQTT.ClientID != "" {
			cfg.ClientID = settings.MQTT.ClientID
		}
		cfg.Username = settings.MQTT.Username
		cfg.Password = settings.MQTT.Password
		if settings.Timeout > 0 {
			cfg.PublishTimeout = settings.Timeout
		}
		client, err := mqtt.NewClient(cfg)
		if err != nil {
			return nil, errors.New(err).
				Component("notification").
				Category(errors.CategoryConfiguration).
				Build()
		}
		providers = append(providers, NewMQTTProvider(client, settings.MQTT.Topic, true))
	}

	return NewDispatcher(providers, settings.Timeout, m), nil
}

// Providers returns the names of the active providers.
func (d *Dispatcher) Providers() []string {
	names := make([]string, 0, len(d.providers))
	for _, p := range d.providers {
		names = append(names, p.GetName())
	}
	return names
}

// Notify hands n to every provider supporting its type and returns
// immediately. Calls after Close are dropped.
func (d *Dispatcher) Notify(n *Notification) {
	if d == nil || n == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Debug("dispatcher closed, dropping notification", logger.String("id", n.ID))
		return
	}

	for _, p := range d.providers {
		if !p.SupportsType(n.Type) {
			continue
		}
		d.wg.Add(1)
		go d.send(p, n.Clone())
	}
}

func (d *Dispatcher) send(p Provider, n *Notification) {
	defer d.wg.Done()
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	d.metrics.DeliveryStarted()
	start := time.Now()
	err := p.Send(ctx, n)
	elapsed := time.Since(start)

	if err != nil {
		d.metrics.RecordDelivery(p.GetName(), metrics.StatusError, elapsed)
		d.log.Error("push send failed",
			logger.String("provider", p.GetName()),
			logger.String("id", n.ID),
			logger.Duration("elapsed", elapsed),
			logger.Error(err))
		return
	}
	d.metrics.RecordDelivery(p.GetName(), metrics.StatusSuccess, elapsed)
	d.log.Debug("push sent",
		logger.String("provider", p.GetName()),
		logger.String("id", n.ID),
		logger.Duration("elapsed", elapsed))
}

// Close stops accepting notifications and waits for in-flight sends until
// ctx is done, then cancels them and closes the providers.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		d.cancel()
		<-done
	}
	d.cancel()

	for _, p := range d.providers {
		if c, ok := p.(closer); ok {
			if cerr := c.Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}
	}
	return err
}
