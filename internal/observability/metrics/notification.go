package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics tracks delivery through notification providers.
type NotificationMetrics struct {
	deliveriesTotal  *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
	dispatchActive   prometheus.Gauge

	registry *prometheus.Registry
}

// NewNotificationMetrics creates and registers the notification metrics.
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{registry: registry}
	m.deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_provider_deliveries_total",
			Help: "Total notification deliveries by provider and status.",
		},
		[]string{"provider", "status"},
	)
	m.deliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_provider_delivery_duration_seconds",
			Help:    "Notification delivery duration by provider.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)
	m.dispatchActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_dispatch_active",
			Help: "Notification deliveries currently in progress.",
		},
	)

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

// Describe implements the prometheus.Collector interface.
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.deliveriesTotal.Describe(ch)
	m.deliveryDuration.Describe(ch)
	m.dispatchActive.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.deliveriesTotal.Collect(ch)
	m.deliveryDuration.Collect(ch)
	m.dispatchActive.Collect(ch)
}

// DeliveryStarted increments the active gauge. Pair with RecordDelivery.
func (m *NotificationMetrics) DeliveryStarted() {
	if m == nil {
		return
	}
	m.dispatchActive.Inc()
}

// RecordDelivery records a finished delivery attempt.
func (m *NotificationMetrics) RecordDelivery(provider, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dispatchActive.Dec()
	m.deliveriesTotal.WithLabelValues(provider, status).Inc()
	m.deliveryDuration.WithLabelValues(provider).Observe(duration.Seconds())
}
