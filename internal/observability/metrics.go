// Package observability wires the Prometheus registry and the /metrics
// handler. Error telemetry lives in the errors package.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nongbuhae/cropdoc/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry     *prometheus.Registry
	Diagnosis    *metrics.DiagnosisMetrics
	NCPMS        *metrics.NCPMSMetrics
	Notification *metrics.NotificationMetrics
	HTTP         *metrics.HTTPMetrics
}

// NewMetrics creates a private registry with the runtime collectors and all
// cropdoc collectors registered.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	diagnosisMetrics, err := metrics.NewDiagnosisMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create diagnosis metrics: %w", err)
	}
	ncpmsMetrics, err := metrics.NewNCPMSMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create NCPMS metrics: %w", err)
	}
	notificationMetrics, err := metrics.NewNotificationMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification metrics: %w", err)
	}
	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	return &Metrics{
		registry:     registry,
		Diagnosis:    diagnosisMetrics,
		NCPMS:        ncpmsMetrics,
		Notification: notificationMetrics,
		HTTP:         httpMetrics,
	}, nil
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      promErrorLog{log: log},
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
