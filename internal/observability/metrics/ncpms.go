package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NCPMSMetrics tracks requests to the crop disease reference service.
type NCPMSMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewNCPMSMetrics creates and registers the reference service metrics.
func NewNCPMSMetrics(registry *prometheus.Registry) (*NCPMSMetrics, error) {
	m := &NCPMSMetrics{registry: registry}
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropdoc_ncpms_requests_total",
			Help: "Requests to the NCPMS service partitioned by service code and status.",
		},
		[]string{"service", "status"},
	)
	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cropdoc_ncpms_request_duration_seconds",
			Help:    "NCPMS request duration including retries.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		},
		[]string{"service"},
	)
	m.retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropdoc_ncpms_retries_total",
			Help: "Retried NCPMS requests.",
		},
		[]string{"service"},
	)

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register NCPMS metrics: %w", err)
	}
	return m, nil
}

// Describe implements the prometheus.Collector interface.
func (m *NCPMSMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.requestsTotal.Describe(ch)
	m.requestDuration.Describe(ch)
	m.retriesTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *NCPMSMetrics) Collect(ch chan<- prometheus.Metric) {
	m.requestsTotal.Collect(ch)
	m.requestDuration.Collect(ch)
	m.retriesTotal.Collect(ch)
}

// RecordRequest records a finished request, after any retries.
func (m *NCPMSMetrics) RecordRequest(service string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.requestsTotal.WithLabelValues(service, status).Inc()
	m.requestDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordRetry counts a retried attempt.
func (m *NCPMSMetrics) RecordRetry(service string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(service).Inc()
}
