// Package metrics provides custom Prometheus metrics for cropdoc.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DiagnosisMetrics contains Prometheus metrics for the diagnosis pipeline.
// A nil *DiagnosisMetrics records nothing.
type DiagnosisMetrics struct {
	diagnosesTotal     *prometheus.CounterVec
	diagnosisDuration  prometheus.Histogram
	stageDuration      *prometheus.HistogramVec
	resolutionsTotal   *prometheus.CounterVec
	compensationsTotal *prometheus.CounterVec
	expansionErrors    *prometheus.CounterVec
	recordsDeleted     *prometheus.CounterVec
	inFlight           prometheus.Gauge

	registry *prometheus.Registry
}

// NewDiagnosisMetrics creates and registers the diagnosis metrics.
func NewDiagnosisMetrics(registry *prometheus.Registry) (*DiagnosisMetrics, error) {
	m := &DiagnosisMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register diagnosis metrics: %w", err)
	}
	return m, nil
}

func (m *DiagnosisMetrics) initMetrics() {
	m.diagnosesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropdoc_diagnoses_total",
			Help: "Total number of diagnosis requests partitioned by outcome.",
		},
		[]string{"outcome"},
	)
	m.diagnosisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cropdoc_diagnosis_duration_seconds",
			Help:    "End to end duration of a diagnosis request.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)
	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cropdoc_diagnosis_stage_duration_seconds",
			Help:    "Duration of each diagnosis pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"stage"},
	)
	m.resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropdoc_disease_resolutions_total",
			Help: "Disease resolutions partitioned by guess slot, source and outcome.",
		},
		[]string{"slot", "source", "outcome"},
	)
	m.compensationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropdoc_upload_compensations_total",
			Help: "Uploaded images deleted after a failed diagnosis.",
		},
		[]string{"reason", "status"},
	)
	m.expansionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropdoc_record_expansion_errors_total",
			Help: "Listed diagnosis records whose disease could not be expanded.",
		},
		[]string{"outcome"},
	)
	m.recordsDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropdoc_records_deleted_total",
			Help: "Diagnosis record deletions partitioned by status.",
		},
		[]string{"status"},
	)
	m.inFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cropdoc_diagnoses_in_flight",
			Help: "Number of diagnosis requests currently being processed.",
		},
	)
}

// Describe implements the prometheus.Collector interface.
func (m *DiagnosisMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.diagnosesTotal.Describe(ch)
	m.diagnosisDuration.Describe(ch)
	m.stageDuration.Describe(ch)
	m.resolutionsTotal.Describe(ch)
	m.compensationsTotal.Describe(ch)
	m.expansionErrors.Describe(ch)
	m.recordsDeleted.Describe(ch)
	m.inFlight.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *DiagnosisMetrics) Collect(ch chan<- prometheus.Metric) {
	m.diagnosesTotal.Collect(ch)
	m.diagnosisDuration.Collect(ch)
	m.stageDuration.Collect(ch)
	m.resolutionsTotal.Collect(ch)
	m.compensationsTotal.Collect(ch)
	m.expansionErrors.Collect(ch)
	m.recordsDeleted.Collect(ch)
	m.inFlight.Collect(ch)
}

// DiagnosisStarted increments the in-flight gauge. Pair with RecordDiagnosis.
func (m *DiagnosisMetrics) DiagnosisStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// RecordDiagnosis records the outcome of a finished diagnosis.
func (m *DiagnosisMetrics) RecordDiagnosis(err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.diagnosesTotal.WithLabelValues(Outcome(err)).Inc()
	if err == nil {
		m.diagnosisDuration.Observe(duration.Seconds())
	}
}

// RecordStage observes the duration of one pipeline stage.
func (m *DiagnosisMetrics) RecordStage(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordResolution counts a primary or secondary resolution. source is
// empty when resolution failed.
func (m *DiagnosisMetrics) RecordResolution(slot, source string, err error) {
	if m == nil {
		return
	}
	if source == "" {
		source = "none"
	}
	m.resolutionsTotal.WithLabelValues(slot, source, Outcome(err)).Inc()
}

// RecordCompensation counts an upload rollback. reason is the outcome of
// the failure that triggered it.
func (m *DiagnosisMetrics) RecordCompensation(reason string, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.compensationsTotal.WithLabelValues(reason, status).Inc()
}

// RecordExpansionError counts a listed record that carries an error.
func (m *DiagnosisMetrics) RecordExpansionError(err error) {
	if m == nil || err == nil {
		return
	}
	m.expansionErrors.WithLabelValues(Outcome(err)).Inc()
}

// RecordDelete counts a record deletion attempt.
func (m *DiagnosisMetrics) RecordDelete(err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.recordsDeleted.WithLabelValues(status).Inc()
}
