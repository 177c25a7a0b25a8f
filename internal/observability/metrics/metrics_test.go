package metrics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nongbuhae/cropdoc/internal/errors"
)

func TestOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, OutcomeSuccess},
		{"invalid crop", errors.ErrInvalidCrop, OutcomeInvalidCrop},
		{"unrecognized crop", fmt.Errorf("wrap: %w", errors.ErrUnrecognizedCrop), OutcomeInvalidCrop},
		{"user", errors.ErrUserNotFound, OutcomeUserNotFound},
		{"disease", errors.ErrDiseaseNotFound, OutcomeNotFound},
		{"upstream", errors.New(fmt.Errorf("%w: timeout", errors.ErrUpstreamUnavailable)).Build(), OutcomeUpstream},
		{"upload", errors.ErrUploadFailed, OutcomeUpload},
		{"classifier", errors.ErrClassifierFailed, OutcomeClassifier},
		{"corrupt", errors.ErrCorruptRecord, OutcomeCorrupt},
		{"canceled", context.Canceled, OutcomeCanceled},
		{"other", errors.NewStd("boom"), OutcomeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Outcome(tt.err))
		})
	}
}

func TestDiagnosisMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewDiagnosisMetrics(registry)
	require.NoError(t, err)

	m.DiagnosisStarted()
	m.DiagnosisStarted()
	assert.InDelta(t, 2, testutil.ToFloat64(m.inFlight), 0)

	m.RecordDiagnosis(nil, 2*time.Second)
	m.RecordDiagnosis(errors.ErrDiseaseNotFound, time.Second)
	assert.InDelta(t, 0, testutil.ToFloat64(m.inFlight), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.diagnosesTotal.WithLabelValues(OutcomeSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.diagnosesTotal.WithLabelValues(OutcomeNotFound)), 0)

	// Only successful diagnoses are observed in the latency histogram.
	hist := &dto.Metric{}
	require.NoError(t, m.diagnosisDuration.Write(hist))
	assert.Equal(t, uint64(1), hist.GetHistogram().GetSampleCount())
	assert.InDelta(t, 2.0, hist.GetHistogram().GetSampleSum(), 0.0001)

	m.RecordResolution("primary", "local", nil)
	m.RecordResolution("secondary", "", errors.ErrDiseaseNotFound)
	assert.InDelta(t, 1, testutil.ToFloat64(m.resolutionsTotal.WithLabelValues("primary", "local", OutcomeSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.resolutionsTotal.WithLabelValues("secondary", "none", OutcomeNotFound)), 0)

	m.RecordCompensation(OutcomeNotFound, nil)
	m.RecordCompensation(OutcomeUpstream, errors.NewStd("delete failed"))
	assert.InDelta(t, 1, testutil.ToFloat64(m.compensationsTotal.WithLabelValues(OutcomeNotFound, StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.compensationsTotal.WithLabelValues(OutcomeUpstream, StatusError)), 0)

	m.RecordExpansionError(nil)
	m.RecordExpansionError(errors.ErrCorruptRecord)
	assert.Equal(t, 1, testutil.CollectAndCount(m.expansionErrors))

	m.RecordStage(StageClassify, 150*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(m.stageDuration))

	m.RecordDelete(nil)
	assert.InDelta(t, 1, testutil.ToFloat64(m.recordsDeleted.WithLabelValues(StatusSuccess)), 0)
}

func TestNilDiagnosisMetrics(t *testing.T) {
	t.Parallel()

	var m *DiagnosisMetrics
	assert.NotPanics(t, func() {
		m.DiagnosisStarted()
		m.RecordDiagnosis(nil, time.Second)
		m.RecordStage(StageUpload, time.Second)
		m.RecordResolution("primary", "local", nil)
		m.RecordCompensation(OutcomeNotFound, nil)
		m.RecordExpansionError(errors.ErrCorruptRecord)
		m.RecordDelete(nil)
	})
}

func TestDuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewNCPMSMetrics(registry)
	require.NoError(t, err)
	_, err = NewNCPMSMetrics(registry)
	assert.Error(t, err)
}

func TestNCPMSMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewNCPMSMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordRequest("SVC01", 100*time.Millisecond, nil)
	m.RecordRequest("SVC05", 100*time.Millisecond, errors.ErrUpstreamUnavailable)
	m.RecordRetry("SVC05")
	m.RecordRetry("SVC05")

	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("SVC01", StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("SVC05", StatusError)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.retriesTotal.WithLabelValues("SVC05")), 0)
}

func TestHTTPMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordHTTPRequest("GET", "/api/v2/disease/about", 200, 0.01, 512)
	m.RecordHTTPRequest("GET", "/api/v2/disease/about", 404, 0.01, 0)
	m.RecordAuthError("expired")

	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "/api/v2/disease/about", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "/api/v2/disease/about", "404")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.authFailures.WithLabelValues("expired")), 0)

	size := &dto.Metric{}
	require.NoError(t, m.responseSize.WithLabelValues("GET", "/api/v2/disease/about").(prometheus.Histogram).Write(size))
	assert.Equal(t, uint64(1), size.GetHistogram().GetSampleCount())
}

func TestNotificationMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewNotificationMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.DeliveryStarted()
	m.RecordDelivery("mqtt", StatusSuccess, 20*time.Millisecond)
	m.DeliveryStarted()
	m.RecordDelivery("shoutrrr", StatusError, time.Second)

	assert.InDelta(t, 0, testutil.ToFloat64(m.dispatchActive), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.deliveriesTotal.WithLabelValues("mqtt", StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.deliveriesTotal.WithLabelValues("shoutrrr", StatusError)), 0)
}
