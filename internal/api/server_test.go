package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nongbuhae/cropdoc/internal/auth"
	"github.com/nongbuhae/cropdoc/internal/conf"
	"github.com/nongbuhae/cropdoc/internal/diagnosis"
	"github.com/nongbuhae/cropdoc/internal/disease"
	"github.com/nongbuhae/cropdoc/internal/errors"
	"github.com/nongbuhae/cropdoc/internal/observability"
)

// stubService answers listings for user-1 and nothing else.
type stubService struct{}

func (stubService) Diagnose(context.Context, diagnosis.Request) (*diagnosis.Result, error) {
	return nil, errors.ErrClassifierFailed
}

func (stubService) List(_ context.Context, userID string, _ diagnosis.Order) ([]diagnosis.Entry, error) {
	if userID != "user-1" {
		return nil, errors.ErrUserNotFound
	}
	return []diagnosis.Entry{}, nil
}

func (stubService) ListMonth(context.Context, string, int, int) ([]diagnosis.Entry, error) {
	return []diagnosis.Entry{}, nil
}

func (stubService) Delete(context.Context, string, uint) error { return nil }

func (stubService) About(context.Context, string, string) (*disease.Descriptor, error) {
	return nil, errors.ErrDiseaseNotFound
}

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.WebServer.Port = "0"
	s.WebServer.Metrics = true
	s.Main.TimeZone = "Asia/Seoul"
	s.Auth.Secret = "0123456789abcdef0123456789abcdef"
	s.Auth.Issuer = "cropdoc"
	s.Auth.Expiry = time.Hour
	return s
}

func newTestServer(t *testing.T, opts ...ServerOption) (*Server, *auth.TokenService, *observability.Metrics) {
	t.Helper()
	settings := testSettings()
	tokens, err := auth.NewTokenService(&settings.Auth)
	require.NoError(t, err)
	m, err := observability.NewMetrics()
	require.NoError(t, err)

	base := []ServerOption{
		WithDiagnosisService(stubService{}),
		WithTokenValidator(tokens),
		WithMetrics(m),
	}
	s, err := New(settings, append(base, opts...)...)
	require.NoError(t, err)
	return s, tokens, m
}

func do(s *Server, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, http.NoBody)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresDependencies(t *testing.T) {
	settings := testSettings()
	tokens, err := auth.NewTokenService(&settings.Auth)
	require.NoError(t, err)

	_, err = New(settings, WithDiagnosisService(stubService{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token validator")

	_, err = New(settings, WithTokenValidator(tokens))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "diagnosis service")

	zero := testSettings()
	zero.WebServer.ReadTimeout = 0
	_, err = New(zero, WithDiagnosisService(stubService{}), WithTokenValidator(tokens))
	require.NoError(t, err, "zero timeouts fall back to defaults")
}

func TestServer_Authentication(t *testing.T) {
	s, tokens, _ := newTestServer(t)

	rec := do(s, http.MethodGet, "/api/v2/disease/diagnosis_records", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Not Authorized"}`, rec.Body.String())
	assert.Equal(t, `Bearer realm="api"`, rec.Header().Get("WWW-Authenticate"))

	token, err := tokens.Issue("user-1", "farmer")
	require.NoError(t, err)
	rec = do(s, http.MethodGet, "/api/v2/disease/diagnosis_records", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	ghost, err := tokens.Issue("ghost", "")
	require.NoError(t, err)
	rec = do(s, http.MethodGet, "/api/v2/disease/diagnosis_records", ghost)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Public endpoint needs no token.
	rec = do(s, http.MethodGet, "/api/v2/disease/about?plantName=tomato&diseaseName=x", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s, _, _ := newTestServer(t, WithHealthCheck("database", func(context.Context) error { return nil }))

	for _, path := range []string{"/health", "/api/v2/health"} {
		rec := do(s, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), `"database":"ok"`, path)
	}

	do(s, http.MethodGet, "/api/v2/disease/diagnosis_records", "")

	rec := do(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "http_requests_total")
	assert.Contains(t, body, `http_auth_errors_total{reason="missing"} 1`)
	assert.True(t, strings.Contains(body, "go_goroutines"), "runtime collectors registered")
}

func TestServer_MetricsDisabled(t *testing.T) {
	settings := testSettings()
	settings.WebServer.Metrics = false
	tokens, err := auth.NewTokenService(&settings.Auth)
	require.NoError(t, err)
	m, err := observability.NewMetrics()
	require.NoError(t, err)

	s, err := New(settings, WithDiagnosisService(stubService{}), WithTokenValidator(tokens), WithMetrics(m))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/metrics", "").Code)
}

func TestServer_StartAndShutdown(t *testing.T) {
	s, _, _ := newTestServer(t)
	s.Start()
	require.NoError(t, s.Shutdown(context.Background()))

	select {
	case err := <-s.Errors():
		t.Fatalf("unexpected serve error: %v", err)
	default:
	}
}

func TestConfigFromSettings(t *testing.T) {
	settings := testSettings()
	settings.WebServer.BodyLimit = "2M"
	settings.WebServer.CORSOrigins = []string{"https://app.cropdoc.test"}
	settings.Logging.DefaultLevel = "debug"

	cfg := ConfigFromSettings(settings)
	assert.Equal(t, ":0", cfg.Address())
	assert.Equal(t, "2M", cfg.BodyLimit)
	assert.Equal(t, []string{"https://app.cropdoc.test"}, cfg.AllowedOrigins)
	assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)
	assert.True(t, cfg.Metrics)
	assert.True(t, cfg.Debug)
	require.NoError(t, cfg.Validate())

	cfg.Port = ""
	assert.Error(t, cfg.Validate())
}
