package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	apiauth "github.com/nongbuhae/cropdoc/internal/api/auth"
	mw "github.com/nongbuhae/cropdoc/internal/api/middleware"
	v2 "github.com/nongbuhae/cropdoc/internal/api/v2"
	"github.com/nongbuhae/cropdoc/internal/conf"
	"github.com/nongbuhae/cropdoc/internal/logger"
	"github.com/nongbuhae/cropdoc/internal/observability"
	"github.com/nongbuhae/cropdoc/internal/observability/metrics"
)

// Server is the HTTP server for cropdoc. It owns the echo instance, the
// middleware stack and the v2 controller.
type Server struct {
	echo     *echo.Echo
	config   *Config
	settings *conf.Settings
	log      logger.Logger

	// Dependencies
	service      v2.DiagnosisService
	validator    apiauth.Validator
	metrics      *observability.Metrics
	healthChecks map[string]v2.HealthCheck

	apiController *v2.Controller

	wg        sync.WaitGroup
	startTime time.Time
	serveErr  chan error
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithDiagnosisService sets the service behind the disease endpoints.
func WithDiagnosisService(svc v2.DiagnosisService) ServerOption {
	return func(s *Server) {
		s.service = svc
	}
}

// WithTokenValidator sets the bearer token validator.
func WithTokenValidator(v apiauth.Validator) ServerOption {
	return func(s *Server) {
		s.validator = v
	}
}

// WithMetrics sets the observability metrics for the server.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithHealthCheck adds a dependency check reported by /health.
func WithHealthCheck(name string, check v2.HealthCheck) ServerOption {
	return func(s *Server) {
		s.healthChecks[name] = check
	}
}

// New creates a new HTTP server with the given settings and options.
func New(settings *conf.Settings, opts ...ServerOption) (*Server, error) {
	config := ConfigFromSettings(settings)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s := &Server{
		config:       config,
		settings:     settings,
		log:          GetLogger(),
		healthChecks: make(map[string]v2.HealthCheck),
		startTime:    time.Now(),
		serveErr:     make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.validator == nil {
		return nil, fmt.Errorf("token validator is required")
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("failed to setup routes: %w", err)
	}

	s.log.Info("HTTP server initialized",
		logger.String("address", config.Address()),
		logger.Bool("metrics", config.Metrics),
		logger.Bool("debug", config.Debug))

	return s, nil
}

func (s *Server) httpMetrics() *metrics.HTTPMetrics {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.HTTP
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())

	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, s.httpMetrics(), func(c echo.Context) bool {
		return c.Path() == "/metrics"
	}))

	securityConfig := mw.DefaultSecurityConfig()
	securityConfig.AllowedOrigins = s.config.AllowedOrigins

	s.echo.Use(mw.NewCORS(securityConfig))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders(securityConfig))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() error {
	if s.service == nil {
		return fmt.Errorf("diagnosis service is required")
	}

	authMiddleware := apiauth.NewMiddleware(s.validator, s.httpMetrics())
	opts := []v2.Option{v2.WithAuthMiddleware(authMiddleware.Authenticate)}
	for name, check := range s.healthChecks {
		opts = append(opts, v2.WithHealthCheck(name, check))
	}

	controller, err := v2.New(s.echo, s.service, s.settings, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize API v2: %w", err)
	}
	s.apiController = controller

	// Health check at root level as well
	s.echo.GET("/health", controller.HealthCheck)

	if s.config.Metrics && s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	s.log.Info("Routes initialized",
		logger.String("api_version", "v2"),
		logger.Int("routes", len(s.echo.Routes())))
	return nil
}

// Start begins serving HTTP requests in a background goroutine and
// returns immediately. Serve errors are delivered on Errors.
func (s *Server) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		addr := s.config.Address()
		s.log.Info("Starting HTTP server", logger.String("address", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Server error", logger.Error(err))
			s.serveErr <- fmt.Errorf("server error: %w", err)
		}
	}()
}

// Errors reports a failure of the listener started by Start.
func (s *Server) Errors() <-chan error {
	return s.serveErr
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// until ctx is done or the configured shutdown timeout elapses.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if s.apiController != nil {
		s.apiController.Shutdown()
	}

	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("Error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.wg.Wait()

	s.log.Info("Server shutdown complete",
		logger.Duration("uptime", time.Since(s.startTime)))
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Config returns the effective server configuration.
func (s *Server) Config() *Config {
	return s.config
}
