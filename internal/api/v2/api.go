// Package api implements the v2 JSON endpoints of cropdoc.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nongbuhae/cropdoc/internal/conf"
	"github.com/nongbuhae/cropdoc/internal/diagnosis"
	"github.com/nongbuhae/cropdoc/internal/disease"
	"github.com/nongbuhae/cropdoc/internal/errors"
	"github.com/nongbuhae/cropdoc/internal/logger"
)

// DiagnosisService is the part of *diagnosis.Service the handlers use.
type DiagnosisService interface {
	Diagnose(ctx context.Context, req diagnosis.Request) (*diagnosis.Result, error)
	List(ctx context.Context, userID string, order diagnosis.Order) ([]diagnosis.Entry, error)
	ListMonth(ctx context.Context, userID string, year, month int) ([]diagnosis.Entry, error)
	Delete(ctx context.Context, userID string, recordID uint) error
	About(ctx context.Context, crop, name string) (*disease.Descriptor, error)
}

// HealthCheck reports the state of one dependency.
type HealthCheck func(ctx context.Context) error

// Controller manages the API routes and handlers
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Service  DiagnosisService
	Settings *conf.Settings

	authMiddleware echo.MiddlewareFunc
	healthChecks   map[string]HealthCheck
	location       *time.Location
	maxImageBytes  int64
	startTime      time.Time
	log            logger.Logger
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithAuthMiddleware sets the middleware protecting user endpoints.
func WithAuthMiddleware(mw echo.MiddlewareFunc) Option {
	return func(c *Controller) {
		c.authMiddleware = mw
	}
}

// WithHealthCheck adds a named dependency check to the health endpoint.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(c *Controller) {
		c.healthChecks[name] = check
	}
}

// WithMaxImageBytes limits the size of an uploaded photo.
func WithMaxImageBytes(n int64) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxImageBytes = n
		}
	}
}

const defaultMaxImageBytes = 8 << 20

// New creates the v2 controller and registers its routes under /api/v2.
func New(e *echo.Echo, svc DiagnosisService, settings *conf.Settings, opts ...Option) (*Controller, error) {
	if svc == nil {
		return nil, errors.Newf("api: diagnosis service is required").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings == nil {
		settings = &conf.Settings{}
	}

	c := &Controller{
		Echo:          e,
		Group:         e.Group("/api/v2"),
		Service:       svc,
		Settings:      settings,
		healthChecks:  make(map[string]HealthCheck),
		location:      settings.Location(),
		maxImageBytes: defaultMaxImageBytes,
		startTime:     time.Now(),
		log:           logger.Global().Module("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.authMiddleware == nil {
		return nil, errors.Newf("api: auth middleware is required").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	c.initRoutes()
	return c, nil
}

// initRoutes registers all API endpoints
func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)
	c.initDiseaseRoutes()
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// errorStatus maps a domain error kind to its HTTP status and a message
// safe to show to clients. The order matters: a legacy not-found wraps an
// upstream failure and must stay a 404.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errors.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, errors.ErrNotAuthorized):
		return http.StatusUnauthorized, "Not Authorized"
	case errors.Is(err, errors.ErrUserNotFound):
		return http.StatusNotFound, "User Not Found"
	case errors.Is(err, errors.ErrInvalidCrop):
		return http.StatusNotFound, "Unsupported crop"
	case errors.Is(err, errors.ErrUploadFailed):
		return http.StatusNotFound, "Image upload failed"
	case errors.Is(err, errors.ErrDiseaseNotFound):
		return http.StatusNotFound, "Unrecognized disease"
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, errors.ErrClassifierFailed):
		return http.StatusUnprocessableEntity, "Could not classify the image"
	case errors.Is(err, errors.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "Disease reference service unavailable"
	case errors.Is(err, errors.ErrCorruptRecord):
		return http.StatusInternalServerError, "Corrupt diagnosis record"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Request timed out"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// HandleError writes the error response for err. Server-side failures are
// logged at error level, client errors at debug.
func (c *Controller) HandleError(ctx echo.Context, err error) error {
	code, message := errorStatus(err)
	resp := &ErrorResponse{
		Error:         errors.Sanitize(err).Error(),
		Message:       message,
		Code:          code,
		CorrelationID: newCorrelationID(),
	}

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("method", ctx.Request().Method),
		logger.String("path", ctx.Request().URL.Path),
		logger.Int("code", code),
		logger.String("ip", ctx.RealIP()),
		logger.Error(err),
	}
	log := c.log.WithContext(ctx.Request().Context())
	if code >= http.StatusInternalServerError {
		log.Error("API error", fields...)
	} else {
		log.Debug("API error", fields...)
	}

	return ctx.JSON(code, resp)
}

// entryErrorMessage is the per-record error shown in listings.
func entryErrorMessage(err error) string {
	_, message := errorStatus(err)
	return message
}

func newCorrelationID() string {
	return uuid.NewString()[:8]
}

// Shutdown releases controller resources.
func (c *Controller) Shutdown() {
	c.log.Debug("API controller shutting down")
}
