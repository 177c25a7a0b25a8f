package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	authn "github.com/nongbuhae/cropdoc/internal/auth"
	"github.com/nongbuhae/cropdoc/internal/logger"
	"github.com/nongbuhae/cropdoc/internal/observability/metrics"
)

// bearerTokenParts is the expected number of parts when splitting the
// Authorization header.
const bearerTokenParts = 2

// UnauthorizedMessage is the body of every 401 response.
const UnauthorizedMessage = "Not Authorized"

// Middleware authenticates requests with a bearer token.
type Middleware struct {
	Validator Validator
	metrics   *metrics.HTTPMetrics
}

// NewMiddleware creates a new auth middleware. m may be nil.
func NewMiddleware(validator Validator, m *metrics.HTTPMetrics) *Middleware {
	return &Middleware{
		Validator: validator,
		metrics:   m,
	}
}

// Authenticate rejects requests without a valid bearer token. On success
// the claims are stored both in the echo context and in the request
// context.
func (m *Middleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if m.Validator == nil {
			m.log().Error("authentication middleware called without a validator",
				logger.String("path", c.Request().URL.Path))
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "authentication service not available",
			})
		}

		token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if !ok {
			return m.unauthorized(c, authn.ReasonMissing, nil)
		}

		claims, err := m.Validator.Validate(token)
		if err != nil {
			return m.unauthorized(c, authn.Reason(err), err)
		}

		c.Set(CtxKeyClaims, claims)
		c.Set(CtxKeyUserID, claims.ID)
		req := c.Request()
		c.SetRequest(req.WithContext(authn.WithClaims(req.Context(), claims)))

		return next(c)
	}
}

// bearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", bearerTokenParts)
	if len(parts) != bearerTokenParts || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func (m *Middleware) unauthorized(c echo.Context, reason string, err error) error {
	m.metrics.RecordAuthError(reason)

	fields := []logger.Field{
		logger.String("path", c.Request().URL.Path),
		logger.String("ip", c.RealIP()),
		logger.String("reason", reason),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	m.log().Info("request rejected", fields...)

	c.Response().Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	return c.JSON(http.StatusUnauthorized, map[string]string{
		"error": UnauthorizedMessage,
	})
}

func (m *Middleware) log() logger.Logger {
	return GetLogger()
}
