// Package auth provides the echo authentication middleware for the API.
package auth

import (
	"github.com/labstack/echo/v4"

	authn "github.com/nongbuhae/cropdoc/internal/auth"
	"github.com/nongbuhae/cropdoc/internal/logger"
)

// GetLogger returns the auth package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("auth")
}

// Validator checks a bearer token and returns its claims.
// *authn.TokenService implements it.
type Validator interface {
	Validate(token string) (*authn.Claims, error)
}

// Context keys for authentication values stored in echo.Context. They are
// prefixed with "auth:" to avoid collisions with other packages.
const (
	CtxKeyClaims = "auth:claims"
	CtxKeyUserID = "auth:userID"
)

// UserID returns the authenticated user id set by the middleware, or ""
// when the request was not authenticated.
func UserID(c echo.Context) string {
	id, _ := c.Get(CtxKeyUserID).(string)
	return id
}

// Claims returns the validated token claims set by the middleware.
func Claims(c echo.Context) (*authn.Claims, bool) {
	claims, ok := c.Get(CtxKeyClaims).(*authn.Claims)
	return claims, ok && claims != nil
}
