// Package auth issues and validates the HS256 bearer tokens used by the
// mobile client.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nongbuhae/cropdoc/internal/conf"
	"github.com/nongbuhae/cropdoc/internal/errors"
)

// Claims carries the user identity. The JSON names match the tokens issued
// by the account service.
type Claims struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	jwt.RegisteredClaims
}

// Failure reasons reported by Reason.
const (
	ReasonMissing   = "missing"
	ReasonExpired   = "expired"
	ReasonSignature = "signature"
	ReasonMalformed = "malformed"
	ReasonClaims    = "claims"
)

// TokenService signs and validates tokens with a shared secret.
type TokenService struct {
	secret []byte
	issuer string
	expiry time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService from settings.
func NewTokenService(settings *conf.AuthSettings) (*TokenService, error) {
	if settings == nil || settings.Secret == "" {
		return nil, errors.Newf("auth secret is required").
			Component("auth").
			Category(errors.CategoryConfiguration).
			Build()
	}
	expiry := settings.Expiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &TokenService{
		secret: []byte(settings.Secret),
		issuer: settings.Issuer,
		expiry: expiry,
		now:    time.Now,
	}, nil
}

// Issue signs a token for userID valid for the configured expiry.
func (s *TokenService) Issue(userID, nickname string) (string, error) {
	if userID == "" {
		return "", errors.New(fmt.Errorf("%w: user id is required", errors.ErrInvalidInput)).
			Component("auth").
			Build()
	}
	now := s.now()
	claims := Claims{
		ID:       userID,
		Nickname: nickname,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", errors.New(err).
			Component("auth").
			Category(errors.CategoryAuth).
			Build()
	}
	return signed, nil
}

// Validate parses token and returns its claims. Every failure wraps
// errors.ErrNotAuthorized.
func (s *TokenService) Validate(token string) (*Claims, error) {
	if token == "" {
		return nil, notAuthorized(ReasonMissing, nil)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, notAuthorized(reasonFor(err), err)
	}
	if claims.ID == "" {
		return nil, notAuthorized(ReasonClaims, fmt.Errorf("token has no user id"))
	}
	return claims, nil
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ReasonSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ReasonMalformed
	default:
		return ReasonClaims
	}
}

// reasonError keeps the failure reason next to the wrapped cause.
type reasonError struct {
	reason string
	cause  error
}

func (e *reasonError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %s token", errors.ErrNotAuthorized, e.reason)
	}
	return fmt.Sprintf("%s: %s token: %v", errors.ErrNotAuthorized, e.reason, e.cause)
}

func (e *reasonError) Unwrap() []error {
	if e.cause == nil {
		return []error{errors.ErrNotAuthorized}
	}
	return []error{errors.ErrNotAuthorized, e.cause}
}

func notAuthorized(reason string, cause error) error {
	return &reasonError{reason: reason, cause: cause}
}

// Reason returns the failure reason of an error from Validate, or "" for
// other errors.
func Reason(err error) string {
	var re *reasonError
	if errors.As(err, &re) {
		return re.reason
	}
	return ""
}

type claimsKey struct{}

// WithClaims returns ctx carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims stored by WithClaims.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok && claims != nil
}
