// Package auth validates bearer tokens for roster mutations.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Scopes understood by the roster API.
const (
	// ScopeRosterWrite grants signup and withdrawal on behalf of any student.
	ScopeRosterWrite = "roster:write"
	// ScopeRosterSelf grants signup and withdrawal for the token's own email.
	ScopeRosterSelf = "roster:self"
)

// Config holds signer verification parameters.
type Config struct {
	Secret string
	Issuer string
}

// Claims represents the payload extracted from a JWT.
type Claims struct {
	Subject   string
	Email     string
	Scopes    map[string]struct{}
	ExpiresAt time.Time
}

// ErrMissingToken is returned when the Authorization header is absent.
var ErrMissingToken = errors.New("missing bearer token")

// ErrInvalidToken wraps parsing/validation errors.
var ErrInvalidToken = errors.New("invalid bearer token")

// tokenClaims is the signed payload issued by the school identity service.
type tokenClaims struct {
	jwt.RegisteredClaims
	Email  string    `json:"email"`
	Scopes scopeList `json:"scopes"`
}

// scopeList accepts scopes as a JSON array or an OAuth-style space separated string.
type scopeList []string

func (s *scopeList) UnmarshalJSON(data []byte) error {
	var joined string
	if err := json.Unmarshal(data, &joined); err == nil {
		*s = strings.Fields(joined)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("scopes: %w", err)
	}
	*s = list
	return nil
}

// Parse validates a JWT and returns normalized claims.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	var payload tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &payload, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, jwt.WithIssuer(cfg.Issuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || payload.Subject == "" {
		return nil, ErrInvalidToken
	}

	scopes := make(map[string]struct{}, len(payload.Scopes))
	for _, scope := range payload.Scopes {
		if scope != "" {
			scopes[scope] = struct{}{}
		}
	}

	return &Claims{
		Subject:   payload.Subject,
		Email:     strings.TrimSpace(payload.Email),
		Scopes:    scopes,
		ExpiresAt: payload.ExpiresAt.Time,
	}, nil
}

// CanActFor reports whether the token may change the roster entry for email.
// Self-scoped tokens only match their own address, compared exactly as the
// roster stores it.
func (c *Claims) CanActFor(email string) bool {
	if c.HasScope(ScopeRosterWrite) {
		return true
	}
	return c.HasScope(ScopeRosterSelf) && c.Email != "" && c.Email == email
}

// HasScope reports whether the claim set includes the provided scope.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Scopes[scope]
	return ok
}

type contextKey string

const claimsKey contextKey = "roster-auth-claims"

// WithClaims stores claims on the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// FromContext retrieves claims stored by WithClaims.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}
