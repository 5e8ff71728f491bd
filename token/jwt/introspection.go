package jwt

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-blog-session/internal/errors"
)

// TokenIntrospection is what can be read from a token payload without verifying it.
// It is only suitable for display and expiry estimation; the server stays the
// authority on whether a token is accepted.
type TokenIntrospection struct {
	Active    bool      `json:"active"`               // Payload parsed and exp is in the future
	UserID    uint      `json:"user_id,omitempty"`    // "u" or "user_id" claim
	Username  string    `json:"username,omitempty"`   // "username" claim, when present
	TokenType string    `json:"token_type,omitempty"` // "token_type" claim, when present
	Subject   string    `json:"sub,omitempty"`        // Standard subject
	IssuedAt  time.Time `json:"iat,omitempty"`        // Issued at time
	ExpiresAt time.Time `json:"exp,omitempty"`        // Expiration
}

var ErrMalformedToken = errors.New("malformed token")

// compactHeader is the HS256 header the blog server strips from the tokens it issues.
// Payload-only tokens get it back before parsing.
const compactHeader = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9"

// Inspector reads token payloads
type Inspector struct {
	nowFunc func() time.Time
}

func NewInspector(nowFunc func() time.Time) *Inspector {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &Inspector{nowFunc: nowFunc}
}

// Introspect parses rawToken without checking its signature.
func (i *Inspector) Introspect(rawToken string) (*TokenIntrospection, error) {
	if strings.TrimSpace(rawToken) == "" {
		return &TokenIntrospection{Active: false}, nil
	}

	if !strings.Contains(rawToken, ".") {
		rawToken = compactHeader + "." + rawToken + "."
	}

	token, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return &TokenIntrospection{Active: false}, errors.Join(ErrMalformedToken, err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return &TokenIntrospection{Active: false}, ErrMalformedToken
	}

	result := &TokenIntrospection{}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		result.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		result.IssuedAt = iat.Time
	}
	result.Subject, _ = claims.GetSubject()
	result.Username, _ = claims["username"].(string)
	result.TokenType, _ = claims["token_type"].(string)

	for _, name := range []string{"u", "user_id", "uid"} {
		if id, ok := claims[name].(float64); ok {
			result.UserID = uint(id)
			break
		}
	}

	result.Active = !result.ExpiresAt.IsZero() && i.nowFunc().Before(result.ExpiresAt)
	return result, nil
}

// ExpiringWithin reports whether the token expires within d. Tokens whose payload
// can't be read, or that carry no exp, are treated as expiring.
func (i *Inspector) ExpiringWithin(rawToken string, d time.Duration) bool {
	info, err := i.Introspect(rawToken)
	if err != nil || info.ExpiresAt.IsZero() {
		return true
	}
	return !info.ExpiresAt.After(i.nowFunc().Add(d))
}
