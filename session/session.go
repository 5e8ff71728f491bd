// Package session owns the client's authenticated session: the in-memory snapshot,
// its write-through persistence, and the expiry rules used to decide when to refresh.
package session

import (
	"time"

	"github.com/jrsteele09/go-blog-session/users"
	"golang.org/x/oauth2"
)

// Durable storage keys. All four must be present for a stored session to load as authenticated.
const (
	KeyAccessToken  = "auth_access_token"
	KeyRefreshToken = "auth_refresh_token"
	KeyUser         = "auth_user"
	KeyExpiresAt    = "auth_expires_at"
)

var persistedKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUser, KeyExpiresAt}

// Session is a snapshot of the authentication state. The zero value is the logged-out session.
type Session struct {
	IsAuthenticated bool        // True iff AccessToken, RefreshToken and User are all present
	User            *users.User // Display snapshot, not authoritative
	AccessToken     string      // Short-lived bearer credential
	RefreshToken    string      // Long-lived credential used only at auth/refresh
	ExpiresAt       time.Time   // Absolute expiry of AccessToken, millisecond precision; zero if absent
}

func (s Session) clone() Session {
	s.User = s.User.Clone()
	return s
}

// OAuth2Token converts the session into an oauth2.Token for use with oauth2 transports.
func (s Session) OAuth2Token() *oauth2.Token {
	if !s.IsAuthenticated {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken,
		Expiry:       s.ExpiresAt,
	}
}

// expiryFrom computes issueTime + expiresIn, truncated to milliseconds so the value
// survives the epoch-millisecond round trip through storage unchanged.
func expiryFrom(issued time.Time, expiresIn int64) time.Time {
	return time.UnixMilli(issued.Add(time.Duration(expiresIn) * time.Second).UnixMilli())
}
