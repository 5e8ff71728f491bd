package client

import (
	"time"

	"github.com/jrsteele09/go-blog-session/session"
	"github.com/jrsteele09/go-blog-session/token/jwt"
)

// Status describes the access token as read from its own payload. It can disagree with
// the session's stored expiry when the server clock or token lifetime changed.
type Status struct {
	IsAuthenticated bool
	TokenValid      bool
	NeedsRefresh    bool
	ExpiresAt       time.Time
	Token           *jwt.TokenIntrospection
}

func (c *Client) Status() Status {
	current := c.store.Snapshot()
	if current.AccessToken == "" || current.RefreshToken == "" {
		return Status{}
	}

	status := Status{
		IsAuthenticated: true,
		NeedsRefresh:    c.inspector.ExpiringWithin(current.AccessToken, session.Skew),
	}
	info, err := c.inspector.Introspect(current.AccessToken)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Access token payload unreadable")
		return status
	}
	status.TokenValid = info.Active
	status.ExpiresAt = info.ExpiresAt
	status.Token = info
	return status
}
