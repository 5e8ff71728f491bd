package client

import (
	"context"
	"net/url"

	"github.com/jrsteele09/go-blog-session/session"
	"github.com/jrsteele09/go-blog-session/users"
)

// Navigation targets used by the guards.
const (
	HomePath         = "/"
	UnauthorizedPath = "/unauthorized"
)

// RequireAuth reports whether a valid session exists, refreshing a token that is about to
// expire. Otherwise it navigates to the login path, carrying redirectTo when set.
func (c *Client) RequireAuth(ctx context.Context, redirectTo string) bool {
	if c.validNow() {
		return true
	}
	if session.ShouldRefresh(c.store.Snapshot(), c.store.Now()) {
		if _, err := c.refresh.EnsureValid(ctx); err == nil {
			return true
		}
	}

	target := c.config.GetLoginPath()
	if redirectTo != "" {
		target += "?redirect=" + url.QueryEscape(redirectTo)
	}
	c.navigator.Navigate(ctx, target)
	return false
}

// RequireGuest is for pages only logged-out users should see, such as the login page. It
// navigates home and returns true when a valid session exists.
func (c *Client) RequireGuest(ctx context.Context) bool {
	if !c.validNow() {
		return false
	}
	c.navigator.Navigate(ctx, HomePath)
	return true
}

// RequireAdmin is RequireAuth plus a role check against the cached user.
func (c *Client) RequireAdmin(ctx context.Context, redirectTo string) bool {
	if !c.RequireAuth(ctx, redirectTo) {
		return false
	}
	if !c.store.User().CanAccessAdmin() {
		c.navigator.Navigate(ctx, UnauthorizedPath)
		return false
	}
	return true
}

// OptionalAuth refreshes a token that is about to expire but never navigates.
func (c *Client) OptionalAuth(ctx context.Context) (bool, *users.User) {
	if session.ShouldRefresh(c.store.Snapshot(), c.store.Now()) {
		if _, err := c.refresh.EnsureValid(ctx); err != nil {
			c.logger.Debug().Err(err).Msg("OptionalAuth: refresh failed")
		}
	}
	if !c.validNow() {
		return false, nil
	}
	return true, c.store.User()
}

func (c *Client) validNow() bool {
	return session.IsValid(c.store.Snapshot(), c.store.Now())
}
