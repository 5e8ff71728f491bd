// Package refresh keeps the access token fresh. However many requests need a new token at
// once, at most one refresh call is in flight and every caller shares its outcome.
package refresh

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-blog-session/api"
	"github.com/jrsteele09/go-blog-session/internal/errors"
	"github.com/jrsteele09/go-blog-session/internal/metrics"
	"github.com/jrsteele09/go-blog-session/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds a single refresh call.
const DefaultTimeout = 10 * time.Second

const flightKey = "refresh"

// Refresher exchanges a refresh token for new tokens. api.Client implements it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*api.TokenData, error)
}

// Coordinator serializes token refreshes for a session.Store.
type Coordinator struct {
	store     *session.Store
	refresher Refresher
	timeout   time.Duration
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	group    singleflight.Group
	inFlight atomic.Bool
}

type Option func(*Coordinator)

func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func New(store *session.Store, refresher Refresher, options ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		refresher: refresher,
		timeout:   DefaultTimeout,
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// EnsureValid returns an access token that is not about to expire. A valid token is returned
// without any network call; otherwise the caller joins the refresh in flight or starts one.
//
// ctx only bounds this caller's wait. The refresh itself runs under its own timeout, so a
// caller giving up never fails the others waiting on the same refresh.
func (c *Coordinator) EnsureValid(ctx context.Context) (string, error) {
	current := c.store.Snapshot()
	if session.IsValid(current, c.store.Now()) {
		return current.AccessToken, nil
	}
	return c.join(ctx)
}

// Renew is called after the server rejected rejectedToken. If the session already holds a
// different token, another request refreshed in the meantime and that token is returned.
// Otherwise a refresh is joined or started even though the clock says the token is valid.
func (c *Coordinator) Renew(ctx context.Context, rejectedToken string) (string, error) {
	current := c.store.Snapshot()
	if current.IsAuthenticated && current.AccessToken != "" && current.AccessToken != rejectedToken {
		return current.AccessToken, nil
	}
	return c.join(ctx)
}

// InFlight reports whether a refresh call is currently running.
func (c *Coordinator) InFlight() bool {
	return c.inFlight.Load()
}

func (c *Coordinator) join(ctx context.Context) (string, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		return c.refresh(detached)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Coordinator) refresh(ctx context.Context) (string, error) {
	c.inFlight.Store(true)
	defer c.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	refreshToken := c.store.RefreshToken()
	if refreshToken == "" {
		return "", c.fail(ctx, errors.ErrNoRefreshToken)
	}

	data, err := c.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		return "", c.fail(ctx, err)
	}

	if err := c.store.UpdateTokens(ctx, data.AccessToken, data.RefreshToken, data.ExpiresIn); err != nil {
		return "", c.fail(ctx, err)
	}

	c.metrics.Refresh(metrics.RefreshSuccess)
	c.logger.Debug().Int64("expiresIn", data.ExpiresIn).Msg("Access token refreshed")
	return data.AccessToken, nil
}

// fail clears the local session and returns the error every waiter receives.
func (c *Coordinator) fail(ctx context.Context, cause error) error {
	c.metrics.Refresh(metrics.RefreshFailure)
	c.logger.Err(cause).Msg("Token refresh failed, clearing local session")

	// The refresh timeout may be what failed; clearing must still reach storage.
	if err := c.store.ClearLocal(context.WithoutCancel(ctx)); err != nil {
		c.logger.Err(err).Msg("Failed to clear session after refresh failure")
	}
	return fmt.Errorf("%w: %w", errors.ErrRefreshFailed, cause)
}

// TokenSource adapts the coordinator to oauth2.TokenSource, so an oauth2.Transport
// attaches a fresh bearer token to every request it sends.
func (c *Coordinator) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSource{ctx: ctx, c: c}
}

type tokenSource struct {
	ctx context.Context
	c   *Coordinator
}

func (ts tokenSource) Token() (*oauth2.Token, error) {
	accessToken, err := ts.c.EnsureValid(ts.ctx)
	if err != nil {
		return nil, err
	}
	tok := ts.c.store.Snapshot().OAuth2Token()
	if tok == nil {
		return nil, errors.ErrNotAuthenticated
	}
	tok.AccessToken = accessToken
	return tok, nil
}
