// Package terminator ends authenticated sessions. Every path that logs the user out, on
// purpose or because the session can no longer be refreshed, goes through Terminate.
package terminator

import (
	"context"
	"strconv"
	"time"

	"github.com/jrsteele09/go-blog-session/internal/errors"
	"github.com/jrsteele09/go-blog-session/internal/metrics"
	"github.com/jrsteele09/go-blog-session/notify"
	"github.com/jrsteele09/go-blog-session/session"
	"github.com/jrsteele09/go-blog-session/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// BroadcastKey is written with the termination time and removed straight away. Other
// instances react to the write.
const BroadcastKey = "logout_broadcast"

const DefaultLoginPath = "/login"

type Reason string

const (
	ReasonLogout          Reason = "logout"
	ReasonRefreshFailed   Reason = "refresh failed"
	ReasonRefreshRejected Reason = "refresh rejected"
	ReasonSessionExpired  Reason = "session expired"
)

// Message is the text shown to the user.
func (r Reason) Message() string {
	switch r {
	case ReasonLogout:
		return "You have been logged out"
	case ReasonRefreshFailed, ReasonSessionExpired:
		return "Your session has expired, please log in again"
	case ReasonRefreshRejected:
		return "Your login is no longer valid, please log in again"
	default:
		return "You have been logged out"
	}
}

func (r Reason) level() notify.Level {
	if r == ReasonLogout {
		return notify.LevelSuccess
	}
	return notify.LevelError
}

type Options struct {
	// Remote asks the server to invalidate the session before it is cleared locally.
	Remote bool
}

type Terminator struct {
	store     *session.Store
	storage   storage.Storage
	notifier  notify.Notifier
	navigator notify.Navigator
	loginPath string
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	nowFunc   func() time.Time

	group singleflight.Group
}

type Option func(*Terminator)

func WithNotifier(n notify.Notifier) Option {
	return func(t *Terminator) {
		t.notifier = n
	}
}

func WithNavigator(n notify.Navigator) Option {
	return func(t *Terminator) {
		t.navigator = n
	}
}

func WithLoginPath(path string) Option {
	return func(t *Terminator) {
		if path != "" {
			t.loginPath = path
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(t *Terminator) {
		t.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Terminator) {
		t.metrics = m
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(t *Terminator) {
		t.nowFunc = now
	}
}

// New creates a Terminator for store. st must be the storage the store writes to, so the
// broadcast marker reaches the instances sharing it.
func New(store *session.Store, st storage.Storage, options ...Option) *Terminator {
	t := &Terminator{
		store:     store,
		storage:   st,
		loginPath: DefaultLoginPath,
		logger:    log.Logger,
		nowFunc:   time.Now,
	}
	for _, opt := range options {
		opt(t)
	}
	if t.notifier == nil {
		t.notifier = notify.LogNotifier{Logger: t.logger}
	}
	if t.navigator == nil {
		t.navigator = notify.NewLogNavigator()
	}
	return t
}

// Terminate clears the session, tells the user why, navigates to the login path and
// broadcasts the logout. Calls made while a termination is running share its result.
// The returned error only reports a storage failure; the session is cleared in memory regardless.
func (t *Terminator) Terminate(ctx context.Context, reason Reason, opts Options) error {
	_, err, _ := t.group.Do("terminate", func() (any, error) {
		return nil, t.terminate(context.WithoutCancel(ctx), reason, opts)
	})
	return err
}

func (t *Terminator) terminate(ctx context.Context, reason Reason, opts Options) error {
	t.metrics.Termination(string(reason))
	t.logger.Info().Str("reason", string(reason)).Bool("remote", opts.Remote).Msg("Terminating session")

	var err error
	if opts.Remote {
		err = t.store.Logout(ctx)
	} else {
		err = t.store.ClearLocal(ctx)
	}

	t.notifier.Notify(ctx, notify.Notification{Level: reason.level(), Message: reason.Message()})
	t.navigator.Navigate(ctx, t.loginPath)
	t.broadcast(ctx)

	return err
}

func (t *Terminator) broadcast(ctx context.Context) {
	marker := strconv.FormatInt(t.nowFunc().UnixMilli(), 10)
	if err := t.storage.Set(ctx, BroadcastKey, marker); err != nil {
		t.logger.Err(err).Msg("Failed to broadcast logout")
		return
	}
	if err := t.storage.Delete(ctx, BroadcastKey); err != nil {
		t.logger.Err(err).Msg("Failed to remove logout broadcast marker")
	}
}

// Listen reacts to logouts broadcast by other instances: the local session is cleared and
// the login path shown, then callback runs (if not nil). The server is not contacted and
// no notification is shown, since the instance that logged out already did both.
func (t *Terminator) Listen(ctx context.Context, callback func()) (stop func(), err error) {
	watcher, ok := t.storage.(storage.Watcher)
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnsupported, "Terminator.Listen: storage has no change feed")
	}

	return watcher.Watch(ctx, func(ev storage.Event) {
		if ev.Key != BroadcastKey || ev.Value == "" {
			return
		}
		t.logger.Debug().Str("source", ev.Source).Msg("Logout broadcast received")

		if err := t.store.ClearLocal(ctx); err != nil {
			t.logger.Err(err).Msg("Failed to clear session after logout broadcast")
		}
		t.navigator.Navigate(ctx, t.loginPath)
		if callback != nil {
			callback()
		}
	})
}
