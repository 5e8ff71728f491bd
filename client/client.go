// Package client wires the session components together behind one type. It is what a
// program embedding the blog client constructs.
package client

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/go-blog-session/api"
	"github.com/jrsteele09/go-blog-session/interceptor"
	"github.com/jrsteele09/go-blog-session/internal/config"
	"github.com/jrsteele09/go-blog-session/internal/errors"
	"github.com/jrsteele09/go-blog-session/internal/metrics"
	"github.com/jrsteele09/go-blog-session/notify"
	"github.com/jrsteele09/go-blog-session/session"
	"github.com/jrsteele09/go-blog-session/storage"
	"github.com/jrsteele09/go-blog-session/terminator"
	"github.com/jrsteele09/go-blog-session/token/jwt"
	"github.com/jrsteele09/go-blog-session/token/refresh"
	"github.com/jrsteele09/go-blog-session/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

type Client struct {
	config    config.Config
	storage   storage.Storage
	redis     *redis.Client
	notifier  notify.Notifier
	navigator notify.Navigator
	logger    zerolog.Logger
	nowFunc   func() time.Time

	httpClient *http.Client
	registerer prometheus.Registerer
	metrics    *metrics.Metrics

	api        *api.Client
	store      *session.Store
	refresh    *refresh.Coordinator
	terminator *terminator.Terminator
	pipeline   *interceptor.Pipeline
	inspector  *jwt.Inspector
}

type Option func(*Client)

// WithStorage overrides the storage backend selected by configuration.
func WithStorage(st storage.Storage) Option {
	return func(c *Client) {
		c.storage = st
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(c *Client) {
		c.notifier = n
	}
}

func WithNavigator(n notify.Navigator) Option {
	return func(c *Client) {
		c.navigator = n
	}
}

// WithRegisterer registers the client's metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Client) {
		c.registerer = reg
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(c *Client) {
		c.nowFunc = now
	}
}

func New(cfg config.Config, options ...Option) (*Client, error) {
	c := &Client{
		config:  cfg,
		logger:  log.Logger,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}

	if c.storage == nil {
		st, rdb, err := newStorage(cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "[client.New] failed to open %s storage", cfg.GetStorageBackend())
		}
		c.storage, c.redis = st, rdb
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: cfg.GetRequestTimeout()}
	}
	if c.notifier == nil {
		c.notifier = notify.LogNotifier{Logger: c.logger}
	}
	if c.navigator == nil {
		c.navigator = notify.NewLogNavigator()
	}
	c.metrics = metrics.New(c.registerer)

	c.api = api.NewClient(cfg.GetBaseURL(), c.httpClient)
	c.store = session.NewStore(c.storage,
		session.WithRevoker(c.api),
		session.WithLogger(c.logger),
		session.WithNowFunc(c.nowFunc),
	)
	c.refresh = refresh.New(c.store, c.api,
		refresh.WithTimeout(cfg.GetRefreshTimeout()),
		refresh.WithLogger(c.logger),
		refresh.WithMetrics(c.metrics),
	)
	c.terminator = terminator.New(c.store, c.storage,
		terminator.WithNotifier(c.notifier),
		terminator.WithNavigator(c.navigator),
		terminator.WithLoginPath(cfg.GetLoginPath()),
		terminator.WithLogger(c.logger),
		terminator.WithMetrics(c.metrics),
		terminator.WithNowFunc(c.nowFunc),
	)
	c.pipeline = interceptor.New(c.store, c.refresh, c.terminator,
		interceptor.WithHTTPClient(c.httpClient),
		interceptor.WithNotifier(c.notifier),
		interceptor.WithMaxRetries(cfg.GetMaxRetries()),
		interceptor.WithRetryBaseDelay(cfg.GetRetryBaseDelay()),
		interceptor.WithLogger(c.logger),
		interceptor.WithMetrics(c.metrics),
	)
	c.inspector = jwt.NewInspector(c.nowFunc)

	c.store.Load(context.Background())
	return c, nil
}

func newStorage(cfg config.StorageConfig) (storage.Storage, *redis.Client, error) {
	switch cfg.GetStorageBackend() {
	case config.StorageMemory:
		return storage.NewMemory(), nil, nil
	case config.StorageRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.GetRedisAddr()})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, err
		}
		return storage.NewRedis(rdb, cfg.GetRedisPrefix()), rdb, nil
	default:
		return storage.NewFile(cfg.GetTokenFile()), nil, nil
	}
}

// Close releases the storage connection, if any.
func (c *Client) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}

// Login authenticates with username and password and starts a session.
func (c *Client) Login(ctx context.Context, username, password string) (*users.User, error) {
	data, err := c.api.Login(ctx, username, password)
	if err != nil {
		apiErr := api.Normalize(err)
		c.notifier.Notify(ctx, notify.Notification{Level: notify.LevelError, Message: apiErr.Message})
		return nil, err
	}

	if err := c.store.Login(ctx, data.User, data.AccessToken, data.RefreshToken, data.ExpiresIn); err != nil {
		return nil, err
	}

	c.logger.Info().Uint("userID", data.User.ID).Str("username", data.User.Username).Msg("Logged in")
	c.notifier.Notify(ctx, notify.Notification{Level: notify.LevelSuccess, Message: "Welcome back, " + data.User.DisplayName()})
	return data.User.Clone(), nil
}

// Logout ends the session on the server and locally.
func (c *Client) Logout(ctx context.Context) error {
	return c.terminator.Terminate(ctx, terminator.ReasonLogout, terminator.Options{Remote: true})
}

// ForceLogout ends the session locally only, e.g. when the server is unreachable.
func (c *Client) ForceLogout(ctx context.Context, reason terminator.Reason) error {
	return c.terminator.Terminate(ctx, reason, terminator.Options{})
}

func (c *Client) Session() session.Session {
	return c.store.Snapshot()
}

func (c *Client) Validation() session.Validation {
	return session.Evaluate(c.store.Snapshot(), c.store.Now())
}

// Subscribe calls fn after every session change.
func (c *Client) Subscribe(fn func(session.Session)) (unsubscribe func()) {
	return c.store.Subscribe(fn)
}

// UpdateUser replaces the cached user, e.g. after the profile was edited.
func (c *Client) UpdateUser(ctx context.Context, user *users.User) error {
	return c.store.UpdateUser(ctx, user)
}

// EnsureValid returns a usable access token, refreshing it if needed.
func (c *Client) EnsureValid(ctx context.Context) (string, error) {
	return c.refresh.EnsureValid(ctx)
}

// Do sends req through the request pipeline. See interceptor.Pipeline.Do.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.pipeline.Do(ctx, req)
}

// Send builds and sends a request, retrying once after a token refresh.
func (c *Client) Send(ctx context.Context, newRequest func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	return c.pipeline.Send(ctx, newRequest)
}

// Listen reacts to logouts made by other clients sharing the same storage.
func (c *Client) Listen(ctx context.Context, callback func()) (stop func(), err error) {
	return c.terminator.Listen(ctx, callback)
}

// URL resolves an API path against the configured base URL.
func (c *Client) URL(path string) string {
	return c.api.URL(path)
}

// TokenSource exposes the session as an oauth2.TokenSource.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return c.refresh.TokenSource(ctx)
}

// HTTPClient returns an *http.Client that authenticates every request with the session's
// token. Unlike Do, responses are not inspected.
func (c *Client) HTTPClient(ctx context.Context) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return oauth2.NewClient(ctx, c.TokenSource(ctx))
}

func (c *Client) Metrics() *metrics.Metrics {
	return c.metrics
}
