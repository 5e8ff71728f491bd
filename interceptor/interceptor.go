// Package interceptor sends API requests on behalf of the session: it attaches the bearer
// token, refreshes it when needed, recognises rejected tokens and retries transient failures.
package interceptor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-blog-session/api"
	"github.com/jrsteele09/go-blog-session/internal/errors"
	"github.com/jrsteele09/go-blog-session/internal/metrics"
	"github.com/jrsteele09/go-blog-session/notify"
	"github.com/jrsteele09/go-blog-session/session"
	"github.com/jrsteele09/go-blog-session/terminator"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrRetryWithRefreshedToken is returned by Do when the server rejected the token and a
// new one has been obtained. The caller may send the request again, once.
var ErrRetryWithRefreshedToken = errors.New("token refreshed, retry request")

const (
	RequestIDHeader = "X-Request-ID"

	DefaultMaxRetries     = 2
	DefaultRetryBaseDelay = 300 * time.Millisecond

	maxPeekBytes = 1 << 20
)

// tokenErrorSignatures identify a 401 caused by the token rather than by permissions.
// The last two are the blog server's "invalid token" and "no token provided" messages.
var tokenErrorSignatures = []string{
	"invalid token",
	"token expired",
	"unauthorized",
	"无效的认证令牌",
	"未提供认证令牌",
}

var transientStatuses = map[int]bool{
	http.StatusRequestTimeout:        true,
	http.StatusRequestEntityTooLarge: true,
	http.StatusTooManyRequests:       true,
	http.StatusInternalServerError:   true,
	http.StatusBadGateway:            true,
	http.StatusServiceUnavailable:    true,
	http.StatusGatewayTimeout:        true,
}

var idempotentMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodPut:     true,
	http.MethodHead:    true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

// Refresher is the part of refresh.Coordinator the pipeline uses.
type Refresher interface {
	EnsureValid(ctx context.Context) (string, error)
	Renew(ctx context.Context, rejectedToken string) (string, error)
}

// Terminator is the part of terminator.Terminator the pipeline uses.
type Terminator interface {
	Terminate(ctx context.Context, reason terminator.Reason, opts terminator.Options) error
}

type Pipeline struct {
	httpClient  *http.Client
	store       *session.Store
	refresher   Refresher
	terminator  Terminator
	notifier    notify.Notifier
	refreshPath string
	maxRetries  int
	baseDelay   time.Duration
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Pipeline)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.httpClient = c
		}
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(p *Pipeline) {
		p.notifier = n
	}
}

// WithRefreshPath sets the path suffix identifying the refresh endpoint.
func WithRefreshPath(path string) Option {
	return func(p *Pipeline) {
		p.refreshPath = path
	}
}

func WithMaxRetries(n int) Option {
	return func(p *Pipeline) {
		if n >= 0 {
			p.maxRetries = n
		}
	}
}

func WithRetryBaseDelay(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.baseDelay = d
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func New(store *session.Store, refresher Refresher, term Terminator, options ...Option) *Pipeline {
	p := &Pipeline{
		httpClient:  http.DefaultClient,
		store:       store,
		refresher:   refresher,
		terminator:  term,
		refreshPath: api.PathRefresh,
		maxRetries:  DefaultMaxRetries,
		baseDelay:   DefaultRetryBaseDelay,
		logger:      log.Logger,
	}
	for _, opt := range options {
		opt(p)
	}
	if p.notifier == nil {
		p.notifier = notify.LogNotifier{Logger: p.logger}
	}
	return p
}

// Do sends req with the session's credentials. A successful response is returned as is.
// Failures are returned as errors and the response body is already closed:
//   - ErrRetryWithRefreshedToken: the token was rejected and has been renewed.
//   - errors.ErrSessionExpired: the token was rejected and could not be renewed; the
//     session has been terminated.
//   - *api.Error: any other non-2xx response, a 2xx envelope carrying a failure code,
//     or a 401 unrelated to the token (wrapping errors.ErrAccessDenied). The user has
//     been notified.
func (p *Pipeline) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.Clone(ctx)
	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, uuid.NewString())
	}

	token, err := p.credential(ctx)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := p.dispatch(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		apiErr := api.NewError(0, "network error, please check your connection", err)
		p.notifyError(ctx, apiErr.Message)
		return nil, apiErr
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		code, message, ok, err := peekEnvelope(resp)
		if err != nil {
			return nil, err
		}
		if !ok || code == api.CodeSuccess {
			return resp, nil
		}
		resp.Body.Close()
		if code == http.StatusUnauthorized {
			return nil, p.unauthorized(ctx, req, token, message)
		}
		apiErr := api.NewError(code, message, nil)
		p.notifyError(ctx, apiErr.Message)
		return nil, apiErr
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxPeekBytes))
	resp.Body.Close()

	_, message, ok := api.PeekCode(raw)
	if !ok {
		message = strings.TrimSpace(string(raw))
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, p.unauthorized(ctx, req, token, message)
	}

	if !ok {
		// Not an envelope: the body is likely an HTML error page, use the status text.
		message = ""
	}
	apiErr := api.NewError(resp.StatusCode, message, nil)
	p.notifyError(ctx, apiErr.Message)
	return nil, apiErr
}

// Send builds a request with newRequest and sends it through Do. When the token is
// rejected and renewed, the request is built and sent once more; a second rejection in
// a row terminates the session.
func (p *Pipeline) Send(ctx context.Context, newRequest func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	resp, err := p.send(ctx, newRequest)
	if !errors.Is(err, ErrRetryWithRefreshedToken) {
		return resp, err
	}
	p.logger.Debug().Msg("Retrying request with refreshed token")
	return p.send(context.WithValue(ctx, lastAttemptKey{}, true), newRequest)
}

type lastAttemptKey struct{}

func (p *Pipeline) send(ctx context.Context, newRequest func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	req, err := newRequest(ctx)
	if err != nil {
		return nil, err
	}
	return p.Do(ctx, req)
}

// credential returns the token to attach, refreshing first when it is about to expire.
// A failed refresh terminates the session and the request goes out unauthenticated.
func (p *Pipeline) credential(ctx context.Context) (string, error) {
	current := p.store.Snapshot()
	if !session.ShouldRefresh(current, p.store.Now()) {
		return current.AccessToken, nil
	}

	token, err := p.refresher.EnsureValid(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		p.logger.Warn().Err(err).Msg("Pre-flight refresh failed, sending request without credentials")
		p.terminate(ctx, refreshFailureReason(err))
		return "", nil
	}
	return token, nil
}

func (p *Pipeline) unauthorized(ctx context.Context, req *http.Request, token, message string) error {
	if !isTokenError(message) {
		apiErr := api.NewError(http.StatusUnauthorized, message, errors.ErrAccessDenied)
		p.notifyError(ctx, apiErr.Message)
		return apiErr
	}

	if p.isRefreshEndpoint(req) {
		p.terminate(ctx, terminator.ReasonRefreshRejected)
		return errors.Wrapf(errors.ErrSessionExpired, "refresh rejected: %s", message)
	}

	if ctx.Value(lastAttemptKey{}) != nil {
		p.terminate(ctx, terminator.ReasonSessionExpired)
		return errors.Wrapf(errors.ErrSessionExpired, "%s %s rejected after token refresh", req.Method, req.URL.Path)
	}

	if _, err := p.refresher.Renew(ctx, token); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.terminate(ctx, refreshFailureReason(err))
		return fmt.Errorf("%w: %w", errors.ErrSessionExpired, err)
	}
	return ErrRetryWithRefreshedToken
}

// refreshFailureReason tells a refresh token the server rejected apart from any other failure.
func refreshFailureReason(err error) terminator.Reason {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return terminator.ReasonRefreshRejected
	}
	return terminator.ReasonRefreshFailed
}

func (p *Pipeline) terminate(ctx context.Context, reason terminator.Reason) {
	if err := p.terminator.Terminate(ctx, reason, terminator.Options{}); err != nil {
		p.logger.Err(err).Str("reason", string(reason)).Msg("Session termination incomplete")
	}
}

func (p *Pipeline) notifyError(ctx context.Context, message string) {
	p.notifier.Notify(ctx, notify.Notification{Level: notify.LevelError, Message: message})
}

func (p *Pipeline) isRefreshEndpoint(req *http.Request) bool {
	return p.refreshPath != "" && strings.HasSuffix(req.URL.Path, "/"+strings.TrimPrefix(p.refreshPath, "/"))
}

// dispatch sends req, re-sending idempotent requests that fail with a transient status.
func (p *Pipeline) dispatch(ctx context.Context, req *http.Request) (*http.Response, error) {
	if p.maxRetries == 0 || !idempotentMethods[req.Method] || (req.Body != nil && req.GetBody == nil) {
		return p.httpClient.Do(req)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.baseDelay
	policy.MaxElapsedTime = 0
	policy.Reset()

	var resp *http.Response
	attempt := 0
	err := backoff.Retry(func() error {
		if attempt > 0 {
			p.metrics.Retry(req.Method)
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return backoff.Permanent(err)
				}
				req.Body = body
			}
		}
		attempt++

		r, err := p.httpClient.Do(req)
		if err != nil {
			return backoff.Permanent(err)
		}
		if transientStatuses[r.StatusCode] && attempt <= p.maxRetries {
			_, _ = io.Copy(io.Discard, r.Body)
			r.Body.Close()
			p.logger.Debug().Int("status", r.StatusCode).Int("attempt", attempt).Str("path", req.URL.Path).Msg("Transient failure, retrying")
			return fmt.Errorf("transient status %d", r.StatusCode)
		}
		resp = r
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(p.maxRetries)), ctx))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// peekEnvelope reads the envelope code of a JSON 2xx response, leaving the body readable.
// The blog server reports authentication failures as HTTP 200 with code 401.
// ok is false when the body is not an envelope.
func peekEnvelope(resp *http.Response) (code int, message string, ok bool, err error) {
	if !strings.Contains(resp.Header.Get("Content-Type"), "json") {
		return 0, "", false, nil
	}

	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return 0, "", false, errors.Wrapf(errors.ErrInvalidResponse, "read response: %v", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(raw))

	code, message, ok = api.PeekCode(raw)
	return code, message, ok, nil
}

func isTokenError(message string) bool {
	lower := strings.ToLower(message)
	for _, sig := range tokenErrorSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}
