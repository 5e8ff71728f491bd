package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jrsteele09/go-blog-session/internal/errors"
	"github.com/jrsteele09/go-blog-session/storage"
	"github.com/jrsteele09/go-blog-session/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Revoker invalidates a session on the server.
type Revoker interface {
	Logout(ctx context.Context, accessToken string) error
}

// Store is the only writer of the session. Every mutation is written to storage before the
// in-memory snapshot is replaced, and subscribers are notified in mutation order.
type Store struct {
	storage storage.Storage
	revoker Revoker
	logger  zerolog.Logger
	nowFunc func() time.Time

	mu       sync.RWMutex
	current  Session
	hydrated bool

	subMu       sync.Mutex
	subscribers []subscriber
	nextSubID   int
	notifyMu    sync.Mutex
}

type subscriber struct {
	id int
	fn func(Session)
}

type StoreOption func(*Store)

// WithRevoker sets the remote logout used by Logout.
func WithRevoker(r Revoker) StoreOption {
	return func(s *Store) {
		s.revoker = r
	}
}

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

func WithNowFunc(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowFunc = now
	}
}

func NewStore(st storage.Storage, options ...StoreOption) *Store {
	s := &Store{
		storage: st,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.nowFunc == nil {
		s.nowFunc = time.Now
	}
	return s
}

// Load hydrates the in-memory session from storage. It never fails: missing, partial or
// corrupt data loads as the empty session.
func (s *Store) Load(ctx context.Context) Session {
	loaded := s.read(ctx)

	s.mu.Lock()
	s.current = loaded
	s.hydrated = true
	s.mu.Unlock()

	return loaded.clone()
}

// Snapshot returns a copy of the current session, hydrating from storage on first use.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	if s.hydrated {
		current := s.current.clone()
		s.mu.RUnlock()
		return current
	}
	s.mu.RUnlock()
	return s.Load(context.Background())
}

func (s *Store) AccessToken() string {
	return s.Snapshot().AccessToken
}

func (s *Store) RefreshToken() string {
	return s.Snapshot().RefreshToken
}

func (s *Store) User() *users.User {
	return s.Snapshot().User
}

// Now is the store's clock, shared with the components that evaluate expiry.
func (s *Store) Now() time.Time {
	return s.nowFunc()
}

// Login replaces the whole session. expiresIn is the access token lifetime in seconds.
func (s *Store) Login(ctx context.Context, user *users.User, accessToken, refreshToken string, expiresIn int64) error {
	if user == nil || accessToken == "" || refreshToken == "" {
		return errors.Wrapf(errors.ErrIncompleteSession, "Store.Login")
	}

	next := Session{
		IsAuthenticated: true,
		User:            user.Clone(),
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		ExpiresAt:       expiryFrom(s.nowFunc(), expiresIn),
	}

	return s.mutate(func(Session) (Session, error) {
		rawUser, err := json.Marshal(next.User)
		if err != nil {
			return Session{}, err
		}
		if err := s.write(ctx, map[string]string{
			KeyAccessToken:  next.AccessToken,
			KeyRefreshToken: next.RefreshToken,
			KeyUser:         string(rawUser),
			KeyExpiresAt:    strconv.FormatInt(next.ExpiresAt.UnixMilli(), 10),
		}); err != nil {
			return Session{}, errors.Wrapf(err, "Store.Login")
		}
		return next, nil
	})
}

// UpdateTokens replaces the tokens and expiry after a refresh. The user is untouched.
// An empty refreshToken keeps the current one, for servers that don't rotate refresh tokens.
func (s *Store) UpdateTokens(ctx context.Context, accessToken, refreshToken string, expiresIn int64) error {
	if accessToken == "" {
		return errors.Wrapf(errors.ErrIncompleteSession, "Store.UpdateTokens")
	}

	return s.mutate(func(current Session) (Session, error) {
		if !current.IsAuthenticated {
			return Session{}, errors.Wrapf(errors.ErrNotAuthenticated, "Store.UpdateTokens")
		}

		next := current
		next.AccessToken = accessToken
		if refreshToken != "" {
			next.RefreshToken = refreshToken
		}
		next.ExpiresAt = expiryFrom(s.nowFunc(), expiresIn)

		if err := s.write(ctx, map[string]string{
			KeyAccessToken:  next.AccessToken,
			KeyRefreshToken: next.RefreshToken,
			KeyExpiresAt:    strconv.FormatInt(next.ExpiresAt.UnixMilli(), 10),
		}); err != nil {
			return Session{}, errors.Wrapf(err, "Store.UpdateTokens")
		}
		return next, nil
	})
}

// UpdateUser replaces the user snapshot, e.g. after a profile edit.
func (s *Store) UpdateUser(ctx context.Context, user *users.User) error {
	if user == nil {
		return errors.Wrapf(errors.ErrIncompleteSession, "Store.UpdateUser")
	}

	return s.mutate(func(current Session) (Session, error) {
		if !current.IsAuthenticated {
			return Session{}, errors.Wrapf(errors.ErrNotAuthenticated, "Store.UpdateUser")
		}

		next := current
		next.User = user.Clone()

		rawUser, err := json.Marshal(next.User)
		if err != nil {
			return Session{}, err
		}
		if err := s.write(ctx, map[string]string{KeyUser: string(rawUser)}); err != nil {
			return Session{}, errors.Wrapf(err, "Store.UpdateUser")
		}
		return next, nil
	})
}

// ClearLocal resets the session and erases it from storage without contacting the server.
// The in-memory session is always reset; a storage failure is returned afterwards.
func (s *Store) ClearLocal(ctx context.Context) error {
	var storageErr error
	_ = s.mutate(func(Session) (Session, error) {
		if err := s.storage.Delete(ctx, persistedKeys...); err != nil {
			s.logger.Err(err).Msg("Failed to erase persisted session")
			storageErr = errors.Wrapf(err, "Store.ClearLocal")
		}
		return Session{}, nil
	})
	return storageErr
}

// Logout asks the server to invalidate the session, then clears it locally. The remote
// call is best effort: its failure is logged and local clearing always happens.
func (s *Store) Logout(ctx context.Context) error {
	if accessToken := s.AccessToken(); accessToken != "" && s.revoker != nil {
		if err := s.revoker.Logout(ctx, accessToken); err != nil {
			s.logger.Err(err).Msg("Logout: remote invalidation failed, clearing local session")
		}
	}
	return s.ClearLocal(ctx)
}

// Subscribe registers fn to be called synchronously after every mutation, in registration
// order. fn must not mutate the store.
func (s *Store) Subscribe(fn func(Session)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: fn})
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			for i, sub := range s.subscribers {
				if sub.id == id {
					s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// mutate applies fn to the hydrated session under the write lock. When fn succeeds its
// result becomes current and subscribers see it before any later mutation's result.
// When fn fails with errSessionErased the empty session becomes current instead.
func (s *Store) mutate(fn func(current Session) (Session, error)) error {
	s.mu.Lock()
	if !s.hydrated {
		s.current = s.read(context.Background())
		s.hydrated = true
	}

	next, err := fn(s.current.clone())
	if errors.Is(err, errSessionErased) {
		next = Session{}
	} else if err != nil {
		s.mu.Unlock()
		return err
	}
	s.current = next

	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.subMu.Lock()
	subs := make([]subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(next.clone())
	}
	return err
}

// errSessionErased reports a failed write whose rollback also failed. The persisted
// session has been erased, so the in-memory one must be reset to match.
var errSessionErased = errors.New("persisted session erased")

// write stores values, all or nothing. When a Set fails the keys touched so far get their
// previous values back; if that fails too, every persisted key is erased.
func (s *Store) write(ctx context.Context, values map[string]string) error {
	previous := make(map[string]string, len(values))
	for _, key := range persistedKeys {
		if _, ok := values[key]; !ok {
			continue
		}
		value, err := s.storage.Get(ctx, key)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return err
		}
		if err == nil {
			previous[key] = value
		}
	}

	var touched []string
	for _, key := range persistedKeys {
		value, ok := values[key]
		if !ok {
			continue
		}
		touched = append(touched, key)
		if err := s.storage.Set(ctx, key, value); err != nil {
			return s.rollback(ctx, err, touched, previous)
		}
	}
	return nil
}

func (s *Store) rollback(ctx context.Context, cause error, touched []string, previous map[string]string) error {
	var err error
	for _, key := range touched {
		if value, ok := previous[key]; ok {
			err = s.storage.Set(ctx, key, value)
		} else {
			err = s.storage.Delete(ctx, key)
		}
		if err != nil {
			break
		}
	}
	if err == nil {
		return cause
	}

	s.logger.Err(err).Msg("Failed to restore persisted session, erasing it")
	if delErr := s.storage.Delete(ctx, persistedKeys...); delErr != nil {
		s.logger.Err(delErr).Msg("Failed to erase persisted session")
		err = errors.Join(err, delErr)
	}
	return fmt.Errorf("%w: %w", errSessionErased, errors.Join(cause, err))
}

func (s *Store) read(ctx context.Context) Session {
	values := make(map[string]string, len(persistedKeys))
	for _, key := range persistedKeys {
		value, err := s.storage.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, errors.ErrNotFound) {
				s.logger.Warn().Err(err).Str("key", key).Msg("Failed to read persisted session")
			}
			return Session{}
		}
		if value == "" {
			return Session{}
		}
		values[key] = value
	}

	var user *users.User
	if err := json.Unmarshal([]byte(values[KeyUser]), &user); err != nil || user == nil {
		s.logger.Warn().Err(err).Msg("Ignoring malformed persisted user")
		return Session{}
	}

	expiresAtMs, err := strconv.ParseInt(values[KeyExpiresAt], 10, 64)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Ignoring malformed persisted expiry")
		return Session{}
	}

	return Session{
		IsAuthenticated: true,
		User:            user,
		AccessToken:     values[KeyAccessToken],
		RefreshToken:    values[KeyRefreshToken],
		ExpiresAt:       time.UnixMilli(expiresAtMs),
	}
}
