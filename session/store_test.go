package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-blog-session/internal/errors"
	"github.com/jrsteele09/go-blog-session/session"
	"github.com/jrsteele09/go-blog-session/storage"
	"github.com/jrsteele09/go-blog-session/users"
	"github.com/stretchr/testify/require"
)

var testUser = &users.User{ID: 1, Username: "alice", Nickname: "Ali", Role: users.RoleEditor, Status: users.StatusActive}

type fakeRevoker struct {
	calls  int
	tokens []string
	err    error
}

func (f *fakeRevoker) Logout(_ context.Context, accessToken string) error {
	f.calls++
	f.tokens = append(f.tokens, accessToken)
	return f.err
}

// failingStorage fails the Set calls whose number, counting from 1, is in failOn.
type failingStorage struct {
	*storage.Memory
	failOn map[int]bool
	writes int
}

func (f *failingStorage) Set(ctx context.Context, key, value string) error {
	f.writes++
	if f.failOn[f.writes] {
		return errors.ErrUnsupported
	}
	return f.Memory.Set(ctx, key, value)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestStore_LoginRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	now := time.Date(2026, 10, 17, 12, 0, 0, 123456789, time.UTC)

	store := session.NewStore(mem, session.WithNowFunc(fixedClock(now)))
	require.NoError(t, store.Login(ctx, testUser, "AT1", "RT1", 3600))

	before := store.Snapshot()
	require.True(t, before.IsAuthenticated)
	require.Equal(t, now.Add(time.Hour).UnixMilli(), before.ExpiresAt.UnixMilli())

	reloaded := session.NewStore(mem).Load(ctx)
	require.True(t, reloaded.IsAuthenticated)
	require.Equal(t, before.User, reloaded.User)
	require.Equal(t, "AT1", reloaded.AccessToken)
	require.Equal(t, "RT1", reloaded.RefreshToken)
	require.Equal(t, before.ExpiresAt.UnixMilli(), reloaded.ExpiresAt.UnixMilli())
	require.True(t, before.ExpiresAt.Equal(reloaded.ExpiresAt))
}

func TestStore_SnapshotHydratesLazily(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	require.NoError(t, session.NewStore(mem).Login(ctx, testUser, "AT1", "RT1", 60))

	fresh := session.NewStore(mem)
	require.Equal(t, "AT1", fresh.AccessToken())
	require.Equal(t, "RT1", fresh.RefreshToken())
	require.Equal(t, "Ali", fresh.User().DisplayName())
}

func TestStore_LoadIsTotal(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		values map[string]string
	}{
		{"empty storage", map[string]string{}},
		{"partial keys", map[string]string{
			session.KeyAccessToken:  "AT",
			session.KeyRefreshToken: "RT",
		}},
		{"corrupt user", map[string]string{
			session.KeyAccessToken:  "AT",
			session.KeyRefreshToken: "RT",
			session.KeyUser:         "{not json",
			session.KeyExpiresAt:    "1700000000000",
		}},
		{"null user", map[string]string{
			session.KeyAccessToken:  "AT",
			session.KeyRefreshToken: "RT",
			session.KeyUser:         "null",
			session.KeyExpiresAt:    "1700000000000",
		}},
		{"corrupt expiry", map[string]string{
			session.KeyAccessToken:  "AT",
			session.KeyRefreshToken: "RT",
			session.KeyUser:         `{"id":1,"username":"alice"}`,
			session.KeyExpiresAt:    "tomorrow",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := storage.NewMemory()
			for k, v := range tt.values {
				require.NoError(t, mem.Set(ctx, k, v))
			}
			loaded := session.NewStore(mem).Load(ctx)
			require.Equal(t, session.Session{}, loaded)
		})
	}
}

func TestStore_UpdateTokensKeepsUser(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	store := session.NewStore(storage.NewMemory(), session.WithNowFunc(fixedClock(now)))

	err := store.UpdateTokens(ctx, "AT2", "RT2", 60)
	require.True(t, errors.Is(err, errors.ErrNotAuthenticated))

	require.NoError(t, store.Login(ctx, testUser, "AT1", "RT1", 60))
	require.NoError(t, store.UpdateTokens(ctx, "AT2", "RT2", 120))

	s := store.Snapshot()
	require.Equal(t, "AT2", s.AccessToken)
	require.Equal(t, "RT2", s.RefreshToken)
	require.Equal(t, testUser, s.User)
	require.Equal(t, now.Add(2*time.Minute).UnixMilli(), s.ExpiresAt.UnixMilli())

	require.NoError(t, store.UpdateTokens(ctx, "AT3", "", 120))
	require.Equal(t, "RT2", store.RefreshToken())
}

func TestStore_UpdateUser(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	store := session.NewStore(mem)

	require.True(t, errors.Is(store.UpdateUser(ctx, testUser), errors.ErrNotAuthenticated))
	require.NoError(t, store.Login(ctx, testUser, "AT1", "RT1", 60))

	updated := testUser.Clone()
	updated.Nickname = "Alice L."
	require.NoError(t, store.UpdateUser(ctx, updated))

	require.Equal(t, "Alice L.", store.User().Nickname)
	require.Equal(t, "AT1", store.AccessToken())
	require.Equal(t, "Alice L.", session.NewStore(mem).Load(ctx).User.Nickname)
}

func TestStore_ClearLocalErasesAllKeys(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	revoker := &fakeRevoker{}
	store := session.NewStore(mem, session.WithRevoker(revoker))

	require.NoError(t, store.Login(ctx, testUser, "AT1", "RT1", 60))
	require.NoError(t, store.ClearLocal(ctx))

	require.Equal(t, session.Session{}, store.Snapshot())
	require.Zero(t, revoker.calls)
	for _, key := range []string{session.KeyAccessToken, session.KeyRefreshToken, session.KeyUser, session.KeyExpiresAt} {
		_, err := mem.Get(ctx, key)
		require.True(t, errors.Is(err, errors.ErrNotFound), key)
	}
}

func TestStore_LogoutIsBestEffort(t *testing.T) {
	ctx := context.Background()
	revoker := &fakeRevoker{err: errors.ErrUnsupported}
	store := session.NewStore(storage.NewMemory(), session.WithRevoker(revoker))

	require.NoError(t, store.Login(ctx, testUser, "AT1", "RT1", 60))
	require.NoError(t, store.Logout(ctx))
	require.Equal(t, []string{"AT1"}, revoker.tokens)
	require.False(t, store.Snapshot().IsAuthenticated)

	// Nothing left to invalidate remotely.
	require.NoError(t, store.Logout(ctx))
	require.Equal(t, 1, revoker.calls)
}

func TestStore_FailedWriteLeavesMemoryUntouched(t *testing.T) {
	ctx := context.Background()
	st := &failingStorage{Memory: storage.NewMemory(), failOn: map[int]bool{5: true}}
	store := session.NewStore(st)

	require.NoError(t, store.Login(ctx, testUser, "AT1", "RT1", 60))
	err := store.UpdateTokens(ctx, "AT2", "RT2", 60)
	require.True(t, errors.Is(err, errors.ErrUnsupported))
	require.Equal(t, "AT1", store.AccessToken())
	require.Equal(t, "AT1", session.NewStore(st).Load(ctx).AccessToken)
}

func TestStore_PartialWriteRollsBack(t *testing.T) {
	ctx := context.Background()
	bob := &users.User{ID: 2, Username: "bob", Role: users.RoleUser, Status: users.StatusActive}

	tests := []struct {
		name   string
		failOn map[int]bool
		write  func(store *session.Store) error
	}{
		// Set calls 1-4 are alice's login; the 6th is the second key of the next write.
		{"login", map[int]bool{6: true}, func(store *session.Store) error {
			return store.Login(ctx, bob, "AT_B", "RT_B", 60)
		}},
		{"update tokens", map[int]bool{6: true}, func(store *session.Store) error {
			return store.UpdateTokens(ctx, "AT2", "RT2", 60)
		}},
		{"login failing on the last key", map[int]bool{8: true}, func(store *session.Store) error {
			return store.Login(ctx, bob, "AT_B", "RT_B", 60)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &failingStorage{Memory: storage.NewMemory(), failOn: tt.failOn}
			store := session.NewStore(st)
			require.NoError(t, store.Login(ctx, testUser, "AT1", "RT1", 60))
			before := store.Snapshot()

			err := tt.write(store)
			require.True(t, errors.Is(err, errors.ErrUnsupported))
			require.Equal(t, before, store.Snapshot())

			reloaded := session.NewStore(st).Load(ctx)
			require.Equal(t, before.AccessToken, reloaded.AccessToken)
			require.Equal(t, before.RefreshToken, reloaded.RefreshToken)
			require.Equal(t, before.User, reloaded.User)
			require.Equal(t, before.ExpiresAt.UnixMilli(), reloaded.ExpiresAt.UnixMilli())
		})
	}
}

func TestStore_FailedRollbackErasesSession(t *testing.T) {
	ctx := context.Background()
	// The 6th Set fails and so does the first restore after it.
	st := &failingStorage{Memory: storage.NewMemory(), failOn: map[int]bool{6: true, 7: true}}
	store := session.NewStore(st)
	require.NoError(t, store.Login(ctx, testUser, "AT1", "RT1", 60))

	var seen []session.Session
	store.Subscribe(func(s session.Session) { seen = append(seen, s) })

	bob := &users.User{ID: 2, Username: "bob", Role: users.RoleUser, Status: users.StatusActive}
	err := store.Login(ctx, bob, "AT_B", "RT_B", 60)
	require.True(t, errors.Is(err, errors.ErrUnsupported))

	require.Equal(t, session.Session{}, store.Snapshot())
	require.Equal(t, []session.Session{{}}, seen)
	require.Equal(t, session.Session{}, session.NewStore(st).Load(ctx))
	for _, key := range []string{session.KeyAccessToken, session.KeyRefreshToken, session.KeyUser, session.KeyExpiresAt} {
		_, err := st.Get(ctx, key)
		require.True(t, errors.Is(err, errors.ErrNotFound), key)
	}
}

func TestStore_IncompleteLoginRejected(t *testing.T) {
	store := session.NewStore(storage.NewMemory())
	err := store.Login(context.Background(), nil, "AT1", "RT1", 60)
	require.True(t, errors.Is(err, errors.ErrIncompleteSession))
	require.False(t, store.Snapshot().IsAuthenticated)
}

func TestStore_SubscribersNotifiedInOrder(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(storage.NewMemory())

	var calls []string
	unsubscribeFirst := store.Subscribe(func(s session.Session) {
		calls = append(calls, "first:"+s.AccessToken)
	})
	store.Subscribe(func(s session.Session) {
		calls = append(calls, "second:"+s.AccessToken)
	})

	require.NoError(t, store.Login(ctx, testUser, "AT1", "RT1", 60))
	unsubscribeFirst()
	require.NoError(t, store.UpdateTokens(ctx, "AT2", "RT2", 60))
	require.NoError(t, store.ClearLocal(ctx))

	require.Equal(t, []string{"first:AT1", "second:AT1", "second:AT2", "second:"}, calls)
}
