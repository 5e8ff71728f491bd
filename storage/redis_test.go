package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-blog-session/internal/errors"
	"github.com/jrsteele09/go-blog-session/storage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisTest(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return rdb, mr
}

func TestRedis_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	rdb, mr := newRedisTest(t)
	r := storage.NewRedis(rdb, "blog:")

	_, err := r.Get(ctx, "auth_user")
	require.True(t, errors.Is(err, errors.ErrNotFound))

	require.NoError(t, r.Set(ctx, "auth_user", `{"id":1}`))
	require.True(t, mr.Exists("blog:auth_user"))

	v, err := r.Get(ctx, "auth_user")
	require.NoError(t, err)
	require.Equal(t, `{"id":1}`, v)

	require.NoError(t, r.Delete(ctx, "auth_user"))
	require.False(t, mr.Exists("blog:auth_user"))
	require.NoError(t, r.Delete(ctx))
}

func TestRedis_WatchDeliversForeignWritesOnly(t *testing.T) {
	ctx := context.Background()
	rdb, _ := newRedisTest(t)
	writer := storage.NewRedis(rdb, "blog:")
	listener := storage.NewRedis(rdb, "blog:")

	events := make(chan storage.Event, 10)
	stop, err := listener.Watch(ctx, func(e storage.Event) { events <- e })
	require.NoError(t, err)
	defer stop()

	require.NoError(t, listener.Set(ctx, "own", "ignored"))
	require.NoError(t, writer.Set(ctx, "logout_broadcast", "1700000000000"))

	select {
	case e := <-events:
		require.Equal(t, "logout_broadcast", e.Key)
		require.Equal(t, "1700000000000", e.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a storage event")
	}

	select {
	case e := <-events:
		t.Fatalf("unexpected event %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}
