package storage_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-blog-session/internal/errors"
	"github.com/jrsteele09/go-blog-session/storage"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemory()

	_, err := m.Get(ctx, "missing")
	require.True(t, errors.Is(err, errors.ErrNotFound))

	require.NoError(t, m.Set(ctx, "a", "1"))
	require.NoError(t, m.Set(ctx, "b", "2"))

	v, err := m.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "1", v)

	require.NoError(t, m.Delete(ctx, "a", "b", "never-set"))
	_, err = m.Get(ctx, "b")
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestMemory_TabsShareDataAndSeeOnlyForeignEvents(t *testing.T) {
	ctx := context.Background()
	first := storage.NewMemory()
	second := first.Tab()

	var firstSeen, secondSeen []storage.Event
	stopFirst, err := first.Watch(ctx, func(e storage.Event) { firstSeen = append(firstSeen, e) })
	require.NoError(t, err)
	defer stopFirst()
	stopSecond, err := second.Watch(ctx, func(e storage.Event) { secondSeen = append(secondSeen, e) })
	require.NoError(t, err)

	require.NoError(t, first.Set(ctx, "k", "v"))
	v, err := second.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)

	require.NoError(t, first.Delete(ctx, "k"))

	require.Empty(t, firstSeen)
	require.Len(t, secondSeen, 2)
	require.Equal(t, "k", secondSeen[0].Key)
	require.Equal(t, "v", secondSeen[0].Value)
	require.Equal(t, "", secondSeen[1].Value)

	stopSecond()
	stopSecond()
	require.NoError(t, first.Set(ctx, "k", "again"))
	require.Len(t, secondSeen, 2)
}
