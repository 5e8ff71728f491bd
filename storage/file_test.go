package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-blog-session/internal/errors"
	"github.com/jrsteele09/go-blog-session/storage"
	"github.com/stretchr/testify/require"
)

func TestFile_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	require.NoError(t, storage.NewFile(path).Set(ctx, "auth_access_token", "AT1"))

	reopened := storage.NewFile(path)
	v, err := reopened.Get(ctx, "auth_access_token")
	require.NoError(t, err)
	require.Equal(t, "AT1", v)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, reopened.Delete(ctx, "auth_access_token"))
	_, err = reopened.Get(ctx, "auth_access_token")
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestFile_CorruptFileReadsAsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	f := storage.NewFile(path)
	_, err := f.Get(ctx, "anything")
	require.True(t, errors.Is(err, errors.ErrNotFound))

	require.NoError(t, f.Set(ctx, "k", "v"))
	v, err := f.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}
