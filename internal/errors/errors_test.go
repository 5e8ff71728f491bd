package errors_test

import (
	"fmt"
	"testing"

	"github.com/jrsteele09/go-blog-session/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestWrapf(t *testing.T) {
	require.NoError(t, errors.Wrapf(nil, "ignored"))

	err := errors.Wrapf(errors.ErrRefreshFailed, "refresh for %s", "alice")
	require.EqualError(t, err, "refresh for alice: refresh failed")
	require.True(t, errors.Is(err, errors.ErrRefreshFailed))
}

type codeErr struct{ code int }

func (c *codeErr) Error() string { return fmt.Sprintf("code %d", c.code) }

func TestAs(t *testing.T) {
	err := fmt.Errorf("outer: %w", &codeErr{code: 499})

	var target *codeErr
	require.True(t, errors.As(err, &target))
	require.Equal(t, 499, target.code)
}
