package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session client
var (
	// Storage errors
	ErrNotFound = errors.New("not found")

	// Session errors
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrIncompleteSession = errors.New("incomplete session")
	ErrNoRefreshToken    = errors.New("no refresh token")
	ErrRefreshFailed     = errors.New("refresh failed")
	ErrSessionExpired    = errors.New("session expired")

	// Request errors
	ErrAccessDenied = errors.New("access denied")
	ErrSuperseded   = errors.New("superseded")

	// General errors
	ErrInvalidResponse = errors.New("invalid response")
	ErrUnsupported     = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// New returns a new sentinel error, for packages that define their own.
func New(text string) error {
	return errors.New(text)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join is errors.Join, re-exported so callers need a single errors import.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
