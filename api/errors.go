package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/go-blog-session/internal/errors"
)

// Error is the normalized shape every failed API call is surfaced as.
type Error struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
	cause     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError builds an Error. An empty message falls back to the HTTP status text for code.
func NewError(code int, message string, cause error) *Error {
	if message == "" {
		message = http.StatusText(code)
	}
	if message == "" {
		message = "request failed"
	}
	return &Error{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
		cause:     cause,
	}
}

// Normalize converts any error into an *Error. Errors that already are (or wrap) one are
// returned as is; everything else becomes a 500 carrying the error text.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return NewError(http.StatusInternalServerError, err.Error(), err)
}
