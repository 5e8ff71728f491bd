package api

import (
	"encoding/json"
	"io"

	"github.com/jrsteele09/go-blog-session/internal/errors"
)

// Decode reads an envelope and returns its data. A code other than CodeSuccess is
// returned as an *Error.
func Decode[T any](r io.Reader) (T, error) {
	var env Envelope[T]
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		var zero T
		return zero, errors.Wrapf(errors.ErrInvalidResponse, "decode envelope: %v", err)
	}
	if env.Code != CodeSuccess {
		var zero T
		return zero, NewError(env.Code, env.Message, nil)
	}
	return env.Data, nil
}

// PeekCode extracts the envelope code and message from a body without decoding data.
// ok is false when the body is not an envelope.
func PeekCode(body []byte) (code int, message string, ok bool) {
	var env struct {
		Code    *int   `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Code == nil {
		return 0, "", false
	}
	return *env.Code, env.Message, true
}
