package api

import (
	"github.com/jrsteele09/go-blog-session/users"
)

// CodeSuccess is the envelope code the blog API uses for success. Any other code,
// even on an HTTP 2xx response, is an application-level failure.
const CodeSuccess = 200

// Envelope is the wrapper every blog API endpoint responds with.
type Envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// LoginRequest is the body of POST auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest is the body of POST auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// TokenData is the token part of the login and refresh responses.
type TokenData struct {
	// AccessToken is the short-lived bearer credential.
	// Usage: Include in Authorization header: "Bearer <accessToken>"
	// Lifespan: Short-lived (typically 15 minutes - 1 hour)
	AccessToken string `json:"accessToken"`

	// RefreshToken is exchanged at auth/refresh for a new access token.
	// Lifespan: Long-lived (typically 7-30 days)
	// Note: May be empty when the server does not rotate refresh tokens
	RefreshToken string `json:"refreshToken"`

	// ExpiresIn is the lifetime in seconds of the access token.
	// Example: 3600
	// Usage: The client stores issueTime + ExpiresIn as the absolute expiry
	ExpiresIn int64 `json:"expiresIn"`
}

// LoginData is the data of a successful POST auth/login.
type LoginData struct {
	TokenData
	User *users.User `json:"user"`
}
