package config

import (
	"strings"
	"time"
)

// ClientConfig controls how the client talks to the blog API.
type ClientConfig interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
	GetRefreshTimeout() time.Duration
	GetMaxRetries() int
	GetRetryBaseDelay() time.Duration
	GetLoginPath() string
}

type Client struct{}

var _ ClientConfig = Client{}

// GetBaseURL returns the API prefix, always with a trailing slash (e.g. "http://localhost:8080/api/").
// Endpoint paths such as "auth/login" are resolved against it.
func (Client) GetBaseURL() string {
	base := GetEnv("BASE_URL", "http://localhost:8080/api/")
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

func (Client) GetRequestTimeout() time.Duration {
	return GetDuration("REQUEST_TIMEOUT", 15*time.Second)
}

func (Client) GetRefreshTimeout() time.Duration {
	return GetDuration("REFRESH_TIMEOUT", 10*time.Second)
}

// GetMaxRetries is the number of automatic retries for transient failures on idempotent requests.
func (Client) GetMaxRetries() int {
	return GetInt("MAX_RETRIES", 2)
}

func (Client) GetRetryBaseDelay() time.Duration {
	return GetDuration("RETRY_BASE_DELAY", 300*time.Millisecond)
}

func (Client) GetLoginPath() string {
	return GetEnv("LOGIN_PATH", "/login")
}
