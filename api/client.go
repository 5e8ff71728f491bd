package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-blog-session/internal/errors"
)

// Endpoint paths, relative to the configured base URL.
const (
	PathLogin   = "auth/login"
	PathRefresh = "auth/refresh"
	PathLogout  = "auth/logout"
)

const maxBodyBytes = 1 << 20

// Client calls the authentication endpoints of the blog API directly, bypassing the
// request interceptor so that refreshing can never recurse into itself.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// URL resolves an endpoint path against the base URL.
func (c *Client) URL(path string) string {
	return c.baseURL + strings.TrimPrefix(path, "/")
}

func (c *Client) Login(ctx context.Context, username, password string) (*LoginData, error) {
	data, err := post[LoginData](ctx, c, PathLogin, LoginRequest{Username: username, Password: password}, "")
	if err != nil {
		return nil, errors.Wrapf(err, "Client.Login")
	}
	if data.AccessToken == "" || data.RefreshToken == "" || data.User == nil {
		return nil, errors.Wrapf(errors.ErrInvalidResponse, "Client.Login incomplete login data")
	}
	return &data, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenData, error) {
	data, err := post[TokenData](ctx, c, PathRefresh, RefreshRequest{RefreshToken: refreshToken}, "")
	if err != nil {
		return nil, errors.Wrapf(err, "Client.Refresh")
	}
	if data.AccessToken == "" {
		return nil, errors.Wrapf(errors.ErrInvalidResponse, "Client.Refresh missing access token")
	}
	return &data, nil
}

// Logout invalidates the session server side. It implements session.Revoker.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	_, err := post[json.RawMessage](ctx, c, PathLogout, struct{}{}, accessToken)
	return errors.Wrapf(err, "Client.Logout")
}

func post[T any](ctx context.Context, c *Client, path string, body any, bearer string) (T, error) {
	var zero T

	payload, err := json.Marshal(body)
	if err != nil {
		return zero, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path), bytes.NewReader(payload))
	if err != nil {
		return zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return zero, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, message, _ := PeekCode(raw)
		return zero, NewError(resp.StatusCode, message, nil)
	}

	return Decode[T](bytes.NewReader(raw))
}
