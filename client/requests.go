package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/jrsteele09/go-blog-session/api"
	"github.com/jrsteele09/go-blog-session/debounce"
)

// Get sends GET path and decodes the envelope's data into T.
func Get[T any](ctx context.Context, c *Client, path string) (T, error) {
	return request[T](ctx, c, http.MethodGet, path, nil)
}

// Post sends body as JSON to path. POST requests are never retried on transient failures.
func Post[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	return request[T](ctx, c, http.MethodPost, path, body)
}

func Put[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	return request[T](ctx, c, http.MethodPut, path, body)
}

func Delete[T any](ctx context.Context, c *Client, path string) (T, error) {
	return request[T](ctx, c, http.MethodDelete, path, nil)
}

// Debounced returns a GET for search-as-you-type lookups: of a burst of calls only the last
// is sent, the others fail with an *api.Error of code debounce.CodeSuperseded.
func Debounced[T any](c *Client, delay time.Duration) func(ctx context.Context, path string) (T, error) {
	d := debounce.New(delay, func(ctx context.Context, path string) (T, error) {
		return Get[T](ctx, c, path)
	})
	return d.Call
}

func request[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var zero T

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return zero, err
		}
	}

	resp, err := c.Send(ctx, func(ctx context.Context) (*http.Request, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.URL(path), reader)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	return api.Decode[T](resp.Body)
}
