// Package api is a thin JSON-over-HTTP client for the agent backend.
// It logs every request, response and failure, and records latency metrics.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/browsertest/dashboard/internal/metrics"
)

const defaultTimeout = 30 * time.Second

// maxErrorBody bounds how much of a failed response is kept on the Error.
const maxErrorBody = 512

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	headers    http.Header
}

type Option func(*Client)

// WithTimeout overrides the 30s default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop(),
		headers:    http.Header{},
	}
	c.headers.Set("Content-Type", "application/json")
	c.headers.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend root this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// Do sends one request. A non-nil body is JSON-encoded; a 2xx response body is
// decoded into out unless out is nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}

	c.logger.Debug("API request", zap.String("method", method), zap.String("path", path))
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.APIRequestDurationSeconds.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		kind := KindTransport
		if isTimeout(err) {
			kind = KindTimeout
		}
		return c.fail(&Error{Kind: kind, Method: method, Path: path, Err: err})
	}
	defer resp.Body.Close()

	c.logger.Debug("API response",
		zap.Int("status", resp.StatusCode),
		zap.String("path", path),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return c.fail(&Error{
			Kind:       KindStatus,
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		})
	}

	metrics.APIRequestsTotal.WithLabelValues(method, "ok").Inc()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return c.fail(&Error{Kind: KindDecode, Method: method, Path: path, StatusCode: resp.StatusCode, Err: err})
	}
	return nil
}

func (c *Client) fail(e *Error) error {
	metrics.APIRequestsTotal.WithLabelValues(e.Method, string(e.Kind)).Inc()
	c.logger.Warn("API error",
		zap.String("kind", string(e.Kind)),
		zap.String("method", e.Method),
		zap.String("path", e.Path),
		zap.Int("status", e.StatusCode),
		zap.Error(e))
	return e
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
