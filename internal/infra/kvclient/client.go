// Package kvclient is an HTTP client for the authenticated key-value service.
//
// The service exposes three endpoints:
//
//	GET  /register    -> session token (text body)
//	POST /save/{key}  <- value body
//	GET  /load/{key}  -> value body, or 204 No Content if never written
//
// The session token is obtained lazily on first use and sent as a bearer token.
package kvclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/runoshun/tracker/internal/domain"
	"golang.org/x/oauth2"
)

// maxBodySize bounds the responses read from the service.
const maxBodySize = 32 << 20

// Client talks to a key-value service. It is not safe for concurrent use
// before the first successful Register.
type Client struct {
	base    *http.Client // unauthenticated, used for /register
	authed  *http.Client // carries the bearer token
	baseURL string
	token   string
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.base = hc
		}
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithToken reuses an existing session token instead of registering.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:    http.DefaultClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: domain.DefaultKVTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.token != "" {
		c.authed = c.authorize(c.token)
	}
	return c
}

// Token returns the current session token ("" before registration).
func (c *Client) Token() string {
	return c.token
}

// Register obtains a new session token.
func (c *Client) Register(ctx context.Context) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/register", nil)
	if err != nil {
		return "", fmt.Errorf("build register request: %w", err)
	}
	resp, err := c.base.Do(req)
	if err != nil {
		return "", fmt.Errorf("register: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("read register response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("register: %w", statusError(resp.StatusCode, body))
	}
	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", errors.New("register: empty token")
	}

	c.token = token
	c.authed = c.authorize(token)
	return token, nil
}

// Put stores value under key, overwriting any previous value.
func (c *Client) Put(ctx context.Context, key string, value []byte) error {
	_, err := c.do(ctx, http.MethodPost, "/save/"+url.PathEscape(key), value)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Get returns the value stored under key, or nil if it was never written.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	body, err := c.do(ctx, http.MethodGet, "/load/"+url.PathEscape(key), nil)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return body, nil
}

// do performs an authenticated request, registering first if needed and
// re-registering once if the session was rejected.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	if c.authed == nil {
		if _, err := c.Register(ctx); err != nil {
			return nil, err
		}
	}
	body, err := c.send(ctx, method, path, payload)
	if errors.Is(err, domain.ErrUnauthorized) {
		if _, rerr := c.Register(ctx); rerr != nil {
			return nil, rerr
		}
		body, err = c.send(ctx, method, path, payload)
	}
	return body, err
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.authed.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusNoContent:
		return nil, nil
	default:
		return nil, statusError(resp.StatusCode, body)
	}
}

// authorize returns an HTTP client that sends token as a bearer token
// through the base client's transport.
func (c *Client) authorize(token string) *http.Client {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.base)
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	return oauth2.NewClient(ctx, src)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	Body string
	Code int
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Unwrap maps 401/403 onto domain.ErrUnauthorized.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden {
		return domain.ErrUnauthorized
	}
	return nil
}

func statusError(code int, body []byte) error {
	return &StatusError{Code: code, Body: strings.TrimSpace(string(body))}
}
