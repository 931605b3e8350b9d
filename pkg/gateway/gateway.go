package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/germanamz/parley/pkg/chats/identity"
	"github.com/germanamz/parley/pkg/chats/message"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 64 << 10

// Client talks to the chat backend REST API.
type Client struct {
	BaseURL string            // API base URL (no trailing slash).
	Headers map[string]string // Extra headers applied to every request.

	http *http.Client
	log  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client. A client without a cookie jar
// gets one.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if c.Headers == nil {
			c.Headers = make(map[string]string)
		}
		c.Headers[key] = value
	}
}

// New creates a client for baseURL with a fresh cookie jar.
func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     slog.New(slog.DiscardHandler),
	}

	for _, o := range opts {
		o(c)
	}

	if c.http.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("gateway: cookie jar: %w", err)
		}
		c.http.Jar = jar
	}

	c.log = c.log.With("component", "gateway")

	return c, nil
}

// HTTPClient returns the underlying client, cookie jar included.
func (c *Client) HTTPClient() *http.Client { return c.http }

// CheckAuth returns the identity bound to the current session cookie.
func (c *Client) CheckAuth(ctx context.Context) (identity.Identity, error) {
	var id identity.Identity
	err := c.doJSON(ctx, http.MethodGet, "/auth/check", nil, &id)
	return id, err
}

// Signup creates an account and starts a session.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (identity.Identity, error) {
	var id identity.Identity
	err := c.doJSON(ctx, http.MethodPost, "/auth/signup", req, &id)
	return id, err
}

// Login starts a session.
func (c *Client) Login(ctx context.Context, req LoginRequest) (identity.Identity, error) {
	var id identity.Identity
	err := c.doJSON(ctx, http.MethodPost, "/auth/login", req, &id)
	return id, err
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// UpdateProfile changes the profile and returns the server's copy.
func (c *Client) UpdateProfile(ctx context.Context, upd ProfileUpdate) (identity.Identity, error) {
	var id identity.Identity
	err := c.doJSON(ctx, http.MethodPut, "/auth/update-profile", upd, &id)
	return id, err
}

// Users lists every user other than the caller.
func (c *Client) Users(ctx context.Context) ([]identity.Identity, error) {
	var users []identity.Identity
	if err := c.doJSON(ctx, http.MethodGet, "/messages/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Messages returns the conversation with partnerID, oldest first.
func (c *Client) Messages(ctx context.Context, partnerID string) ([]message.Message, error) {
	var msgs []message.Message
	if err := c.doJSON(ctx, http.MethodGet, "/messages/"+url.PathEscape(partnerID), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Send posts a message to partnerID and returns the stored message.
func (c *Client) Send(ctx context.Context, partnerID string, d message.Draft) (message.Message, error) {
	var m message.Message
	err := c.doJSON(ctx, http.MethodPost, "/messages/send/"+url.PathEscape(partnerID), d, &m)
	return m, err
}

// NewRequest builds an *http.Request with the base URL and custom headers
// already applied.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// doJSON sends payload (if any) as JSON, checks for a 2xx status and decodes
// the body into dest. A nil dest discards the body.
func (c *Client) doJSON(ctx context.Context, method, path string, payload, dest any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("gateway: marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := c.NewRequest(ctx, method, path, body)
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req) //nolint:gosec // URL is built from trusted BaseURL config
	if err != nil {
		c.log.Debug("request failed", "method", method, "path", path, "err", err)
		return fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debug("request", "method", method, "path", path, "status", resp.StatusCode, "took", time.Since(start))

	if resp.StatusCode == http.StatusTooManyRequests {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &RateLimitError{
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    bodyMessage(respBody),
			Body:       string(respBody),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Status:  resp.StatusCode,
			Message: bodyMessage(respBody),
			Body:    string(respBody),
		}
	}

	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("gateway: decode response: %w", err)
	}

	return nil
}
