// Package gateway is a small JSON client for a REST resource collection.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/jaemin-s/eventsync/pkg/logger"
	"github.com/jaemin-s/eventsync/pkg/metrics"
)

// DefaultTimeout bounds each request unless overridden with WithTimeout.
const DefaultTimeout = 10 * time.Second

const maxErrorBody = 64 << 10

// Client issues JSON requests against a base URL. It never retries.
type Client struct {
	base      *url.URL
	http      *http.Client
	timeout   time.Duration
	tokens    oauth2.TokenSource
	userAgent string
	log       *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithTimeout bounds every request. Zero disables the client-side timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient swaps the underlying HTTP client, e.g. for httptest servers.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTokenSource authorises requests with bearer tokens from ts.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = strings.TrimSpace(ua)
	}
}

// WithLogger overrides the module logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New builds a client rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("gateway: base url is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("gateway: parse base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("gateway: unsupported scheme %q", parsed.Scheme)
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")

	c := &Client{
		base:      parsed,
		http:      &http.Client{},
		timeout:   DefaultTimeout,
		userAgent: "eventsync",
		log:       logger.WithModule("gateway"),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.tokens != nil {
		hc := *c.http
		base := hc.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		hc.Transport = &oauth2.Transport{Source: c.tokens, Base: base}
		c.http = &hc
	}

	return c, nil
}

// BaseURL returns the root the client was built with.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// RequestOption customises a single call.
type RequestOption func(*requestConfig)

type requestConfig struct {
	fallback string
	query    url.Values
}

// WithFallback sets the message used when a failed response carries none.
func WithFallback(message string) RequestOption {
	return func(rc *requestConfig) {
		rc.fallback = message
	}
}

// WithQuery appends query parameters to the request URL.
func WithQuery(values url.Values) RequestOption {
	return func(rc *requestConfig) {
		rc.query = values
	}
}

// Get issues a GET and decodes the response into out.
func (c *Client) Get(ctx context.Context, path string, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, body, out, opts...)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, path, body, out, opts...)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out, opts...)
}

// Do performs one request. Non-2xx statuses yield *RequestError, transport failures *NetworkError.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}, opts ...RequestOption) error {
	if ctx == nil {
		ctx = context.Background()
	}

	rc := requestConfig{}
	for _, opt := range opts {
		opt(&rc)
	}

	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateway: encode %s %s body: %w", method, path, err)
		}
		payload = bytes.NewReader(encoded)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path, rc.query), payload)
	if err != nil {
		return fmt.Errorf("gateway: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues(method, "network_error").Inc()
		c.log.Debug("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return &NetworkError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	c.log.Debug("request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.GatewayRequests.WithLabelValues(method, "request_error").Inc()
		return &RequestError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp, rc.fallback),
		}
	}
	metrics.GatewayRequests.WithLabelValues(method, "ok").Inc()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &NetworkError{Method: method, Path: path, Err: ctxErr}
		}
		return fmt.Errorf("gateway: decode %s %s response: %w", method, path, err)
	}
	return nil
}

// resolve joins path onto the base URL. path is already escaped, so segments escaped by the
// caller (an id holding "/" or a space) reach the server exactly once-escaped.
func (c *Client) resolve(path string, query url.Values) string {
	u := *c.base
	raw := c.base.EscapedPath() + "/" + strings.TrimPrefix(path, "/")
	if unescaped, err := url.PathUnescape(raw); err == nil {
		u.Path = unescaped
		u.RawPath = raw
	} else {
		u.Path = c.base.Path + "/" + strings.TrimPrefix(path, "/")
		u.RawPath = ""
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

type errorBody struct {
	Message string `json:"message"`
}

func errorMessage(resp *http.Response, fallback string) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body errorBody
	if len(raw) > 0 && json.Unmarshal(raw, &body) == nil {
		if msg := strings.TrimSpace(body.Message); msg != "" {
			return msg
		}
	}

	if fallback != "" {
		return fallback
	}
	return fmt.Sprintf("request failed with status %d", resp.StatusCode)
}
