// Package httpx is the outbound HTTP layer shared by all provider adapters:
// bounded retry with exponential backoff for transient status codes, and a
// cache of one configured transport per provider so TLS/client-certificate
// setup is reused across calls instead of rebuilt.
package httpx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Retry policy defaults per the provider integration contract
const (
	DefaultMaxAttempts = 5
	DefaultBaseBackoff = 250 * time.Millisecond
	DefaultMaxBackoff  = 4 * time.Second
)

// transientCodes are the HTTP statuses worth retrying; anything else aborts
// immediately.
var transientCodes = map[int]bool{
	http.StatusRequestTimeout:      true, // 408
	http.StatusTooManyRequests:     true, // 429
	http.StatusInternalServerError: true, // 500
	http.StatusBadGateway:          true, // 502
	http.StatusServiceUnavailable:  true, // 503
	http.StatusGatewayTimeout:      true, // 504
}

// RetryPolicy bounds the retry loop
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = DefaultBaseBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultMaxBackoff
	}
	return p
}

// Response is the drained HTTP exchange result
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// OK reports whether the status is 2xx
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client issues provider HTTP calls with the shared retry discipline. One
// Client serves all providers; per-provider transports are cached inside.
type Client struct {
	logger  *slog.Logger
	policy  RetryPolicy
	timeout time.Duration

	mu         sync.Mutex
	transports map[int64]*http.Client
}

// NewClient creates a provider HTTP client
func NewClient(logger *slog.Logger, policy RetryPolicy, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		logger:     logger,
		policy:     policy.withDefaults(),
		timeout:    timeout,
		transports: make(map[int64]*http.Client),
	}
}

// httpClient returns the cached per-provider client, creating it on first use
func (c *Client) httpClient(providerID int64) *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hc, ok := c.transports[providerID]; ok {
		return hc
	}
	hc := &http.Client{
		Timeout:   c.timeout,
		Transport: http.DefaultTransport.(*http.Transport).Clone(),
	}
	c.transports[providerID] = hc
	return hc
}

// Do executes one logical provider call with bounded retry. Only transient
// status codes and transport errors are retried; the request body is
// replayed from the byte slice on each attempt.
func (c *Client) Do(ctx context.Context, providerID int64, method, url string, headers map[string]string, body []byte) (*Response, error) {
	hc := c.httpClient(providerID)

	var lastErr error
	backoff := c.policy.BaseBackoff

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.policy.MaxBackoff {
				backoff = c.policy.MaxBackoff
			}
		}

		resp, err := c.doOnce(ctx, hc, method, url, headers, body)
		if err != nil {
			lastErr = err
			c.logger.Warn("provider HTTP call failed",
				"provider_id", providerID, "method", method, "url", url,
				"attempt", attempt, "error", err,
			)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		if transientCodes[resp.StatusCode] && attempt < c.policy.MaxAttempts {
			lastErr = fmt.Errorf("transient HTTP status %d", resp.StatusCode)
			c.logger.Warn("provider returned transient status",
				"provider_id", providerID, "url", url,
				"status", resp.StatusCode, "attempt", attempt,
			)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("provider call exhausted %d attempts: %w", c.policy.MaxAttempts, lastErr)
}

func (c *Client) doOnce(ctx context.Context, hc *http.Client, method, url string, headers map[string]string, body []byte) (*Response, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: data, Header: resp.Header}, nil
}
