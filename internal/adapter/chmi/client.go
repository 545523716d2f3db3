// Package chmi fetches and decodes documents from the CHMI open-data portal.
//
// The client enforces a hard per-call timeout by deriving a cancellable
// context for every request: a hung upstream connection must never stall a
// batch. It performs no retries; retry policy belongs to callers, which treat
// a single failed fetch as a per-station soft error.
package chmi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultTimeout matches the upstream portal's observed worst-case latency.
const DefaultTimeout = 8 * time.Second

// StatusError reports a non-2xx upstream response. It is distinct from
// transport failure so callers can tell "the server said no" from "the
// network broke".
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chmi: %s returned status %d", e.URL, e.StatusCode)
}

// Client is a thin HTTP fetcher for CHMI documents. An optional rate limiter
// spaces requests out; concurrency is bounded by the caller's worker pool.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewLimiter builds the request pacer from a configured requests-per-second
// rate. A non-positive rate means unpaced, expressed as a nil limiter; a
// zero rate.Limit would instead deny every request past the initial burst.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// NewClient creates a CHMI client. A nil limiter disables request pacing;
// a non-positive timeout falls back to DefaultTimeout.
func NewClient(timeout time.Duration, limiter *rate.Limiter, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{},
		timeout:    timeout,
		limiter:    limiter,
		logger:     logger,
	}
}

// FetchText retrieves a document body as text (used for HTML directory
// indexes).
func (c *Client) FetchText(ctx context.Context, url string) (string, error) {
	body, err := c.fetch(ctx, url)
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return string(data), nil
}

// FetchJSON retrieves and decodes a JSON document into v.
func (c *Client) FetchJSON(ctx context.Context, url string, v any) error {
	body, err := c.fetch(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	return &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}, nil
}

// cancelReadCloser ties the per-call timeout context to the response body
// lifetime so the deadline covers reading, not just the round trip.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	c.cancel()
	return c.ReadCloser.Close()
}
