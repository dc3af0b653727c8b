package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// Common errors.
var (
	ErrNotFound    = errors.New("transfer: resource not found")
	ErrForbidden   = errors.New("transfer: access forbidden")
	ErrServerError = errors.New("transfer: server error")
)

// Options configures the HTTP client.
type Options struct {
	// Timeout for individual requests.
	// Default: 5m (climate files are large).
	Timeout time.Duration

	// RetryAttempts is the maximum number of retry attempts.
	// Default: 3
	RetryAttempts int

	// RetryBackoff is the initial backoff duration.
	// Default: 5s
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum backoff duration.
	// Default: 60s
	RetryMaxBackoff time.Duration
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:         5 * time.Minute,
		RetryAttempts:   3,
		RetryBackoff:    5 * time.Second,
		RetryMaxBackoff: 60 * time.Second,
	}
}

// Client is an HTTP client for large file downloads with retry and
// resume-from-offset support.
type Client struct {
	client *http.Client
	opts   Options
}

func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = 5 * time.Second
	}
	if opts.RetryMaxBackoff == 0 {
		opts.RetryMaxBackoff = 60 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true, // raw bytes; sizes must match the catalog
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts: opts,
	}
}

// GetFrom requests the resource starting at byte offset. When offset > 0 a
// Range header is sent; resumed reports whether the server honored it
// (a 200 response means the body restarts from byte zero and the caller
// must truncate its partial file).
func (c *Client) GetFrom(ctx context.Context, url string, offset int64) (body io.ReadCloser, resumed bool, err error) {
	var lastErr error

	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, false, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, false, fmt.Errorf("create request: %w", err)
		}
		if offset > 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		// Server errors are retryable.
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: %d %s", ErrServerError, resp.StatusCode, resp.Status)
			continue
		}

		switch resp.StatusCode {
		case http.StatusPartialContent:
			return resp.Body, true, nil
		case http.StatusOK:
			return resp.Body, false, nil
		case http.StatusNotFound:
			resp.Body.Close()
			return nil, false, ErrNotFound
		case http.StatusForbidden, http.StatusUnauthorized:
			resp.Body.Close()
			return nil, false, ErrForbidden
		default:
			resp.Body.Close()
			return nil, false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
	}

	return nil, false, fmt.Errorf("get request failed after %d attempts: %w", c.opts.RetryAttempts+1, lastErr)
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	backoff := c.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > c.opts.RetryMaxBackoff {
		backoff = c.opts.RetryMaxBackoff
	}

	// Jitter: 0.5 to 1.5 of backoff.
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}
