package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Config controls timeouts, retries and connection pooling for Client.
type Config struct {
	Timeout        time.Duration
	MaxRetries     int
	RetryWaitMin   time.Duration
	RetryWaitMax   time.Duration
	MaxConnections int
}

func DefaultConfig() Config {
	return Config{
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		RetryWaitMin:   500 * time.Millisecond,
		RetryWaitMax:   5 * time.Second,
		MaxConnections: 100,
	}
}

// Client wraps http.Client with exponential-backoff retries for transient
// failures. Requests with bodies must use http.Request.GetBody so the body
// can be replayed across attempts; NewRequestWithContext sets it for the
// common body types.
type Client struct {
	inner *http.Client
	cfg   Config
}

func New(cfg Config) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxConnections,
		MaxIdleConnsPerHost:   cfg.MaxConnections,
		MaxConnsPerHost:       cfg.MaxConnections,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	return &Client{
		inner: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		cfg:   cfg,
	}
}

// Do executes the request, retrying network errors and retryable status
// codes with capped exponential backoff.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, attempt); err != nil {
				return nil, err
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("rewind request body: %w", err)
				}
				req.Body = body
			}
		}

		resp, err := c.inner.Do(req)
		if err != nil {
			lastErr = err
			if retryableError(err) {
				continue
			}
			return nil, fmt.Errorf("http request failed: %w", err)
		}

		if retryableStatus(resp.StatusCode) && attempt < c.cfg.MaxRetries {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = fmt.Errorf("server returned %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("http request failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create GET request: %w", err)
	}
	return c.Do(ctx, req)
}

func (c *Client) Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("create POST request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(ctx, req)
}

func (c *Client) wait(ctx context.Context, attempt int) error {
	backoff := c.cfg.RetryWaitMin * time.Duration(1<<uint(attempt-1))
	if backoff > c.cfg.RetryWaitMax {
		backoff = c.cfg.RetryWaitMax
	}
	select {
	case <-time.After(backoff):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func retryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// retryableStatus reports whether the status code indicates a transient
// server-side failure. 501 is permanent.
func retryableStatus(code int) bool {
	return code >= 500 && code != http.StatusNotImplemented
}
