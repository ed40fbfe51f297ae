// Package webhook implements an HTTP POST completion adapter.
//
// Publishes pull completion events as JSON to a configurable URL.
// Transient failures (network errors, 5xx) are retried with backoff;
// 4xx responses fail the publish immediately.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pithecene-io/dredge/adapter"
)

// DefaultTimeout is applied when Config.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// DefaultRetries is the retry count callers use when none is configured.
const DefaultRetries = 3

// Config holds webhook delivery settings.
type Config struct {
	// URL is the endpoint that receives the event POST (required).
	URL string
	// Headers holds extra request headers, typically for auth.
	Headers map[string]string
	// Timeout bounds a single delivery attempt (default 10s).
	Timeout time.Duration
	// Retries is the number of redeliveries after a failed attempt.
	Retries int
}

// Adapter publishes pull completion events via HTTP POST.
type Adapter struct {
	config Config
	client *http.Client
}

// New validates cfg and builds an adapter with a dedicated HTTP client.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Publish sends the event as a JSON POST request, retrying transient
// failures through the shared adapter retry loop.
func (a *Adapter) Publish(ctx context.Context, event *adapter.PullCompletedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	return adapter.Retry(ctx, "webhook", a.config.Retries, func(ctx context.Context) error {
		return a.post(ctx, payload)
	})
}

// StatusError is returned for non-2xx HTTP responses. Callers inspect
// Code to distinguish retriable (5xx) from non-retriable (4xx) failures.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected http status %d", e.Code)
}

// post performs a single HTTP POST and returns nil on 2xx. 4xx results
// come back marked permanent so the retry loop stops on them.
func (a *Adapter) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for name, value := range a.config.Headers {
		req.Header.Set(name, value)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return adapter.Permanent(&StatusError{Code: resp.StatusCode})
	default:
		return &StatusError{Code: resp.StatusCode}
	}
}

// Close drops idle connections held by the client.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

// Compile-time check that Adapter satisfies the publish interface.
var _ adapter.Adapter = (*Adapter)(nil)
