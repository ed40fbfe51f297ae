// Package redis implements a Redis pub/sub completion adapter.
//
// Publishes pull completion events as JSON to a configurable Redis
// channel. Connection failures are retried with backoff; there is no
// permanent failure class since PUBLISH either lands or errors.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/dredge/adapter"
)

// DefaultChannel is the channel used when Config.Channel is unset.
const DefaultChannel = "dredge:pull_completed"

// DefaultTimeout is applied when Config.Timeout is unset.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the retry count callers use when none is configured.
const DefaultRetries = 3

// Config holds Redis pub/sub delivery settings.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel names the pub/sub channel (default: dredge:pull_completed).
	Channel string
	// Timeout bounds a single PUBLISH attempt (default 5s).
	Timeout time.Duration
	// Retries is the number of redeliveries after a failed attempt.
	Retries int
}

// Adapter publishes pull completion events via Redis PUBLISH.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New validates cfg, parses the connection URL, and builds the adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Publish sends the event as a JSON PUBLISH to the configured channel,
// retrying failures through the shared adapter retry loop. Each attempt
// runs under its own timeout so one hung connection cannot eat the
// whole retry budget.
func (a *Adapter) Publish(ctx context.Context, event *adapter.PullCompletedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	return adapter.Retry(ctx, "redis", a.config.Retries, func(ctx context.Context) error {
		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		return a.client.Publish(publishCtx, a.config.Channel, payload).Err()
	})
}

// Close shuts down the underlying Redis client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// Compile-time check that Adapter satisfies the publish interface.
var _ adapter.Adapter = (*Adapter)(nil)
