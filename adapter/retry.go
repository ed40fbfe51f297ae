package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// retryBackoffBase is the first-retry delay; each later retry doubles it.
const retryBackoffBase = 500 * time.Millisecond

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Retry stops immediately instead of retrying.
func Permanent(err error) error {
	return &permanentError{err: err}
}

// Retry runs do up to 1+retries times with exponential backoff between
// attempts. It stops early on success, on context cancellation, or when
// do returns an error wrapped by Permanent. The name prefixes every
// returned error so published-event failures identify their adapter.
func Retry(ctx context.Context, name string, retries int, do func(ctx context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		// Backoff before retries, never before the first attempt
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * retryBackoffBase
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = do(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return fmt.Errorf("%s: non-retriable error: %w", name, perm.err)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
