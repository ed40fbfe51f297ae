// Package pull implements the fetch-retry-persist pipeline: reference
// construction, concurrent dispatch, time-boxed completion partitioning,
// bounded retry of incomplete requests, and streaming persistence keyed by
// a response-supplied filename.
package pull

import "errors"

// Sentinel errors for terminal run classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrRetriesExhausted indicates references were still pending when the
	// retry ceiling was reached. Fatal for the run; remaining handles are
	// cancelled before this is returned.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrInterrupted indicates the run was aborted by a shutdown signal.
	// Distinct from ErrRetriesExhausted so the top level can tell an
	// operator-requested stop from upstream unreliability.
	ErrInterrupted = errors.New("run interrupted")
)
