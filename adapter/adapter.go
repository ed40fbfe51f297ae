// Package adapter defines the completion-event boundary for downstream
// systems.
//
// Adapters publish pull completion notifications after a run reaches a
// terminal state. The CLI owns adapter lifecycle; users provide
// configuration only.
package adapter

import "context"

// EventTypePullCompleted is the event_type value on every published event.
const EventTypePullCompleted = "pull_completed"

// PullCompletedEvent is the payload published when a pull run finishes.
// Day mirrors the archive partition key and equals the window's "from" date.
type PullCompletedEvent struct {
	EventType   string `json:"event_type"` // always "pull_completed"
	RunID       string `json:"run_id"`
	Environment string `json:"environment"`
	Day         string `json:"day"`
	WindowTo    string `json:"window_to"`
	Outcome     string `json:"outcome"` // success, exhausted, interrupted, error
	ReportsDir  string `json:"reports_dir"`
	Timestamp   string `json:"timestamp"` // ISO 8601
	References  int    `json:"references"`
	Saved       int    `json:"saved"`
	Failed      int    `json:"failed"`
	Unresolved  int    `json:"unresolved"`
	RetryRounds int    `json:"retry_rounds"`
	DurationMs  int64  `json:"duration_ms"`
}

// Adapter publishes pull completion events to a downstream system.
// Implementations must be safe for single-use per run.
type Adapter interface {
	// Publish sends a pull completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *PullCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
