// Package reader provides the read-side data access layer for the dredge CLI.
//
// This package isolates read-only commands from the pull pipeline: it
// reads what previous runs left behind (report files and ledger records)
// and never mutates state.
package reader

import (
	"time"

	"github.com/pithecene-io/dredge/types"
)

// ReportFile is one saved report file under the unprocessed directory.
// The app, kind, and window fields are parsed from the provider-assigned
// filename and empty when the name does not follow the provider scheme.
type ReportFile struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
	AppID      string    `json:"app_id,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	WindowFrom string    `json:"window_from,omitempty"`
	WindowTo   string    `json:"window_to,omitempty"`
}

// ListReportsOptions filters report file listings.
type ListReportsOptions struct {
	AppID string
	Kind  string
	Limit int
}

// ListRunsOptions filters run listings.
type ListRunsOptions struct {
	Outcome string
	Limit   int
}

// RunSummary is the one-line run view returned by list operations.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	Environment string    `json:"environment"`
	Outcome     string    `json:"outcome"`
	WindowFrom  string    `json:"window_from"`
	WindowTo    string    `json:"window_to"`
	StartedAt   time.Time `json:"started_at"`
	DurationMs  int64     `json:"duration_ms"`
	Saved       int       `json:"saved"`
	Failed      int       `json:"failed"`
	Unresolved  int       `json:"unresolved"`
	RetryRounds int       `json:"retry_rounds"`
}

// SummarizeRun converts a full ledger record into the list view.
func SummarizeRun(rec *types.RunRecord) RunSummary {
	return RunSummary{
		RunID:       rec.RunID,
		Environment: rec.Environment,
		Outcome:     string(rec.Outcome),
		WindowFrom:  rec.WindowFrom,
		WindowTo:    rec.WindowTo,
		StartedAt:   rec.StartedAt,
		DurationMs:  rec.Duration().Milliseconds(),
		Saved:       rec.Totals.Saved,
		Failed:      rec.Totals.Failed,
		Unresolved:  rec.Totals.Unresolved,
		RetryRounds: rec.Totals.RetryRounds,
	}
}

// PipelineStats aggregates ledger records and on-disk report files.
type PipelineStats struct {
	Runs            int   `json:"runs"`
	Succeeded       int   `json:"succeeded"`
	Exhausted       int   `json:"exhausted"`
	Interrupted     int   `json:"interrupted"`
	Errored         int   `json:"errored"`
	RunsWithRetries int   `json:"runs_with_retries"`
	ReportsSaved    int   `json:"reports_saved"`
	BytesWritten    int64 `json:"bytes_written"`
	FilesOnDisk     int   `json:"files_on_disk"`
}
