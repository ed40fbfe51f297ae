package types

import (
	"errors"
	"time"
)

// RunMeta contains the identity fields carried by the logger, the ledger,
// and completion events for one pull run.
type RunMeta struct {
	// RunID is the canonical run identifier. Must be globally unique.
	RunID string
	// Environment is the configuration tier the run executed under.
	Environment string
}

// Validate checks run identity rules.
func (r *RunMeta) Validate() error {
	if r.RunID == "" {
		return errors.New("run_id must be non-empty")
	}
	return nil
}

// OutcomeStatus represents the terminal state of a pull run.
type OutcomeStatus string

const (
	// OutcomeSuccess indicates every reference resolved and persisted work finished.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeExhausted indicates references were still pending when the
	// retry ceiling was reached.
	OutcomeExhausted OutcomeStatus = "exhausted"
	// OutcomeInterrupted indicates the run was aborted by a shutdown signal.
	OutcomeInterrupted OutcomeStatus = "interrupted"
	// OutcomeError indicates the run failed for a reason other than
	// exhaustion or interruption.
	OutcomeError OutcomeStatus = "error"
)

// ReferenceStatus is the per-reference result recorded in the run ledger.
type ReferenceStatus string

const (
	// ReferenceSaved indicates the response body was written to disk.
	ReferenceSaved ReferenceStatus = "saved"
	// ReferenceFailed indicates the request resolved with a transport error.
	ReferenceFailed ReferenceStatus = "failed"
	// ReferenceMissingHeader indicates a completed response carried no
	// filename header and was discarded.
	ReferenceMissingHeader ReferenceStatus = "missing_header"
	// ReferenceUnresolved indicates the reference was still pending at the
	// end of the run.
	ReferenceUnresolved ReferenceStatus = "unresolved"
)

// ReferenceResult is one reference's final disposition within a run.
// Fields use msgpack tags for the ledger encoding and json tags for the
// run report and read-only command output.
type ReferenceResult struct {
	// URL is the reference identity.
	URL string `msgpack:"url" json:"url"`
	// AppID is the originating application identifier.
	AppID string `msgpack:"app_id" json:"app_id"`
	// Platform is the originating application platform.
	Platform Platform `msgpack:"platform" json:"platform"`
	// Kind is the report kind pulled.
	Kind ReportKind `msgpack:"kind" json:"kind"`
	// Status is the final disposition.
	Status ReferenceStatus `msgpack:"status" json:"status"`
	// Filename is the header-provided name the body was saved under.
	// Empty unless Status is saved.
	Filename string `msgpack:"filename,omitempty" json:"filename,omitempty"`
	// Bytes is the number of body bytes written. Zero unless Status is saved.
	Bytes int64 `msgpack:"bytes,omitempty" json:"bytes,omitempty"`
	// Error is the transport error message for failed references.
	Error string `msgpack:"error,omitempty" json:"error,omitempty"`
}

// RunTotals aggregates per-reference results for one run.
type RunTotals struct {
	// References is the number of references built for the run.
	References int `msgpack:"references" json:"references"`
	// Saved is the number of reports written to disk.
	Saved int `msgpack:"saved" json:"saved"`
	// Failed is the number of references that resolved with an error.
	Failed int `msgpack:"failed" json:"failed"`
	// MissingHeader is the number of completed responses discarded for
	// lacking a filename header.
	MissingHeader int `msgpack:"missing_header" json:"missing_header"`
	// Unresolved is the number of references still pending at run end.
	Unresolved int `msgpack:"unresolved" json:"unresolved"`
	// RetryRounds is the number of re-dispatch rounds executed.
	RetryRounds int `msgpack:"retry_rounds" json:"retry_rounds"`
	// BytesWritten is the total body bytes persisted.
	BytesWritten int64 `msgpack:"bytes_written" json:"bytes_written"`
}

// RunRecord is the per-run ledger entry written after every pull and read
// back by the runs and inspect commands.
type RunRecord struct {
	// RunID is the canonical run identifier.
	RunID string `msgpack:"run_id" json:"run_id"`
	// Environment is the configuration tier the run executed under.
	Environment string `msgpack:"environment" json:"environment"`
	// WindowFrom is the "from" date the run pulled, formatted YYYY-MM-DD.
	WindowFrom string `msgpack:"window_from" json:"window_from"`
	// WindowTo is the "to" date the run pulled, formatted YYYY-MM-DD.
	WindowTo string `msgpack:"window_to" json:"window_to"`
	// StartedAt is when the run began, ISO 8601 UTC.
	StartedAt time.Time `msgpack:"started_at" json:"started_at"`
	// FinishedAt is when the run reached a terminal state, ISO 8601 UTC.
	FinishedAt time.Time `msgpack:"finished_at" json:"finished_at"`
	// Outcome is the terminal state classification.
	Outcome OutcomeStatus `msgpack:"outcome" json:"outcome"`
	// Message is a human-readable outcome description.
	Message string `msgpack:"message,omitempty" json:"message,omitempty"`
	// Totals aggregates the per-reference results.
	Totals RunTotals `msgpack:"totals" json:"totals"`
	// References is the final disposition of every reference in the run.
	References []ReferenceResult `msgpack:"references" json:"references"`
}

// Duration returns the wall-clock length of the run.
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
