package pull

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/dredge/log"
	"github.com/pithecene-io/dredge/metrics"
	"github.com/pithecene-io/dredge/types"
)

// Defaults for the retry state machine. The drain wait is deliberately
// shorter than the initial wait: retry rounds only mop up stragglers.
const (
	// DefaultInitialWait is the first round's completion budget.
	DefaultInitialWait = 10 * time.Second
	// DefaultDrainWait is each retry round's completion budget.
	DefaultDrainWait = 5 * time.Second
	// DefaultRetryInterval is the courtesy sleep between retry rounds.
	DefaultRetryInterval = 3 * time.Second
	// DefaultMaxAttempts is the retry ceiling (re-dispatch rounds).
	DefaultMaxAttempts = 3
)

// Config configures a single pull run.
type Config struct {
	// Targets is the per-run report target set.
	Targets []types.ReportTarget
	// BaseURL is the provider API root.
	BaseURL string
	// RunMeta is the run identity metadata.
	RunMeta *types.RunMeta
	// InitialWait is the first round's completion budget. Zero means
	// DefaultInitialWait.
	InitialWait time.Duration
	// DrainWait is each retry round's completion budget. Zero means
	// DefaultDrainWait.
	DrainWait time.Duration
	// RetryInterval is the sleep between retry rounds. Zero means
	// DefaultRetryInterval.
	RetryInterval time.Duration
	// MaxAttempts is the retry ceiling. Zero means DefaultMaxAttempts.
	MaxAttempts int
	// Dispatcher issues the requests. Required.
	Dispatcher *Dispatcher
	// Persister consumes resolved outcomes. Required.
	Persister *Persister
	// Collector records run metrics. May be nil.
	Collector *metrics.Collector
	// Logger is the run logger. Required.
	Logger *log.Logger
}

// Result is the terminal state of one pull run. It accompanies the error
// on exhausted and interrupted runs so callers can still write the ledger
// and run report.
type Result struct {
	// RunMeta is the run identity.
	RunMeta *types.RunMeta
	// Outcome is the terminal state classification.
	Outcome types.OutcomeStatus
	// Message is a human-readable outcome description.
	Message string
	// Window is the reporting period the run pulled.
	Window types.Window
	// References is the final disposition of every reference, in dispatch
	// order.
	References []types.ReferenceResult
	// Totals aggregates the per-reference results.
	Totals types.RunTotals
	// RetryRounds is the number of re-dispatch rounds executed.
	RetryRounds int
	// Duration is the total run duration.
	Duration time.Duration
	// Metrics is the final metrics snapshot.
	Metrics metrics.Snapshot
}

// Orchestrator drives one run end to end: dispatch, partition, persist,
// and the bounded retry loop.
type Orchestrator struct {
	config    *Config
	logger    *log.Logger
	startTime time.Time
}

// NewOrchestrator creates an orchestrator and validates its configuration.
func NewOrchestrator(config *Config) (*Orchestrator, error) {
	if err := config.RunMeta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run metadata: %w", err)
	}
	if len(config.Targets) == 0 {
		return nil, errors.New("no report targets configured")
	}
	if config.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if config.Dispatcher == nil || config.Persister == nil || config.Logger == nil {
		return nil, errors.New("dispatcher, persister, and logger are required")
	}

	if config.InitialWait <= 0 {
		config.InitialWait = DefaultInitialWait
	}
	if config.DrainWait <= 0 {
		config.DrainWait = DefaultDrainWait
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = DefaultRetryInterval
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}

	return &Orchestrator{
		config: config,
		logger: config.Logger,
	}, nil
}

// Execute executes the run end to end.
//
// Execution flow:
//  1. Build references and dispatch all of them.
//  2. Partition with the initial budget; ship everything resolved to the
//     persister. First-round failures are logged there and discarded;
//     only timed-out references enter the retry loop.
//  3. Drive bounded retry rounds over the pending set.
//  4. Classify the terminal state and assemble the result.
//
// On exhaustion and interruption the returned Result is still populated;
// the error carries the classification.
func (o *Orchestrator) Execute(ctx context.Context) (*Result, error) {
	o.startTime = time.Now()

	refs := BuildReferences(o.config.BaseURL, o.config.Targets)
	o.config.Collector.SetReferences(len(refs))
	results := newResultSet(refs)

	o.logger.Info("starting pull run", map[string]any{
		"references": len(refs),
		"from":       refs[0].Target.Window.FromParam(),
		"to":         refs[0].Target.Window.ToParam(),
		"attempts":   o.config.MaxAttempts,
	})

	handles := o.config.Dispatcher.Dispatch(ctx, refs)
	done, pending := Partition(ctx, handles, o.config.InitialWait)
	if ctx.Err() != nil {
		o.abortOutstanding(handles)
		return o.buildResult(results, 0, ErrInterrupted), ErrInterrupted
	}

	// First round: resolved failures ride along to the persister, which
	// logs and discards them. The retry asymmetry lives here.
	for _, sr := range o.config.Persister.SaveAll(ctx, done) {
		results.record(sr)
	}

	rounds := 0
	if len(pending) > 0 {
		var err error
		rounds, err = o.retry(ctx, results, pending)
		if err != nil {
			result := o.buildResult(results, rounds, err)
			return result, err
		}
	}

	result := o.buildResult(results, rounds, nil)
	o.logger.Info("pull run completed", map[string]any{
		"saved":        result.Totals.Saved,
		"failed":       result.Totals.Failed,
		"retry_rounds": rounds,
		"duration":     result.Duration.String(),
	})
	return result, nil
}

// retry drives the bounded re-dispatch loop over the pending set.
// Returns the number of rounds executed and a nil error only when the
// pending set emptied before the ceiling.
func (o *Orchestrator) retry(ctx context.Context, results *resultSet, pending []*Handle) (int, error) {
	for attempt := 1; attempt <= o.config.MaxAttempts; attempt++ {
		o.logger.Info("retrying pending reports", map[string]any{
			"attempt": attempt,
			"pending": len(pending),
		})
		o.config.Collector.IncRetryRound()
		o.config.Collector.AddRetriedRefs(len(pending))

		refs := make([]Reference, len(pending))
		for i, h := range pending {
			refs[i] = h.Ref()
		}

		// Same identity, new handle: retire the stale handles so a
		// reference never has two requests in flight.
		for _, h := range pending {
			h.Cancel()
		}

		handles := o.config.Dispatcher.Dispatch(ctx, refs)
		done, stillPending := Partition(ctx, handles, o.config.DrainWait)
		if ctx.Err() != nil {
			o.abortOutstanding(handles)
			return attempt, ErrInterrupted
		}

		// Inside the retry loop a failure is indistinguishable from a
		// timeout: it rejoins the pending set instead of reaching the
		// persister.
		completed, failed := splitCompleted(done)
		for range failed {
			o.config.Collector.IncFailed()
		}
		for _, sr := range o.config.Persister.SaveAll(ctx, completed) {
			results.record(sr)
		}
		pending = append(stillPending, failed...)

		o.logger.Info("retry round finished", map[string]any{
			"attempt": attempt,
			"done":    len(completed),
			"pending": len(pending),
		})

		// Courtesy interval toward the upstream API before re-checking.
		select {
		case <-time.After(o.config.RetryInterval):
		case <-ctx.Done():
			if len(pending) == 0 {
				// Nothing left to abort; the run's work is complete.
				return attempt, nil
			}
			o.abortOutstanding(pending)
			return attempt, ErrInterrupted
		}

		if len(pending) == 0 {
			o.logger.Info("all reports have been retrieved successfully", nil)
			return attempt, nil
		}
	}

	// Ceiling reached with work outstanding.
	for _, h := range pending {
		h.Cancel()
	}
	o.logger.Error("failed to retrieve reports after retry attempts", map[string]any{
		"attempts":   o.config.MaxAttempts,
		"unresolved": len(pending),
	})
	return o.config.MaxAttempts, fmt.Errorf("%d references unresolved after %d attempts: %w",
		len(pending), o.config.MaxAttempts, ErrRetriesExhausted)
}

// abortOutstanding cancels every outstanding handle after a shutdown
// signal. Cancellation errors surface on the request goroutines, where
// they are recorded and swallowed.
func (o *Orchestrator) abortOutstanding(outstanding []*Handle) {
	for _, h := range outstanding {
		h.Cancel()
	}
	o.logger.Warn("pull run interrupted, cancelling outstanding requests", map[string]any{
		"outstanding": len(outstanding),
	})
}

// buildResult assembles the terminal Result and classifies the outcome.
func (o *Orchestrator) buildResult(results *resultSet, rounds int, runErr error) *Result {
	refs, totals := results.finalize()
	totals.RetryRounds = rounds
	o.config.Collector.AddUnresolved(totals.Unresolved)

	outcome := types.OutcomeSuccess
	message := fmt.Sprintf("%d of %d reports saved", totals.Saved, totals.References)
	switch {
	case errors.Is(runErr, ErrRetriesExhausted):
		outcome = types.OutcomeExhausted
		message = runErr.Error()
	case errors.Is(runErr, ErrInterrupted):
		outcome = types.OutcomeInterrupted
		message = "run aborted by shutdown signal"
	case runErr != nil:
		outcome = types.OutcomeError
		message = runErr.Error()
	}

	return &Result{
		RunMeta:     o.config.RunMeta,
		Outcome:     outcome,
		Message:     message,
		Window:      o.config.Targets[0].Window,
		References:  refs,
		Totals:      totals,
		RetryRounds: rounds,
		Duration:    time.Since(o.startTime),
		Metrics:     o.config.Collector.Snapshot(),
	}
}

// splitCompleted separates resolved handles into those carrying a
// response and those carrying a transport error.
func splitCompleted(done []*Handle) (completed, failed []*Handle) {
	for _, h := range done {
		if h.Outcome().Completed() {
			completed = append(completed, h)
		} else {
			failed = append(failed, h)
		}
	}
	return completed, failed
}

// resultSet accumulates per-reference dispositions keyed by URL and
// finalizes them in dispatch order. References without a recorded
// disposition finalize as unresolved.
type resultSet struct {
	refs    []Reference
	results map[string]types.ReferenceResult
}

func newResultSet(refs []Reference) *resultSet {
	return &resultSet{
		refs:    refs,
		results: make(map[string]types.ReferenceResult, len(refs)),
	}
}

func (s *resultSet) record(sr SaveResult) {
	result := types.ReferenceResult{
		URL:      sr.Ref.URL,
		AppID:    sr.Ref.Target.AppID,
		Platform: sr.Ref.Target.Platform,
		Kind:     sr.Ref.Target.Kind,
		Status:   sr.Status,
		Filename: sr.Filename,
		Bytes:    sr.Bytes,
	}
	if sr.Err != nil {
		result.Error = sr.Err.Error()
	}
	s.results[sr.Ref.URL] = result
}

func (s *resultSet) finalize() ([]types.ReferenceResult, types.RunTotals) {
	totals := types.RunTotals{References: len(s.refs)}

	out := make([]types.ReferenceResult, 0, len(s.refs))
	for _, ref := range s.refs {
		result, ok := s.results[ref.URL]
		if !ok {
			result = types.ReferenceResult{
				URL:      ref.URL,
				AppID:    ref.Target.AppID,
				Platform: ref.Target.Platform,
				Kind:     ref.Target.Kind,
				Status:   types.ReferenceUnresolved,
			}
		}
		out = append(out, result)

		switch result.Status {
		case types.ReferenceSaved:
			totals.Saved++
			totals.BytesWritten += result.Bytes
		case types.ReferenceFailed:
			totals.Failed++
		case types.ReferenceMissingHeader:
			totals.MissingHeader++
		case types.ReferenceUnresolved:
			totals.Unresolved++
		}
	}
	return out, totals
}
