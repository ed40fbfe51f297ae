// Package metrics provides per-run metrics collection for the pull pipeline.
//
// The Collector accumulates counters during a single run. It is a leaf package
// with no internal dependencies. Counters are recorded live by the dispatcher,
// persister, and archive mirror; the orchestrator folds the final snapshot
// into the run report.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all run metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Dispatch
	References  int64
	Dispatched  int64
	RetryRounds int64
	RetriedRefs int64
	// Resolution
	Completed int64
	Failed    int64
	// Persistence
	Saved         int64
	SaveFailures  int64
	MissingHeader int64
	BytesWritten  int64
	// Terminal
	Unresolved int64
	// Archive mirror
	Archived        int64
	ArchiveFailures int64

	// Dimensions (informational, set at construction)
	Environment    string
	StorageBackend string
	RunID          string
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	// Dispatch
	references  int64
	dispatched  int64
	retryRounds int64
	retriedRefs int64

	// Resolution
	completed int64
	failed    int64

	// Persistence
	saved         int64
	saveFailures  int64
	missingHeader int64
	bytesWritten  int64

	// Terminal
	unresolved int64

	// Archive mirror
	archived        int64
	archiveFailures int64

	// Dimensions
	environment    string
	storageBackend string
	runID          string
}

// NewCollector creates a Collector with dimension labels.
// storageBackend names where reports land ("local" or "s3" when the
// archive mirror is enabled).
func NewCollector(environment, storageBackend, runID string) *Collector {
	return &Collector{
		environment:    environment,
		storageBackend: storageBackend,
		runID:          runID,
	}
}

// --- Dispatch ---

// SetReferences records the number of references built for the run.
func (c *Collector) SetReferences(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.references = int64(n)
	c.mu.Unlock()
}

// IncDispatched records one issued request.
func (c *Collector) IncDispatched() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.dispatched++
	c.mu.Unlock()
}

// IncRetryRound records one re-dispatch round.
func (c *Collector) IncRetryRound() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.retryRounds++
	c.mu.Unlock()
}

// AddRetriedRefs records the number of references re-issued in a retry round.
func (c *Collector) AddRetriedRefs(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.retriedRefs += int64(n)
	c.mu.Unlock()
}

// --- Resolution ---

// IncCompleted records a request that resolved with a response.
func (c *Collector) IncCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.completed++
	c.mu.Unlock()
}

// IncFailed records a request that resolved with a transport error.
func (c *Collector) IncFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.failed++
	c.mu.Unlock()
}

// --- Persistence ---

// IncSaved records one report written to disk.
func (c *Collector) IncSaved() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.saved++
	c.mu.Unlock()
}

// IncSaveFailure records a filesystem write error.
func (c *Collector) IncSaveFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.saveFailures++
	c.mu.Unlock()
}

// IncMissingHeader records a completed response discarded for lacking a
// filename header.
func (c *Collector) IncMissingHeader() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.missingHeader++
	c.mu.Unlock()
}

// AddBytesWritten records body bytes persisted to disk.
func (c *Collector) AddBytesWritten(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.bytesWritten += n
	c.mu.Unlock()
}

// --- Terminal ---

// AddUnresolved records references still pending when the run ended.
func (c *Collector) AddUnresolved(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.unresolved += int64(n)
	c.mu.Unlock()
}

// --- Archive mirror ---
// Archive counters are per-object. A mirror failure never fails the run;
// the counter is the only durable trace besides the warning log.

// IncArchived records one report mirrored to the archive backend.
func (c *Collector) IncArchived() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.archived++
	c.mu.Unlock()
}

// IncArchiveFailure records a failed archive mirror attempt.
func (c *Collector) IncArchiveFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.archiveFailures++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		References:  c.references,
		Dispatched:  c.dispatched,
		RetryRounds: c.retryRounds,
		RetriedRefs: c.retriedRefs,

		Completed: c.completed,
		Failed:    c.failed,

		Saved:         c.saved,
		SaveFailures:  c.saveFailures,
		MissingHeader: c.missingHeader,
		BytesWritten:  c.bytesWritten,

		Unresolved: c.unresolved,

		Archived:        c.archived,
		ArchiveFailures: c.archiveFailures,

		Environment:    c.environment,
		StorageBackend: c.storageBackend,
		RunID:          c.runID,
	}
}
