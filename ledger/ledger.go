// Package ledger persists one record per pull run and reads them back
// for the runs and inspect commands.
//
// Records are msgpack-encoded, one file per run under the reports root.
package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/dredge/types"
)

const (
	// RunsDir is the subdirectory of the reports root holding run records.
	RunsDir = "runs"
	// Extension is the run record file extension.
	Extension = ".mp"
)

// ErrNotFound indicates no record exists for the requested run.
var ErrNotFound = errors.New("run record not found")

// Ledger reads and writes run records under a reports root.
type Ledger struct {
	dir string
}

// New creates a Ledger rooted at reportsDir. Records live under
// reportsDir/runs.
func New(reportsDir string) *Ledger {
	return &Ledger{dir: filepath.Join(reportsDir, RunsDir)}
}

// Path returns the record path for a run id.
func (l *Ledger) Path(runID string) string {
	return filepath.Join(l.dir, runID+Extension)
}

// Write persists a run record. The write is atomic: data lands in a
// temp file first and is renamed into place, so readers never observe a
// partial record.
func (l *Ledger) Write(record *types.RunRecord) error {
	if record.RunID == "" {
		return errors.New("run record requires a run id")
	}
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("create runs dir: %w", err)
	}

	data, err := msgpack.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}

	path := l.Path(record.RunID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write run record: %w", err)
	}
	return os.Rename(tmp, path)
}

// Read loads the record for one run.
// Returns ErrNotFound when no record exists for the run id.
func (l *Ledger) Read(runID string) (*types.RunRecord, error) {
	data, err := os.ReadFile(l.Path(runID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("read run record: %w", err)
	}

	var record types.RunRecord
	if err := msgpack.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode run record %s: %w", runID, err)
	}
	return &record, nil
}

// List loads every run record, newest first by start time. Records that
// fail to decode are skipped so one corrupt file never hides the rest.
func (l *Ledger) List() ([]*types.RunRecord, error) {
	entries, err := os.ReadDir(l.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list runs dir: %w", err)
	}

	records := make([]*types.RunRecord, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Extension) {
			continue
		}
		record, err := l.Read(strings.TrimSuffix(entry.Name(), Extension))
		if err != nil {
			continue
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	return records, nil
}
