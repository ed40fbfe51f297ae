package reader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pithecene-io/dredge/ledger"
	"github.com/pithecene-io/dredge/pull"
	"github.com/pithecene-io/dredge/types"
)

// FSReader reads run history and report files from a reports directory.
type FSReader struct {
	reportsDir string
	runs       *ledger.Ledger
}

// NewFSReader creates a reader rooted at reportsDir.
func NewFSReader(reportsDir string) *FSReader {
	return &FSReader{
		reportsDir: reportsDir,
		runs:       ledger.New(reportsDir),
	}
}

var _ Reader = (*FSReader)(nil)

// ListReports returns report files under the unprocessed directory,
// newest first. A missing directory is an empty listing, not an error.
func (r *FSReader) ListReports(opts ListReportsOptions) ([]ReportFile, error) {
	dir := filepath.Join(r.reportsDir, pull.UnprocessedDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot read reports directory %q: %w", dir, err)
	}

	files := make([]ReportFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		file := ReportFile{
			Name:       entry.Name(),
			Path:       filepath.Join(dir, entry.Name()),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		}
		if parts, ok := ParseReportName(entry.Name()); ok {
			file.AppID = parts.AppID
			file.Kind = string(parts.Kind)
			file.WindowFrom = parts.From
			file.WindowTo = parts.To
		}

		if opts.AppID != "" && file.AppID != opts.AppID {
			continue
		}
		if opts.Kind != "" && file.Kind != opts.Kind {
			continue
		}
		files = append(files, file)
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].ModifiedAt.Equal(files[j].ModifiedAt) {
			return files[i].Name < files[j].Name
		}
		return files[i].ModifiedAt.After(files[j].ModifiedAt)
	})

	if opts.Limit > 0 && len(files) > opts.Limit {
		files = files[:opts.Limit]
	}
	return files, nil
}

// ListRuns returns recorded runs, newest first.
func (r *FSReader) ListRuns(opts ListRunsOptions) ([]RunSummary, error) {
	records, err := r.runs.List()
	if err != nil {
		return nil, err
	}

	out := make([]RunSummary, 0, len(records))
	for _, rec := range records {
		if opts.Outcome != "" && string(rec.Outcome) != opts.Outcome {
			continue
		}
		out = append(out, SummarizeRun(rec))
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// InspectRun returns the full ledger record for one run. The error
// wraps ledger.ErrNotFound for unknown run ids.
func (r *FSReader) InspectRun(runID string) (*types.RunRecord, error) {
	return r.runs.Read(runID)
}

// Stats aggregates every ledger record plus the on-disk file count.
func (r *FSReader) Stats() (*PipelineStats, error) {
	records, err := r.runs.List()
	if err != nil {
		return nil, err
	}

	stats := &PipelineStats{}
	for _, rec := range records {
		stats.Runs++
		switch rec.Outcome {
		case types.OutcomeSuccess:
			stats.Succeeded++
		case types.OutcomeExhausted:
			stats.Exhausted++
		case types.OutcomeInterrupted:
			stats.Interrupted++
		default:
			stats.Errored++
		}
		if rec.Totals.RetryRounds > 0 {
			stats.RunsWithRetries++
		}
		stats.ReportsSaved += rec.Totals.Saved
		stats.BytesWritten += rec.Totals.BytesWritten
	}

	files, err := r.ListReports(ListReportsOptions{})
	if err != nil {
		return nil, err
	}
	stats.FilesOnDisk = len(files)

	return stats, nil
}
