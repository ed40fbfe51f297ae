package reader

import (
	"github.com/pithecene-io/dredge/cli/config"
	"github.com/pithecene-io/dredge/types"
)

// Reader abstracts read-only data access for CLI commands.
// Implementations read the reports directory and the run ledger; all
// methods are side-effect free.
type Reader interface {
	// ListReports returns saved report files, newest first.
	ListReports(opts ListReportsOptions) ([]ReportFile, error)
	// ListRuns returns recorded runs, newest first.
	ListRuns(opts ListRunsOptions) ([]RunSummary, error)
	// InspectRun returns the full ledger record for one run.
	InspectRun(runID string) (*types.RunRecord, error)
	// Stats aggregates ledger records and the on-disk file count.
	Stats() (*PipelineStats, error)
}

// defaultReader is the package-level reader instance, rooted at the
// default reports directory until the CLI wires a configured one.
var defaultReader Reader = NewFSReader(config.DefaultReportsDir)

// SetReader sets the package-level reader instance.
// Call this during initialization once the reports directory is known.
func SetReader(r Reader) {
	defaultReader = r
}

// GetReader returns the current package-level reader instance.
func GetReader() Reader {
	return defaultReader
}
