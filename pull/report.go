package pull

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pithecene-io/dredge/metrics"
	"github.com/pithecene-io/dredge/types"
)

// RunReport is the structured JSON report written by --report.
type RunReport struct {
	RunID       string              `json:"run_id"`
	Environment string              `json:"environment,omitempty"`
	Outcome     types.OutcomeStatus `json:"outcome"`
	Message     string              `json:"message"`
	ExitCode    int                 `json:"exit_code"`
	WindowFrom  string              `json:"window_from"`
	WindowTo    string              `json:"window_to"`
	DurationMs  int64               `json:"duration_ms"`
	RetryRounds int                 `json:"retry_rounds"`

	Totals     types.RunTotals         `json:"totals"`
	References []types.ReferenceResult `json:"references"`
	Metrics    *metrics.Snapshot       `json:"metrics"`
}

// BuildRunReport composes a RunReport from a pull result.
// The exitCode is the process exit code that will be returned to the caller.
func BuildRunReport(result *Result, exitCode int) *RunReport {
	snap := result.Metrics
	return &RunReport{
		RunID:       result.RunMeta.RunID,
		Environment: result.RunMeta.Environment,
		Outcome:     result.Outcome,
		Message:     result.Message,
		ExitCode:    exitCode,
		WindowFrom:  result.Window.FromParam(),
		WindowTo:    result.Window.ToParam(),
		DurationMs:  result.Duration.Milliseconds(),
		RetryRounds: result.RetryRounds,
		Totals:      result.Totals,
		References:  result.References,
		Metrics:     &snap,
	}
}

// WriteRunReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteRunReport(report *RunReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	if path == "-" {
		return writeRunReportTo(report, os.Stderr)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

// writeRunReportTo writes report JSON to any writer (for testing).
func writeRunReportTo(report *RunReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
