package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/pithecene-io/dredge/types"
)

// NewInspectModel creates the model for the inspect_run view.
func NewInspectModel(viewType string, data any) Model {
	return newModel(viewType, func() string {
		if viewType != "inspect_run" {
			return fmt.Sprintf("Unknown view type: %s", viewType)
		}
		rec, ok := data.(*types.RunRecord)
		if !ok {
			return "Invalid data type for inspect_run"
		}
		return renderInspectRun(rec)
	})
}

// renderInspectRun renders one full ledger record: identity, totals, and
// the per-reference dispositions.
func renderInspectRun(rec *types.RunRecord) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Run Details"))
	b.WriteString("\n\n")

	rows := [][]string{
		{"Run ID", rec.RunID},
		{"Environment", rec.Environment},
		{"Outcome", string(rec.Outcome)},
		{"Window", fmt.Sprintf("%s to %s", rec.WindowFrom, rec.WindowTo)},
		{"Started At", rec.StartedAt.Format("2006-01-02 15:04:05")},
		{"Finished At", rec.FinishedAt.Format("2006-01-02 15:04:05")},
		{"Duration", rec.Duration().Round(time.Millisecond).String()},
		{"Retry Rounds", fmt.Sprintf("%d", rec.Totals.RetryRounds)},
	}
	if rec.Message != "" {
		rows = append(rows, []string{"Message", rec.Message})
	}

	for _, row := range rows {
		label := LabelStyle.Render(row[0] + ":")
		value := row[1]
		if row[0] == "Outcome" {
			value = StateStyle(string(rec.Outcome)).Render(value)
		} else {
			value = ValueStyle.Render(value)
		}
		b.WriteString(fmt.Sprintf("%s %s\n", label, value))
	}

	b.WriteString("\n")
	b.WriteString(TitleStyle.Render("Totals"))
	b.WriteString("\n")
	totals := [][]string{
		{"References", fmt.Sprintf("%d", rec.Totals.References)},
		{"Saved", fmt.Sprintf("%d", rec.Totals.Saved)},
		{"Failed", fmt.Sprintf("%d", rec.Totals.Failed)},
		{"No Filename", fmt.Sprintf("%d", rec.Totals.MissingHeader)},
		{"Unresolved", fmt.Sprintf("%d", rec.Totals.Unresolved)},
		{"Bytes Written", fmt.Sprintf("%d", rec.Totals.BytesWritten)},
	}
	for _, row := range totals {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render(row[0]+":"),
			ValueStyle.Render(row[1])))
	}

	if len(rec.References) > 0 {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render("References"))
		b.WriteString("\n")
		for _, ref := range rec.References {
			status := StateStyle(string(ref.Status)).Render(string(ref.Status))
			line := fmt.Sprintf("  • %s %s %s", ref.AppID, ref.Kind, status)
			if ref.Filename != "" {
				line += ValueStyle.Render(fmt.Sprintf(" %s (%d bytes)", ref.Filename, ref.Bytes))
			}
			if ref.Error != "" {
				line += ErrorStyle.Render(" " + ref.Error)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return BoxStyle.Render(b.String())
}
