package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/dredge/cli/reader"
)

// NewStatsModel creates the model for the stats view.
func NewStatsModel(viewType string, data any) Model {
	return newModel(viewType, func() string {
		if viewType != "stats" {
			return fmt.Sprintf("Unknown view type: %s", viewType)
		}
		stats, ok := data.(*reader.PipelineStats)
		if !ok {
			return "Invalid data type for stats"
		}
		return renderPipelineStats(stats)
	})
}

// renderPipelineStats renders outcome and volume counters as two rows of
// stat boxes plus the cumulative byte count.
func renderPipelineStats(stats *reader.PipelineStats) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Pipeline Statistics"))
	b.WriteString("\n\n")

	outcomes := []string{
		renderStatBox("Runs", stats.Runs, highlightColor),
		renderStatBox("Succeeded", stats.Succeeded, successColor),
		renderStatBox("Exhausted", stats.Exhausted, errorColor),
		renderStatBox("Interrupted", stats.Interrupted, warningColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, outcomes...))
	b.WriteString("\n\n")

	volume := []string{
		renderStatBox("Reports Saved", stats.ReportsSaved, highlightColor),
		renderStatBox("Files On Disk", stats.FilesOnDisk, successColor),
		renderStatBox("Retry Runs", stats.RunsWithRetries, warningColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, volume...))

	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("%s %s",
		LabelStyle.Render("Bytes Written:"),
		ValueStyle.Render(fmt.Sprintf("%d", stats.BytesWritten))))

	return b.String()
}

func renderStatBox(label string, value int, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}
