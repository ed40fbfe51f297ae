// Package cmd provides CLI commands for the dredge binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/dredge/cli/config"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects the output format.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, or yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag opens the Bubble Tea interactive view where one exists.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Open the interactive TUI (inspect and stats only)",
	}

	// ReportsDirFlag points read-only commands at the reports directory
	// holding unprocessed files and run records.
	ReportsDirFlag = &cli.StringFlag{
		Name:  "reports-dir",
		Usage: "Reports directory",
		Value: config.DefaultReportsDir,
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error
// messages instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
		ReportsDirFlag,
	}
}

// TUIReadOnlyFlags returns flags for commands that support TUI mode.
// This is an alias for ReadOnlyFlags, kept for documentation clarity.
func TUIReadOnlyFlags() []cli.Flag {
	return ReadOnlyFlags()
}
