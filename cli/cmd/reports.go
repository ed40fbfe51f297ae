package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/dredge/cli/reader"
	"github.com/pithecene-io/dredge/cli/render"
)

// listWarningThreshold is the number of items above which we warn about
// using --limit.
const listWarningThreshold = 100

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// readerFor returns the data source for read-only commands. An explicit
// --reports-dir overrides the process-wide default, which tests replace
// via reader.SetReader.
func readerFor(c *cli.Context) reader.Reader {
	if c.IsSet("reports-dir") {
		return reader.NewFSReader(c.String("reports-dir"))
	}
	return reader.GetReader()
}

// warnLargeListing nudges interactive users toward --limit. Pipelines
// are left alone.
func warnLargeListing(count, limit int) {
	if count > listWarningThreshold && limit == 0 && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", count)
	}
}

// ReportsCommand returns the reports command: the files sitting under
// the unprocessed directory waiting for downstream pickup.
func ReportsCommand() *cli.Command {
	return &cli.Command{
		Name:  "reports",
		Usage: "List downloaded report files awaiting processing",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "app-id",
				Usage: "Filter by application ID",
			},
			&cli.StringFlag{
				Name:  "kind",
				Usage: "Filter by report kind",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of files to return (0 = no limit)",
				Value: 0,
			},
		),
		Action: reportsAction,
	}
}

func reportsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for the reports command", 1)
	}

	opts := reader.ListReportsOptions{
		AppID: c.String("app-id"),
		Kind:  c.String("kind"),
		Limit: c.Int("limit"),
	}

	results, err := readerFor(c).ListReports(opts)
	if err != nil {
		return err
	}
	warnLargeListing(len(results), opts.Limit)

	return r.Render(results)
}
