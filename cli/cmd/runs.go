package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/dredge/cli/reader"
	"github.com/pithecene-io/dredge/cli/render"
)

// RunsCommand returns the runs command: recorded run ledger entries,
// newest first.
func RunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List recorded pull runs",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "outcome",
				Usage: "Filter by outcome: success, exhausted, interrupted, error",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to return (0 = no limit)",
				Value: 0,
			},
		),
		Action: runsAction,
	}
}

func runsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for the runs command", 1)
	}

	opts := reader.ListRunsOptions{
		Outcome: c.String("outcome"),
		Limit:   c.Int("limit"),
	}

	results, err := readerFor(c).ListRuns(opts)
	if err != nil {
		return err
	}
	warnLargeListing(len(results), opts.Limit)

	return r.Render(results)
}
