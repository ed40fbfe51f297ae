package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/dredge/cli/render"
	"github.com/pithecene-io/dredge/ledger"
)

// InspectCommand returns the inspect command: the full ledger record of
// one run, including every reference disposition.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Inspect a recorded run by ID",
		ArgsUsage: "<run-id>",
		Flags:     TUIReadOnlyFlags(),
		Action:    inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("run-id required", 1)
	}
	runID := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	rec, err := readerFor(c).InspectRun(runID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return cli.Exit(fmt.Sprintf("run not found: %s", runID), 1)
		}
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI("inspect_run", rec)
	}

	return r.Render(rec)
}
