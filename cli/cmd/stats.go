package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/dredge/cli/render"
)

// StatsCommand returns the stats command: aggregate counts across every
// recorded run plus the files currently on disk.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show aggregate pipeline statistics",
		Flags:  TUIReadOnlyFlags(),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	stats, err := readerFor(c).Stats()
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats", stats)
	}

	return r.Render(stats)
}
