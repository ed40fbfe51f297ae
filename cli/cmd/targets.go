package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/dredge/cli/config"
	"github.com/pithecene-io/dredge/cli/render"
	"github.com/pithecene-io/dredge/pull"
)

// TargetPreview is one row of targets output: a reference the current
// configuration would dispatch, without dispatching it.
type TargetPreview struct {
	AppID    string `json:"app_id"`
	Platform string `json:"platform"`
	Kind     string `json:"kind"`
	From     string `json:"from"`
	To       string `json:"to"`
	URL      string `json:"url"`
}

// TargetsCommand returns the targets command. It previews the references
// a pull would issue; credentials are not required since nothing is sent.
func TargetsCommand() *cli.Command {
	return &cli.Command{
		Name:  "targets",
		Usage: "Preview the report references the current configuration yields",
		Flags: []cli.Flag{
			FormatFlag,
			NoColorFlag,
			TUIFlag,
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to dredge.yaml config file",
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "Environment tier: local, dev, or prod",
			},
			&cli.StringFlag{
				Name:  "from",
				Usage: "Window start date (YYYY-MM-DD, requires --to)",
			},
			&cli.StringFlag{
				Name:  "to",
				Usage: "Window end date (YYYY-MM-DD, requires --from)",
			},
			&cli.StringSliceFlag{
				Name:  "kind",
				Usage: "Report kind to preview (repeatable; default: all kinds)",
			},
		},
		Action: targetsAction,
	}
}

func targetsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for the targets command", 1)
	}

	cfg, err := loadPullConfig(c)
	if err != nil {
		return err
	}

	window, err := parseWindow(c.String("from"), c.String("to"))
	if err != nil {
		return err
	}

	targets := pull.BuildTargets(cfg.Provider.AppIDIOS, cfg.Provider.AppIDAndroid,
		cfg.ReportKinds(), window)
	if len(targets) == 0 {
		return fmt.Errorf("no applications configured: set %s or %s (or provider.app_id_ios / provider.app_id_android)",
			config.EnvVarAppIDIOS, config.EnvVarAppIDAndroid)
	}

	refs := pull.BuildReferences(cfg.Provider.BaseURL, targets)
	rows := make([]TargetPreview, 0, len(refs))
	for _, ref := range refs {
		rows = append(rows, TargetPreview{
			AppID:    ref.Target.AppID,
			Platform: string(ref.Target.Platform),
			Kind:     string(ref.Target.Kind),
			From:     ref.Target.Window.FromParam(),
			To:       ref.Target.Window.ToParam(),
			URL:      ref.URL,
		})
	}

	return r.Render(rows)
}
