package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/dredge/adapter"
	"github.com/pithecene-io/dredge/adapter/redis"
	"github.com/pithecene-io/dredge/adapter/webhook"
	"github.com/pithecene-io/dredge/archive"
	"github.com/pithecene-io/dredge/cli/config"
	"github.com/pithecene-io/dredge/ledger"
	"github.com/pithecene-io/dredge/log"
	"github.com/pithecene-io/dredge/metrics"
	"github.com/pithecene-io/dredge/pull"
	"github.com/pithecene-io/dredge/types"
)

// Exit codes for the pull command.
const (
	exitSuccess     = 0
	exitError       = 1
	exitExhausted   = 2
	exitInterrupted = 3
)

// PullCommand returns the pull command.
// This is the only command that executes work; everything else is read-only.
func PullCommand() *cli.Command {
	return &cli.Command{
		Name:  "pull",
		Usage: "Pull attribution reports for the configured applications",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to dredge.yaml config file",
			},
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Run ID (default: generated UUID)",
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "Environment tier: local, dev, or prod",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging (prod always logs at info)",
			},
			&cli.StringFlag{
				Name:  "from",
				Usage: "Window start date (YYYY-MM-DD, requires --to)",
			},
			&cli.StringFlag{
				Name:  "to",
				Usage: "Window end date (YYYY-MM-DD, requires --from)",
			},
			&cli.StringFlag{
				Name:  "reports-dir",
				Usage: "Directory report files and run records land in",
			},
			&cli.IntFlag{
				Name:  "attempts",
				Usage: "Retry ceiling for pending reports",
			},
			&cli.StringSliceFlag{
				Name:  "kind",
				Usage: "Report kind to pull (repeatable; default: all kinds)",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write a JSON run report to this path (- for stderr)",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress result output",
			},
		},
		Action: pullAction,
	}
}

func pullAction(c *cli.Context) error {
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
	if cfg.Provider.Token == "" {
		return fmt.Errorf("provider token is required: set %s or provider.token", config.EnvVarToken)
	}

	runID := c.String("run-id")
	if runID == "" {
		runID = uuid.New().String()
	}
	runMeta := &types.RunMeta{RunID: runID, Environment: cfg.Environment}

	logger := log.NewLogger(runMeta, cfg.DebugEnabled())
	backend := "local"
	if cfg.Archive.Enabled() {
		backend = "s3"
	}
	collector := metrics.NewCollector(cfg.Environment, backend, runID)

	// Adapter misconfiguration surfaces before any request goes out.
	pub, err := buildAdapter(cfg.Adapter)
	if err != nil {
		return err
	}
	if pub != nil {
		defer func() { _ = pub.Close() }()
	}

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var archiver archive.Archiver
	if cfg.Archive.Enabled() {
		a, err := archive.NewS3Archiver(ctx, archive.Config{
			Bucket:       cfg.Archive.Bucket,
			Prefix:       cfg.Archive.Prefix,
			Region:       cfg.Archive.Region,
			Endpoint:     cfg.Archive.Endpoint,
			UsePathStyle: cfg.Archive.S3PathStyle,
		}, window.FromParam(), runID)
		if err != nil {
			return fmt.Errorf("failed to initialize archive mirror: %w", err)
		}
		archiver = a
	}

	dispatcher := pull.NewDispatcher(pull.DispatcherConfig{
		Token:          cfg.Provider.Token,
		TotalTimeout:   cfg.Provider.TotalTimeout.Duration,
		ConnectTimeout: cfg.Provider.ConnectTimeout.Duration,
	}, logger, collector)

	persister := pull.NewPersister(pull.PersisterConfig{
		Dir:       cfg.ReportsDir,
		ChunkSize: cfg.Pull.ChunkSize,
		Archiver:  archiver,
	}, logger, collector)

	orch, err := pull.NewOrchestrator(&pull.Config{
		Targets:       targets,
		BaseURL:       cfg.Provider.BaseURL,
		RunMeta:       runMeta,
		InitialWait:   cfg.Pull.InitialWait.Duration,
		DrainWait:     cfg.Pull.DrainWait.Duration,
		RetryInterval: cfg.Pull.RetryInterval.Duration,
		MaxAttempts:   cfg.Pull.MaxAttempts,
		Dispatcher:    dispatcher,
		Persister:     persister,
		Collector:     collector,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	startedAt := time.Now().UTC()
	result, runErr := orch.Execute(ctx)
	if runErr != nil && !errors.Is(runErr, pull.ErrRetriesExhausted) && !errors.Is(runErr, pull.ErrInterrupted) {
		return fmt.Errorf("pull run failed: %w", runErr)
	}
	exitCode := outcomeToExitCode(result.Outcome)

	// Bookkeeping after the terminal state runs on a fresh context; the
	// run context is already cancelled when a signal ended the run.
	writeLedger(logger, cfg.ReportsDir, result, startedAt)
	if pub != nil {
		publishCompletion(logger, pub, result, cfg.ReportsDir)
	}
	if path := c.String("report"); path != "" {
		report := pull.BuildRunReport(result, exitCode)
		if err := pull.WriteRunReport(report, path); err != nil {
			logger.Warn("failed to write run report", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
		}
	}

	if !c.Bool("quiet") {
		printPullResult(result)
	}

	return cli.Exit("", exitCode)
}

// loadPullConfig assembles the effective pull configuration. Precedence
// from weakest to strongest: file values, environment variables, CLI flags.
func loadPullConfig(c *cli.Context) (*config.Config, error) {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	cfg.Environment = resolveString(c, "env", cfg.Environment)
	cfg.ReportsDir = resolveString(c, "reports-dir", cfg.ReportsDir)
	cfg.Pull.MaxAttempts = resolveInt(c, "attempts", cfg.Pull.MaxAttempts)
	if c.IsSet("debug") {
		v := c.Bool("debug")
		cfg.Debug = &v
	}
	if c.IsSet("kind") {
		cfg.Pull.Kinds = c.StringSlice("kind")
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveString returns the flag value when explicitly set, the config
// value when present, and the flag's registered default otherwise.
func resolveString(c *cli.Context, name, configValue string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	if configValue != "" {
		return configValue
	}
	return c.String(name)
}

// resolveInt is resolveString for int flags.
func resolveInt(c *cli.Context, name string, configValue int) int {
	if c.IsSet(name) {
		return c.Int(name)
	}
	if configValue != 0 {
		return configValue
	}
	return c.Int(name)
}

// parseWindow resolves the reporting window. Both dates must be given
// together; with neither set the default window applies (yesterday down
// to the day before).
func parseWindow(from, to string) (types.Window, error) {
	if from == "" && to == "" {
		return types.DefaultWindow(time.Now()), nil
	}
	if from == "" || to == "" {
		return types.Window{}, errors.New("--from and --to must be set together")
	}
	start, err := time.Parse(types.DayFormat, from)
	if err != nil {
		return types.Window{}, fmt.Errorf("invalid --from date %q (expected YYYY-MM-DD)", from)
	}
	stop, err := time.Parse(types.DayFormat, to)
	if err != nil {
		return types.Window{}, fmt.Errorf("invalid --to date %q (expected YYYY-MM-DD)", to)
	}
	return types.Window{Start: start, Stop: stop}, nil
}

// buildAdapter constructs the configured completion adapter. An empty
// type disables publishing.
func buildAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	switch cfg.Type {
	case "":
		return nil, nil

	case "webhook":
		retries := webhook.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		return webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})

	case "redis":
		retries := redis.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		return redis.New(redis.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})

	default:
		return nil, fmt.Errorf("unknown adapter type %q (must be webhook or redis)", cfg.Type)
	}
}

// buildRunRecord converts a terminal result into its ledger record.
func buildRunRecord(result *pull.Result, startedAt time.Time) *types.RunRecord {
	return &types.RunRecord{
		RunID:       result.RunMeta.RunID,
		Environment: result.RunMeta.Environment,
		WindowFrom:  result.Window.FromParam(),
		WindowTo:    result.Window.ToParam(),
		StartedAt:   startedAt,
		FinishedAt:  startedAt.Add(result.Duration),
		Outcome:     result.Outcome,
		Message:     result.Message,
		Totals:      result.Totals,
		References:  result.References,
	}
}

// writeLedger records the run. A write failure downgrades to a warning;
// the run's own outcome stands.
func writeLedger(logger *log.Logger, reportsDir string, result *pull.Result, startedAt time.Time) {
	rec := buildRunRecord(result, startedAt)
	if err := ledger.New(reportsDir).Write(rec); err != nil {
		logger.Warn("failed to write run record", map[string]any{
			"run_id": rec.RunID,
			"error":  err.Error(),
		})
	}
}

// buildPullCompletedEvent composes the completion payload from a terminal
// result. Day mirrors the archive partition key.
func buildPullCompletedEvent(result *pull.Result, reportsDir string) *adapter.PullCompletedEvent {
	return &adapter.PullCompletedEvent{
		EventType:   adapter.EventTypePullCompleted,
		RunID:       result.RunMeta.RunID,
		Environment: result.RunMeta.Environment,
		Day:         result.Window.FromParam(),
		WindowTo:    result.Window.ToParam(),
		Outcome:     string(result.Outcome),
		ReportsDir:  reportsDir,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		References:  result.Totals.References,
		Saved:       result.Totals.Saved,
		Failed:      result.Totals.Failed,
		Unresolved:  result.Totals.Unresolved,
		RetryRounds: result.RetryRounds,
		DurationMs:  result.Duration.Milliseconds(),
	}
}

// publishCompletion publishes the completion event. A publish failure
// downgrades to a warning; the run's own outcome stands.
func publishCompletion(logger *log.Logger, pub adapter.Adapter, result *pull.Result, reportsDir string) {
	event := buildPullCompletedEvent(result, reportsDir)
	if err := pub.Publish(context.Background(), event); err != nil {
		logger.Warn("failed to publish completion event", map[string]any{
			"run_id": event.RunID,
			"error":  err.Error(),
		})
	}
}

func outcomeToExitCode(status types.OutcomeStatus) int {
	switch status {
	case types.OutcomeSuccess:
		return exitSuccess
	case types.OutcomeExhausted:
		return exitExhausted
	case types.OutcomeInterrupted:
		return exitInterrupted
	default:
		return exitError
	}
}

func printPullResult(result *pull.Result) {
	fmt.Printf("\nrun_id=%s, outcome=%s, duration=%s\n",
		result.RunMeta.RunID,
		result.Outcome,
		result.Duration.Round(time.Millisecond),
	)

	fmt.Printf("\n=== Pull Result ===\n")
	fmt.Printf("Run ID:       %s\n", result.RunMeta.RunID)
	fmt.Printf("Environment:  %s\n", result.RunMeta.Environment)
	fmt.Printf("Window:       %s to %s\n", result.Window.FromParam(), result.Window.ToParam())
	fmt.Printf("Outcome:      %s\n", result.Outcome)
	fmt.Printf("Message:      %s\n", result.Message)
	fmt.Printf("Retry Rounds: %d\n", result.RetryRounds)

	fmt.Printf("\n=== Totals ===\n")
	fmt.Printf("References:   %d\n", result.Totals.References)
	fmt.Printf("Saved:        %d\n", result.Totals.Saved)
	fmt.Printf("Failed:       %d\n", result.Totals.Failed)
	fmt.Printf("No Filename:  %d\n", result.Totals.MissingHeader)
	fmt.Printf("Unresolved:   %d\n", result.Totals.Unresolved)
	fmt.Printf("Bytes:        %d\n", result.Totals.BytesWritten)

	if result.Totals.Unresolved > 0 {
		fmt.Printf("\n=== Unresolved ===\n")
		for _, ref := range result.References {
			if ref.Status == types.ReferenceUnresolved {
				fmt.Printf("  - %s %s\n", ref.AppID, ref.Kind)
			}
		}
	}
}
