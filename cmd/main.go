package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"

	cukefork "github.com/cukefork/cukefork"
	"github.com/cukefork/cukefork/exitcodes"
	"github.com/cukefork/cukefork/flags"
	"github.com/cukefork/cukefork/history"
	"github.com/cukefork/cukefork/logging"
	"github.com/cukefork/cukefork/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "cukefork"
	app.Usage = "Parallel feature suite runner"
	app.Description = "cukefork runs feature files in isolated parallel worker processes and aggregates their results"
	app.Flags = flags.Flags
	app.Action = run
	app.Commands = []*cli.Command{
		{
			Name:   "history",
			Usage:  "List recent suite runs from the history ledger",
			Flags:  []cli.Flag{flags.OutputDir},
			Action: runHistory,
		},
	}
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			if cukefork.IsRuntimeError(err) || cukefork.IsStructuralError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else {
				// Suite failures and anything unspecified exit with 1.
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.SuiteFailure))
			}
		}
	}

	// Start telemetry
	shutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		os.Exit(exitcodes.RuntimeErr)
	}
}

func run(cliCtx *cli.Context) error {
	logger := setupLogger(cliCtx.String(flags.LogLevel.Name))

	cfg, err := cukefork.NewConfig(cliCtx, logger)
	if err != nil {
		return cukefork.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	if cliCtx.Bool(flags.Serve.Name) {
		svc := service.New(Version)
		svc.Start(cliCtx.Context)
		defer svc.Shutdown()
	}

	appCtx, cancel := context.WithCancelCause(cliCtx.Context)
	defer cancel(nil)

	app, err := cukefork.New(appCtx, cfg, Version, func(err error) { cancel(err) })
	if err != nil {
		return cukefork.NewRuntimeError(fmt.Errorf("failed to create app: %w", err))
	}

	if err := app.Start(appCtx); err != nil {
		return err
	}
	if cfg.RunOnce {
		// The shutdown callback cancels appCtx on success; that
		// cancellation is a clean exit, not an error.
		return cukefork.ExitCause(appCtx)
	}

	// Continuous mode: block until a signal or an internal shutdown.
	<-appCtx.Done()
	if err := app.Stop(context.Background()); err != nil {
		logger.Error("Error stopping app", "error", err)
	}
	return cukefork.ExitCause(appCtx)
}

func runHistory(cliCtx *cli.Context) error {
	outputDir := cliCtx.String(flags.OutputDir.Name)
	store, err := history.Open(logging.HistoryFile(outputDir))
	if err != nil {
		return cukefork.NewRuntimeError(err)
	}
	defer func() { _ = store.Close() }()

	entries, err := store.Recent(cliCtx.Context, 20)
	if err != nil {
		return cukefork.NewRuntimeError(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{
		"Started", "Run ID", "Features", "Scenarios", "Failed", "Structural", "Duration", "Verdict",
	})
	for _, e := range entries {
		t.AppendRow(table.Row{
			e.StartedAt.Format("2006-01-02 15:04:05"),
			e.RunID,
			e.Features,
			e.Scenarios,
			e.FailedScenarios,
			e.StructuralFailures,
			e.Duration.Round(time.Millisecond),
			e.Verdict,
		})
	}
	t.Render()
	return nil
}

func setupLogger(level string) log.Logger {
	lvl, err := log.LvlFromString(level)
	if err != nil {
		lvl = log.LevelInfo
	}
	handler := log.NewTerminalHandlerWithLevel(os.Stderr, lvl, false)
	logger := log.NewLogger(handler)
	log.SetDefault(logger)
	return logger
}
