package cukefork

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cukefork/cukefork/history"
	"github.com/cukefork/cukefork/logging"
	"github.com/cukefork/cukefork/metrics"
	"github.com/cukefork/cukefork/registry"
	"github.com/cukefork/cukefork/reporting"
	"github.com/cukefork/cukefork/runner"
	"github.com/cukefork/cukefork/types"
)

// App drives suite runs: once, periodically, or on feature file changes.
type App struct {
	ctx      context.Context
	config   *Config
	version  string
	registry *registry.Registry
	options  types.RunOptions
	source   runner.StaticWorkSource
	history  *history.Store

	resultMu sync.Mutex
	result   *runner.SuiteResult

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*App, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating app with config",
		"suiteDefinition", config.SuiteDefinition,
		"outputDir", config.OutputDir,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"watch", config.Watch)

	reg, err := registry.NewRegistry(registry.Config{
		Log:                 config.Log,
		SuiteDefinitionFile: config.SuiteDefinition,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	opts, src, err := materialize(config, reg)
	if err != nil {
		return nil, err
	}

	// The history ledger lives at the output-dir root, so the directory
	// must exist before the first run creates its own subtree.
	if err := os.MkdirAll(config.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", config.OutputDir, err)
	}
	store, err := history.Open(logging.HistoryFile(config.OutputDir))
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}

	config.Log.Info("App created",
		"featureRoots", len(src.Roots),
		"maxParallelForks", opts.MaxParallelForks)

	return &App{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		options:          opts,
		source:           src,
		history:          store,
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}, nil
}

// materialize merges the suite definition with CLI overrides into the
// immutable per-run option snapshot and the worker process inputs.
func materialize(config *Config, reg *registry.Registry) (types.RunOptions, runner.StaticWorkSource, error) {
	opts := reg.RunOptions()
	def := reg.Definition()

	if len(config.Tags) > 0 {
		opts.Tags = append([]string{}, config.Tags...)
	}
	if config.MaxParallelForks > 0 {
		opts.MaxParallelForks = config.MaxParallelForks
	}

	engine := def.Engine
	if len(config.Engine) > 0 {
		engine = config.Engine
	}
	if len(engine) == 0 {
		return types.RunOptions{}, runner.StaticWorkSource{},
			errors.New("no worker engine configured: set 'engine' in the suite definition or pass --engine")
	}

	roots := append([]string{}, def.FeatureRoots...)
	roots = append(roots, config.FeatureRoots...)

	src := runner.StaticWorkSource{
		Roots:   roots,
		Command: append([]string{}, engine...),
		Env:     os.Environ(),
	}
	return opts, src, nil
}

// Start runs the suite immediately, then keeps re-running it at the
// configured interval or on feature file changes until stopped.
func (a *App) Start(ctx context.Context) error {
	a.ctx = ctx
	a.done = make(chan struct{})
	a.running.Store(true)

	if a.config.RunOnce {
		a.config.Log.Info("Starting cukefork in run-once mode")
	} else {
		a.config.Log.Info("Starting cukefork in continuous mode",
			"interval", a.config.RunInterval, "watch", a.config.Watch)
	}

	err := a.runSuite()
	if err != nil && !IsSuiteFailureError(err) {
		a.config.Log.Error("Runtime error running suite", "error", err)
		return err
	}

	if a.config.RunOnce {
		a.config.Log.Info("Suite completed, exiting (run-once mode)")
		if err != nil {
			// Ordinary scenario failures surface as exit code 1.
			return err
		}
		go func() {
			a.shutdownCallback(nil)
		}()
		return nil
	}

	if a.config.RunInterval > 0 {
		a.wg.Add(1)
		go a.runPeriodically(ctx)
	}
	if a.config.Watch {
		a.wg.Add(1)
		go a.runOnChange(ctx)
	}

	a.config.Log.Debug("cukefork started successfully")
	return nil
}

// runPeriodically re-runs the suite at the configured interval.
// In continuous mode failed runs are logged, not fatal.
func (a *App) runPeriodically(ctx context.Context) {
	defer a.wg.Done()
	a.config.Log.Debug("Starting periodic suite runner goroutine", "interval", a.config.RunInterval)

	for {
		select {
		case <-time.After(a.config.RunInterval):
			if !a.running.Load() {
				a.config.Log.Debug("Service stopped, exiting periodic suite runner")
				return
			}

			a.config.Log.Info("Running periodic suite")
			if err := a.runSuite(); err != nil {
				a.config.Log.Error("Error running periodic suite", "error", err)
			}

		case <-a.done:
			a.config.Log.Debug("Done signal received, stopping periodic suite runner")
			return

		case <-ctx.Done():
			a.config.Log.Debug("Context canceled, stopping periodic suite runner")
			a.running.Store(false)
			return
		}
	}
}

// runSuite executes one full suite run and publishes its results.
func (a *App) runSuite() error {
	runID := uuid.New().String()
	a.config.Log.Info("Running suite...", "run_id", runID)

	layout, err := logging.NewRunLayout(a.config.OutputDir, runID)
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to create run directory: %w", err))
	}

	suiteRunner, err := runner.NewSuiteRunner(runner.Config{
		Options: a.options,
		RunID:   runID,
		Log:     a.config.Log,
	})
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to create suite runner: %w", err))
	}

	started := time.Now()
	result, runErr := suiteRunner.Run(a.ctx, a.source, layout.ResultsDir, layout.ReportsDir)

	var structuralErr *runner.StructuralError
	var structural []runner.StructuralFailure
	if errors.As(runErr, &structuralErr) {
		structural = structuralErr.Failures
	} else if runErr != nil {
		metrics.RecordError("suite_run")
		return NewRuntimeError(runErr)
	}
	a.resultMu.Lock()
	a.result = result
	a.resultMu.Unlock()

	a.publish(runID, started, result, structural, layout)

	if structuralErr != nil {
		a.config.Log.Error("Suite aborted on structural parse failure",
			"run_id", runID, "failures", len(structural))
		return structuralErr
	}

	a.config.Log.Info("Suite run completed", "run_id", runID, "passed", result.Passed)
	if !result.Passed {
		return NewSuiteFailureError(fmt.Sprintf(
			"%d of %d scenarios failed",
			result.Totals.Counts.FailedScenarios, result.Totals.Counts.Scenarios))
	}
	return nil
}

// publish renders the results table, writes the summary file, and records
// metrics and the history ledger entry.
func (a *App) publish(runID string, started time.Time, result *runner.SuiteResult, structural []runner.StructuralFailure, layout *logging.RunLayout) {
	reporting.RenderTable(os.Stdout, result)

	if err := reporting.WriteSummary(layout.SummaryFile, result, structural); err != nil {
		a.config.Log.Error("Failed to write summary file", "file", layout.SummaryFile, "error", err)
	}

	verdict := "pass"
	if len(structural) > 0 {
		verdict = "structural"
	} else if !result.Passed {
		verdict = "fail"
	}

	for _, f := range result.Features {
		metrics.RecordFeature(runID, f.Feature.Name, string(f.Outcome))
	}
	metrics.RecordSuite(runID, verdict,
		result.Totals.Counts.Scenarios,
		result.Totals.Counts.FailedScenarios,
		len(structural),
		result.Duration)

	if err := a.history.Record(a.ctx, history.Entry{
		RunID:              runID,
		StartedAt:          started,
		Duration:           result.Duration,
		Features:           result.Totals.Features,
		Scenarios:          result.Totals.Counts.Scenarios,
		FailedScenarios:    result.Totals.Counts.FailedScenarios,
		Steps:              result.Totals.Counts.Steps,
		FailedSteps:        result.Totals.Counts.FailedSteps,
		StructuralFailures: len(structural),
		Verdict:            verdict,
	}); err != nil {
		a.config.Log.Error("Failed to record run history", "run_id", runID, "error", err)
	}
}

// Stop stops the cukefork service.
func (a *App) Stop(ctx context.Context) error {
	a.config.Log.Info("Stopping cukefork")

	if !a.running.Load() {
		a.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	a.running.Store(false)
	close(a.done)
	a.wg.Wait()

	if err := a.history.Close(); err != nil {
		a.config.Log.Error("Failed to close run history", "error", err)
	}

	a.config.Log.Info("cukefork stopped successfully")
	return nil
}

// Stopped returns true if the cukefork service is stopped.
func (a *App) Stopped() bool {
	return !a.running.Load()
}

// Result returns the most recent suite result, nil before the first run.
func (a *App) Result() *runner.SuiteResult {
	a.resultMu.Lock()
	defer a.resultMu.Unlock()
	return a.result
}
