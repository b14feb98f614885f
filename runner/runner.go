package runner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cukefork/cukefork/discovery"
	"github.com/cukefork/cukefork/types"
)

// diagnosticTailBytes bounds how much captured worker output is surfaced
// per structural failure.
const diagnosticTailBytes = 4096

// WorkSource abstracts the externally supplied inputs of a run: the
// candidate resource roots holding feature files and the runtime
// environment for worker processes.
type WorkSource interface {
	// ResourceRoots returns the directories feature discovery scans.
	ResourceRoots() []string
	// EngineCommand returns the worker entry point: binary plus any fixed
	// leading arguments.
	EngineCommand() []string
	// Environ returns the base environment for worker processes.
	Environ() []string
}

var _ WorkSource = StaticWorkSource{}

// StaticWorkSource is the plain value implementation of WorkSource.
type StaticWorkSource struct {
	Roots   []string
	Command []string
	Env     []string
}

func (s StaticWorkSource) ResourceRoots() []string { return s.Roots }
func (s StaticWorkSource) EngineCommand() []string { return s.Command }
func (s StaticWorkSource) Environ() []string { return s.Env }

// Discoverer enumerates feature files; satisfied by discovery.Discoverer.
type Discoverer interface {
	Discover(roots []string, patterns []string) ([]types.FeatureFile, error)
}

// OutcomeKind classifies how one feature's run ended.
type OutcomeKind string

const (
	OutcomePassed     OutcomeKind = "passed"
	OutcomeFailed     OutcomeKind = "failed"
	OutcomeStructural OutcomeKind = "structural"
)

// FeatureOutcome records one feature's fate for reporting and diagnostics.
// Every discovered feature contributes exactly one outcome.
type FeatureOutcome struct {
	Feature    types.FeatureFile
	Outcome    OutcomeKind
	Result     types.FeatureResult // zero-valued when no artifact was parsed
	Duration   time.Duration
	StdoutPath string
	StderrPath string
}

// StructuralFailure describes one feature whose run could not be accounted
// for by ordinary pass/fail counts.
type StructuralFailure struct {
	Feature    types.FeatureFile
	Reason     string
	StdoutTail string
	StderrTail string
}

// StructuralError aborts a suite run. It is raised instead of a boolean
// verdict whenever any feature suffered a structural parse failure,
// regardless of how many ordinary failures or successes also occurred.
type StructuralError struct {
	Failures []StructuralFailure
}

func (e *StructuralError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		names = append(names, fmt.Sprintf("%s (%s)", f.Feature.Name, f.Reason))
	}
	return fmt.Sprintf("suite aborted: structural parse failure in %d feature(s): %s",
		len(e.Failures), strings.Join(names, ", "))
}

// SuiteResult is the full outcome of one suite run.
type SuiteResult struct {
	RunID    string
	Passed   bool
	Totals   SuiteTotals
	Features []FeatureOutcome
	Duration time.Duration
}

// runState tracks the orchestrator's progress through a run.
type runState int

const (
	stateIdle runState = iota
	stateDiscovering
	stateDispatching
	stateCollecting
	stateFinalized
	stateAborted
)

func (s runState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateDiscovering:
		return "discovering"
	case stateDispatching:
		return "dispatching"
	case stateCollecting:
		return "collecting"
	case stateFinalized:
		return "finalized"
	case stateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// SuiteRunner drives one suite run end to end.
type SuiteRunner struct {
	opts       types.RunOptions
	runID      string
	log        log.Logger
	discoverer Discoverer
	collector  *Collector
	counters   *SuiteCounters
	newLaunch  func(src WorkSource) (ProcessLauncher, error)
	tracer     trace.Tracer

	state runState
}

// Config configures NewSuiteRunner.
type Config struct {
	Options types.RunOptions
	RunID   string
	Log     log.Logger

	// Discoverer defaults to a filesystem-backed discovery.Discoverer.
	Discoverer Discoverer
	// Launcher overrides the production exec-based launcher; used by
	// tests to stub out process creation.
	Launcher ProcessLauncher
	// CmdBuilder is passed to the production launcher when Launcher is
	// not set.
	CmdBuilder CommandBuilder
}

// NewSuiteRunner validates the options and assembles a runner.
func NewSuiteRunner(cfg Config) (*SuiteRunner, error) {
	if err := cfg.Options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run options: %w", err)
	}
	if cfg.RunID == "" {
		return nil, fmt.Errorf("run ID is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	logger := cfg.Log.New("component", "runner", "run_id", cfg.RunID)
	if cfg.Discoverer == nil {
		cfg.Discoverer = discovery.New(cfg.Log)
	}

	r := &SuiteRunner{
		opts:       cfg.Options,
		runID:      cfg.RunID,
		log:        logger,
		discoverer: cfg.Discoverer,
		collector:  NewCollector(cfg.Log),
		counters:   NewSuiteCounters(),
		tracer:     otel.Tracer("cukefork/runner"),
		state:      stateIdle,
	}
	if cfg.Launcher != nil {
		r.newLaunch = func(WorkSource) (ProcessLauncher, error) { return cfg.Launcher, nil }
	} else {
		r.newLaunch = func(src WorkSource) (ProcessLauncher, error) {
			return NewProcessLauncher(LauncherConfig{
				Command:    src.EngineCommand(),
				BaseEnv:    src.Environ(),
				Properties: cfg.Options.SystemProperties,
				CmdBuilder: cfg.CmdBuilder,
				Log:        cfg.Log,
			})
		}
	}
	return r, nil
}

// Counters exposes the aggregate for reporting after a run.
func (r *SuiteRunner) Counters() *SuiteCounters { return r.counters }

// completion is what a pool worker hands back once its process has exited.
type completion struct {
	inv       types.WorkerInvocation
	duration  time.Duration
	launchErr error
}

// Run executes the whole suite: discovery, bounded-parallel dispatch,
// collection, aggregation, verdict. It returns the populated SuiteResult
// together with a *StructuralError when any feature suffered a structural
// parse failure; the result is still returned in that case so callers can
// surface the other features' outcomes.
func (r *SuiteRunner) Run(ctx context.Context, src WorkSource, resultsDir, reportsDir string) (*SuiteResult, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "suite.run", trace.WithAttributes(
		attribute.String("run_id", r.runID),
		attribute.Int("max_parallel_forks", r.opts.MaxParallelForks),
	))
	defer span.End()

	r.setState(stateDiscovering)
	features, err := r.discoverer.Discover(src.ResourceRoots(), r.opts.IncludePatterns)
	if err != nil {
		return nil, fmt.Errorf("feature discovery failed: %w", err)
	}
	r.log.Info("Discovered features", "count", len(features))
	span.SetAttributes(attribute.Int("features", len(features)))

	r.setState(stateDispatching)
	if err := r.counters.BeforeSuite(len(features)); err != nil {
		return nil, err
	}

	invocations, err := r.buildInvocations(features, resultsDir, reportsDir)
	if err != nil {
		return nil, err
	}

	launcher, err := r.newLaunch(src)
	if err != nil {
		return nil, err
	}

	r.setState(stateCollecting)
	outcomes, structural := r.dispatchAndCollect(ctx, launcher, invocations)

	result := &SuiteResult{
		RunID:    r.runID,
		Features: outcomes,
		Duration: time.Since(start),
	}

	if len(structural) > 0 {
		// All dispatched workers have finished; nothing was canceled
		// mid-flight. The suite still aborts.
		r.setState(stateAborted)
		result.Totals = r.counters.Snapshot()
		serr := &StructuralError{Failures: structural}
		r.log.Error("Suite aborted on structural parse failures", "failures", len(structural))
		span.RecordError(serr)
		return result, serr
	}

	if err := r.counters.AfterSuite(); err != nil {
		return nil, err
	}
	r.setState(stateFinalized)
	result.Totals = r.counters.Snapshot()
	result.Passed = !r.counters.HadFailures()
	r.log.Info("Suite finalized",
		"features", result.Totals.Features,
		"scenarios", result.Totals.Counts.Scenarios,
		"failed_scenarios", result.Totals.Counts.FailedScenarios,
		"passed", result.Passed)
	return result, nil
}

// buildInvocations resolves one WorkerInvocation per feature, in name order
// so dispatch is reproducible. Output paths derive from logical names, so
// duplicate names would silently share files; that is refused up front.
func (r *SuiteRunner) buildInvocations(features []types.FeatureFile, resultsDir, reportsDir string) ([]types.WorkerInvocation, error) {
	byName := make(map[string]string, len(features))
	invocations := make([]types.WorkerInvocation, 0, len(features))

	sorted := append([]types.FeatureFile{}, features...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for _, f := range sorted {
		if prev, dup := byName[f.Name]; dup {
			return nil, fmt.Errorf("duplicate logical feature name %q (%s and %s)", f.Name, prev, f.Path)
		}
		byName[f.Name] = f.Path

		out := invocationPaths(f, resultsDir, reportsDir, r.opts.StructuredReport)
		invocations = append(invocations, types.WorkerInvocation{
			Feature:    f,
			Args:       BuildArgs(r.opts, f, out),
			ResultPath: out.Result,
			ReportPath: out.Report,
			StdoutPath: out.Stdout,
			StderrPath: out.Stderr,
		})
	}
	return invocations, nil
}

// dispatchAndCollect drains the invocations through a bounded worker pool.
// Pool workers only launch processes and block on their exit; parsing and
// aggregation happen on the collection side so a freed slot can launch the
// next pending invocation immediately.
func (r *SuiteRunner) dispatchAndCollect(ctx context.Context, launcher ProcessLauncher, invocations []types.WorkerInvocation) ([]FeatureOutcome, []StructuralFailure) {
	workChan := make(chan types.WorkerInvocation)
	doneChan := make(chan completion, r.opts.MaxParallelForks)

	var wg sync.WaitGroup
	for i := 0; i < r.opts.MaxParallelForks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for inv := range workChan {
				started := time.Now()
				spanCtx, span := r.tracer.Start(ctx, "feature.dispatch", trace.WithAttributes(
					attribute.String("feature", inv.Feature.Name),
				))
				err := launcher.Launch(spanCtx, inv)
				if err != nil {
					span.RecordError(err)
				}
				span.End()
				doneChan <- completion{inv: inv, duration: time.Since(started), launchErr: err}
			}
		}()
	}

	go func() {
		defer close(workChan)
		for _, inv := range invocations {
			workChan <- inv
		}
	}()

	go func() {
		wg.Wait()
		close(doneChan)
	}()

	outcomes := make([]FeatureOutcome, 0, len(invocations))
	var structural []StructuralFailure

	for done := range doneChan {
		outcome, failure := r.processCompletion(done)
		outcomes = append(outcomes, outcome)
		if failure != nil {
			structural = append(structural, *failure)
		}
	}
	return outcomes, structural
}

// processCompletion turns one finished worker into exactly one outcome:
// success, recorded ordinary failure, or structural parse failure.
func (r *SuiteRunner) processCompletion(done completion) (FeatureOutcome, *StructuralFailure) {
	inv := done.inv
	outcome := FeatureOutcome{
		Feature:    inv.Feature,
		Duration:   done.duration,
		StdoutPath: inv.StdoutPath,
		StderrPath: inv.StderrPath,
	}

	if done.launchErr != nil {
		r.log.Error("Worker could not be launched", "feature", inv.Feature.Name, "error", done.launchErr)
	}

	if !ArtifactPresent(inv) {
		outcome.Outcome = OutcomeStructural
		reason := "result artifact missing"
		if done.launchErr != nil {
			reason = fmt.Sprintf("worker launch failed: %v", done.launchErr)
		}
		return outcome, r.structuralFailure(inv, reason)
	}

	results, err := r.collector.Collect(inv)
	if err != nil {
		outcome.Outcome = OutcomeStructural
		return outcome, r.structuralFailure(inv, err.Error())
	}

	var undefined int
	for _, result := range results {
		if err := r.counters.AfterFeature(result); err != nil {
			// Lifecycle bug, not a test failure; surface loudly.
			r.log.Error("Counter lifecycle violation", "feature", inv.Feature.Name, "error", err)
		}
		outcome.Result.Add(result)
		undefined += result.UndefinedSteps
	}

	if undefined > 0 {
		// Undefined steps are counted and additionally escalated: a
		// missing step definition is treated exactly like a missing
		// result artifact.
		outcome.Outcome = OutcomeStructural
		return outcome, r.structuralFailure(inv, fmt.Sprintf("%d undefined step(s)", undefined))
	}

	if outcome.Result.HadFailures() {
		outcome.Outcome = OutcomeFailed
		r.log.Warn("Feature failed", "feature", inv.Feature.Name,
			"failed_scenarios", outcome.Result.FailedScenarios,
			"failed_steps", outcome.Result.FailedSteps)
	} else {
		outcome.Outcome = OutcomePassed
		r.log.Info("Feature passed", "feature", inv.Feature.Name,
			"scenarios", outcome.Result.Scenarios, "duration", done.duration)
	}
	return outcome, nil
}

func (r *SuiteRunner) structuralFailure(inv types.WorkerInvocation, reason string) *StructuralFailure {
	failure := &StructuralFailure{
		Feature:    inv.Feature,
		Reason:     reason,
		StdoutTail: CaptureTail(inv.StdoutPath, diagnosticTailBytes),
		StderrTail: CaptureTail(inv.StderrPath, diagnosticTailBytes),
	}
	r.log.Error("Structural parse failure", "feature", inv.Feature.Name, "reason", reason,
		"stdout", inv.StdoutPath, "stderr", inv.StderrPath)
	return failure
}

func (r *SuiteRunner) setState(next runState) {
	r.log.Debug("Run state transition", "from", r.state.String(), "to", next.String())
	r.state = next
}
