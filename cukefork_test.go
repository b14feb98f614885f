package cukefork

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cukefork/cukefork/history"
	"github.com/cukefork/cukefork/logging"
	"github.com/cukefork/cukefork/registry"
)

const passingArtifact = `[
  {
    "uri": "checkout.feature",
    "name": "Checkout",
    "elements": [
      {
        "type": "scenario",
        "name": "happy path",
        "steps": [
          {"name": "a step", "result": {"status": "passed"}}
        ]
      }
    ]
  }
]`

const failingArtifact = `[
  {
    "uri": "checkout.feature",
    "name": "Checkout",
    "elements": [
      {
        "type": "scenario",
        "name": "sad path",
        "steps": [
          {"name": "a step", "result": {"status": "failed", "error_message": "boom"}}
        ]
      }
    ]
  }
]`

// writeEngineScript creates a stand-in worker engine: a shell script that
// finds the json: plugin path in its arguments and writes a fixed result
// artifact there.
func writeEngineScript(t *testing.T, dir, artifact string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("engine script tests require a POSIX shell")
	}

	script := filepath.Join(dir, "engine.sh")
	body := `#!/bin/sh
result=""
for arg in "$@"; do
  case "$arg" in
    json:*) result="${arg#json:}" ;;
  esac
done
`
	if artifact != "" {
		body += fmt.Sprintf("cat > \"$result\" <<'ARTIFACT'\n%s\nARTIFACT\n", artifact)
	}
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))
	return script
}

// newTestApp assembles an App around a temp suite definition, one feature
// file, and the given engine script.
func newTestApp(t *testing.T, artifact string) (*App, *Config) {
	t.Helper()
	dir := t.TempDir()

	featureRoot := filepath.Join(dir, "features")
	require.NoError(t, os.MkdirAll(featureRoot, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(featureRoot, "checkout.feature"),
		[]byte("Feature: Checkout\n  Scenario: happy path\n    Given a step\n"), 0o644))

	engine := writeEngineScript(t, dir, artifact)

	definition := filepath.Join(dir, "suite.yaml")
	content := fmt.Sprintf("engine: [%q]\nfeature_roots: [%q]\n", engine, featureRoot)
	require.NoError(t, os.WriteFile(definition, []byte(content), 0o644))

	cfg := &Config{
		SuiteDefinition: definition,
		OutputDir:       filepath.Join(dir, "out"),
		RunOnce:         true,
		Log:             log.New(),
	}

	app, err := New(context.Background(), cfg, "test", func(error) {})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.history.Close() })
	return app, cfg
}

func TestAppRunOncePassing(t *testing.T) {
	app, cfg := newTestApp(t, passingArtifact)

	err := app.Start(context.Background())
	require.NoError(t, err)

	result := app.Result()
	require.NotNil(t, result)
	assert.True(t, result.Passed)
	assert.Equal(t, 1, result.Totals.Features)
	assert.Equal(t, 1, result.Totals.Counts.Scenarios)

	// A run directory with a summary must exist.
	layoutDir := filepath.Join(cfg.OutputDir, logging.RunDirectoryPrefix+result.RunID)
	summary, err := os.ReadFile(filepath.Join(layoutDir, "summary.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "PASS")
}

func TestAppRunOnceSuiteFailure(t *testing.T) {
	app, _ := newTestApp(t, failingArtifact)

	err := app.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsSuiteFailureError(err))
	assert.False(t, IsRuntimeError(err))

	result := app.Result()
	require.NotNil(t, result)
	assert.False(t, result.Passed)
	assert.Equal(t, 1, result.Totals.Counts.FailedScenarios)
}

func TestAppRunOnceStructuralFailure(t *testing.T) {
	// Engine exits without writing the result artifact.
	app, _ := newTestApp(t, "")

	err := app.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsStructuralError(err))
	assert.False(t, IsSuiteFailureError(err))
}

func TestAppRecordsHistory(t *testing.T) {
	app, cfg := newTestApp(t, passingArtifact)

	require.NoError(t, app.Start(context.Background()))
	require.NoError(t, app.history.Close())

	store, err := history.Open(logging.HistoryFile(cfg.OutputDir))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	entries, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, app.Result().RunID, entries[0].RunID)
	assert.Equal(t, "pass", entries[0].Verdict)
	assert.Equal(t, 1, entries[0].Features)
}

func TestAppStopIsIdempotent(t *testing.T) {
	app, _ := newTestApp(t, passingArtifact)

	require.NoError(t, app.Start(context.Background()))
	// Run-once mode leaves the service running until stopped.
	require.NoError(t, app.Stop(context.Background()))
	assert.True(t, app.Stopped())
	require.NoError(t, app.Stop(context.Background()))
}

func TestMaterializeRequiresEngine(t *testing.T) {
	dir := t.TempDir()
	definition := filepath.Join(dir, "suite.yaml")
	require.NoError(t, os.WriteFile(definition,
		[]byte("feature_roots: [\"features\"]\n"), 0o644))

	reg, err := registry.NewRegistry(registry.Config{
		Log:                 log.New(),
		SuiteDefinitionFile: definition,
	})
	require.NoError(t, err)

	cfg := &Config{Log: log.New()}
	_, _, err = materialize(cfg, reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine")
}

func TestMaterializeOverrides(t *testing.T) {
	dir := t.TempDir()
	definition := filepath.Join(dir, "suite.yaml")
	require.NoError(t, os.WriteFile(definition, []byte(
		"engine: [\"worker\"]\n"+
			"feature_roots: [\"features\"]\n"+
			"tags: [\"@regression\"]\n"+
			"max_parallel_forks: 2\n"), 0o644))

	reg, err := registry.NewRegistry(registry.Config{
		Log:                 log.New(),
		SuiteDefinitionFile: definition,
	})
	require.NoError(t, err)

	cfg := &Config{
		Log:              log.New(),
		Engine:           []string{"custom-worker", "--fast"},
		FeatureRoots:     []string{"more/features"},
		Tags:             []string{"@smoke"},
		MaxParallelForks: 8,
	}

	opts, src, err := materialize(cfg, reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"custom-worker", "--fast"}, src.Command)
	assert.Equal(t, []string{"features", "more/features"}, src.Roots)
	assert.Equal(t, []string{"@smoke"}, opts.Tags)
	assert.Equal(t, 8, opts.MaxParallelForks)
}

// New must bootstrap against an output directory that does not exist yet:
// the history ledger sits at its root, ahead of the first run's subtree.
func TestNewCreatesOutputDir(t *testing.T) {
	_, cfg := newTestApp(t, passingArtifact)

	info, err := os.Stat(cfg.OutputDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = os.Stat(logging.HistoryFile(cfg.OutputDir))
	require.NoError(t, err, "history ledger should exist before the first run")
}

// A successful run-once pass fires the shutdown callback; the resulting
// context cancellation must read as a clean exit, not a failure.
func TestAppRunOnceShutdownCallbackClean(t *testing.T) {
	app, _ := newTestApp(t, passingArtifact)

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	app.shutdownCallback = func(err error) { cancel(err) }

	require.NoError(t, app.Start(ctx))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown callback was not invoked")
	}
	require.NoError(t, ExitCause(ctx))
}

func TestExitCause(t *testing.T) {
	live, cancelLive := context.WithCancelCause(context.Background())
	defer cancelLive(nil)
	assert.NoError(t, ExitCause(live), "no cause before cancellation")

	clean, cancelClean := context.WithCancelCause(context.Background())
	cancelClean(nil)
	assert.NoError(t, ExitCause(clean), "plain cancellation is a clean exit")

	failed, cancelFailed := context.WithCancelCause(context.Background())
	boom := errors.New("boom")
	cancelFailed(boom)
	assert.ErrorIs(t, ExitCause(failed), boom)
}

func TestAppPeriodicRuns(t *testing.T) {
	app, _ := newTestApp(t, passingArtifact)
	app.config.RunOnce = false
	app.config.RunInterval = 25 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, app.Start(ctx))
	require.Eventually(t, func() bool {
		return app.Result() != nil
	}, 2*time.Second, 10*time.Millisecond)

	// Wait for at least one periodic re-run, then stop.
	first := app.Result().RunID
	require.Eventually(t, func() bool {
		r := app.Result()
		return r != nil && r.RunID != first
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, app.Stop(context.Background()))
	assert.True(t, app.Stopped())
}
