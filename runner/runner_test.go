package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cukefork/cukefork/types"
)

// stubDiscoverer returns a fixed feature set.
type stubDiscoverer struct {
	features []types.FeatureFile
	err      error
}

func (d *stubDiscoverer) Discover(roots, patterns []string) ([]types.FeatureFile, error) {
	return d.features, d.err
}

// artifactWriter fakes one worker's behavior: the JSON body it leaves
// behind (empty meaning no artifact) and what it prints to stdout.
type artifactWriter struct {
	json   string
	stdout string
}

// stubLauncher writes artifacts instead of spawning processes, and tracks
// how many launches are active at once.
type stubLauncher struct {
	mu        sync.Mutex
	behaviors map[string]artifactWriter
	delay     time.Duration

	active    int
	maxActive int
	launches  int
}

func (l *stubLauncher) Launch(ctx context.Context, inv types.WorkerInvocation) error {
	l.mu.Lock()
	l.launches++
	l.active++
	if l.active > l.maxActive {
		l.maxActive = l.active
	}
	behavior := l.behaviors[inv.Feature.Name]
	l.mu.Unlock()

	if l.delay > 0 {
		time.Sleep(l.delay)
	}

	// Captures are always created, even for trivial exits.
	if err := os.WriteFile(inv.StdoutPath, []byte(behavior.stdout), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(inv.StderrPath, nil, 0o644); err != nil {
		return err
	}
	if behavior.json != "" {
		if err := os.WriteFile(inv.ResultPath, []byte(behavior.json), 0o644); err != nil {
			return err
		}
	}

	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	return nil
}

func featureSet(names ...string) []types.FeatureFile {
	features := make([]types.FeatureFile, 0, len(names))
	for _, n := range names {
		features = append(features, types.FeatureFile{Path: "/abs/" + n + ".feature", Name: n})
	}
	return features
}

func artifactJSON(scenarios, failedScenarioSteps, undefined int) string {
	elements := ""
	for i := 0; i < scenarios; i++ {
		status := "passed"
		if i < failedScenarioSteps {
			status = "failed"
		}
		steps := fmt.Sprintf(`{"result": {"status": %q}}`, status)
		for u := 0; u < undefined && i == 0; u++ {
			steps += `,{"result": {"status": "undefined"}}`
		}
		if elements != "" {
			elements += ","
		}
		elements += fmt.Sprintf(`{"type": "scenario", "steps": [%s]}`, steps)
	}
	return fmt.Sprintf(`[{"uri": "x.feature", "elements": [%s]}]`, elements)
}

func newTestRunner(t *testing.T, features []types.FeatureFile, launcher ProcessLauncher, forks int) *SuiteRunner {
	t.Helper()
	opts := types.DefaultRunOptions()
	opts.MaxParallelForks = forks
	r, err := NewSuiteRunner(Config{
		Options:    opts,
		RunID:      "test-run",
		Discoverer: &stubDiscoverer{features: features},
		Launcher:   launcher,
	})
	require.NoError(t, err)
	return r
}

func runDirs(t *testing.T) (string, string) {
	t.Helper()
	base := t.TempDir()
	results := base + "/results"
	reports := base + "/reports"
	require.NoError(t, os.MkdirAll(results, 0o755))
	require.NoError(t, os.MkdirAll(reports, 0o755))
	return results, reports
}

func TestRunAllPassing(t *testing.T) {
	features := featureSet("auth.login", "billing.checkout")
	launcher := &stubLauncher{behaviors: map[string]artifactWriter{
		"auth.login":       {json: artifactJSON(2, 0, 0)},
		"billing.checkout": {json: artifactJSON(3, 0, 0)},
	}}
	r := newTestRunner(t, features, launcher, 2)
	results, reports := runDirs(t)

	result, err := r.Run(context.Background(), StaticWorkSource{}, results, reports)
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Equal(t, 2, result.Totals.Features)
	assert.Equal(t, 5, result.Totals.Counts.Scenarios)
	assert.Len(t, result.Features, 2)
	for _, outcome := range result.Features {
		assert.Equal(t, OutcomePassed, outcome.Outcome)
	}
}

// One passing feature, one with a failing scenario, one whose worker leaves
// no artifact: the run aborts with a structural error, while the other two
// features' outcomes are still recorded for diagnostics.
func TestRunStructuralFailureAborts(t *testing.T) {
	features := featureSet("good", "flaky", "broken")
	launcher := &stubLauncher{behaviors: map[string]artifactWriter{
		"good":   {json: artifactJSON(2, 0, 0)},
		"flaky":  {json: artifactJSON(2, 1, 0)},
		"broken": {stdout: "parse error: bad gherkin at line 3"},
	}}
	r := newTestRunner(t, features, launcher, 2)
	results, reports := runDirs(t)

	result, err := r.Run(context.Background(), StaticWorkSource{}, results, reports)
	require.Error(t, err)

	var structural *StructuralError
	require.ErrorAs(t, err, &structural)
	require.Len(t, structural.Failures, 1)
	assert.Equal(t, "broken", structural.Failures[0].Feature.Name)
	assert.Contains(t, structural.Failures[0].Reason, "missing")
	assert.Contains(t, structural.Failures[0].StdoutTail, "bad gherkin")

	// Outcomes for all three features are present.
	require.NotNil(t, result)
	require.Len(t, result.Features, 3)
	outcomes := make(map[string]OutcomeKind)
	for _, o := range result.Features {
		outcomes[o.Feature.Name] = o.Outcome
	}
	assert.Equal(t, OutcomePassed, outcomes["good"])
	assert.Equal(t, OutcomeFailed, outcomes["flaky"])
	assert.Equal(t, OutcomeStructural, outcomes["broken"])

	// The two parsed features were still counted.
	assert.Equal(t, 2, result.Totals.Features)
}

func TestRunOrdinaryFailureReturnsFalseVerdict(t *testing.T) {
	features := featureSet("flaky")
	launcher := &stubLauncher{behaviors: map[string]artifactWriter{
		"flaky": {json: artifactJSON(3, 1, 0)},
	}}
	r := newTestRunner(t, features, launcher, 1)
	results, reports := runDirs(t)

	result, err := r.Run(context.Background(), StaticWorkSource{}, results, reports)
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.Equal(t, 1, result.Totals.Counts.FailedScenarios)
}

// Undefined steps are counted and additionally escalated to a structural
// failure, with the stdout capture surfaced for diagnosis.
func TestRunUndefinedStepsEscalate(t *testing.T) {
	features := featureSet("drafty")
	launcher := &stubLauncher{behaviors: map[string]artifactWriter{
		"drafty": {json: artifactJSON(2, 0, 1), stdout: "You can implement step definitions with these snippets"},
	}}
	r := newTestRunner(t, features, launcher, 1)
	results, reports := runDirs(t)

	result, err := r.Run(context.Background(), StaticWorkSource{}, results, reports)
	require.Error(t, err)

	var structural *StructuralError
	require.ErrorAs(t, err, &structural)
	require.Len(t, structural.Failures, 1)
	assert.Contains(t, structural.Failures[0].Reason, "undefined step")
	assert.Contains(t, structural.Failures[0].StdoutTail, "snippets")

	// The feature's counts were folded in before escalation; nothing is
	// dropped or double-counted.
	assert.Equal(t, 1, result.Totals.Features)
	assert.Equal(t, 1, result.Totals.Counts.UndefinedSteps)
}

// Every discovered feature contributes exactly one outcome: the number of
// AfterFeature calls plus structural failures equals the discovered count.
func TestRunCompleteness(t *testing.T) {
	const n = 20
	var names []string
	behaviors := make(map[string]artifactWriter, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("f%02d", i)
		names = append(names, name)
		if i%5 == 0 {
			behaviors[name] = artifactWriter{} // no artifact
		} else {
			behaviors[name] = artifactWriter{json: artifactJSON(1, i%3, 0)}
		}
	}
	launcher := &stubLauncher{behaviors: behaviors}
	r := newTestRunner(t, featureSet(names...), launcher, 4)
	results, reports := runDirs(t)

	result, err := r.Run(context.Background(), StaticWorkSource{}, results, reports)
	require.Error(t, err)

	var structural *StructuralError
	require.ErrorAs(t, err, &structural)
	assert.Equal(t, n, result.Totals.Features+len(structural.Failures))
	assert.Len(t, result.Features, n)
	assert.Equal(t, n, launcher.launches)
}

func TestRunConcurrencyBound(t *testing.T) {
	for _, k := range []int{1, 3, 10} {
		t.Run(fmt.Sprintf("forks=%d", k), func(t *testing.T) {
			const n = 30
			var names []string
			behaviors := make(map[string]artifactWriter, n)
			for i := 0; i < n; i++ {
				name := fmt.Sprintf("f%02d", i)
				names = append(names, name)
				behaviors[name] = artifactWriter{json: artifactJSON(1, 0, 0)}
			}
			launcher := &stubLauncher{behaviors: behaviors, delay: 5 * time.Millisecond}
			r := newTestRunner(t, featureSet(names...), launcher, k)
			results, reports := runDirs(t)

			_, err := r.Run(context.Background(), StaticWorkSource{}, results, reports)
			require.NoError(t, err)
			assert.LessOrEqual(t, launcher.maxActive, k,
				"no more than %d workers may be active at once", k)
			if k > 1 {
				assert.Greater(t, launcher.maxActive, 1, "pool should actually run in parallel")
			}
		})
	}
}

func TestRunEmptySuitePasses(t *testing.T) {
	launcher := &stubLauncher{behaviors: map[string]artifactWriter{}}
	r := newTestRunner(t, nil, launcher, 2)
	results, reports := runDirs(t)

	result, err := r.Run(context.Background(), StaticWorkSource{}, results, reports)
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Equal(t, 0, result.Totals.Features)
	assert.Equal(t, 0, launcher.launches)
}

func TestRunRejectsDuplicateLogicalNames(t *testing.T) {
	features := []types.FeatureFile{
		{Path: "/a/checkout.feature", Name: "checkout"},
		{Path: "/b/checkout.feature", Name: "checkout"},
	}
	r := newTestRunner(t, features, &stubLauncher{}, 1)
	results, reports := runDirs(t)

	_, err := r.Run(context.Background(), StaticWorkSource{}, results, reports)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate logical feature name")
}

func TestRunDiscoveryErrorIsRuntime(t *testing.T) {
	opts := types.DefaultRunOptions()
	r, err := NewSuiteRunner(Config{
		Options:    opts,
		RunID:      "test-run",
		Discoverer: &stubDiscoverer{err: errors.New("bad root")},
		Launcher:   &stubLauncher{},
	})
	require.NoError(t, err)

	_, err = r.Run(context.Background(), StaticWorkSource{}, t.TempDir(), t.TempDir())
	require.Error(t, err)
	var structural *StructuralError
	assert.False(t, errors.As(err, &structural), "discovery errors are not structural failures")
}

func TestNewSuiteRunnerValidatesConfig(t *testing.T) {
	opts := types.DefaultRunOptions()
	opts.MaxParallelForks = 0
	_, err := NewSuiteRunner(Config{Options: opts, RunID: "r"})
	assert.Error(t, err)

	_, err = NewSuiteRunner(Config{Options: types.DefaultRunOptions()})
	assert.Error(t, err, "run ID is required")
}

// Report flag off: the reports directory stays empty and results hold only
// the primary JSON artifact plus the two console captures per feature.
func TestRunWithoutStructuredReport(t *testing.T) {
	features := featureSet("auth.login", "billing.checkout")
	launcher := &stubLauncher{behaviors: map[string]artifactWriter{
		"auth.login":       {json: artifactJSON(1, 0, 0)},
		"billing.checkout": {json: artifactJSON(1, 0, 0)},
	}}
	r := newTestRunner(t, features, launcher, 2)
	results, reports := runDirs(t)

	result, err := r.Run(context.Background(), StaticWorkSource{}, results, reports)
	require.NoError(t, err)
	assert.True(t, result.Passed)

	reportEntries, err := os.ReadDir(reports)
	require.NoError(t, err)
	assert.Empty(t, reportEntries, "no structured reports expected")

	resultEntries, err := os.ReadDir(results)
	require.NoError(t, err)
	assert.Len(t, resultEntries, 6) // json + stdout + stderr per feature
}
