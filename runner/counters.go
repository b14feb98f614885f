package runner

import (
	"fmt"
	"sync"

	"github.com/cukefork/cukefork/types"
)

// SuiteCounters accumulates per-feature counts across concurrently
// completing workers and computes the suite-level verdict. Lifecycle:
// BeforeSuite, then any number of concurrent AfterFeature calls, then
// AfterSuite, which seals the counters against further mutation.
type SuiteCounters struct {
	mu sync.Mutex

	started bool
	sealed  bool

	expected int
	features int

	totals types.FeatureResult
}

// SuiteTotals is a read-only snapshot of the aggregate state.
type SuiteTotals struct {
	ExpectedFeatures int
	Features         int
	Counts           types.FeatureResult
}

// NewSuiteCounters creates a fresh, unstarted aggregate.
func NewSuiteCounters() *SuiteCounters {
	return &SuiteCounters{}
}

// BeforeSuite zeroes the aggregate and records the expected feature count.
func (c *SuiteCounters) BeforeSuite(expected int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if expected < 0 {
		return fmt.Errorf("expected feature count cannot be negative, got %d", expected)
	}
	c.started = true
	c.sealed = false
	c.expected = expected
	c.features = 0
	c.totals = types.FeatureResult{}
	return nil
}

// AfterFeature folds one successfully parsed feature's counts into the
// aggregate. Safe for concurrent use; aggregation is commutative, so the
// totals do not depend on completion order.
func (c *SuiteCounters) AfterFeature(result types.FeatureResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return fmt.Errorf("AfterFeature called before BeforeSuite")
	}
	if c.sealed {
		return fmt.Errorf("AfterFeature called after AfterSuite")
	}
	c.features++
	c.totals.Add(result)
	return nil
}

// AfterSuite finalizes the aggregate and forbids further mutation.
func (c *SuiteCounters) AfterSuite() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return fmt.Errorf("AfterSuite called before BeforeSuite")
	}
	c.sealed = true
	return nil
}

// HadFailures reports whether any recorded feature had an ordinary test
// failure.
func (c *SuiteCounters) HadFailures() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totals.HadFailures()
}

// Snapshot returns a copy of the aggregate state.
func (c *SuiteCounters) Snapshot() SuiteTotals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SuiteTotals{
		ExpectedFeatures: c.expected,
		Features:         c.features,
		Counts:           c.totals,
	}
}
