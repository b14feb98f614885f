package types

// FeatureResult holds the per-feature counts parsed from a worker's primary
// JSON result artifact.
type FeatureResult struct {
	Feature string // logical feature name, for correlation only

	Scenarios       int
	FailedScenarios int

	Steps          int
	FailedSteps    int
	SkippedSteps   int
	PendingSteps   int
	UndefinedSteps int
}

// HadFailures reports whether the feature recorded any ordinary test
// failure. Undefined steps are not ordinary failures; they escalate to a
// structural failure at the suite level instead.
func (r FeatureResult) HadFailures() bool {
	return r.FailedScenarios > 0 || r.FailedSteps > 0
}

// Add folds another result's counts into this one. Addition is commutative,
// so aggregate totals do not depend on feature completion order.
func (r *FeatureResult) Add(other FeatureResult) {
	r.Scenarios += other.Scenarios
	r.FailedScenarios += other.FailedScenarios
	r.Steps += other.Steps
	r.FailedSteps += other.FailedSteps
	r.SkippedSteps += other.SkippedSteps
	r.PendingSteps += other.PendingSteps
	r.UndefinedSteps += other.UndefinedSteps
}
