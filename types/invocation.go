package types

// WorkerInvocation pairs a feature file with its resolved argument list and
// the four output files owned exclusively by its worker for the duration of
// the run. Paths are derived from the feature's logical name, so no two
// invocations in a run ever share a file.
type WorkerInvocation struct {
	Feature FeatureFile
	Args    []string

	// ResultPath is where the worker writes its primary JSON result
	// artifact. Presence of this file after exit signals that the feature
	// ran to completion.
	ResultPath string
	// ReportPath is the optional structured test report. Empty when the
	// report flag is off.
	ReportPath string
	// StdoutPath and StderrPath capture the worker's console streams.
	// Always created, overwrite semantics.
	StdoutPath string
	StderrPath string
}
