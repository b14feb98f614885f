// Package exitcodes defines the standard exit codes used by cukefork.
package exitcodes

// Exit code constants used by cukefork
// These constants define the exit codes that the application uses to
// indicate various states when it exits:
//
// * Success (0): Used when every scenario and step passed
// * SuiteFailure (1): Used when one or more scenarios or steps failed
// * RuntimeErr (2): Used for runtime errors and structural parse failures
const (
	Success      = 0 // All features pass
	SuiteFailure = 1 // Ordinary test failures
	RuntimeErr   = 2 // Runtime errors or structural parse failures
)
