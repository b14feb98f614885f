package cukefork

import (
	"context"
	"errors"
	"fmt"

	"github.com/cukefork/cukefork/runner"
)

// RuntimeError represents an operational error that should lead to exit code 2
// Examples include configuration errors, file not found, etc.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// SuiteFailureError represents ordinary scenario or step failures (exit code 1)
type SuiteFailureError struct {
	Message string
}

func (e *SuiteFailureError) Error() string {
	return fmt.Sprintf("suite failure: %s", e.Message)
}

// NewSuiteFailureError creates a new SuiteFailureError
func NewSuiteFailureError(message string) *SuiteFailureError {
	return &SuiteFailureError{Message: message}
}

// IsSuiteFailureError checks if the error is or wraps a SuiteFailureError
func IsSuiteFailureError(err error) bool {
	var suiteErr *SuiteFailureError
	return err != nil && errors.As(err, &suiteErr)
}

// ExitCause extracts the shutdown cause of a finished app context. A plain
// cancellation — the clean-shutdown signal fired after a successful run —
// is not an error and must not flip the exit code.
func ExitCause(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(cause, context.Canceled) {
		return nil
	}
	return cause
}

// IsStructuralError checks if the error is or wraps a structural parse
// failure raised by the orchestrator. Structural failures abort the suite
// and exit with code 2, like other runtime errors.
func IsStructuralError(err error) bool {
	var structuralErr *runner.StructuralError
	return err != nil && errors.As(err, &structuralErr)
}
