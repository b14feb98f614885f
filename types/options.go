package types

import (
	"fmt"
)

// SnippetStyle selects the formatting convention the engine uses when it
// generates placeholder code for steps that lack a definition.
type SnippetStyle string

const (
	SnippetStyleCamelCase  SnippetStyle = "camelcase"
	SnippetStyleUnderscore SnippetStyle = "underscore"
)

// Valid reports whether the snippet style is one of the known values.
func (s SnippetStyle) Valid() bool {
	return s == SnippetStyleCamelCase || s == SnippetStyleUnderscore
}

// RunOptions is the configuration snapshot for a suite run. It is read-only
// for the lifetime of a run; every worker invocation is built from the same
// snapshot so that argument construction stays deterministic.
type RunOptions struct {
	// GlueRoots are the step-definition root identifiers, in the order
	// they are passed to the engine.
	GlueRoots []string
	// IncludePatterns are glob-style patterns, relative to each resource
	// root, selecting candidate feature files.
	IncludePatterns []string
	// Tags are tag filter expressions, order-preserving for argument
	// building.
	Tags []string

	Strict     bool
	DryRun     bool
	Monochrome bool
	Snippets   SnippetStyle

	// MaxParallelForks bounds the number of concurrently running worker
	// processes. Must be at least 1.
	MaxParallelForks int

	// StructuredReport enables the secondary per-feature test report
	// artifact alongside the primary JSON result.
	StructuredReport bool

	// SystemProperties are forwarded verbatim into every worker process's
	// environment.
	SystemProperties map[string]string
}

// DefaultRunOptions returns the options used when nothing is configured:
// one fork, underscore snippets, all feature files under each root.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		IncludePatterns:  []string{"**/*" + FeatureExtension},
		Snippets:         SnippetStyleUnderscore,
		MaxParallelForks: 1,
	}
}

// Validate checks the option invariants that the rest of the system relies
// on. It does not touch the filesystem.
func (o RunOptions) Validate() error {
	if o.MaxParallelForks < 1 {
		return fmt.Errorf("max parallel forks must be at least 1, got %d", o.MaxParallelForks)
	}
	if !o.Snippets.Valid() {
		return fmt.Errorf("unknown snippet style %q (want %q or %q)",
			o.Snippets, SnippetStyleCamelCase, SnippetStyleUnderscore)
	}
	if len(o.IncludePatterns) == 0 {
		return fmt.Errorf("at least one include pattern is required")
	}
	return nil
}
