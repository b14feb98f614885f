// Package runner orchestrates a suite run: it dispatches one isolated
// worker process per discovered feature file through a bounded pool,
// collects each worker's JSON result artifact, aggregates counts across
// completions, and classifies failures as ordinary or structural.
package runner
