// Package logging owns the on-disk layout of a suite run: the per-run
// directory, the results and reports directories the workers write into,
// and the plain-text summary file.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// RunDirectoryPrefix is the standardized prefix for per-run directories.
const RunDirectoryPrefix = "suiterun-"

// RunLayout describes where one run's artifacts live.
type RunLayout struct {
	// Base is the configured output base directory.
	Base string
	// Dir is the per-run directory under Base.
	Dir string
	// ResultsDir holds the per-feature JSON artifacts and console
	// captures.
	ResultsDir string
	// ReportsDir holds the optional structured test reports.
	ReportsDir string
	// SummaryFile is the plain-text suite summary.
	SummaryFile string
}

// NewRunLayout creates (or reuses) the directory tree for a run.
func NewRunLayout(baseDir, runID string) (*RunLayout, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	dir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	layout := &RunLayout{
		Base:        baseDir,
		Dir:         dir,
		ResultsDir:  filepath.Join(dir, "results"),
		ReportsDir:  filepath.Join(dir, "reports"),
		SummaryFile: filepath.Join(dir, "summary.txt"),
	}

	for _, d := range []string{baseDir, dir, layout.ResultsDir, layout.ReportsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}
	return layout, nil
}

// HistoryFile returns the path of the run-history ledger shared by all runs
// under the same base directory.
func HistoryFile(baseDir string) string {
	return filepath.Join(baseDir, "history.db")
}
