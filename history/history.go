// Package history persists per-run suite summaries to a SQLite ledger so
// verdicts and counts can be inspected across runs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS suite_runs (
	run_id              TEXT PRIMARY KEY,
	started_at          TIMESTAMP NOT NULL,
	duration_ms         INTEGER NOT NULL,
	features            INTEGER NOT NULL,
	scenarios           INTEGER NOT NULL,
	failed_scenarios    INTEGER NOT NULL,
	steps               INTEGER NOT NULL,
	failed_steps        INTEGER NOT NULL,
	structural_failures INTEGER NOT NULL,
	verdict             TEXT NOT NULL
);
`

// Entry is one suite run's summary row.
type Entry struct {
	RunID              string
	StartedAt          time.Time
	Duration           time.Duration
	Features           int
	Scenarios          int
	FailedScenarios    int
	Steps              int
	FailedSteps        int
	StructuralFailures int
	Verdict            string
}

// Store is a run-history ledger backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history ledger %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record inserts one run's summary. Run IDs are unique; recording the same
// run twice is an error.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.RunID == "" {
		return fmt.Errorf("run ID is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suite_runs (
			run_id, started_at, duration_ms, features, scenarios,
			failed_scenarios, steps, failed_steps, structural_failures, verdict
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.StartedAt.UTC(), e.Duration.Milliseconds(), e.Features,
		e.Scenarios, e.FailedScenarios, e.Steps, e.FailedSteps,
		e.StructuralFailures, e.Verdict,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", e.RunID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, duration_ms, features, scenarios,
		       failed_scenarios, steps, failed_steps, structural_failures, verdict
		FROM suite_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var durationMS int64
		if err := rows.Scan(
			&e.RunID, &e.StartedAt, &durationMS, &e.Features, &e.Scenarios,
			&e.FailedScenarios, &e.Steps, &e.FailedSteps,
			&e.StructuralFailures, &e.Verdict,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
