package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// VerdictRow is one persisted classifier decision.
type VerdictRow struct {
	Operation string
	Safe      bool
	Reason    string
	Skipped   bool
}

// OutcomeRow is one persisted worker outcome.
type OutcomeRow struct {
	Worker      int
	Completed   int
	FailureKind string
	Failure     string
	Iteration   int
	Elapsed     time.Duration
}

// ReadLatestRun returns the most recently started run, or sql.ErrNoRows
// wrapped when the store is empty.
func (s *Store) ReadLatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, threads, iterations
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`)
	var run Run
	var started string
	if err := row.Scan(&run.ID, &started, &run.Threads, &run.Iterations); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("no runs recorded: %w", err)
		}
		return Run{}, fmt.Errorf("read latest run: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return Run{}, fmt.Errorf("parse run timestamp: %w", err)
	}
	run.StartedAt = t
	return run, nil
}

// ReadRun returns the run with the given id.
func (s *Store) ReadRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, threads, iterations
		FROM runs
		WHERE id = ?
	`, runID)
	var run Run
	var started string
	if err := row.Scan(&run.ID, &started, &run.Threads, &run.Iterations); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("run %s not found: %w", runID, err)
		}
		return Run{}, fmt.Errorf("read run %s: %w", runID, err)
	}
	t, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return Run{}, fmt.Errorf("parse run timestamp: %w", err)
	}
	run.StartedAt = t
	return run, nil
}

// ReadDowngraded returns every unsafe verdict of a run, ordered by
// operation name. Empty slice (not nil) when nothing was downgraded.
func (s *Store) ReadDowngraded(ctx context.Context, runID string) ([]VerdictRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT operation, safe, reason, skipped
		FROM verdicts
		WHERE run_id = ? AND safe = 0
		ORDER BY operation ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}
	defer rows.Close()

	verdicts := []VerdictRow{}
	for rows.Next() {
		var v VerdictRow
		var safe, skipped int
		if err := rows.Scan(&v.Operation, &safe, &v.Reason, &skipped); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		v.Safe = safe != 0
		v.Skipped = skipped != 0
		verdicts = append(verdicts, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verdicts: %w", err)
	}
	return verdicts, nil
}

// ReadOutcomes returns the outcome records of one operation in a run,
// ordered by worker id.
func (s *Store) ReadOutcomes(ctx context.Context, runID, operation string) ([]OutcomeRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT worker, completed, failure_kind, failure, iteration, elapsed_ns
		FROM outcomes
		WHERE run_id = ? AND operation = ?
		ORDER BY worker ASC
	`, runID, operation)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []OutcomeRow{}
	for rows.Next() {
		var o OutcomeRow
		var elapsed int64
		if err := rows.Scan(&o.Worker, &o.Completed, &o.FailureKind, &o.Failure, &o.Iteration, &elapsed); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Elapsed = time.Duration(elapsed)
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}
