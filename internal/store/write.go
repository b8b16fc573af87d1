package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/parastress/internal/classify"
	"github.com/roach88/parastress/internal/engine"
)

// WriteRun inserts the run header row. Duplicate ids are rejected.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, threads, iterations)
		VALUES (?, ?, ?, ?)
	`,
		run.ID,
		run.StartedAt.Format(time.RFC3339Nano),
		run.Threads,
		run.Iterations,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteVerdict records the classifier's decision for one operation.
// skipped marks operations that were skipped rather than downgraded.
func (s *Store) WriteVerdict(ctx context.Context, runID, operation string, v classify.Verdict, skipped bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verdicts (run_id, operation, safe, reason, skipped)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, operation) DO NOTHING
	`,
		runID,
		operation,
		boolInt(v.Safe),
		v.Reason,
		boolInt(skipped),
	)
	if err != nil {
		return fmt.Errorf("write verdict: %w", err)
	}
	return nil
}

// WriteOutcomes records every worker's outcome for one operation.
func (s *Store) WriteOutcomes(ctx context.Context, runID, operation string, outcomes []engine.Outcome) error {
	for _, out := range outcomes {
		kind, msg, iteration := "", "", -1
		if out.Failure != nil {
			kind = string(out.Failure.Kind)
			msg = out.Failure.Err.Error()
			iteration = out.Failure.Iteration
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO outcomes
			(run_id, operation, worker, completed, failure_kind, failure, iteration, elapsed_ns)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, operation, worker) DO NOTHING
		`,
			runID,
			operation,
			out.Worker,
			out.Completed,
			kind,
			msg,
			iteration,
			out.Elapsed.Nanoseconds(),
		)
		if err != nil {
			return fmt.Errorf("write outcome worker %d: %w", out.Worker, err)
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
