package engine

import "fmt"

// Status is the aggregate verdict over all workers.
type Status string

const (
	StatusPass Status = "pass"
	StatusSkip Status = "skip"
	StatusFail Status = "fail"
)

// Summary reduces all per-worker outcomes to the single verdict the
// host framework's reporting layer consumes.
type Summary struct {
	Status Status

	// SkipReason is set when Status is StatusSkip.
	SkipReason string

	// First is the terminal failure of the lowest-numbered failed
	// worker; set whenever any worker recorded a genuine failure, even
	// when a sibling's skip request decides the overall status.
	First *Failure

	// FailedWorkers counts workers with a genuine (non-skip) failure.
	// "1 of 8 failed" and "8 of 8 failed" are diagnostically
	// different, so the count always accompanies the first failure.
	FailedWorkers int

	Workers    int
	Iterations int
}

// Aggregate reduces the result's outcomes.
//
// Every worker complete: pass. Any skip request: the skip propagates
// as the overall result, even when a sibling recorded a genuine
// failure - a skip marks the whole operation as not applicable under
// the current conditions, and an inapplicable operation's failures
// carry no signal. With no skips, any genuine failure wins.
func (r *Result) Aggregate() Summary {
	s := Summary{
		Status:     StatusPass,
		Workers:    r.Threads,
		Iterations: r.Iterations,
	}

	var firstSkip *Failure
	for i := range r.Outcomes {
		f := r.Outcomes[i].Failure
		if f == nil {
			continue
		}
		if f.Kind == KindSkip {
			if firstSkip == nil {
				firstSkip = f
			}
			continue
		}
		s.FailedWorkers++
		if s.First == nil {
			// Outcomes are ordered by worker id, so the first genuine
			// failure seen belongs to the lowest-numbered failed worker.
			s.First = f
		}
	}

	switch {
	case firstSkip != nil:
		s.Status = StatusSkip
		s.SkipReason = firstSkip.Err.Error()
	case s.First != nil:
		s.Status = StatusFail
	}

	return s
}

// Err re-raises the aggregate failure exactly once, from the
// lowest-numbered failed worker, annotated with failure-count context.
// Returns nil for pass and skip verdicts.
func (s Summary) Err() error {
	if s.Status != StatusFail {
		return nil
	}
	return fmt.Errorf("%d of %d workers failed; first failure: %w",
		s.FailedWorkers, s.Workers, s.First)
}
