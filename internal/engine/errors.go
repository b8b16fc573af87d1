package engine

import (
	"errors"
	"fmt"
)

// FailureKind classifies a per-worker operation failure.
type FailureKind string

const (
	// KindAssertion is a test assertion failure: the operation
	// returned an error describing a violated expectation.
	KindAssertion FailureKind = "assertion"

	// KindUnexpected is a failure the operation did not raise
	// deliberately - a recovered panic.
	KindUnexpected FailureKind = "unexpected"

	// KindSkip is an explicit skip request from inside the operation.
	KindSkip FailureKind = "skip"
)

// Failure is the terminal outcome of one worker's iteration loop. It
// carries the original failure's classification and enough context to
// re-surface it on the reporting thread as if it had occurred there.
type Failure struct {
	Kind      FailureKind
	Worker    int
	Iteration int
	Err       error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("worker %d iteration %d: %v", f.Worker, f.Iteration, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Skipf builds an explicit skip request. Returning it from an
// operation body ends that worker's loop and propagates the skip as
// the overall result unless a sibling records a genuine failure.
func Skipf(format string, args ...any) error {
	return &Failure{Kind: KindSkip, Err: fmt.Errorf(format, args...)}
}

// Failf builds an assertion failure with a formatted message.
func Failf(format string, args ...any) error {
	return &Failure{Kind: KindAssertion, Err: fmt.Errorf(format, args...)}
}

// HarnessErrorCode categorizes errors in the engine itself, as opposed
// to failures of the code under test.
type HarnessErrorCode string

const (
	// ErrCodeInvalidPlan indicates the plan handed to Execute was not
	// a resolved positive-count plan.
	ErrCodeInvalidPlan HarnessErrorCode = "INVALID_PLAN"

	// ErrCodeBarrier indicates barrier misconfiguration or breakage.
	ErrCodeBarrier HarnessErrorCode = "BARRIER"

	// ErrCodeWorkspace indicates per-worker workspace setup failed.
	ErrCodeWorkspace HarnessErrorCode = "WORKSPACE"
)

// HarnessError is a bug in the harness, not in the code under test.
// Always fatal, never converted into an operation failure.
type HarnessError struct {
	Code    HarnessErrorCode
	Message string
	Err     error
}

func (e *HarnessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *HarnessError) Unwrap() error {
	return e.Err
}

// IsHarnessError reports whether err is a harness-internal error.
// Uses errors.As to handle wrapped errors.
func IsHarnessError(err error) bool {
	var he *HarnessError
	return errors.As(err, &he)
}

func newHarnessError(code HarnessErrorCode, format string, args ...any) *HarnessError {
	return &HarnessError{Code: code, Message: fmt.Sprintf(format, args...)}
}
