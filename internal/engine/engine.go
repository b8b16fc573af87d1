package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/roach88/parastress/internal/plan"
	"github.com/roach88/parastress/internal/redirect"
)

// Body is an operation body. It receives the invocation context for the
// current worker and iteration and reports failure by returning an
// error: a *Failure for an explicit skip or assertion, any other error
// for a plain assertion failure. Panics are recovered at the worker
// boundary and recorded as unexpected failures.
type Body func(inv *Invocation) error

// Operation is a test operation ready for execution: a callable plus
// its resolved dependency values.
type Operation struct {
	// Name is the operation's fully-qualified name, used in reports.
	Name string

	// Deps holds the resolved dependency values. The map is handed to
	// every worker as-is - shared, never copied. Any synchronization
	// is the responsibility of the code under test.
	Deps map[string]any

	// TempBase, when non-empty, is a directory under which each worker
	// gets an exclusive "thread_N" subdirectory.
	TempBase string

	// Output resolves each worker's output writer through the run's
	// redirection stack. Nil discards all body output.
	Output *redirect.Stream

	Body Body
}

// Invocation is the per-call context visible to an operation body.
type Invocation struct {
	// Worker is the executing worker's index, 0-based.
	Worker int

	// Iteration is the current round, 0-based.
	Iteration int

	// Threads is the approved plan's thread count.
	Threads int

	// Deps is the operation's shared dependency map.
	Deps map[string]any

	// TempDir is this worker's exclusive scratch directory, or empty
	// when the operation has no TempBase.
	TempDir string

	// Out is this worker's output writer, resolved per iteration so
	// redirects pushed mid-run take effect on the next round.
	Out io.Writer
}

// Outcome is one worker's record of an execution. Exactly one Outcome
// exists per worker of the approved plan.
type Outcome struct {
	Worker    int
	Completed int
	Failure   *Failure
	Elapsed   time.Duration
}

// Result holds all outcomes of one execution.
type Result struct {
	Threads    int
	Iterations int
	Outcomes   []Outcome
}

// Engine executes approved invocation plans.
type Engine struct {
	log *slog.Logger
}

// New creates an engine. A nil logger discards all output.
func New(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{log: log}
}

// Execute runs the operation under the approved plan and returns one
// outcome per worker.
//
// A plan with Threads == 1 runs the operation inline on the calling
// goroutine: no barrier, no extra threads. Otherwise Execute spawns
// Threads workers synchronized round-by-round on a cyclic barrier; see
// the package comment for the execution model.
//
// The returned error is always a harness-internal error (bad plan,
// workspace setup). Failures of the operation itself are recorded in
// the outcomes and surfaced by Aggregate, never here.
func (e *Engine) Execute(ctx context.Context, p plan.Plan, op Operation) (*Result, error) {
	if p.Threads < 1 || p.Iterations < 1 {
		return nil, newHarnessError(ErrCodeInvalidPlan,
			"plan not resolved: threads=%d iterations=%d", p.Threads, p.Iterations)
	}
	if op.Body == nil {
		return nil, newHarnessError(ErrCodeInvalidPlan, "operation %q has no body", op.Name)
	}

	tempDirs, err := workerTempDirs(op, p.Threads)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Threads:    p.Threads,
		Iterations: p.Iterations,
		Outcomes:   make([]Outcome, p.Threads),
	}

	if p.Serial() {
		res.Outcomes[0] = e.runWorker(ctx, nil, p, op, 0, tempDirs[0])
		return res, nil
	}

	e.log.Debug("starting workers", "operation", op.Name, "threads", p.Threads, "iterations", p.Iterations)

	b := newBarrier(p.Threads)
	var wg sync.WaitGroup
	for w := 0; w < p.Threads; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			// Worker-exclusive slot; written exactly once.
			res.Outcomes[w] = e.runWorker(ctx, b, p, op, w, tempDirs[w])
		}(w)
	}
	wg.Wait()

	e.log.Debug("workers finished", "operation", op.Name)
	return res, nil
}

// runWorker executes the iteration loop for one worker. After a
// terminal failure the worker retires: it stops invoking the operation
// but keeps arriving at the barrier so siblings are never left
// waiting, and it leaves any rendezvous dependencies exactly once so
// siblings blocked inside them are released.
func (e *Engine) runWorker(ctx context.Context, b *barrier, p plan.Plan, op Operation, w int, tempDir string) Outcome {
	start := time.Now()
	out := Outcome{Worker: w}

	retired := false
	retire := func() {
		if retired {
			return
		}
		retired = true
		leaveDeps(op.Deps)
	}

	for i := 0; i < p.Iterations; i++ {
		if b != nil {
			b.Await()
		}
		if out.Failure != nil || ctx.Err() != nil {
			// No-op barrier pass for a retired worker.
			retire()
			continue
		}

		inv := &Invocation{
			Worker:    w,
			Iteration: i,
			Threads:   p.Threads,
			Deps:      op.Deps,
			TempDir:   tempDir,
			Out:       e.workerOutput(op, w),
		}
		if f := e.invoke(op, inv); f != nil {
			out.Failure = f
			e.log.Debug("worker failed",
				"operation", op.Name, "worker", w, "iteration", i, "kind", string(f.Kind))
			retire()
			continue
		}
		out.Completed++
	}

	out.Elapsed = time.Since(start)
	return out
}

// leaver is implemented by shared dependencies that rendezvous across
// workers (the value-consistency comparator). A retiring worker leaves
// them so the surviving workers do not block waiting for a party that
// will never arrive again.
type leaver interface {
	Leave()
}

func leaveDeps(deps map[string]any) {
	for _, v := range deps {
		if l, ok := v.(leaver); ok {
			l.Leave()
		}
	}
}

func (e *Engine) workerOutput(op Operation, w int) io.Writer {
	if op.Output == nil {
		return io.Discard
	}
	return op.Output.WriterFor(w)
}

// invoke calls the operation body once, recovering panics and
// attributing any failure to the originating worker and iteration.
func (e *Engine) invoke(op Operation, inv *Invocation) (failure *Failure) {
	defer func() {
		if r := recover(); r != nil {
			failure = &Failure{
				Kind:      KindUnexpected,
				Worker:    inv.Worker,
				Iteration: inv.Iteration,
				Err:       fmt.Errorf("panic: %v", r),
			}
		}
	}()

	err := op.Body(inv)
	if err == nil {
		return nil
	}

	var f *Failure
	if errors.As(err, &f) {
		return &Failure{Kind: f.Kind, Worker: inv.Worker, Iteration: inv.Iteration, Err: f.Err}
	}
	return &Failure{Kind: KindAssertion, Worker: inv.Worker, Iteration: inv.Iteration, Err: err}
}

// workerTempDirs creates the per-worker scratch directories up front,
// before any worker starts.
func workerTempDirs(op Operation, threads int) ([]string, error) {
	dirs := make([]string, threads)
	if op.TempBase == "" {
		return dirs, nil
	}
	for w := 0; w < threads; w++ {
		dir := filepath.Join(op.TempBase, fmt.Sprintf("thread_%d", w))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &HarnessError{
				Code:    ErrCodeWorkspace,
				Message: fmt.Sprintf("create worker dir for %q", op.Name),
				Err:     err,
			}
		}
		dirs[w] = dir
	}
	return dirs, nil
}
