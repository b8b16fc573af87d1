package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parastress/internal/compare"
	"github.com/roach88/parastress/internal/plan"
	"github.com/roach88/parastress/internal/redirect"
)

func testPlan(threads, iterations int) plan.Plan {
	return plan.Plan{Threads: threads, Iterations: iterations}
}

func TestExecute_AllWorkersSucceed(t *testing.T) {
	var calls atomic.Int64
	op := Operation{
		Name: "pkg.TestClean",
		Body: func(inv *Invocation) error {
			calls.Add(1)
			return nil
		},
	}

	res, err := New(nil).Execute(context.Background(), testPlan(4, 3), op)
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 4, "one outcome record per worker")
	for i, out := range res.Outcomes {
		assert.Equal(t, i, out.Worker)
		assert.Equal(t, 3, out.Completed)
		assert.Nil(t, out.Failure)
	}
	assert.Equal(t, int64(12), calls.Load())

	sum := res.Aggregate()
	assert.Equal(t, StatusPass, sum.Status)
	assert.NoError(t, sum.Err())
}

func TestExecute_SerialPlanRunsInline(t *testing.T) {
	var workers []int
	op := Operation{
		Name: "pkg.TestSerial",
		Body: func(inv *Invocation) error {
			// No goroutines in the serial path, so plain append is fine.
			workers = append(workers, inv.Worker)
			assert.Equal(t, 1, inv.Threads)
			return nil
		},
	}

	res, err := New(nil).Execute(context.Background(), testPlan(1, 3), op)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, 3, res.Outcomes[0].Completed)
	assert.Equal(t, []int{0, 0, 0}, workers)
}

func TestExecute_FailureCountAndAttribution(t *testing.T) {
	// Workers 1 and 3 of 4 fail deterministically on round 0.
	op := Operation{
		Name: "pkg.TestPartial",
		Body: func(inv *Invocation) error {
			if inv.Worker%2 == 1 {
				return fmt.Errorf("worker %d broke", inv.Worker)
			}
			return nil
		},
	}

	res, err := New(nil).Execute(context.Background(), testPlan(4, 2), op)
	require.NoError(t, err)

	sum := res.Aggregate()
	assert.Equal(t, StatusFail, sum.Status)
	assert.Equal(t, 2, sum.FailedWorkers)
	require.NotNil(t, sum.First)
	assert.Equal(t, 1, sum.First.Worker, "first failure comes from the lowest-numbered failed worker")
	assert.Equal(t, 0, sum.First.Iteration)
	assert.Equal(t, KindAssertion, sum.First.Kind)

	err = sum.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 4 workers failed")
	assert.Contains(t, err.Error(), "worker 1 broke")
}

func TestExecute_WorkerStopsAfterFirstFailure(t *testing.T) {
	var invocations [4]atomic.Int64
	op := Operation{
		Name: "pkg.TestRetire",
		Body: func(inv *Invocation) error {
			invocations[inv.Worker].Add(1)
			if inv.Worker == 0 && inv.Iteration == 1 {
				return errors.New("boom")
			}
			return nil
		},
	}

	res, err := New(nil).Execute(context.Background(), testPlan(4, 5), op)
	require.NoError(t, err)

	// Worker 0 ran rounds 0 and 1, then retired to no-op barrier passes.
	assert.Equal(t, int64(2), invocations[0].Load())
	assert.Equal(t, 1, res.Outcomes[0].Completed)
	require.NotNil(t, res.Outcomes[0].Failure)
	assert.Equal(t, 1, res.Outcomes[0].Failure.Iteration)

	// Siblings were not cancelled and ran every round.
	for w := 1; w < 4; w++ {
		assert.Equal(t, int64(5), invocations[w].Load(), "worker %d", w)
		assert.Equal(t, 5, res.Outcomes[w].Completed)
	}
}

func TestExecute_SkipPropagates(t *testing.T) {
	op := Operation{
		Name: "pkg.TestSkip",
		Body: func(inv *Invocation) error {
			if inv.Worker == 2 {
				return Skipf("missing optional library")
			}
			return nil
		},
	}

	res, err := New(nil).Execute(context.Background(), testPlan(4, 2), op)
	require.NoError(t, err)

	sum := res.Aggregate()
	assert.Equal(t, StatusSkip, sum.Status, "sibling passes must not mask a skip")
	assert.Equal(t, "missing optional library", sum.SkipReason)
	assert.NoError(t, sum.Err())
}

func TestExecute_SkipOutranksFailure(t *testing.T) {
	op := Operation{
		Name: "pkg.TestSkipAndFail",
		Body: func(inv *Invocation) error {
			switch inv.Worker {
			case 0:
				return Skipf("missing optional library")
			case 1:
				return errors.New("genuine failure")
			}
			return nil
		},
	}

	res, err := New(nil).Execute(context.Background(), testPlan(3, 1), op)
	require.NoError(t, err)

	sum := res.Aggregate()
	assert.Equal(t, StatusSkip, sum.Status, "a skip request decides the status even alongside a failure")
	assert.Equal(t, "missing optional library", sum.SkipReason)
	assert.NoError(t, sum.Err())

	// The sibling failure is still recorded for diagnostics.
	assert.Equal(t, 1, sum.FailedWorkers)
	assert.Equal(t, 1, sum.First.Worker)
}

func TestExecute_PanicRecordedAsUnexpected(t *testing.T) {
	op := Operation{
		Name: "pkg.TestPanics",
		Body: func(inv *Invocation) error {
			if inv.Worker == 0 {
				panic("nil map write")
			}
			return nil
		},
	}

	res, err := New(nil).Execute(context.Background(), testPlan(2, 1), op)
	require.NoError(t, err, "a panicking operation must not crash the harness")

	sum := res.Aggregate()
	require.Equal(t, StatusFail, sum.Status)
	assert.Equal(t, KindUnexpected, sum.First.Kind)
	assert.Contains(t, sum.First.Err.Error(), "nil map write")
}

func TestExecute_DepsSharedByReference(t *testing.T) {
	counter := new(atomic.Int64)
	deps := map[string]any{"counter": counter}

	op := Operation{
		Name: "pkg.TestShared",
		Deps: deps,
		Body: func(inv *Invocation) error {
			inv.Deps["counter"].(*atomic.Int64).Add(1)
			return nil
		},
	}

	res, err := New(nil).Execute(context.Background(), testPlan(8, 4), op)
	require.NoError(t, err)
	assert.Equal(t, StatusPass, res.Aggregate().Status)
	assert.Equal(t, int64(32), counter.Load(), "every worker wrote through the same shared value")
}

func TestExecute_WorkerTempDirs(t *testing.T) {
	base := t.TempDir()
	var mu sync.Mutex
	seen := map[string]struct{}{}

	op := Operation{
		Name:     "pkg.TestTemp",
		TempBase: base,
		Body: func(inv *Invocation) error {
			info, err := os.Stat(inv.TempDir)
			if err != nil || !info.IsDir() {
				return fmt.Errorf("temp dir missing: %v", err)
			}
			mu.Lock()
			seen[inv.TempDir] = struct{}{}
			mu.Unlock()
			return nil
		},
	}

	res, err := New(nil).Execute(context.Background(), testPlan(3, 2), op)
	require.NoError(t, err)
	require.Equal(t, StatusPass, res.Aggregate().Status)

	assert.Len(t, seen, 3, "each worker gets an exclusive directory")
	for w := 0; w < 3; w++ {
		_, ok := seen[filepath.Join(base, fmt.Sprintf("thread_%d", w))]
		assert.True(t, ok, "thread_%d", w)
	}
}

func TestExecute_InvalidPlanRejected(t *testing.T) {
	op := Operation{Name: "pkg.TestBad", Body: func(*Invocation) error { return nil }}

	_, err := New(nil).Execute(context.Background(), plan.Plan{Threads: 0, Iterations: 1}, op)
	require.Error(t, err)
	assert.True(t, IsHarnessError(err))

	_, err = New(nil).Execute(context.Background(), testPlan(2, 1), Operation{Name: "pkg.NoBody"})
	require.Error(t, err)
	assert.True(t, IsHarnessError(err))
}

func TestExecute_ContextCancelledSkipsInvocations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int64
	op := Operation{
		Name: "pkg.TestCancelled",
		Body: func(*Invocation) error {
			calls.Add(1)
			return nil
		},
	}

	res, err := New(nil).Execute(ctx, testPlan(4, 3), op)
	require.NoError(t, err)
	assert.Equal(t, int64(0), calls.Load())
	for _, out := range res.Outcomes {
		assert.Equal(t, 0, out.Completed)
	}
}

func TestExecute_WorkerOutputRedirection(t *testing.T) {
	var fallback, w0, w1 bytes.Buffer
	stream := redirect.NewStream(&fallback)
	restore0 := stream.PushWorker(0, &w0)
	defer restore0()
	restore1 := stream.PushWorker(1, &w1)
	defer restore1()

	op := Operation{
		Name:   "pkg.TestOutput",
		Output: stream,
		Body: func(inv *Invocation) error {
			fmt.Fprintf(inv.Out, "worker %d iteration %d\n", inv.Worker, inv.Iteration)
			return nil
		},
	}

	_, err := New(nil).Execute(context.Background(), testPlan(2, 2), op)
	require.NoError(t, err)

	assert.Equal(t, "worker 0 iteration 0\nworker 0 iteration 1\n", w0.String())
	assert.Equal(t, "worker 1 iteration 0\nworker 1 iteration 1\n", w1.String())
	assert.Empty(t, fallback.String(), "redirected workers never reach the fallback")
}

func TestExecute_NilOutputDiscards(t *testing.T) {
	op := Operation{
		Name: "pkg.TestSilent",
		Body: func(inv *Invocation) error {
			require.NotNil(t, inv.Out)
			fmt.Fprintln(inv.Out, "dropped")
			return nil
		},
	}

	_, err := New(nil).Execute(context.Background(), testPlan(1, 1), op)
	require.NoError(t, err)
}

func TestExecute_RetiredWorkerLeavesCheckpoint(t *testing.T) {
	// One worker diverges at the value checkpoint and retires; the
	// survivor's next Check must not wait for the retired party.
	comp := compare.New(2)
	op := Operation{
		Name: "pkg.TestDivergent",
		Deps: map[string]any{"thread_comp": comp},
		Body: func(inv *Invocation) error {
			c := inv.Deps["thread_comp"].(*compare.Comparator)
			return c.Check(map[string]any{"v": inv.Worker})
		},
	}

	type execResult struct {
		res *Result
		err error
	}
	done := make(chan execResult, 1)
	go func() {
		res, err := New(nil).Execute(context.Background(), testPlan(2, 2), op)
		done <- execResult{res, err}
	}()

	var res *Result
	select {
	case got := <-done:
		require.NoError(t, got.err)
		res = got.res
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not return: surviving worker blocked at the checkpoint")
	}

	sum := res.Aggregate()
	assert.Equal(t, StatusFail, sum.Status)
	assert.Equal(t, 1, sum.FailedWorkers, "exactly one worker observes the mismatch")

	survived := res.Outcomes[1-sum.First.Worker]
	assert.Equal(t, 2, survived.Completed, "the survivor finishes every round")
}

func TestExecute_FailureBeforeCheckpointReleasesSibling(t *testing.T) {
	// Worker 0 fails without ever reaching the checkpoint while worker 1
	// is already waiting inside it.
	comp := compare.New(2)
	op := Operation{
		Name: "pkg.TestEarlyFailure",
		Deps: map[string]any{"thread_comp": comp},
		Body: func(inv *Invocation) error {
			if inv.Worker == 0 {
				return Failf("broke before the checkpoint")
			}
			c := inv.Deps["thread_comp"].(*compare.Comparator)
			return c.Check(map[string]any{"v": "stable"})
		},
	}

	type execResult struct {
		res *Result
		err error
	}
	done := make(chan execResult, 1)
	go func() {
		res, err := New(nil).Execute(context.Background(), testPlan(2, 3), op)
		done <- execResult{res, err}
	}()

	var res *Result
	select {
	case got := <-done:
		require.NoError(t, got.err)
		res = got.res
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not return: worker blocked at the checkpoint")
	}

	assert.Equal(t, 3, res.Outcomes[1].Completed)
	require.NotNil(t, res.Outcomes[0].Failure)
	assert.Equal(t, 0, res.Outcomes[0].Completed)
}
