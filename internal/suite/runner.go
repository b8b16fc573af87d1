package suite

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/parastress/internal/classify"
	"github.com/roach88/parastress/internal/compare"
	"github.com/roach88/parastress/internal/config"
	"github.com/roach88/parastress/internal/engine"
	"github.com/roach88/parastress/internal/plan"
	"github.com/roach88/parastress/internal/redirect"
	"github.com/roach88/parastress/internal/report"
	"github.com/roach88/parastress/internal/store"
)

// Stats summarizes one pass over the suite.
type Stats struct {
	Total      int
	Parallel   int
	Downgraded int
	Skipped    int
	Failed     int
}

// Runner executes a suite against a configuration.
type Runner struct {
	Suite  *Suite
	Config *config.Config

	// Out receives status lines and the summary. Defaults to stdout.
	Out io.Writer

	// Log receives structured diagnostics. Defaults to discard.
	Log *slog.Logger

	// Store, when set, persists the run's verdicts and outcomes.
	Store *store.Store

	// Probe resolves the symbolic "auto" thread count. Defaults to
	// plan.AutoProbe.
	Probe plan.Probe

	// Verbose enables the per-operation downgrade listing.
	Verbose bool

	// Forever repeats the whole suite until a failure or cancellation.
	Forever bool
}

func (r *Runner) defaults() {
	if r.Out == nil {
		r.Out = os.Stdout
	}
	if r.Log == nil {
		r.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if r.Probe == nil {
		r.Probe = plan.AutoProbe
	}
	if r.Config == nil {
		r.Config = config.Default()
	}
}

// Run executes the suite once, or repeatedly in forever mode, and
// returns the stats of the last pass. The returned error is reserved
// for harness and configuration problems; operation failures are
// counted in Stats.Failed and reported on Out.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	r.defaults()

	classifier := classify.New(r.Suite.Registry(), r.Config.ClassifierOptions())

	iteration := 0
	for {
		stats, err := r.runOnce(ctx, classifier)
		if err != nil {
			return stats, err
		}
		if !r.Forever || stats.Failed > 0 || ctx.Err() != nil {
			return stats, nil
		}
		iteration++
		r.Log.Info("suite passed, running again", "iteration", iteration)
	}
}

func (r *Runner) runOnce(ctx context.Context, classifier *classify.Classifier) (Stats, error) {
	rep := report.New(r.Out, r.Verbose)
	eng := engine.New(r.Log)
	stream := redirect.NewStream(r.Out)
	defaults := r.Config.PlanDefaults()

	var run store.Run
	if r.Store != nil {
		headerPlan, err := plan.Resolve(defaults, plan.Override{}, r.Probe)
		if err != nil {
			return Stats{}, err
		}
		run = store.NewRun(headerPlan.Threads, headerPlan.Iterations)
		if err := r.Store.WriteRun(ctx, run); err != nil {
			return Stats{}, err
		}
	}

	var stats Stats
	for _, op := range r.Suite.Operations() {
		stats.Total++
		if err := r.runOperation(ctx, classifier, eng, rep, stream, defaults, run, op, &stats); err != nil {
			return stats, err
		}
		if ctx.Err() != nil {
			break
		}
	}

	rep.Summary()
	return stats, nil
}

// runOperation drives one operation through the full pipeline:
// resolver, classifier, engine, aggregator, reporter, store.
func (r *Runner) runOperation(
	ctx context.Context,
	classifier *classify.Classifier,
	eng *engine.Engine,
	rep *report.Reporter,
	stream *redirect.Stream,
	defaults plan.Defaults,
	run store.Run,
	op Operation,
	stats *Stats,
) error {
	ov := plan.Override{
		Threads:           op.Threads,
		Iterations:        op.Iterations,
		ForceSerial:       op.ForceSerial,
		ForceSerialReason: op.ForceSerialReason,
	}

	// Plan errors are fatal before any thread starts.
	pl, err := plan.Resolve(defaults, ov, r.Probe)
	if err != nil {
		return fmt.Errorf("operation %s: %w", op.Name, err)
	}

	verdict, verdictComputed, downgradeReason := r.classify(classifier, op, pl)

	if !verdict.Safe {
		if r.Config.SkipThreadUnsafe {
			// The verdict routes into a skip, never into a failure.
			stats.Skipped++
			rep.Downgrade(report.Downgrade{Operation: op.Name, Reason: verdict.Reason, Skipped: true})
			rep.Operation(op.Name, false, "", engine.Summary{
				Status:     engine.StatusSkip,
				SkipReason: verdict.Reason,
				Workers:    1,
			})
			return r.persist(ctx, run, op.Name, verdict, true, nil)
		}
		pl.Threads = 1
		stats.Downgraded++
		rep.Downgrade(report.Downgrade{Operation: op.Name, Reason: verdict.Reason})
	}

	deps, err := r.resolveDeps(op, pl)
	if err != nil {
		return fmt.Errorf("operation %s: %w", op.Name, err)
	}

	res, err := eng.Execute(ctx, pl, engine.Operation{
		Name:     op.Name,
		Deps:     deps,
		TempBase: op.TempBase,
		Output:   stream,
		Body:     op.Body,
	})
	if err != nil {
		// Harness-internal: never swallowed, never attributed to the
		// code under test.
		return fmt.Errorf("operation %s: %w", op.Name, err)
	}

	sum := res.Aggregate()
	parallel := pl.Threads > 1
	if parallel {
		stats.Parallel++
	}
	switch sum.Status {
	case engine.StatusFail:
		stats.Failed++
	case engine.StatusSkip:
		stats.Skipped++
	}

	rep.Operation(op.Name, parallel, downgradeReason, sum)
	r.Log.Debug("operation finished",
		"operation", op.Name,
		"threads", pl.Threads,
		"iterations", pl.Iterations,
		"status", string(sum.Status),
	)

	var persistVerdict classify.Verdict
	if verdictComputed {
		persistVerdict = verdict
	} else {
		persistVerdict = classify.Verdict{Safe: true}
	}
	return r.persist(ctx, run, op.Name, persistVerdict, false, res.Outcomes)
}

// classify applies the decision order: the explicit marker and the
// unsafe checks run through the classifier, but an operation whose
// override resolves to a single thread is serial by request and needs
// no verdict. The returned downgradeReason annotates a passing status
// line for operations kept off the parallel path.
func (r *Runner) classify(classifier *classify.Classifier, op Operation, pl plan.Plan) (classify.Verdict, bool, string) {
	if op.ForceSerial {
		v := classifier.Classify(classify.Operation{
			Name:              op.Name,
			ForceSerial:       true,
			ForceSerialReason: op.ForceSerialReason,
		})
		return v, true, v.Reason
	}

	if op.Threads != nil && !op.Threads.IsAuto() && pl.Threads == 1 {
		// Intentionally serial; the classifier does not run.
		return classify.Verdict{Safe: true}, false, ""
	}

	if pl.Threads == 1 {
		return classify.Verdict{Safe: true}, false, ""
	}

	v := classifier.Classify(classify.Operation{
		Name:  op.Name,
		Deps:  op.Deps,
		Calls: op.Calls,
	})
	return v, true, v.Reason
}

// resolveDeps materializes the operation's dependency values once,
// before any worker starts. Built-ins are sized to the approved plan;
// everything else comes from the suite's providers.
func (r *Runner) resolveDeps(op Operation, pl plan.Plan) (map[string]any, error) {
	if len(op.Deps) == 0 {
		return nil, nil
	}
	deps := make(map[string]any, len(op.Deps))
	for _, name := range op.Deps {
		switch name {
		case DepThreadComp:
			deps[name] = compare.New(pl.Threads)
		case DepNumThreads:
			deps[name] = pl.Threads
		case DepNumIterations:
			deps[name] = pl.Iterations
		default:
			fn, ok := r.Suite.provider(name)
			if !ok {
				return nil, fmt.Errorf("no provider for dependency %q", name)
			}
			deps[name] = fn()
		}
	}
	return deps, nil
}

func (r *Runner) persist(ctx context.Context, run store.Run, opName string, v classify.Verdict, skipped bool, outcomes []engine.Outcome) error {
	if r.Store == nil {
		return nil
	}
	if err := r.Store.WriteVerdict(ctx, run.ID, opName, v, skipped); err != nil {
		return err
	}
	if len(outcomes) == 0 {
		return nil
	}
	return r.Store.WriteOutcomes(ctx, run.ID, opName, outcomes)
}
