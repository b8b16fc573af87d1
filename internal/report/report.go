// Package report renders per-operation status lines and the end-of-run
// summary consumed from the console.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/roach88/parastress/internal/engine"
)

// VerboseEnv is the environment toggle for the downgrade summary.
const VerboseEnv = "PARASTRESS_VERBOSE"

// VerboseFromEnv reports whether the environment requests the verbose
// downgrade listing.
func VerboseFromEnv() bool {
	return os.Getenv(VerboseEnv) == "1"
}

// Downgrade records one operation that did not run in parallel, with
// its verdict reason.
type Downgrade struct {
	Operation string
	Reason    string
	Skipped   bool
}

// Reporter accumulates per-operation results and renders them.
// Safe for concurrent use, although the suite reports sequentially.
type Reporter struct {
	mu         sync.Mutex
	w          io.Writer
	verbose    bool
	downgraded []Downgrade
}

// New creates a reporter writing to w. verbose enables the per-operation
// downgrade listing in the summary.
func New(w io.Writer, verbose bool) *Reporter {
	return &Reporter{w: w, verbose: verbose}
}

// Operation emits the status line for one executed operation.
//
// The annotation is one of: PASS (ran on a single thread),
// PARALLEL PASS (ran under the engine across >1 thread), SKIPPED with
// the reason, or a FAILED line carrying the originating worker,
// iteration, and the worker-failure count.
func (r *Reporter) Operation(name string, parallel bool, downgradeReason string, sum engine.Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch sum.Status {
	case engine.StatusPass:
		if parallel {
			fmt.Fprintf(r.w, "PARALLEL PASS %s\n", name)
		} else if downgradeReason != "" {
			fmt.Fprintf(r.w, "PASS %s [thread-unsafe: %s]\n", name, downgradeReason)
		} else {
			fmt.Fprintf(r.w, "PASS %s\n", name)
		}
	case engine.StatusSkip:
		fmt.Fprintf(r.w, "SKIPPED %s: %s\n", name, sum.SkipReason)
	case engine.StatusFail:
		fmt.Fprintf(r.w, "FAILED %s (worker %d, iteration %d, %d/%d workers failed): %v\n",
			name, sum.First.Worker, sum.First.Iteration, sum.FailedWorkers, sum.Workers, sum.First.Err)
	}
}

// Downgrade records an operation the classifier kept off the parallel
// path, for the end-of-run summary.
func (r *Reporter) Downgrade(d Downgrade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downgraded = append(r.downgraded, d)
}

// Downgraded returns the recorded downgrades.
func (r *Reporter) Downgraded() []Downgrade {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Downgrade(nil), r.downgraded...)
}

// Summary writes the end-of-run section. With verbosity enabled it
// enumerates every downgraded operation with its verdict reason;
// otherwise it prints the count and how to get the listing.
func (r *Reporter) Summary() {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.w, "%s parastress report %s\n", strings.Repeat("*", 10), strings.Repeat("*", 10))

	if len(r.downgraded) == 0 {
		fmt.Fprintln(r.w, "All operations ran in parallel!")
		return
	}

	if r.verbose {
		for _, d := range r.downgraded {
			fmt.Fprintf(r.w, "%s %s because it %s\n", d.Operation, disposition(d.Skipped), d.Reason)
		}
		return
	}

	noun := "operations"
	if len(r.downgraded) == 1 {
		noun = "operation"
	}
	fmt.Fprintf(r.w,
		"%d %s %s because of thread-unsafe functionality; re-run with %s=1 to list them\n",
		len(r.downgraded), noun, dispositionPlural(len(r.downgraded) > 1, r.anySkipped()), VerboseEnv)
}

func (r *Reporter) anySkipped() bool {
	for _, d := range r.downgraded {
		if d.Skipped {
			return true
		}
	}
	return false
}

func disposition(skipped bool) string {
	if skipped {
		return "was skipped"
	}
	return "was not run in parallel"
}

func dispositionPlural(plural, skipped bool) string {
	verb := "was"
	if plural {
		verb = "were"
	}
	if skipped {
		return verb + " skipped"
	}
	return verb + " not run in parallel"
}
