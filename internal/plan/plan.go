// Package plan resolves thread and iteration counts into a concrete
// invocation plan.
//
// Resolution merges three sources, in decreasing precedence:
//  1. a per-operation override (marker analog)
//  2. the global defaults (command line / config file)
//  3. the capability probe, for the symbolic "auto" count
//
// A resolved Plan is immutable. The symbolic "auto" value is resolved
// exactly once per plan so that every round of a run sees the same
// worker count.
package plan

import (
	"errors"
	"fmt"
	"strconv"
)

// Auto is the spelling of the symbolic thread count accepted from flags
// and config files.
const Auto = "auto"

// ErrNonPositive is wrapped by resolution errors caused by a zero or
// negative thread or iteration count.
var ErrNonPositive = errors.New("count must be positive")

// Count is a thread count that is either a concrete positive integer or
// the symbolic "auto" value, resolved at plan-build time.
type Count struct {
	auto bool
	n    int
}

// Fixed returns a concrete count. The value is validated during Resolve,
// not here, so that the error carries the operation context.
func Fixed(n int) Count {
	return Count{n: n}
}

// AutoCount returns the symbolic "auto" count.
func AutoCount() Count {
	return Count{auto: true}
}

// IsAuto reports whether the count is symbolic.
func (c Count) IsAuto() bool {
	return c.auto
}

// String renders the count the way it is spelled in configuration.
func (c Count) String() string {
	if c.auto {
		return Auto
	}
	return strconv.Itoa(c.n)
}

// ParseCount parses a flag or config value: "auto" or a base-10 integer.
func ParseCount(s string) (Count, error) {
	if s == Auto {
		return AutoCount(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Count{}, fmt.Errorf("invalid thread count %q: expected integer or %q", s, Auto)
	}
	return Fixed(n), nil
}

// Probe reports the number of logical execution units available to the
// process. Probes never fail; they fall back to 1.
type Probe func() int

// Defaults holds the run-wide thread and iteration counts from the
// command line or config file.
type Defaults struct {
	Threads    Count
	Iterations int
}

// Override holds per-operation count overrides. Nil fields inherit the
// defaults. ForceSerial requests single-threaded execution regardless of
// any count, and additionally suppresses safety classification: explicit
// intent wins over automatic detection.
type Override struct {
	Threads           *Count
	Iterations        *int
	ForceSerial       bool
	ForceSerialReason string
}

// Plan is a fully resolved invocation plan. Threads and Iterations are
// always positive.
type Plan struct {
	Threads    int
	Iterations int
}

// Serial reports whether the plan runs the operation on the calling
// thread only, with no barrier and no extra workers.
func (p Plan) Serial() bool {
	return p.Threads == 1
}

// Resolve merges defaults and override into a concrete plan.
//
// The override beats the default field by field. "auto" is legal at
// either level and is resolved through probe exactly once; re-resolving
// per call would let the worker count drift between rounds. A nil probe
// resolves "auto" to 1.
//
// Zero or negative counts are rejected before any worker starts.
func Resolve(def Defaults, ov Override, probe Probe) (Plan, error) {
	threads := def.Threads
	if ov.Threads != nil {
		threads = *ov.Threads
	}
	iterations := def.Iterations
	if ov.Iterations != nil {
		iterations = *ov.Iterations
	}

	n := threads.n
	if threads.auto {
		n = 1
		if probe != nil {
			if probed := probe(); probed > 0 {
				n = probed
			}
		}
	} else if n <= 0 {
		return Plan{}, fmt.Errorf("thread count %d: %w", n, ErrNonPositive)
	}

	if iterations <= 0 {
		return Plan{}, fmt.Errorf("iteration count %d: %w", iterations, ErrNonPositive)
	}

	if ov.ForceSerial {
		n = 1
	}

	return Plan{Threads: n, Iterations: iterations}, nil
}
