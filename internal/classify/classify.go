// Package classify decides, before execution, whether a test operation
// may be replayed across more than one worker thread.
//
// The decision combines an explicit marker, the operation's declared
// dependency set, configured denylists, and a bounded call graph built
// from safety registrations. Call-graph traversal is bounded to two
// levels of indirection below the operation body: classification cost
// stays proportional to the number of operations rather than to the
// whole program. The bound is a known limitation - transitively unsafe
// calls deeper than two levels are not detected.
package classify

import "fmt"

// Verdict is the classifier's decision for one operation. It is
// computed once per operation per run and never recomputed mid-run.
type Verdict struct {
	Safe   bool
	Reason string
}

func safe() Verdict {
	return Verdict{Safe: true}
}

func unsafe(format string, args ...any) Verdict {
	return Verdict{Safe: false, Reason: fmt.Sprintf(format, args...)}
}

// Operation describes the classifier's view of a test operation: its
// fully-qualified name, declared dependencies (fixture analog), the
// call targets of its body, and the explicit serial marker if present.
type Operation struct {
	Name              string
	Deps              []string
	Calls             []string
	ForceSerial       bool
	ForceSerialReason string
}

// Options configures the classifier. The facility gates default to
// enabled; each can be disabled independently to shrink the built-in
// unsafe list.
type Options struct {
	UnsafeDependencies []string
	UnsafeCallTargets  []string

	EnvFacility   bool
	FFIFacility   bool
	QuickFacility bool
}

// DefaultOptions returns Options with all built-in facility gates
// enabled and empty denylists.
func DefaultOptions() Options {
	return Options{
		EnvFacility:   true,
		FFIFacility:   true,
		QuickFacility: true,
	}
}

// Classifier evaluates operations against configured denylists and the
// safety registry. Construct once per run; Classify is read-only.
type Classifier struct {
	deps  map[string]struct{}
	calls *Denylist
	reg   *Registry
	opts  Options
}

// New builds a classifier from a safety registry and options. A nil
// registry is treated as empty.
func New(reg *Registry, opts Options) *Classifier {
	if reg == nil {
		reg = NewRegistry()
	}
	deps := make(map[string]struct{}, len(opts.UnsafeDependencies))
	for _, d := range opts.UnsafeDependencies {
		deps[normalize(d)] = struct{}{}
	}
	return &Classifier{
		deps:  deps,
		calls: NewDenylist(opts.UnsafeCallTargets),
		reg:   reg,
		opts:  opts,
	}
}

// Classify produces the unsafety verdict for one operation.
//
// Checks run in order, first match wins: explicit marker, unsafe
// declared dependencies, denylisted reachable call targets (exact or
// namespace wildcard), reachable targets tagged not thread-safe, and
// finally the gated built-in facility set.
//
// The serial-by-override case (a per-operation thread count of 1) is
// the caller's responsibility: no verdict is needed for an operation
// that asked to be serial.
func (c *Classifier) Classify(op Operation) Verdict {
	if op.ForceSerial {
		if op.ForceSerialReason != "" {
			return unsafe("declared thread-unsafe: %s", op.ForceSerialReason)
		}
		return unsafe("uses the thread-unsafe marker")
	}

	for _, dep := range op.Deps {
		if _, ok := c.deps[normalize(dep)]; ok {
			return unsafe("uses thread-unsafe dependency: %s", dep)
		}
	}

	reachable := c.reg.Reachable(op.Calls)

	for _, target := range reachable {
		if matched, ok := c.calls.Match(target); ok {
			return unsafe("calls thread-unsafe function: %s (denylist entry %s)", target, matched)
		}
	}

	for _, target := range reachable {
		if ts, declared := c.reg.ThreadSafety(target); declared && !ts {
			return unsafe("calls function tagged not thread-safe: %s", target)
		}
	}

	for _, target := range reachable {
		if facility, ok := matchFacility(target, c.opts); ok {
			return unsafe("uses thread-unsafe facility: %s (%s)", facility, target)
		}
	}

	return safe()
}
