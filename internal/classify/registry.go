package classify

import "sync"

// maxExpandDepth bounds call-graph traversal: the direct call targets
// of the operation body plus two levels of indirection below them are
// visited; deeper edges are ignored. Deliberate speed/soundness trade,
// see the package comment.
const maxExpandDepth = 2

// Entry is one safety registration: the call targets of a function and
// its declared thread-safety tag, if any.
type Entry struct {
	// Calls lists the fully-qualified names the function invokes.
	Calls []string

	// ThreadSafe is the function's own declaration. Nil means
	// undeclared. Only an explicit false triggers the tag check; a
	// true tag does not exempt the target from the facility gates.
	ThreadSafe *bool
}

// Registry is the static call-graph and safety-tag lookup table,
// keyed by fully-qualified name.
//
// A systems language cannot inspect an interpreter's live call stack,
// so libraries and test helpers register their call targets and safety
// tags explicitly; the classifier consults the table instead of
// introspecting.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register records an entry for a fully-qualified name, replacing any
// previous registration.
func (r *Registry) Register(name string, e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[normalize(name)] = e
}

// RegisterUnsafe tags a name as explicitly not thread-safe.
func (r *Registry) RegisterUnsafe(name string) {
	f := false
	r.Register(name, Entry{ThreadSafe: &f})
}

// ThreadSafety returns a name's declared tag and whether one exists.
func (r *Registry) ThreadSafety(name string) (threadSafe, declared bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[normalize(name)]
	if !ok || e.ThreadSafe == nil {
		return false, false
	}
	return *e.ThreadSafe, true
}

// Reachable returns the bounded set of call targets reachable from the
// given direct calls, in breadth-first order with duplicates removed.
// Expansion stops maxExpandDepth levels below the direct calls.
func (r *Registry) Reachable(calls []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(calls))
	var out []string

	frontier := make([]string, 0, len(calls))
	for _, c := range calls {
		c = normalize(c)
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
		frontier = append(frontier, c)
	}

	for depth := 0; depth < maxExpandDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, name := range frontier {
			e, ok := r.entries[name]
			if !ok {
				continue
			}
			for _, c := range e.Calls {
				c = normalize(c)
				if _, ok := seen[c]; ok {
					continue
				}
				seen[c] = struct{}{}
				out = append(out, c)
				next = append(next, c)
			}
		}
		frontier = next
	}

	return out
}
