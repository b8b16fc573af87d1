// Package suite wires the pipeline together: for each registered
// operation it resolves an invocation plan, asks the classifier whether
// the operation may run replicated, executes it under the engine, and
// reduces the outcomes into the per-operation status line.
package suite

import (
	"fmt"
	"sync"

	"github.com/roach88/parastress/internal/classify"
	"github.com/roach88/parastress/internal/engine"
	"github.com/roach88/parastress/internal/plan"
)

// Operation is a registered test operation: the body plus everything
// the resolver and classifier need to know about it.
type Operation struct {
	// Name is the fully-qualified name ("pkg.TestX").
	Name string

	// Deps names the dependencies the operation wants injected. Names
	// are matched against the unsafe-dependency list and resolved
	// through the suite's providers and built-ins before execution.
	Deps []string

	// Calls lists the body's direct call targets for classification.
	Calls []string

	// Threads and Iterations override the global defaults when set.
	Threads    *plan.Count
	Iterations *int

	// ForceSerial requests single-threaded execution and suppresses
	// call-graph classification; the optional reason appears in the
	// downgrade summary.
	ForceSerial       bool
	ForceSerialReason string

	// TempBase, when non-empty, gives each worker an exclusive
	// scratch subdirectory under it.
	TempBase string

	Body engine.Body
}

// Built-in dependency names resolved by the runner itself.
const (
	// DepThreadComp injects a value-consistency comparator sized to
	// the approved plan's thread count.
	DepThreadComp = "thread_comp"

	// DepNumThreads injects the approved plan's thread count.
	DepNumThreads = "num_parallel_threads"

	// DepNumIterations injects the approved plan's iteration count.
	DepNumIterations = "num_iterations"
)

// Suite holds the registered operations and dependency providers.
type Suite struct {
	mu        sync.Mutex
	ops       []Operation
	providers map[string]func() any
	registry  *classify.Registry
}

// New creates an empty suite with a fresh safety registry.
func New() *Suite {
	return &Suite{
		providers: make(map[string]func() any),
		registry:  classify.NewRegistry(),
	}
}

// Register adds an operation. Names must be unique within the suite.
func (s *Suite) Register(op Operation) error {
	if op.Name == "" {
		return fmt.Errorf("operation has no name")
	}
	if op.Body == nil {
		return fmt.Errorf("operation %q has no body", op.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.ops {
		if existing.Name == op.Name {
			return fmt.Errorf("operation %q already registered", op.Name)
		}
	}
	s.ops = append(s.ops, op)
	return nil
}

// Provide registers a dependency provider. The provider runs once per
// operation; the produced value is shared, never copied, across all
// workers of that operation.
func (s *Suite) Provide(name string, fn func() any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[name] = fn
}

// Registry exposes the suite's safety registry so libraries can record
// call targets and thread-safety tags.
func (s *Suite) Registry() *classify.Registry {
	return s.registry
}

// Operations returns the registered operations in registration order.
func (s *Suite) Operations() []Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Operation(nil), s.ops...)
}

func (s *Suite) provider(name string) (func() any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn, ok := s.providers[name]
	return fn, ok
}
