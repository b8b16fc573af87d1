// Package engine executes one test operation redundantly across
// concurrent worker threads to surface data races in the code under
// test.
//
// # Execution model
//
// An approved plan of N threads and M iterations spawns N workers and
// one reusable cyclic barrier sized to N. Each worker runs M rounds;
// every round begins with a barrier wait, so round i starts for every
// worker only once all workers have arrived. This keeps the workers
// executing overlapping code simultaneously instead of drifting apart -
// the overlap is the stressor.
//
// # Shared state
//
// The operation's resolved dependency values are injected once, before
// any worker starts, and shared by reference across all workers with no
// locking imposed by the engine. This is deliberate: copying or
// synchronizing the dependencies would eliminate the race surface the
// harness exists to expose. The engine's own bookkeeping is either
// immutable after construction or written exactly once per worker to a
// worker-exclusive slot.
//
// # Failure handling
//
// The first failure in a worker ends that worker's iteration loop; the
// worker keeps arriving at the barrier as a no-op for the remaining
// rounds so the participant count never comes up short. Siblings are
// not cancelled mid-iteration - forced cancellation of arbitrary code
// masks evidence - they finish their own rounds and the aggregator
// reduces all outcomes at the end.
package engine
