// Package compare implements the value-consistency checkpoint used by
// operations running under the replicated invocation engine.
//
// A Comparator is sized to the plan's thread count. Each worker calls
// Check at the same logical point with its locally computed values; the
// first arriver registers the reference, later arrivers are compared
// against it, and the checkpoint resets itself once all participants
// have passed so the same call site can be reused across rounds. A
// worker that stops iterating must Leave so the remaining participants
// are not left waiting for it.
package compare

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/davecgh/go-spew/spew"
)

// MismatchError reports a value that diverged from the checkpoint's
// reference. It carries both values; which thread established the
// reference is a benign race, by design.
type MismatchError struct {
	Name string
	Want any
	Got  any
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("value %q differs across threads:\nreference: %s\ngot: %s",
		e.Name, render(e.Want), render(e.Got))
}

func render(v any) string {
	return strings.TrimRight(spew.Sdump(v), "\n")
}

// Comparator is a reusable cross-thread checkpoint. Safe for use by
// exactly the number of goroutines it was sized for.
type Comparator struct {
	parties int

	mu      sync.Mutex
	cond    *sync.Cond
	gen     int
	arrived int
	ref     map[string]any
	haveRef bool
}

// New creates a comparator for n participating threads. n must match
// the approved plan's thread count or Check will deadlock or misfire.
func New(n int) *Comparator {
	if n < 1 {
		n = 1
	}
	c := &Comparator{parties: n}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Check registers this thread's values at the checkpoint and compares
// them against the first arriver's. It blocks until all participants
// have arrived, then tears the checkpoint state down before returning,
// so no stale values leak into the next round.
//
// The returned error, if any, is attributed to the calling thread and
// names the diverging value along with both renderings.
func (c *Comparator) Check(values map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen := c.gen

	var err error
	if !c.haveRef {
		c.ref = values
		c.haveRef = true
	} else {
		err = compareValues(c.ref, values)
	}

	c.arrived++
	if c.arrived >= c.parties {
		c.completeRound()
	} else {
		for gen == c.gen {
			c.cond.Wait()
		}
	}

	return err
}

// Leave permanently removes one participant from the checkpoint. The
// engine calls it when a worker retires after a terminal failure, so
// the surviving threads are never left waiting on a party that will
// not arrive again. Completes the in-flight round if the leaver was
// the only one missing.
func (c *Comparator) Leave() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.parties > 1 {
		c.parties--
	}
	if c.arrived >= c.parties {
		c.completeRound()
	}
}

// completeRound resets the checkpoint state and releases the waiters.
// Callers hold c.mu.
func (c *Comparator) completeRound() {
	c.arrived = 0
	c.ref = nil
	c.haveRef = false
	c.gen++
	c.cond.Broadcast()
}

// compareValues checks got against ref by name. The name sets must be
// identical; each value must match the reference structurally.
func compareValues(ref, got map[string]any) error {
	if len(ref) != len(got) {
		return fmt.Errorf("checkpoint value names differ across threads: reference has %s, got %s",
			nameList(ref), nameList(got))
	}
	names := make([]string, 0, len(got))
	for name := range got {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		want, ok := ref[name]
		if !ok {
			return fmt.Errorf("checkpoint value names differ across threads: reference has %s, got %s",
				nameList(ref), nameList(got))
		}
		if err := compareOne(name, want, got[name]); err != nil {
			return err
		}
	}
	return nil
}

func compareOne(name string, want, got any) error {
	if reflect.TypeOf(want) != reflect.TypeOf(got) {
		return &MismatchError{Name: name, Want: want, Got: got}
	}

	// Function values compare by identity; DeepEqual refuses them.
	if want != nil && reflect.TypeOf(want).Kind() == reflect.Func {
		if reflect.ValueOf(want).Pointer() != reflect.ValueOf(got).Pointer() {
			return &MismatchError{Name: name, Want: want, Got: got}
		}
		return nil
	}

	// A NaN reference is consistent only with another NaN.
	if isNaN(want) {
		if isNaN(got) {
			return nil
		}
		return &MismatchError{Name: name, Want: want, Got: got}
	}

	if !reflect.DeepEqual(want, got) {
		return &MismatchError{Name: name, Want: want, Got: got}
	}
	return nil
}

func isNaN(v any) bool {
	switch f := v.(type) {
	case float32:
		return math.IsNaN(float64(f))
	case float64:
		return math.IsNaN(f)
	}
	return false
}

func nameList(m map[string]any) string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return "[" + strings.Join(names, ", ") + "]"
}
