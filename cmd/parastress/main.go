// Command parastress runs a demonstration suite under the replicated
// execution harness. Real projects embed the harness the same way:
// build a suite, register operations, and hand it to the CLI.
package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/roach88/parastress/internal/cli"
	"github.com/roach88/parastress/internal/compare"
	"github.com/roach88/parastress/internal/engine"
	"github.com/roach88/parastress/internal/suite"
)

// sharedCounter is the classic lost-update subject: Add is written
// without synchronization on purpose, so running it replicated across
// threads exposes the race that a single-threaded run never would.
type sharedCounter struct {
	n int
}

func (c *sharedCounter) Add() { c.n++ }

// globalCounter is process-wide mutable state. The demo operation that
// touches it is marked force-serial: under one thread the unguarded
// increment is safe, under several it would lose updates.
var globalCounter sharedCounter

// lockedCounter is the fixed counterpart.
type lockedCounter struct {
	mu sync.Mutex
	n  int
}

func (c *lockedCounter) Add() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func (c *lockedCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func buildSuite() (*suite.Suite, error) {
	s := suite.New()

	locked := &lockedCounter{}
	s.Provide("locked_counter", func() any { return locked })

	ops := []suite.Operation{
		{
			Name: "demo.TestLockedCounter",
			Deps: []string{"locked_counter"},
			Body: func(inv *engine.Invocation) error {
				c := inv.Deps["locked_counter"].(*lockedCounter)
				c.Add()
				return nil
			},
		},
		{
			Name: "demo.TestConsistentComputation",
			Deps: []string{suite.DepThreadComp},
			Body: func(inv *engine.Invocation) error {
				comp := inv.Deps[suite.DepThreadComp].(*compare.Comparator)
				return comp.Check(map[string]any{
					"square": inv.Iteration * inv.Iteration,
				})
			},
		},
		{
			Name:              "demo.TestGlobalState",
			ForceSerial:       true,
			ForceSerialReason: "mutates process-wide demo state",
			Body: func(inv *engine.Invocation) error {
				before := globalCounter.n
				globalCounter.Add()
				if globalCounter.n != before+1 {
					return engine.Failf("lost update: counter went %d -> %d", before, globalCounter.n)
				}
				return nil
			},
		},
	}

	for _, op := range ops {
		if err := s.Register(op); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func main() {
	s, err := buildSuite()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCommandError)
	}

	if err := cli.NewRootCommand(s).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
