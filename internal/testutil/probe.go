// Package testutil provides deterministic test doubles for the harness.
package testutil

import (
	"sync/atomic"

	"github.com/roach88/parastress/internal/plan"
)

// FixedProbe returns a probe that always reports n CPUs.
//
// Tests use it in place of plan.AutoProbe so a symbolic "auto" thread
// count resolves to a known value regardless of the host machine.
func FixedProbe(n int) plan.Probe {
	return func() int { return n }
}

// CountingProbe is a probe that reports a fixed CPU count and records
// how many times it was consulted.
//
// Thread-safety: safe for concurrent use via an atomic counter.
type CountingProbe struct {
	cpus  int
	calls atomic.Int64
}

// NewCountingProbe creates a probe reporting n CPUs.
func NewCountingProbe(n int) *CountingProbe {
	return &CountingProbe{cpus: n}
}

// Probe returns the fixed CPU count and increments the call counter.
func (p *CountingProbe) Probe() int {
	p.calls.Add(1)
	return p.cpus
}

// Calls returns how many times Probe has been invoked.
func (p *CountingProbe) Calls() int {
	return int(p.calls.Load())
}
