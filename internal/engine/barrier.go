package engine

import "sync"

// barrier is a reusable cyclic barrier. All parties block in Await
// until the last one arrives, which advances the generation and
// releases the rest; the barrier is then immediately reusable for the
// next round.
//
// There is no abort or timeout path: the worker loop guarantees every
// party arrives exactly once per round, so the participant count is
// never short. A retired (failed) worker keeps arriving as a no-op
// instead of shrinking the party count - shrinking would change the
// overlap pattern for the surviving workers mid-run.
type barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	waiting int
	gen     uint64
}

func newBarrier(parties int) *barrier {
	b := &barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Await blocks until all parties have arrived for the current round.
func (b *barrier) Await() {
	b.mu.Lock()
	defer b.mu.Unlock()

	gen := b.gen
	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.gen++
		b.cond.Broadcast()
		return
	}
	for gen == b.gen {
		b.cond.Wait()
	}
}
