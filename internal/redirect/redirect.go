// Package redirect multiplexes a single output stream across workers
// so interleaved output stays attributable.
//
// A Stream wraps a fallback writer and carries a stack of redirection
// entries. An entry is either global (applies to every worker) or
// exclusive to one worker; resolution walks the stack from the most
// recent entry down and takes the first match, falling back to the
// underlying writer when nothing matches.
package redirect

import (
	"io"
	"sync"
)

// entry is identified by pointer, not by value: two redirects to equal
// writers must still pop independently.
type entry struct {
	w io.Writer

	// worker is meaningful only when exclusive is set.
	worker    int
	exclusive bool
}

// Stream is a worker-aware output stream. Safe for concurrent use.
type Stream struct {
	mu       sync.Mutex
	fallback io.Writer
	stack    []*entry
}

// NewStream creates a stream over the given fallback writer.
func NewStream(fallback io.Writer) *Stream {
	return &Stream{fallback: fallback}
}

// Push redirects all workers to w until the returned restore function
// is called. Redirects nest; the most recent matching one wins.
func (s *Stream) Push(w io.Writer) func() {
	return s.push(&entry{w: w})
}

// PushWorker redirects only the given worker to w until the returned
// restore function is called.
func (s *Stream) PushWorker(worker int, w io.Writer) func() {
	return s.push(&entry{w: w, worker: worker, exclusive: true})
}

func (s *Stream) push(e *entry) func() {
	s.mu.Lock()
	s.stack = append(s.stack, e)
	s.mu.Unlock()

	return func() { s.remove(e) }
}

func (s *Stream) remove(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i] == e {
			s.stack = append(s.stack[:i], s.stack[i+1:]...)
			return
		}
	}
}

// WriterFor resolves the writer for one worker: the most recent entry
// that is global or exclusive to this worker, else the fallback.
func (s *Stream) WriterFor(worker int) io.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.stack) - 1; i >= 0; i-- {
		e := s.stack[i]
		if !e.exclusive || e.worker == worker {
			return e.w
		}
	}
	return s.fallback
}

// Active reports whether any redirection is currently in effect.
func (s *Stream) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stack) > 0
}
