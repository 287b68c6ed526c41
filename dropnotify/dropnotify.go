// Package dropnotify provides a one-shot signal that fires once every clone
// of a Holder has been released. Go has no destructors, so callers must
// call Release explicitly (typically via defer) on every Holder they
// obtain, including clones; the Rust original relies on RAII drop to do
// this automatically.
//
// It is used by the connection manager to block until a whole tree of
// recursive bootstrap-discovery dials has finished: the initial dial holds
// one Holder, every recursive dial clones it, and the waiter fires only
// when the last clone anywhere in the tree is released.
package dropnotify

import "sync"

type shared struct {
	mu    sync.Mutex
	count int
	done  chan struct{}
}

// Holder wraps shared ownership of a one-shot completion signal.
type Holder struct {
	s *shared
}

// New creates a Holder and the channel that closes once it (and every
// clone) has been released.
func New() (*Holder, <-chan struct{}) {
	s := &shared{count: 1, done: make(chan struct{})}
	return &Holder{s: s}, s.done
}

// Clone returns a new Holder sharing the same completion signal. The
// signal fires only once every Holder returned by New and Clone has been
// released.
func (h *Holder) Clone() *Holder {
	h.s.mu.Lock()
	h.s.count++
	h.s.mu.Unlock()
	return &Holder{s: h.s}
}

// Release drops this Holder. Calling Release more than once on the same
// Holder is a bug: each extra call decrements the shared count again, so
// the signal can fire while other clones are still held.
func (h *Holder) Release() {
	h.s.mu.Lock()
	h.s.count--
	last := h.s.count == 0
	h.s.mu.Unlock()
	if last {
		close(h.s.done)
	}
}
