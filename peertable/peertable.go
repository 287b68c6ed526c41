// Package peertable implements the node's membership map and its
// invariants (spec.md §3-4.4): a mapping from observed socket address to a
// finalized flag, guarded by one mutex for the entire duration of every
// check-then-write critical section, so that two concurrent dials to the
// same remote can never both observe absence.
package peertable

import (
	"fmt"
	"net"
	"strings"
	"sync"
)

// InsertResult is the outcome of InsertIfAbsent.
type InsertResult int

const (
	// Inserted means the address was not previously known and is now
	// present with finalized = false.
	Inserted InsertResult = iota
	// AlreadyPresent means the address was already known but not
	// finalized.
	AlreadyPresent
	// AlreadyFinalized means the address already has a live connection.
	AlreadyFinalized
)

// PromoteResult is the outcome of Promote.
type PromoteResult int

const (
	// Finalized means the entry transitioned from not-finalized to
	// finalized.
	Finalized PromoteResult = iota
	// WasFinalized means the entry was already finalized before this
	// call — the signal used to detect simultaneous cross-dials.
	WasFinalized
)

type entry struct {
	addr      *net.UDPAddr
	finalized bool
}

// Table is the shared membership map. The zero value is not usable; call
// New.
//
// The local node's own address must never be passed to InsertIfAbsent or
// Promote (spec.md §3's "the local node's own address never appears in the
// table" invariant). The table does not filter this itself: like the
// reference implementation, the caller is responsible for comparing a
// candidate address against the local address before considering it a
// peer at all (see p2p.Manager's dial path, which skips the local address
// among the peers a remote advertises; the accept path does no such check).
type Table struct {
	mu    sync.Mutex
	peers map[string]*entry
}

// New creates an empty table.
func New() *Table {
	return &Table{peers: make(map[string]*entry)}
}

// InsertIfAbsent atomically tests presence and writes, under a single
// critical section.
func (t *Table) InsertIfAbsent(addr *net.UDPAddr) InsertResult {
	key := addr.String()
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.peers[key]
	if !ok {
		t.peers[key] = &entry{addr: addr}
		return Inserted
	}
	if e.finalized {
		return AlreadyFinalized
	}
	return AlreadyPresent
}

// Promote flips the entry for addr to finalized = true, inserting it first
// if necessary, and reports whether it was already finalized (the
// duplicate-suppression signal of spec.md §4.5.3).
func (t *Table) Promote(addr *net.UDPAddr) PromoteResult {
	key := addr.String()
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.peers[key]
	if !ok {
		e = &entry{addr: addr}
		t.peers[key] = e
	}
	was := e.finalized
	e.finalized = true
	if was {
		return WasFinalized
	}
	return Finalized
}

// PromoteAndSnapshot atomically promotes addr to finalized (inserting it
// first if necessary) and, only if it was not already finalized, invokes
// fn with every known address while still holding the table lock. This is
// the one exception to the rule that callers must release the lock before
// blocking I/O: spec.md §4.5.1 step 3 requires the membership bytes
// written to a freshly accepted peer to reflect exactly the set that is
// becoming finalized, so the write has to happen inside the same critical
// section as the promotion. As with Promote, the entry is marked finalized
// before fn runs, so a failure inside fn leaves the entry finalized with
// no live connection behind it — the same latent edge case the original
// implementation has (see DESIGN.md).
func (t *Table) PromoteAndSnapshot(addr *net.UDPAddr, fn func(all []*net.UDPAddr)) PromoteResult {
	key := addr.String()
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.peers[key]
	if !ok {
		e = &entry{addr: addr}
		t.peers[key] = e
	}
	was := e.finalized
	e.finalized = true
	if was {
		return WasFinalized
	}
	all := make([]*net.UDPAddr, 0, len(t.peers))
	for _, e2 := range t.peers {
		all = append(all, e2.addr)
	}
	fn(all)
	return Finalized
}

// Demote flips the entry for addr back to finalized = false. It is a
// no-op if addr is not in the table.
func (t *Table) Demote(addr *net.UDPAddr) {
	key := addr.String()
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.peers[key]; ok {
		e.finalized = false
	}
}

// IsFinalized reports whether addr currently has a live connection.
func (t *Table) IsFinalized(addr *net.UDPAddr) bool {
	key := addr.String()
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.peers[key]
	return ok && e.finalized
}

// SnapshotFinalized returns every address currently finalized. Iteration
// order is unspecified.
func (t *Table) SnapshotFinalized() []*net.UDPAddr {
	t.mu.Lock()
	defer t.mu.Unlock()
	addrs := make([]*net.UDPAddr, 0, len(t.peers))
	for _, e := range t.peers {
		if e.finalized {
			addrs = append(addrs, e.addr)
		}
	}
	return addrs
}

// SnapshotAll returns every known address, finalized or not. The accept
// path does not use it: it takes its membership advertisement inside
// PromoteAndSnapshot, under the same lock as the promotion.
func (t *Table) SnapshotAll() []*net.UDPAddr {
	t.mu.Lock()
	defer t.mu.Unlock()
	addrs := make([]*net.UDPAddr, 0, len(t.peers))
	for _, e := range t.peers {
		addrs = append(addrs, e.addr)
	}
	return addrs
}

// CompactNonFinalized removes every entry that is not currently finalized.
// Called once after initial bootstrap discovery converges (spec.md
// §4.5.4 step 4): any address that never finished its handshake is
// dropped rather than retried forever.
func (t *Table) CompactNonFinalized() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, e := range t.peers {
		if !e.finalized {
			delete(t.peers, key)
		}
	}
}

// FormatFinalized renders addrs as a double-quoted, comma-space-separated
// list, e.g. `"1.2.3.4:5", "6.7.8.9:10"` (spec.md §4.6 step 2, §4.5.4
// step 4). Order follows the input slice; callers needing a specific
// order must sort addrs first.
func FormatFinalized(addrs []*net.UDPAddr) string {
	var b strings.Builder
	for i, a := range addrs {
		if i != 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q", a.String())
	}
	return b.String()
}

// FailedSet tracks addresses that failed to connect during one run of
// initial bootstrap discovery (spec.md §3). It exists only for the
// duration of a single Bootstrap call: the peer table's own
// insert-if-absent semantics already prevent an address from being dialed
// twice, so this set is purely the explicit bookkeeping spec.md describes
// rather than a load-bearing dedup mechanism.
type FailedSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewFailedSet creates an empty set.
func NewFailedSet() *FailedSet {
	return &FailedSet{seen: make(map[string]struct{})}
}

// Add records addr as failed.
func (s *FailedSet) Add(addr *net.UDPAddr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[addr.String()] = struct{}{}
}

// Contains reports whether addr was previously recorded as failed.
func (s *FailedSet) Contains(addr *net.UDPAddr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[addr.String()]
	return ok
}
