// Package proto implements the coordination runtime for a Reo-style
// synchronous dataflow connector: a shared, lock-protected coordinator
// that arbitrates the transfer of typed values between ports and memory
// cells according to a static set of synchronization rules.
//
// See SPEC_FULL.md and DESIGN.md at the repository root for the full
// design and grounding ledger.
package proto

import (
	"sync"
	"unsafe"

	"github.com/NikoMalik/reoproto/internal/bitset"
	"github.com/NikoMalik/reoproto/internal/metrics"
	"github.com/NikoMalik/reoproto/internal/storage"
	"github.com/NikoMalik/reoproto/internal/typeinfo"
)

// protoR is the read-only part of a protocol instance (spec.md §2): the
// rule table, the location table, and the type table. Accessed without
// synchronization — it never changes after Build returns.
type protoR struct {
	numLocs    int
	kinds      []LocKind
	types      []*typeinfo.Info
	rules      []*RunRule
	poPuSpaces []*PoPuSpace // indexed by LocId; nil unless kind == PortPutter
	poGeSpaces []*PoGeSpace // indexed by LocId; nil unless kind == PortGetter
	memoSpaces []*MemoSpace // indexed by LocId; nil unless kind.IsMem()
}

// stateWaiter is a goroutine parked on AwaitMemoryState, woken when the
// protocol's memory_bits satisfy its predicate. This restores the
// "awaiting_states" field of ProtoW (spec.md §3) which the distilled spec
// mentions but leaves unspecified; it backs the state-token style API a
// higher layer could build atop LockedProto (spec.md §4.4).
type stateWaiter struct {
	pred func(memoryBits *bitset.Set) bool
	wake chan struct{}
}

// commitment records a rule match that has been chosen but not yet fully
// fired, because one or more of its participants announced only
// tentatively (spec.md §4.1, §4.4 — a PortGroup member announces
// tentatively since its own firing isn't certain until exactly one
// sibling in its group is chosen). awaiting counts how many of those
// tentative participants still need to confirm; the firing actually runs
// once it reaches zero. Invariant I5: at most one commitment may be
// outstanding at a time, so no other rule may be attempted while one
// exists.
type commitment struct {
	rule     *RunRule
	tentative map[LocId]bool
	awaiting int
}

// groupWaiter lets a PortGroup learn, asynchronously, which one of its
// own locations a rule match chose (spec.md §4.4, scenario S5: the
// matching complement may not exist yet when the group announces). It is
// registered before the group's own announce-and-scan, and fulfilled by
// whichever coordinate() call — this goroutine's own scan, or a later
// one triggered by some other caller entirely — first finds a tentative
// match touching one of locs.
type groupWaiter struct {
	locs   map[LocId]bool
	notify chan []LocId
}

// protoW is the write-protected part of a protocol instance (spec.md §2),
// guarded by mu.
type protoW struct {
	mu sync.Mutex

	ready          *bitset.Set
	readyTentative *bitset.Set
	memoryBits     *bitset.Set

	// commitment is non-nil exactly while a chosen rule match is waiting
	// on its tentative participants to confirm (spec.md §4.1, invariant
	// I5).
	commitment *commitment

	// groupWaiters lets PortGroup.Fire learn which of its own locations a
	// tentative match chose, even when the match is found by some other
	// goroutine's coordinate() call (spec.md §4.4).
	groupWaiters []*groupWaiter

	storage *storage.Arena

	// memRefs implements spec.md invariant I4: for every allocation
	// currently backing a memory cell, how many MemoSpaces presently
	// point at it. Mutated only by incRef/decRef in firer.go, always
	// under mu.
	memRefs map[unsafe.Pointer]int

	unclaimed map[LocId]bool

	awaiting []*stateWaiter

	metrics metrics.Counters
}

// AwaitMemoryState blocks until pred holds against the protocol's current
// memory_bits, checking immediately and then whenever a firing changes
// memory_bits. Useful for an observer that needs to know a memory cell
// has reached a given fullness pattern without itself claiming a port.
func (h *ProtoAll) AwaitMemoryState(pred func(memoryBits *bitset.Set) bool) {
	h.w.mu.Lock()
	if pred(h.w.memoryBits) {
		h.w.mu.Unlock()
		return
	}
	w := &stateWaiter{pred: pred, wake: make(chan struct{})}
	h.w.awaiting = append(h.w.awaiting, w)
	h.w.mu.Unlock()
	<-w.wake
}

// wakeStateWaiters signals every waiter whose predicate now holds. Called
// with w.mu held, after a firing updates memory_bits.
func (h *ProtoAll) wakeStateWaiters() {
	if len(h.w.awaiting) == 0 {
		return
	}
	remaining := h.w.awaiting[:0]
	for _, w := range h.w.awaiting {
		if w.pred(h.w.memoryBits) {
			close(w.wake)
		} else {
			remaining = append(remaining, w)
		}
	}
	h.w.awaiting = remaining
}

// ProtoAll is the opaque, reference-counted handle to a built protocol
// instance (spec.md §6).
type ProtoAll struct {
	r   *protoR
	w   *protoW
	cfg config
}

// Stats returns a snapshot of the runtime's diagnostic counters
// (SPEC_FULL.md §4.6).
func (h *ProtoAll) Stats() metrics.Snapshot {
	return h.w.metrics.Snapshot()
}

// NumLocs returns the number of locations this instance was built with.
func (h *ProtoAll) NumLocs() int { return h.r.numLocs }

// KindOf returns the LocKind of id.
func (h *ProtoAll) KindOf(id LocId) LocKind { return h.r.kinds[id] }

func (h *ProtoAll) tryClaim(id LocId) bool {
	h.w.mu.Lock()
	defer h.w.mu.Unlock()
	if !h.w.unclaimed[id] {
		return false
	}
	delete(h.w.unclaimed, id)
	return true
}

// release returns id to the unclaimed registry. Called when a Putter or
// Getter handle is dropped (spec.md §6: "dropping a Putter/Getter returns
// the slot to the unclaimed registry").
func (h *ProtoAll) release(id LocId) {
	h.w.mu.Lock()
	defer h.w.mu.Unlock()
	h.w.unclaimed[id] = true
}
