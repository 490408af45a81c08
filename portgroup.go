package proto

import (
	"sync"
	"unsafe"

	"github.com/NikoMalik/reoproto/internal/bitset"
)

// GroupOp is one participant of a PortGroup batch announce: prepare
// publishes a putter's value or a getter's destination buffer without
// individually coordinating, so every member of the group becomes ready
// (and tentative) before any of them is scanned for (spec.md §4.4
// "tentative atomic participation"). finish runs only for a member the
// match actually chose, once the firing has completed: it drains that
// member's own outcome Dropbox message and, for a getter, performs its
// half of acquire_data (spec.md §4.3) — mirroring what Getter.Get and
// Putter.Put do for a standalone, ungrouped call.
type GroupOp struct {
	proto   *ProtoAll
	loc     LocId
	prepare func()
	finish  func()
}

// PutOp prepares a Putter[T] put as a group member. v is captured by the
// returned op and published only once the group fires.
func PutOp[T any](p *Putter[T], v T) GroupOp {
	return GroupOp{
		proto:   p.proto,
		loc:     p.id,
		prepare: func() { p.space.SetPtr(unsafe.Pointer(&v)) },
		finish:  func() { p.space.Dropbox.Recv() },
	}
}

// GetOp prepares a Getter[T] get as a group member; the eventual result
// is written into *out once the member fires.
func GetOp[T any](g *Getter[T], out *T) GroupOp {
	return GroupOp{
		proto: g.proto,
		loc:   g.id,
		prepare: func() { g.space.SetDest(unsafe.Pointer(out)) },
		finish: func() {
			g.space.Dropbox.Recv()
			g.space.AcquireData()
		},
	}
}

// LockedProto holds a ProtoAll's single coordination lock across a
// sequence of operations. PortGroup.Fire uses it internally; it is
// exported so a caller assembling a tentative batch from scratch (rather
// than through GroupOp/PortGroup) can do the same thing by hand.
type LockedProto struct {
	h *ProtoAll
}

// Lock acquires h's coordination lock, returning a handle that must be
// closed with Unlock.
func (h *ProtoAll) Lock() *LockedProto {
	h.w.mu.Lock()
	return &LockedProto{h: h}
}

// MarkReady sets id's readiness bit without scanning the rule table.
func (l *LockedProto) MarkReady(id LocId) { l.h.w.ready.Set(int(id)) }

// MarkTentative sets id's readiness bit AND its tentative bit (spec.md
// §4.4): a PortGroup member announces this way, since a guard match
// naming it may involve another, mutually-exclusive member of the same
// group, and only one of them can actually go on to fire (invariant I3:
// ready_tentative ⊆ ready).
func (l *LockedProto) MarkTentative(id LocId) {
	l.h.w.ready.Set(int(id))
	l.h.w.readyTentative.Set(int(id))
}

// Rescind clears both the readiness and tentative bits of id, undoing a
// prior MarkTentative for a group member a match did not choose (spec.md
// §4.4).
func (l *LockedProto) Rescind(id LocId) {
	l.h.w.ready.Clear(int(id))
	l.h.w.readyTentative.Clear(int(id))
}

// MemoryBits exposes the protocol's current memory-fullness bitset for a
// caller that wants to inspect or wait on it while already holding the
// lock (e.g. composing with AwaitMemoryState's predicate).
func (l *LockedProto) MemoryBits() *bitset.Set { return l.h.w.memoryBits }

// ExhaustRules runs one rule-table exhaustion pass.
func (l *LockedProto) ExhaustRules() { l.h.exhaustRules() }

// Unlock releases the coordination lock.
func (l *LockedProto) Unlock() { l.h.w.mu.Unlock() }

// PortGroup batches several GroupOps so they announce readiness under one
// lock acquisition instead of racing one at a time (spec.md §4.4).
//
// Each Fire lets exactly one rule match go ahead: the first match that
// names any member becomes the commitment, and every member that match
// does not name is rescinded before the firing completes. Members named
// by that match all fire together in it.
type PortGroup struct {
	ops []GroupOp
}

// NewPortGroup builds a group over the given ops. Every op must belong to
// the same ProtoAll instance.
func NewPortGroup(ops ...GroupOp) (*PortGroup, error) {
	if len(ops) == 0 {
		return &PortGroup{}, nil
	}
	h := ops[0].proto
	for _, op := range ops[1:] {
		if op.proto != h {
			return nil, ErrDifferentProtoInstance
		}
	}
	return &PortGroup{ops: ops}, nil
}

// Fire implements spec.md §4.4's PortGroup deliberation: every member
// announces both ready and ready_tentative under one shared lock
// acquisition, so a rule match naming any of them is recorded as a
// commitment rather than firing outright — the group may hold several
// mutually-exclusive alternatives (scenario S5: two putters racing to
// fire into the same getter), and exactly one of them may actually
// proceed.
//
// The match need not be found during this call's own scan: the
// complementary participant a guard needs may not exist yet (e.g. no
// getter has called Get() at all when the group announces), so Fire
// registers a groupWaiter before scanning and blocks on it, to be
// fulfilled by whatever coordinate() call — this one's own scan, or some
// later, unrelated one — first finds a tentative match touching one of
// this group's locations.
//
// Once the winning subset is known, every non-chosen member is rescinded
// (its ready/tentative bits cleared, so it can participate in some other
// rule later), the chosen members confirm (driving the commitment's
// awaiting counter to zero and actually running the firing), and finally
// each chosen member's own finish step runs outside the lock (draining
// its outcome Dropbox and, for a getter, performing acquire_data).
//
// Fire returns one of the chosen locations together with a LockedProto
// holding h's coordination lock, for a caller that wants to compose
// further operations atomically; the caller must Unlock it.
func (g *PortGroup) Fire() (LocId, *LockedProto) {
	if len(g.ops) == 0 {
		panic("proto: Fire called on an empty PortGroup")
	}
	h := g.ops[0].proto
	for _, op := range g.ops {
		op.prepare()
	}

	locs := make(map[LocId]bool, len(g.ops))
	for _, op := range g.ops {
		locs[op.loc] = true
	}
	waiter := &groupWaiter{locs: locs, notify: make(chan []LocId, 1)}

	locked := h.Lock()
	for _, op := range g.ops {
		locked.MarkTentative(op.loc)
	}
	h.w.groupWaiters = append(h.w.groupWaiters, waiter)
	locked.ExhaustRules()
	locked.Unlock()

	matched := <-waiter.notify
	matchedSet := make(map[LocId]bool, len(matched))
	for _, id := range matched {
		matchedSet[id] = true
	}

	locked = h.Lock()
	for _, op := range g.ops {
		if !matchedSet[op.loc] {
			locked.Rescind(op.loc)
		}
	}
	for _, id := range matched {
		h.coordinateLocked(id)
	}
	locked.Unlock()

	var wg sync.WaitGroup
	for _, op := range g.ops {
		if !matchedSet[op.loc] {
			continue
		}
		wg.Add(1)
		op := op
		go func() {
			defer wg.Done()
			op.finish()
		}()
	}
	wg.Wait()

	return matched[0], h.Lock()
}
