package proto

import (
	"unsafe"

	"github.com/NikoMalik/reoproto/internal/bitset"
	"github.com/NikoMalik/reoproto/internal/rlog"
	"github.com/NikoMalik/reoproto/internal/typeinfo"
)

// boolInfo is the shared type descriptor used to let FormulaTerm results
// participate in GuardValueEq alongside ValueTerms (spec.md §4.5: "a term
// is either an inline boolean formula ... or a Value(LocId)" — both must
// resolve through the same pointer+Info shape for the evaluator to stay
// uniform).
var boolInfo = typeinfo.New(
	unsafe.Sizeof(false), 1,
	typeinfo.WithPartialEq(func(a, b unsafe.Pointer) bool {
		return *(*bool)(a) == *(*bool)(b)
	}),
	typeinfo.WithName("bool"),
)

// evalCtx is the per-firing-attempt context a Guard evaluates against:
// the current memory-fullness bitset, and a resolver from Term to a
// (pointer, TypeInfo) pair (spec.md §4.5).
type evalCtx struct {
	h           *ProtoAll
	memoryBits  *bitset.Set
	scratch     map[LocId]unsafe.Pointer
	scratchInfo map[LocId]*typeinfo.Info
}

func (ctx *evalCtx) resolveLoc(loc LocId) (unsafe.Pointer, *typeinfo.Info) {
	if ptr, ok := ctx.scratch[loc]; ok {
		return ptr, ctx.scratchInfo[loc]
	}
	kind := ctx.h.r.kinds[loc]
	switch {
	case kind == PortPutter:
		space := ctx.h.r.poPuSpaces[loc]
		return space.Ptr(), space.TypeInfo()
	case kind.IsMem():
		space := ctx.h.r.memoSpaces[loc]
		return space.Ptr(), space.TypeInfo()
	default:
		return nil, nil
	}
}

func (ctx *evalCtx) resolvePtr(t Term) (unsafe.Pointer, *typeinfo.Info) {
	switch v := t.(type) {
	case ValueTerm:
		return ctx.resolveLoc(v.Loc)
	case FormulaTerm:
		return boolPtr(v.Fn()), boolInfo
	default:
		return nil, nil
	}
}

func (ctx *evalCtx) resolveBool(t Term) bool {
	ptr, _ := ctx.resolvePtr(t)
	if ptr == nil {
		return false
	}
	return *(*bool)(ptr)
}

// coordinate is the entry point every Put/Get call makes once it has
// published its participation (a datum pointer for a putter, a
// destination pointer for a getter): mark myID ready and exhaust the rule
// table (spec.md §4.1 "ready_set_coordinate").
func (h *ProtoAll) coordinate(myID LocId) {
	h.w.mu.Lock()
	defer h.w.mu.Unlock()
	h.coordinateLocked(myID)
}

// coordinateLocked implements spec.md §4.1's ready_set_coordinate branch
// on whether myID is itself one of the tentative participants of an
// outstanding commitment: if so, this call is that participant's
// confirmation, and is routed to finishTentative rather than treated as a
// fresh announcement that could start scanning a different rule while
// invariant I5 forbids it. Otherwise myID is marked ready and the rule
// table is scanned as usual. Called with w.mu held.
func (h *ProtoAll) coordinateLocked(myID LocId) {
	if c := h.w.commitment; c != nil && c.tentative[myID] {
		h.finishTentative(myID)
		return
	}
	h.w.ready.Set(int(myID))
	h.exhaustRules()
}

// exhaustRules repeatedly scans the rule table for a firable rule and
// fires it, until a full scan finds none (spec.md §4.1 "exhaust_rules").
// Called with w.mu held.
func (h *ProtoAll) exhaustRules() {
	for h.tryFireOne() {
	}
}

// tryFireOne scans for a single firable rule. Invariant I5 ("at most one
// commitment outstanding at a time") means no rule may even be attempted
// while a prior match's tentative participants haven't all confirmed yet.
func (h *ProtoAll) tryFireOne() bool {
	if h.w.commitment != nil {
		return false
	}
	for _, r := range h.r.rules {
		h.w.metrics.RulesScanned.Add(1)
		if !r.bitsReady(h.w.ready, h.w.memoryBits) {
			continue
		}
		if h.attemptFire(r) {
			return true
		}
	}
	return false
}

// attemptFire evaluates r's guard (materializing any scratch cells it
// needs) and, if it holds, implements spec.md §4.1's tentative/commit
// split: locations belonging to a PortGroup announce both ready and
// ready_tentative (see portgroup.go), since which one of a group's
// members actually participates isn't decided until a match is found.
// When r's guard-ready set includes any such tentative participants, the
// firing cannot complete yet — the match is recorded as a commitment and
// those participants are notified (via notifyGroupWaiters) so they can
// come back and confirm through coordinateLocked/finishTentative. Only
// when no tentative participants are involved does the rule fire
// immediately, in this call. Either way, the rule's memory_bits update
// happens synchronously here, since it must apply the instant the match
// is chosen rather than waiting on confirmations (spec.md §4.1 step 3).
//
// Scratch cells are always freed before returning, whether or not the
// guard held (spec.md §4.5: scratch cells are formula results, not owned
// data).
func (h *ProtoAll) attemptFire(r *RunRule) bool {
	ctx := &evalCtx{h: h, memoryBits: h.w.memoryBits}
	if len(r.Scratches) > 0 {
		ctx.scratch = make(map[LocId]unsafe.Pointer, len(r.Scratches))
		ctx.scratchInfo = make(map[LocId]*typeinfo.Info, len(r.Scratches))
		for _, s := range r.Scratches {
			args := make([]unsafe.Pointer, len(s.Args))
			for i, a := range s.Args {
				args[i], _ = ctx.resolveLoc(a)
			}
			ptr := h.w.storage.Alloc(s.Info)
			s.Fill(args, ptr)
			ctx.scratch[s.ID] = ptr
			ctx.scratchInfo[s.ID] = s.Info
		}
		defer func() {
			for _, s := range r.Scratches {
				h.w.storage.Free(s.Info, ctx.scratch[s.ID])
			}
		}()
	}

	if !r.Guard.eval(ctx) {
		return false
	}

	h.w.metrics.Fired.Add(1)
	h.applyMemoryUpdate(r)

	tentativeSet := r.GuardReady.Clone()
	tentativeSet.And(h.w.readyTentative)
	tentatives := tentativeSet.Count()

	if tentatives > 0 {
		c := &commitment{rule: r, tentative: make(map[LocId]bool, tentatives), awaiting: tentatives}
		tentativeSet.Range(func(i int) bool {
			c.tentative[LocId(i)] = true
			return true
		})
		h.w.commitment = c
		h.notifyGroupWaiters(tentativeSet)
		rlog.Debug("proto: rule matched, awaiting tentative confirmations", "rule", r.ID, "awaiting", tentatives)
		return true
	}

	for _, a := range r.Actions {
		h.fireAction(a)
	}
	h.clearPortReady(r)
	h.wakeStateWaiters()
	if h.cfg.logFirings {
		rlog.Debug("proto: rule fired", "rule", r.ID, "actions", len(r.Actions))
	}
	h.w.metrics.Committed.Add(1)
	return true
}

// finishTentative records that myID, one of the outstanding commitment's
// tentative participants, has confirmed. Once every participant has
// confirmed (awaiting reaches zero), the commitment is cleared and the
// rule's actions finally run (spec.md §4.1(a)). Called with w.mu held.
func (h *ProtoAll) finishTentative(myID LocId) {
	c := h.w.commitment
	delete(c.tentative, myID)
	c.awaiting--
	if c.awaiting > 0 {
		return
	}
	r := c.rule
	h.w.commitment = nil
	for _, a := range r.Actions {
		h.fireAction(a)
	}
	h.clearPortReady(r)
	h.wakeStateWaiters()
	if h.cfg.logFirings {
		rlog.Debug("proto: tentative rule fired", "rule", r.ID, "actions", len(r.Actions))
	}
	h.w.metrics.Committed.Add(1)
	h.exhaustRules()
}

// notifyGroupWaiters wakes every registered groupWaiter that has at least
// one of its PortGroup's own locations among tentativeSet, handing it the
// full list of its own locations the match chose (spec.md §4.4). Called
// with w.mu held, from within attemptFire, so a waiter registered before
// this scan ran (the common case) and one registered by some earlier,
// still-blocked Fire() call are both served the same way.
func (h *ProtoAll) notifyGroupWaiters(tentativeSet *bitset.Set) {
	if len(h.w.groupWaiters) == 0 {
		return
	}
	remaining := h.w.groupWaiters[:0]
	for _, w := range h.w.groupWaiters {
		var matched []LocId
		for loc := range w.locs {
			if tentativeSet.Test(int(loc)) {
				matched = append(matched, loc)
			}
		}
		if len(matched) > 0 {
			w.notify <- matched
		} else {
			remaining = append(remaining, w)
		}
	}
	h.w.groupWaiters = remaining
}

// applyMemoryUpdate performs the bit-parallel memory_bits update of
// spec.md §4.1 step 3:
//
//	memory_bits <- (memory_bits | (AssignVals & AssignMask)) &^ (^AssignVals & AssignMask)
func (h *ProtoAll) applyMemoryUpdate(r *RunRule) {
	toSet := r.AssignVals.Clone()
	toSet.And(r.AssignMask)
	toClear := r.AssignMask.Clone()
	toClear.AndNot(r.AssignVals)
	h.w.memoryBits.Or(toSet)
	h.w.memoryBits.AndNot(toClear)
}

// clearPortReady clears the ready bit of every port location (putter or
// port-getter) that participated in r, so each must re-announce itself
// for the next firing. Memory locations keep their ready bit permanently
// set (see build.go): readiness for a memory cell is entirely governed by
// memory_bits, not by a per-call announcement.
func (h *ProtoAll) clearPortReady(r *RunRule) {
	for _, a := range r.Actions {
		if h.r.kinds[a.Putter] == PortPutter {
			h.w.ready.Clear(int(a.Putter))
			h.w.readyTentative.Clear(int(a.Putter))
		}
		for _, g := range a.PortGetters {
			h.w.ready.Clear(int(g))
			h.w.readyTentative.Clear(int(g))
		}
	}
}
