package proto

import (
	"unsafe"

	"github.com/NikoMalik/reoproto/internal/typeinfo"
)

// outcome values sent through a putter's Dropbox (spec.md §4.3's MsgDropbox
// rendezvous) reporting how its put concluded. A port-getter's own Dropbox
// message carries no payload semantics of its own in this implementation
// (Get/GetSignal never inspect it); it exists purely as a wakeup.
const (
	outcomeObserved uint64 = 0
	outcomeMoved    uint64 = 1
)

// fireAction performs the data movement for one committed Action
// (spec.md §4.2). The two putter kinds have genuinely different data-
// movement rules — a memory putter aliases its existing allocation into
// other memory cells and refcounts it (Case A), while a port putter must
// materialize a brand new allocation for its memory-getters (Case B) — so
// they are dispatched to separate helpers rather than folded into one
// generic loop.
//
// This runs under the coordinator's single protocol lock (see
// coordinator.go), but it does not copy into any port-getter's
// destination: it arms PutterSpace's move_flags and cloner countdown,
// publishes each port-getter's acquire parameters, and wakes it. The
// move/clone race itself then runs in the getters' own goroutines, in
// PoGeSpace.AcquireData, after the lock is released.
func (h *ProtoAll) fireAction(a Action) {
	if h.r.kinds[a.Putter].IsMem() {
		h.fireMemoryPutter(a)
	} else {
		h.firePortPutter(a)
	}
}

// fireMemoryPutter implements spec.md §4.2 Case A: the putter's existing
// allocation is aliased into every other memory-getter (no copy, just a
// refcount bump), a self-loop getter is a pure no-op, and — because other
// live references may now exist — move duty among any port-getters is
// disabled whenever the allocation's refcount isn't exactly 1.
//
// Any port-getters assigned by this action only have their wakeup sent
// here; the actual clone-or-move happens later, in each getter's own
// goroutine, via PoGeSpace.AcquireData (spec.md §4.3 acquire_data). This
// keeps the rendezvous genuinely concurrent instead of serializing every
// getter's copy under the coordinator's lock.
func (h *ProtoAll) fireMemoryPutter(a Action) {
	memSpace := h.r.memoSpaces[a.Putter]
	info := memSpace.TypeInfo()
	src := memSpace.Ptr()

	selfLoop := false
	for _, g := range a.MemGetters {
		if g == a.Putter {
			// spec.md §9 Open Question 1: a self-loop is a no-op on the
			// cell — no pointer change, no refcount change.
			selfLoop = true
			continue
		}
		h.r.memoSpaces[g].SetPtr(src)
		h.incRef(src)
	}

	disableMove := h.w.memRefs[src] != 1
	memSpace.ResetMoveFlags(disableMove)

	P := len(a.PortGetters)
	if P > 0 {
		cloners := P
		if !disableMove {
			cloners = P - 1
		}
		memSpace.ArmCloners(cloners)
		makeEmpty := func() {
			if !selfLoop {
				// Runs from a getter goroutine after w.mu was released.
				h.w.mu.Lock()
				h.decRef(src, info)
				memSpace.ClearPtr()
				h.w.mu.Unlock()
			}
		}
		for _, g := range a.PortGetters {
			ge := h.r.poGeSpaces[g]
			ge.SetAcquire(src, memSpace.PutterSpace, info.Size, &h.w.metrics, makeEmpty)
			ge.Dropbox.Send(outcomeMoved)
		}
		return
	}

	if len(a.MemGetters) == 0 {
		h.w.metrics.SignalsSent.Add(1)
	}

	if !selfLoop {
		// "make_empty": this is the putter's own reference to src going
		// away, independent of whatever a port-getter's move/clone above
		// did with the bytes (spec.md §4.3 "post-firing bookkeeping for
		// memory putters").
		h.decRef(src, info)
		memSpace.ClearPtr()
	}
}

// firePortPutter implements spec.md §4.2 Case B: a single fresh allocation
// is materialized for the whole memory-getter group (moved into it iff
// there are no port-getters at all, cloned into it otherwise, since the
// value must still be available for the port-getters), and move duty
// among the port-getters is never disabled (the port putter's stack datum
// has no other live reference).
//
// A port putter's own source datum lives on its caller's stack for the
// duration of one Put; it has exactly one owner, so whichever code path
// last reads it is responsible for dropping it (spec.md §4.3, and the
// "exactly one drop or surviving reference" property P3). Three cases:
//
//   - no port-getters at all (P == 0): src is not dropped. With
//     memory-getters it was bit-moved into their allocation above; with no
//     getters at all the put is reported observed and the caller keeps it.
//   - port-getters exist but none will ever read src (every one of them is
//     a GetSignal with no destination buffer, spec.md glossary "Signal"):
//     nothing will touch src again after this point, so it is dropped
//     synchronously rather than waiting on a rendezvous nobody needs.
//   - at least one port-getter will really copy out of src: the getter
//     that wins move duty takes ownership of it (or, if that getter only
//     signals, drops it in AcquireData), and the putter's outcome is sent
//     by whichever getter finishes last.
func (h *ProtoAll) firePortPutter(a Action) {
	space := h.r.poPuSpaces[a.Putter]
	info := space.TypeInfo()
	src := space.Ptr()

	M := len(a.MemGetters)
	P := len(a.PortGetters)
	space.ResetMoveFlags(false)

	if M > 0 {
		dst := h.w.storage.Alloc(info)
		if P == 0 {
			copyInto(dst, src, info.Size)
			h.w.metrics.MovesPerformed.Add(1)
		} else {
			info.Clone(src, dst)
			h.w.metrics.ClonesPerformed.Add(1)
		}
		for _, g := range a.MemGetters {
			h.r.memoSpaces[g].SetPtr(dst)
		}
		h.w.memRefs[dst] = M
	}

	anyRealPortCopy := false
	for _, g := range a.PortGetters {
		if h.r.poGeSpaces[g].Dest() != nil {
			anyRealPortCopy = true
			break
		}
	}

	switch {
	case P == 0:
		h.finishPortPutter(space, M, P)

	case !anyRealPortCopy:
		for _, g := range a.PortGetters {
			h.r.poGeSpaces[g].Dropbox.Send(outcomeMoved)
		}
		info.Drop(src)
		h.finishPortPutter(space, M, P)

	default:
		space.ArmCloners(P - 1)
		onLast := func() {
			h.finishPortPutter(space, M, P)
		}
		for _, g := range a.PortGetters {
			ge := h.r.poGeSpaces[g]
			ge.SetAcquire(src, space.PutterSpace, info.Size, &h.w.metrics, onLast)
			ge.Dropbox.Send(outcomeMoved)
		}
	}
}

// finishPortPutter sends this firing's outcome to the putter's own
// Dropbox and clears its published pointer — the final step of spec.md
// §4.3 acquire_data, run either synchronously (P == 0, or the
// signal-only case) or by whichever getter goroutine finishes last.
func (h *ProtoAll) finishPortPutter(space *PoPuSpace, M, P int) {
	outcome := outcomeObserved
	if M+P > 0 {
		outcome = outcomeMoved
	} else {
		h.w.metrics.SignalsSent.Add(1)
	}
	space.Dropbox.Send(outcome)
	space.ClearPtr()
}

// incRef records one more live MemoSpace reference to ptr (spec.md
// invariant I4).
func (h *ProtoAll) incRef(ptr unsafe.Pointer) {
	h.w.memRefs[ptr]++
}

// decRef removes one live reference to ptr; when the count reaches zero
// the allocation is dropped and returned to the arena's free list (the
// "make_empty" operation of spec.md §4.3).
func (h *ProtoAll) decRef(ptr unsafe.Pointer, info *typeinfo.Info) {
	n := h.w.memRefs[ptr] - 1
	if n <= 0 {
		delete(h.w.memRefs, ptr)
		h.w.storage.Free(info, ptr)
		return
	}
	h.w.memRefs[ptr] = n
}

func copyInto(dst, src unsafe.Pointer, size uintptr) {
	d := unsafe.Slice((*byte)(dst), size)
	s := unsafe.Slice((*byte)(src), size)
	copy(d, s)
}
