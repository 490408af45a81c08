package proto

import (
	"sync/atomic"
	"unsafe"

	"github.com/NikoMalik/reoproto/internal/dropbox"
	"github.com/NikoMalik/reoproto/internal/metrics"
	"github.com/NikoMalik/reoproto/internal/typeinfo"
)

// moveFlag bits packed into PutterSpace.moveFlags (spec.md §3).
const (
	flagMoved    uint32 = 1 << 0
	flagDisabled uint32 = 1 << 1
)

// PutterSpace is the shared base coordination structure for any location
// that can act as a putter (spec.md §3): an atomic pointer to the current
// datum plus packed move/disable flags. A firing's match is decided under
// the coordinator's single lock (coordinator.go), but the actual
// clone-or-move rendezvous over move_flags and clonerCountdown runs after
// that lock is released, in each assigned getter's own goroutine (see
// AcquireData below) — this is the part of the race move_flags actually
// settles.
type PutterSpace struct {
	ptr       atomic.Pointer[byte]
	moveFlags atomic.Uint32
	info      *typeinfo.Info

	// clonerCountdown and moverSema implement spec.md §4.3 acquire_data's
	// "last participant does make_empty" rule once a firing's data
	// movement is handed off to the getters' own goroutines instead of
	// running synchronously under the coordinator's lock. ArmCloners sets
	// the countdown to however many port-getters must clone (not move)
	// this firing; each of them calls FinishCloner on completion, and
	// whoever is last wakes the mover (if any) parked in WaitForCloners.
	clonerCountdown atomic.Int32
	moverSema       uint32
}

func newPutterSpace(info *typeinfo.Info) *PutterSpace {
	return &PutterSpace{info: info}
}

// ArmCloners records how many cloners this firing has (the move-claimant,
// if one exists, is not among them). A mover later blocks in
// WaitForCloners until every cloner has called FinishCloner.
func (p *PutterSpace) ArmCloners(n int) {
	p.moverSema = 0
	p.clonerCountdown.Store(int32(n))
}

// WaitForCloners parks the move-claimant until every armed cloner has
// finished reading the source datum. Safe to call when no cloners were
// armed (returns immediately).
func (p *PutterSpace) WaitForCloners() {
	for p.clonerCountdown.Load() > 0 {
		dropbox.Semacquire(&p.moverSema)
	}
}

// FinishCloner records that one cloner has finished reading the source
// datum, waking a parked mover if this was the last one. Returns true if
// the caller was the last participant to finish (mover excluded: a mover
// always finishes last, after WaitForCloners returns).
func (p *PutterSpace) FinishCloner() bool {
	n := p.clonerCountdown.Add(-1)
	if n == 0 {
		dropbox.Semrelease(&p.moverSema)
	}
	return n <= 0 && p.moveFlags.Load()&flagDisabled != 0
}

// Ptr returns the datum pointer currently published by the putter, or nil.
func (p *PutterSpace) Ptr() unsafe.Pointer { return unsafe.Pointer(p.ptr.Load()) }

// SetPtr publishes ptr as the current datum.
func (p *PutterSpace) SetPtr(ptr unsafe.Pointer) { p.ptr.Store((*byte)(ptr)) }

// ClearPtr clears the published datum pointer.
func (p *PutterSpace) ClearPtr() { p.ptr.Store(nil) }

// TypeInfo returns the location's type descriptor.
func (p *PutterSpace) TypeInfo() *typeinfo.Info { return p.info }

// ResetMoveFlags arms move_flags for a new firing. disableMove sets the
// DISABLED bit so no getter can win move duty (spec.md §4.2 "Getter wake-up",
// P ≥ 1 case: move_flags.reset(!disable_move)).
func (p *PutterSpace) ResetMoveFlags(disableMove bool) {
	var v uint32
	if disableMove {
		v = flagDisabled
	}
	p.moveFlags.Store(v)
}

// TryClaimMove attempts to claim move duty by setting MOVED. Succeeds only
// if MOVED was not previously set and DISABLED is clear (spec.md §4.3
// acquire_data step 1).
func (p *PutterSpace) TryClaimMove() bool {
	for {
		cur := p.moveFlags.Load()
		if cur&flagDisabled != 0 || cur&flagMoved != 0 {
			return false
		}
		if p.moveFlags.CompareAndSwap(cur, cur|flagMoved) {
			return true
		}
	}
}

// PoPuSpace is a port-putter's coordination space: a PutterSpace whose ptr
// aliases the caller's stack for the duration of one put, plus a dropbox
// used to receive the firing's outcome.
type PoPuSpace struct {
	*PutterSpace
	Dropbox *dropbox.Dropbox
}

func newPoPuSpace(info *typeinfo.Info) *PoPuSpace {
	return &PoPuSpace{PutterSpace: newPutterSpace(info), Dropbox: dropbox.New()}
}

// MemoSpace is a memory cell's coordination space: a PutterSpace whose ptr
// points into the shared Storage arena. Refcounting for the pointer it
// currently holds lives in protoW.memRefs (spec.md invariant I4), not
// here, since a single allocation may be referenced by several MemoSpaces.
type MemoSpace struct {
	*PutterSpace
	id LocId
}

func newMemoSpace(id LocId, info *typeinfo.Info) *MemoSpace {
	return &MemoSpace{PutterSpace: newPutterSpace(info), id: id}
}

// PoGeSpace is a port-getter's coordination space: a dropbox plus an
// atomic pointer to the caller's own destination buffer, published before
// coordinating and read by the firer once a rule assigns this location a
// move or clone role (spec.md §4.3 "acquire_data").
type PoGeSpace struct {
	Dropbox *dropbox.Dropbox
	dest    atomic.Pointer[byte]
	info    *typeinfo.Info

	// The following fields are published by the firer (under the
	// coordinator's lock, fireAction) before it wakes this getter via
	// Dropbox, and consumed afterwards by AcquireData running in the
	// getter's own goroutine with no lock held (spec.md §4.3
	// acquire_data, and the note on genuine concurrent rendezvous in
	// DESIGN.md). A getter whose rule assigned it no acquire role at all
	// (e.g. a signal-only firing) simply never has these set; AcquireData
	// is then a no-op.
	acquireSrc     unsafe.Pointer
	acquirePutter  *PutterSpace
	acquireSize    uintptr
	acquireMetrics *metrics.Counters
	onLast         func()
}

func newPoGeSpace(info *typeinfo.Info) *PoGeSpace {
	return &PoGeSpace{Dropbox: dropbox.New(), info: info}
}

// SetDest publishes the buffer the firer should write this getter's
// received value into.
func (p *PoGeSpace) SetDest(ptr unsafe.Pointer) { p.dest.Store((*byte)(ptr)) }

// Dest returns the currently published destination buffer.
func (p *PoGeSpace) Dest() unsafe.Pointer { return unsafe.Pointer(p.dest.Load()) }

// TypeInfo returns the location's type descriptor.
func (p *PoGeSpace) TypeInfo() *typeinfo.Info { return p.info }

// SetAcquire publishes this firing's acquire_data parameters for this
// getter (spec.md §4.3): the source datum and its owning PutterSpace, the
// type's size, the metrics sink to record against, and the callback the
// last participant (mover, or last cloner if no mover claims) must run to
// finish the putter side of the firing (its "make_empty" or its own
// outcome notification). Called by the firer under the coordinator's
// lock; read by AcquireData outside it.
func (p *PoGeSpace) SetAcquire(src unsafe.Pointer, putter *PutterSpace, size uintptr, m *metrics.Counters, onLast func()) {
	p.acquireSrc = src
	p.acquirePutter = putter
	p.acquireSize = size
	p.acquireMetrics = m
	p.onLast = onLast
}

// AcquireData performs this getter's half of spec.md §4.3's rendezvous,
// after this getter's own Dropbox message has already woken it. Every
// port-getter assigned to a firing calls this independently and
// concurrently: each one races to claim move duty on the shared
// PutterSpace; the loser(s) clone instead, and whichever of them finishes
// last runs onLast, whether that is the mover (after draining every
// cloner via WaitForCloners) or the last cloner (if no getter ever
// claimed the move, e.g. because it was disabled for aliasing reasons).
//
// A getter with no acquire role published (SetAcquire never called for
// this firing — the signal-only case) is a no-op.
func (p *PoGeSpace) AcquireData() {
	putter := p.acquirePutter
	if putter == nil {
		return
	}
	src := p.acquireSrc
	dest := p.Dest()
	size := p.acquireSize
	m := p.acquireMetrics
	onLast := p.onLast

	p.acquirePutter = nil
	p.acquireSrc = nil
	p.onLast = nil

	if putter.TryClaimMove() {
		if dest != nil {
			copyInto(dest, src, size)
			m.MovesPerformed.Add(1)
		} else {
			// This getter claimed move duty but wants no data (GetSignal):
			// src's ownership was never transferred to anyone, so it must
			// be dropped here rather than silently discarded (spec.md
			// property P3, "exactly one drop or surviving reference").
			p.info.Drop(src)
		}
		putter.WaitForCloners()
		onLast()
		return
	}

	if dest != nil {
		p.info.Clone(src, dest)
	}
	m.ClonesPerformed.Add(1)
	if putter.FinishCloner() {
		onLast()
	}
}

