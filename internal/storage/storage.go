// Package storage implements the owning byte arena (spec.md §2 component
// "Storage"): allocation keyed by (size, align) layout, move-out, and
// drop-in-place, reusing freed slots of matching layout via
// internal/slotpool rather than returning to the general allocator on
// every cycle.
//
// # Design rationale
//
// A firing that assigns a clone or move role to a memory-getter needs a
// freshly laid-out slot of the putter's type, sized and aligned exactly
// like that type (spec.md §4.2 case B). Allocating straight from Go's
// allocator on every firing would work, but every memory cell in a
// long-running protocol instance cycles through full/empty at the rule
// rate, so arena-style reuse matters for the same reason the teacher's
// Pool[T] exists: avoid paying allocator and GC cost for values with a
// tight, structured lifetime.
//
// # Concurrency model
//
// Storage is only ever touched while the caller holds the coordination
// runtime's single protocol lock (spec.md §5); Alloc/Free themselves add
// only the Arena's own mutex around lazy per-layout pool creation, beyond
// what internal/slotpool's Pool already does internally for its own shard
// bookkeeping.
//
// # Invariants
//
//   - A pointer returned by Alloc is never aliased by two live Storage
//     allocations simultaneously.
//   - Free(ptr) must be called at most once per successful Alloc; calling
//     it twice double-frees into the slot pool and is a caller bug.
package storage

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/NikoMalik/reoproto/internal/slotpool"
	"github.com/NikoMalik/reoproto/internal/typeinfo"
)

// Arena is a key-on-layout byte allocator.
type Arena struct {
	mu    sync.Mutex // guards the pools map; Alloc/Free themselves assume the caller already holds the protocol lock, this just protects lazy pool creation
	pools map[layoutKey]*slotpool.Pool
}

type layoutKey struct {
	size  uintptr
	align uintptr
}

// NewArena returns an empty Arena.
func NewArena() *Arena {
	return &Arena{pools: make(map[layoutKey]*slotpool.Pool)}
}

func (a *Arena) poolFor(size, align uintptr) *slotpool.Pool {
	key := layoutKey{size, align}
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pools[key]
	if !ok {
		p = &slotpool.Pool{}
		a.pools[key] = p
	}
	return p
}

// Alloc returns a zeroed slot sized/aligned per info's layout, reusing a
// freed slot if one of matching layout is available.
func (a *Arena) Alloc(info *typeinfo.Info) unsafe.Pointer {
	size, align := info.Size, info.Align
	if size == 0 {
		size = 1
	}
	if align == 0 {
		align = 1
	}
	pool := a.poolFor(size, align)
	if ptr := pool.Get(); ptr != nil {
		zero(ptr, size)
		return ptr
	}
	return allocAligned(size, align)
}

// Free runs info's drop function on the value at ptr (if any) and returns
// the slot to the free list for its layout. ptr must have been returned by
// a prior Alloc(info) (or an equivalently laid out Info).
func (a *Arena) Free(info *typeinfo.Info, ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	info.Drop(ptr)
	size, align := info.Size, info.Align
	if size == 0 {
		size = 1
	}
	if align == 0 {
		align = 1
	}
	pool := a.poolFor(size, align)
	pool.Put(ptr)
}

// MoveOut bit-copies the size bytes at src into a freshly allocated slot
// sized/aligned per info, without invoking info's clone function, and
// returns the new slot. This is the "move" path of spec.md §4.2 case B
// (zero port-getters): the bytes move, ownership moves, no clone call.
func (a *Arena) MoveOut(info *typeinfo.Info, src unsafe.Pointer) unsafe.Pointer {
	dst := a.Alloc(info)
	copyBytes(dst, src, info.Size)
	return dst
}

// CloneInto allocates a fresh slot sized/aligned per info and invokes
// info's clone function to populate it from src.
func (a *Arena) CloneInto(info *typeinfo.Info, src unsafe.Pointer) unsafe.Pointer {
	dst := a.Alloc(info)
	info.Clone(src, dst)
	return dst
}

func zero(ptr unsafe.Pointer, size uintptr) {
	b := unsafe.Slice((*byte)(ptr), size)
	for i := range b {
		b[i] = 0
	}
}

func copyBytes(dst, src unsafe.Pointer, size uintptr) {
	d := unsafe.Slice((*byte)(dst), size)
	s := unsafe.Slice((*byte)(src), size)
	copy(d, s)
}

// allocAligned allocates size bytes with the requested alignment. Go's
// allocator already aligns by the type's natural alignment when you
// allocate via make([]T, n); for a byte arena with an arbitrary requested
// alignment we over-allocate and hand back an aligned sub-slice anchor,
// keeping the backing array alive via the returned pointer itself (the Go
// GC tracks liveness from any interior pointer).
func allocAligned(size, align uintptr) unsafe.Pointer {
	if align <= 1 {
		buf := make([]byte, size)
		if len(buf) == 0 {
			return unsafe.Pointer(&struct{}{})
		}
		return unsafe.Pointer(&buf[0])
	}
	buf := make([]byte, size+align-1)
	base := uintptr(unsafe.Pointer(&buf[0]))
	aligned := (base + align - 1) &^ (align - 1)
	return unsafe.Pointer(aligned)
}

// Describe returns a diagnostic string for the given layout, used in
// build-time error messages.
func Describe(info *typeinfo.Info) string {
	return fmt.Sprintf("%s(size=%d,align=%d)", info, info.Size, info.Align)
}
