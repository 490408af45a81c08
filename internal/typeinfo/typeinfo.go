// Package typeinfo implements the erased per-type descriptor used
// throughout the coordination runtime: size, alignment, a TypeId, and three
// optional function pointers (drop, clone, partialEq), each with a defined
// "undefined" behavior that panics when invoked rather than being invoked
// as a nil function value.
//
// This rebuilds, as a concrete struct, the shape the teacher's pool.go
// sketches with its EmptyInterface{ typ *rtype.Type, ptr unsafe.Pointer }
// and its reference to an internal/rtype package — that package is not
// part of the retrieval pack, so the descriptor is reconstructed directly
// per spec.md §3 and the "erased function pointers" translation note in
// spec.md §9.
package typeinfo

import (
	"fmt"
	"reflect"
	"unsafe"

	lowlevel "github.com/NikoMalik/low-level-functions"
)

// TypeId is a process-lifetime-unique identifier for a registered type.
type TypeId uint64

// DropFn destroys the value at ptr in place.
type DropFn func(ptr unsafe.Pointer)

// CloneFn initializes dst from src, leaving src untouched.
type CloneFn func(src, dst unsafe.Pointer)

// PartialEqFn reports whether the values at a and b compare equal.
type PartialEqFn func(a, b unsafe.Pointer) bool

// Info is the type-erased per-type descriptor described in spec.md §3.
//
// A zero Info is never valid; construct one with Of or New.
type Info struct {
	ID     TypeId
	Size   uintptr
	Align  uintptr
	IsCopy bool
	// GoType is the reflect.Type Of[T] was instantiated with, used by the
	// claim API to check a Claim[T] call's T against the type a location
	// was registered with. Nil for descriptors built via New (no concrete
	// Go type, e.g. a raw-layout scratch cell).
	GoType reflect.Type

	drop      DropFn
	clone     CloneFn
	partialEq PartialEqFn
	name      string
}

var nextID TypeId

// reserveID hands out a fresh TypeId. Called only from Of/New at protocol
// build time, which is single-threaded (the builder runs before any port
// is claimed), so no synchronization is required.
func reserveID() TypeId {
	nextID++
	return nextID
}

// Option configures an Info at construction time.
type Option func(*Info)

// WithDrop attaches a drop function, invoked when a value is discarded
// (a memory cell emptying, or the non-mover side of a move).
func WithDrop(fn DropFn) Option { return func(i *Info) { i.drop = fn } }

// WithClone attaches a clone function, required whenever a rule assigns a
// clone role (more than one getter) for this type.
func WithClone(fn CloneFn) Option { return func(i *Info) { i.clone = fn } }

// WithPartialEq attaches an equality function, required by any guard using
// ValueEq on this type.
func WithPartialEq(fn PartialEqFn) Option { return func(i *Info) { i.partialEq = fn } }

// WithName attaches a human-readable name used in error messages.
func WithName(name string) Option { return func(i *Info) { i.name = name } }

// Of derives size and alignment for T using the low-level layout helpers
// the teacher's go.mod already depends on (github.com/NikoMalik/low-level-functions),
// the same division of labor the teacher draws between hand-written pool
// code and that library.
func Of[T any](opts ...Option) *Info {
	var zero T
	size, align := lowlevel.SizeAlignOf(zero)
	info := &Info{
		ID:     reserveID(),
		Size:   size,
		Align:  align,
		IsCopy: isTriviallyCopyable[T](),
		GoType: reflect.TypeOf(&zero).Elem(),
		name:   fmt.Sprintf("%T", zero),
	}
	for _, opt := range opts {
		opt(info)
	}
	if info.IsCopy {
		// Invariant (spec.md §3): if IsCopy, drop is a no-op regardless of
		// what the caller supplied.
		info.drop = nil
	}
	return info
}

// New constructs an Info directly from an explicit layout, for callers
// (e.g. the builder materializing memory-fill buffers) that don't have a
// concrete Go type to derive layout from.
func New(size, align uintptr, opts ...Option) *Info {
	info := &Info{ID: reserveID(), Size: size, Align: align}
	for _, opt := range opts {
		opt(info)
	}
	return info
}

func (i *Info) String() string {
	if i.name != "" {
		return i.name
	}
	return fmt.Sprintf("type#%d", i.ID)
}

// HasClone reports whether a clone function is defined.
func (i *Info) HasClone() bool { return i.clone != nil }

// HasPartialEq reports whether an equality function is defined.
func (i *Info) HasPartialEq() bool { return i.partialEq != nil }

// UndefinedErr is panicked by Drop/Clone/PartialEq when the corresponding
// function was never supplied. This is the spec.md §7 "runtime type
// misuse" class: clone required but not defined, partial_eq required but
// not defined.
type UndefinedErr struct {
	Type TypeId
	Op   string
}

func (e *UndefinedErr) Error() string {
	return fmt.Sprintf("typeinfo: %s is undefined for type %d", e.Op, e.Type)
}

// Drop destroys the value at ptr. A no-op if IsCopy or no drop function
// was supplied.
func (i *Info) Drop(ptr unsafe.Pointer) {
	if i.drop == nil {
		return
	}
	i.drop(ptr)
}

// Clone copies src into dst. Panics with *UndefinedErr if no clone
// function was supplied — this is a defined panic (spec.md §7), not
// undefined behavior: a rule that assigns a clone role for a type lacking
// a clone function is a protocol-definition error that should have been
// caught at build time (see ../../build.go), but firing-time is the last
// line of defense.
func (i *Info) Clone(src, dst unsafe.Pointer) {
	if i.clone == nil {
		panic(&UndefinedErr{Type: i.ID, Op: "clone"})
	}
	i.clone(src, dst)
}

// PartialEq compares a and b. Panics with *UndefinedErr if no equality
// function was supplied.
func (i *Info) PartialEq(a, b unsafe.Pointer) bool {
	if i.partialEq == nil {
		panic(&UndefinedErr{Type: i.ID, Op: "partial_eq"})
	}
	return i.partialEq(a, b)
}

// isTriviallyCopyable reports whether T contains no pointers, and so can
// be bit-copied with no drop/clone obligations. This is a coarse,
// conservative approximation (any pointer-shaped field forces IsCopy =
// false) good enough to gate the spec.md §3 invariant; callers that know
// better can override via an explicit WithDrop(nil) (a no-op already) —
// there is deliberately no public "force IsCopy" knob, since an incorrect
// override would silently violate I6 (exactly-one-move).
func isTriviallyCopyable[T any]() bool {
	var zero T
	return !lowlevel.ContainsPointers(zero)
}
