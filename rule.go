package proto

import (
	"unsafe"

	"github.com/NikoMalik/reoproto/internal/bitset"
	"github.com/NikoMalik/reoproto/internal/typeinfo"
)

// Action is one (putter, mem_getters, port_getters) triple inside a rule
// (spec.md §4.2, glossary "Action").
type Action struct {
	Putter      LocId
	MemGetters  []LocId
	PortGetters []LocId
}

// ScratchSpec describes one temporary scratch cell a rule's guard may
// reference (spec.md §4.5 "Temporary scratch cells"): arity 0–3, filled
// from the current values of Args before the guard runs and freed through
// the storage arena (which runs Info's drop function) once the guard has
// been evaluated, whether or not it held.
type ScratchSpec struct {
	ID   LocId
	Info *typeinfo.Info
	Args []LocId
	// Fill computes the scratch cell's value from the current pointers of
	// Args (resolved in the same order) and writes it into out.
	Fill func(args []unsafe.Pointer, out unsafe.Pointer)
}

// RunRule is the compiled form of a RuleDef (spec.md §2 component
// "RunRule"): precomputed bitsets for the bits-ready test, the guard tree,
// the ordered action list, and any scratch cells the guard needs.
type RunRule struct {
	ID int

	// GuardReady[i] set means location i must participate in this rule.
	GuardReady *bitset.Set
	// GuardFull[i] set (with GuardReady[i] set) means location i must be a
	// full memory cell; clear means it must be empty.
	GuardFull *bitset.Set
	// AssignVals/AssignMask encode the bit-parallel memory_bits update
	// applied on a successful fire (spec.md §4.1 step 3):
	//   memory_bits <- (memory_bits | (AssignVals & AssignMask)) &^ (^AssignVals & AssignMask)
	AssignVals *bitset.Set
	AssignMask *bitset.Set

	Guard     Guard
	Actions   []Action
	Scratches []ScratchSpec

	// mustEmpty = GuardReady &^ GuardFull, precomputed at compile time
	// (build.go) so bitsReady needs no per-call arithmetic beyond the
	// bitset intersection test itself.
	mustEmpty *bitset.Set
}

// bitsReady implements the single chunk-parallel bits-ready test of
// spec.md §4.1:
//
//	guard_ready[i] => ready[i], AND
//	guard_ready[i] && guard_full[i] => memory_bits[i], AND
//	guard_ready[i] && !guard_full[i] => !memory_bits[i]
//
// Encoded with no branches on individual locations: ready must be a
// superset of guard_ready, and (guard_ready & guard_full) must be a subset
// of memory_bits while (guard_ready &^ guard_full) must be disjoint from
// memory_bits.
func (r *RunRule) bitsReady(ready, memoryBits *bitset.Set) bool {
	if !ready.IsSupersetOf(r.GuardReady) {
		return false
	}
	mustFull := r.GuardFull // already guard_ready & guard_full by construction
	if !memoryBits.IsSupersetOf(mustFull) {
		return false
	}
	mustEmpty := r.mustEmpty
	if memoryBits.Intersects(mustEmpty) {
		return false
	}
	return true
}
