package proto

import (
	"unsafe"

	"github.com/NikoMalik/reoproto/internal/typeinfo"
)

// ActionDef is the builder-facing form of an Action: a putter and its
// full getter set, undifferentiated between memory and port getters — the
// distinction is derived from each getter's LocKind (spec.md §6).
type ActionDef struct {
	Putter  LocId
	Getters []LocId
}

// RuleDef is the builder-facing form of a rule: a guard and its ordered
// action list (spec.md §6).
type RuleDef struct {
	Guard     Guard
	Actions   []ActionDef
	Scratches []ScratchSpec
}

// MemFill supplies the initial contents of a MemInitialized location.
type MemFill struct {
	Loc  LocId
	Fill func(out unsafe.Pointer)
}

// ProtoDef is the static construction input described in spec.md §6: an
// ordered rule list, a per-LocId kind map, a per-LocId type resolver, and
// optional memory-fill callbacks for initialized cells.
//
// This is deliberately the full extent of the "glue" this module owns —
// the textual protocol DSL and its parser, and the rule-set
// builder/type-checker that would normally *produce* a ProtoDef, remain
// external collaborators per spec.md §1. ProtoDef is the contract between
// them and this runtime.
type ProtoDef struct {
	NumLocs  int
	Kinds    map[LocId]LocKind
	Types    map[LocId]*typeinfo.Info
	Rules    []RuleDef
	MemFills map[LocId]MemFill
}

// NewProtoDef returns an empty ProtoDef with room for n locations.
func NewProtoDef(n int) *ProtoDef {
	return &ProtoDef{
		NumLocs: n,
		Kinds:   make(map[LocId]LocKind, n),
		Types:   make(map[LocId]*typeinfo.Info, n),
	}
}

// SetKind records the kind of a location.
func (d *ProtoDef) SetKind(id LocId, kind LocKind) *ProtoDef {
	d.Kinds[id] = kind
	return d
}

// SetType records the type descriptor of a location.
func (d *ProtoDef) SetType(id LocId, info *typeinfo.Info) *ProtoDef {
	d.Types[id] = info
	return d
}

// AddRule appends a rule definition, in scan order (spec.md §4.1 tie
// breaking: first match wins, in rule-vector order).
func (d *ProtoDef) AddRule(r RuleDef) *ProtoDef {
	d.Rules = append(d.Rules, r)
	return d
}

// SetMemFill registers an initial-contents callback for a MemInitialized
// location.
func (d *ProtoDef) SetMemFill(id LocId, fill func(out unsafe.Pointer)) *ProtoDef {
	if d.MemFills == nil {
		d.MemFills = make(map[LocId]MemFill)
	}
	d.MemFills[id] = MemFill{Loc: id, Fill: fill}
	return d
}
