package proto

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/NikoMalik/reoproto/internal/typeinfo"
)

func hasKind(errs BuildErrors, k BuildErrorKind) bool {
	for _, e := range errs {
		if e.Kind == k {
			return true
		}
	}
	return false
}

func TestBuildUnknownType(t *testing.T) {
	def := NewProtoDef(1) // loc 0 never given a kind or type
	_, err := Build(def)
	var errs BuildErrors
	if !errors.As(err, &errs) || !hasKind(errs, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestBuildWrongKindPutter(t *testing.T) {
	const (
		locG LocId = iota
		locOther
		numLocs
	)
	info := typeinfo.Of[int]()
	def := NewProtoDef(int(numLocs)).
		SetKind(locG, PortGetter).SetType(locG, info).
		SetKind(locOther, PortGetter).SetType(locOther, info).
		AddRule(RuleDef{
			Guard:   GuardTrue{},
			Actions: []ActionDef{{Putter: locG, Getters: []LocId{locOther}}},
		})
	_, err := Build(def)
	var errs BuildErrors
	if !errors.As(err, &errs) || !hasKind(errs, ErrWrongKind) {
		t.Fatalf("expected ErrWrongKind, got %v", err)
	}
}

func TestBuildSyncFiringDuplicate(t *testing.T) {
	const (
		locP LocId = iota
		locG
		numLocs
	)
	info := typeinfo.Of[int]()
	def := NewProtoDef(int(numLocs)).
		SetKind(locP, PortPutter).SetType(locP, info).
		SetKind(locG, PortGetter).SetType(locG, info).
		AddRule(RuleDef{
			Guard: GuardTrue{},
			Actions: []ActionDef{
				{Putter: locP, Getters: []LocId{locG}},
				{Putter: locP, Getters: []LocId{locG}},
			},
		})
	_, err := Build(def)
	var errs BuildErrors
	if !errors.As(err, &errs) || !hasKind(errs, ErrSyncFiring) {
		t.Fatalf("expected ErrSyncFiring, got %v", err)
	}
}

func TestBuildTypeMismatch(t *testing.T) {
	const (
		locP LocId = iota
		locG
		numLocs
	)
	intInfo := typeinfo.Of[int]()
	strInfo := typeinfo.Of[string]()
	def := NewProtoDef(int(numLocs)).
		SetKind(locP, PortPutter).SetType(locP, intInfo).
		SetKind(locG, PortGetter).SetType(locG, strInfo).
		AddRule(RuleDef{
			Guard:   GuardTrue{},
			Actions: []ActionDef{{Putter: locP, Getters: []LocId{locG}}},
		})
	_, err := Build(def)
	var errs BuildErrors
	if !errors.As(err, &errs) || !hasKind(errs, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestBuildMemFillBroken(t *testing.T) {
	const (
		locM LocId = iota
		numLocs
	)
	info := typeinfo.Of[int]()
	def := NewProtoDef(int(numLocs)).
		SetKind(locM, MemInitialized).SetType(locM, info)
	// No SetMemFill call at all.
	_, err := Build(def)
	var errs BuildErrors
	if !errors.As(err, &errs) || !hasKind(errs, ErrMemFillBroken) {
		t.Fatalf("expected ErrMemFillBroken, got %v", err)
	}
}

func TestBuildRequiresCloneForMultipleGetters(t *testing.T) {
	const (
		locP LocId = iota
		locG1
		locG2
		numLocs
	)
	info := typeinfo.Of[int]() // no WithClone
	def := NewProtoDef(int(numLocs)).
		SetKind(locP, PortPutter).SetType(locP, info).
		SetKind(locG1, PortGetter).SetType(locG1, info).
		SetKind(locG2, PortGetter).SetType(locG2, info).
		AddRule(RuleDef{
			Guard:   GuardTrue{},
			Actions: []ActionDef{{Putter: locP, Getters: []LocId{locG1, locG2}}},
		})
	_, err := Build(def)
	var errs BuildErrors
	if !errors.As(err, &errs) || !hasKind(errs, ErrFnUndefined) {
		t.Fatalf("expected ErrFnUndefined, got %v", err)
	}
}

func TestBuildScratchArity(t *testing.T) {
	const (
		locP LocId = iota
		locG
		numLocs
		// Scratch cells are resolved by the guard evaluator, not the
		// location table, so this id lies outside numLocs.
		locScratch = numLocs
	)
	info := typeinfo.Of[int]()
	scratchInfo := typeinfo.New(unsafe.Sizeof(false), 1)
	def := NewProtoDef(int(numLocs)).
		SetKind(locP, PortPutter).SetType(locP, info).
		SetKind(locG, PortGetter).SetType(locG, info).
		AddRule(RuleDef{
			Guard:   GuardTrue{},
			Actions: []ActionDef{{Putter: locP, Getters: []LocId{locG}}},
			Scratches: []ScratchSpec{{
				ID:   locScratch,
				Info: scratchInfo,
				Args: []LocId{locP, locP, locP, locP}, // arity 4 is one over the cap
				Fill: func(args []unsafe.Pointer, out unsafe.Pointer) {},
			}},
		})
	_, err := Build(def)
	var errs BuildErrors
	if !errors.As(err, &errs) || !hasKind(errs, ErrBadArity) {
		t.Fatalf("expected ErrBadArity, got %v", err)
	}
}
