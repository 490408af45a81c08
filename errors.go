package proto

import "fmt"

// BuildErrorKind enumerates the build-time protocol errors of spec.md §7.
type BuildErrorKind int

const (
	// ErrUnknownType: a location has no registered TypeInfo.
	ErrUnknownType BuildErrorKind = iota
	// ErrWrongKind: a location is used as a putter/getter its LocKind forbids.
	ErrWrongKind
	// ErrSyncFiring: the same LocId appears twice in one rule's action set
	// other than the one legal self-loop (same LocId as putter and one
	// mem-getter).
	ErrSyncFiring
	// ErrTypeMismatch: a putter and one of its getters disagree on type.
	ErrTypeMismatch
	// ErrMemFillBroken: a MemInitialized location has no fill callback, a
	// fill callback is nil, or a fill callback is registered for a location
	// that is not MemInitialized. The fill callback's output type is not
	// checked against the location's TypeInfo.
	ErrMemFillBroken
	// ErrFnUndefined: a rule requires a clone (or, if detectable at build
	// time, a partial_eq) for a type that doesn't define one.
	ErrFnUndefined
	// ErrBadArity: a scratch-cell Fill function was declared with an
	// unsupported argument count (spec.md §4.5 caps arity at 0–3).
	ErrBadArity
)

func (k BuildErrorKind) String() string {
	switch k {
	case ErrUnknownType:
		return "unknown type"
	case ErrWrongKind:
		return "location cannot put/get"
	case ErrSyncFiring:
		return "same location twice in one rule"
	case ErrTypeMismatch:
		return "putter/getter type mismatch"
	case ErrMemFillBroken:
		return "memory-fill promise broken"
	case ErrFnUndefined:
		return "function undefined"
	case ErrBadArity:
		return "scratch cell arity out of range"
	default:
		return "unknown build error"
	}
}

// BuildError is a single build-time protocol error, returned in a slice
// from Build rather than panicking, so a builder/DSL layer above this
// runtime can report every problem in one pass.
type BuildError struct {
	Kind BuildErrorKind
	Loc  LocId
	Rule int // -1 if not rule-specific
	Msg  string
}

func (e *BuildError) Error() string {
	if e.Rule >= 0 {
		return fmt.Sprintf("proto: build error: rule %d, loc %d: %s: %s", e.Rule, e.Loc, e.Kind, e.Msg)
	}
	return fmt.Sprintf("proto: build error: loc %d: %s: %s", e.Loc, e.Kind, e.Msg)
}

// BuildErrors aggregates every BuildError found in one Build call.
type BuildErrors []*BuildError

func (e BuildErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("proto: %d build errors (first: %s)", len(e), e[0].Error())
}

// Claim errors (spec.md §6, §7).
var (
	// ErrNotUnclaimed is returned when claiming a LocId already claimed, or
	// not a valid port LocId.
	ErrNotUnclaimed = fmt.Errorf("proto: location not unclaimed")
	// ErrClaimTypeMismatch is returned when T does not match the location's
	// registered TypeInfo.
	ErrClaimTypeMismatch = fmt.Errorf("proto: claim type mismatch")
)

// Group errors (spec.md §6, §7).
var (
	ErrDifferentProtoInstance  = fmt.Errorf("proto: port group members must share one protocol instance")
	ErrGotGetterExpectedPutter = fmt.Errorf("proto: expected a putter handle, got a getter")
	ErrGotPutterExpectedGetter = fmt.Errorf("proto: expected a getter handle, got a putter")
)
