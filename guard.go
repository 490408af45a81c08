package proto

import "unsafe"

// Term is a guard sub-expression: either an inline boolean formula or a
// reference to a location's current value (spec.md §4.5).
type Term interface {
	termTag()
}

// ValueTerm resolves to the current datum pointer of a LocId.
type ValueTerm struct {
	Loc LocId
}

func (ValueTerm) termTag() {}

// FormulaTerm is an inline boolean formula with no location dependency
// (spec.md §4.5: "a term is either an inline boolean formula ... or a
// Value(LocId)"). It is evaluated eagerly; the evaluator does not require
// short-circuiting.
type FormulaTerm struct {
	Fn func() bool
}

func (FormulaTerm) termTag() {}

// boolPtr materializes a FormulaTerm's result as a pointer to one
// of two package-level sentinels, matching the source's "yields a pointer
// to a static true/false" representation closely enough for TermVal/
// ValueEq to treat all terms uniformly as pointer-producing.
var (
	sentinelTrue  = true
	sentinelFalse = false
)

func boolPtr(b bool) unsafe.Pointer {
	if b {
		return unsafe.Pointer(&sentinelTrue)
	}
	return unsafe.Pointer(&sentinelFalse)
}

// Guard is a tree of boolean combinators over Terms and location predicates.
type Guard interface {
	eval(ctx *evalCtx) bool
}

// GuardTrue always succeeds.
type GuardTrue struct{}

func (GuardTrue) eval(*evalCtx) bool { return true }

// GuardAnd succeeds iff every child succeeds. The evaluator is not
// required to short-circuit (spec.md §4.5); this implementation does not,
// so that temp-cell side effects in a formula term remain well-defined
// regardless of evaluation order.
type GuardAnd struct{ Children []Guard }

func (g GuardAnd) eval(ctx *evalCtx) bool {
	ok := true
	for _, c := range g.Children {
		if !c.eval(ctx) {
			ok = false
		}
	}
	return ok
}

// GuardOr succeeds iff at least one child succeeds.
type GuardOr struct{ Children []Guard }

func (g GuardOr) eval(ctx *evalCtx) bool {
	ok := false
	for _, c := range g.Children {
		if c.eval(ctx) {
			ok = true
		}
	}
	return ok
}

// GuardNone succeeds iff no child succeeds (NOR).
type GuardNone struct{ Children []Guard }

func (g GuardNone) eval(ctx *evalCtx) bool {
	for _, c := range g.Children {
		if c.eval(ctx) {
			return false
		}
	}
	return true
}

// GuardMemIsNull succeeds iff the memory cell Loc is currently empty.
type GuardMemIsNull struct{ Loc LocId }

func (g GuardMemIsNull) eval(ctx *evalCtx) bool {
	return !ctx.memoryBits.Test(int(g.Loc))
}

// GuardTermVal succeeds iff T evaluates to true.
type GuardTermVal struct{ T Term }

func (g GuardTermVal) eval(ctx *evalCtx) bool {
	return ctx.resolveBool(g.T)
}

// GuardValueEq succeeds iff A and B, which must resolve to the same type,
// compare equal under that type's partial_eq. Evaluating ValueEq against
// an uninitialized memory cell is an invariant violation (spec.md §4.5):
// guard authors must guard with GuardMemIsNull first when a term may
// reference an empty cell; this evaluator does not itself re-check
// fullness, matching the source's documented contract.
type GuardValueEq struct{ A, B Term }

func (g GuardValueEq) eval(ctx *evalCtx) bool {
	pa, infoA := ctx.resolvePtr(g.A)
	pb, infoB := ctx.resolvePtr(g.B)
	if infoA == nil || infoB == nil || infoA.ID != infoB.ID {
		panic("proto: ValueEq terms resolve to different types")
	}
	return infoA.PartialEq(pa, pb)
}
