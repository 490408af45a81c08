package proto

import (
	"testing"
	"unsafe"

	"github.com/NikoMalik/reoproto/internal/bitset"
	"github.com/NikoMalik/reoproto/internal/typeinfo"
)

func TestGuardCombinators(t *testing.T) {
	trueT := FormulaTerm{Fn: func() bool { return true }}
	falseT := FormulaTerm{Fn: func() bool { return false }}
	ctx := &evalCtx{}

	if !(GuardAnd{[]Guard{GuardTermVal{trueT}, GuardTermVal{trueT}}}).eval(ctx) {
		t.Fatal("AND of two true terms should hold")
	}
	if (GuardAnd{[]Guard{GuardTermVal{trueT}, GuardTermVal{falseT}}}).eval(ctx) {
		t.Fatal("AND with one false term should not hold")
	}
	if !(GuardOr{[]Guard{GuardTermVal{falseT}, GuardTermVal{trueT}}}).eval(ctx) {
		t.Fatal("OR with one true term should hold")
	}
	if (GuardOr{[]Guard{GuardTermVal{falseT}}}).eval(ctx) {
		t.Fatal("OR of only false terms should not hold")
	}
	if !(GuardNone{[]Guard{GuardTermVal{falseT}}}).eval(ctx) {
		t.Fatal("NOR of only false terms should hold")
	}
	if (GuardNone{[]Guard{GuardTermVal{trueT}}}).eval(ctx) {
		t.Fatal("NOR with a true term should not hold")
	}
	if !(GuardTrue{}).eval(ctx) {
		t.Fatal("GuardTrue should always hold")
	}
}

func TestGuardMemIsNull(t *testing.T) {
	mb := bitset.New(4)
	ctx := &evalCtx{memoryBits: mb}

	if !(GuardMemIsNull{Loc: 2}).eval(ctx) {
		t.Fatal("an unset memory bit should read as null")
	}
	mb.Set(2)
	if (GuardMemIsNull{Loc: 2}).eval(ctx) {
		t.Fatal("a set memory bit should not read as null")
	}
}

func TestGuardValueEqFormula(t *testing.T) {
	ctx := &evalCtx{}
	eq := GuardValueEq{
		A: FormulaTerm{Fn: func() bool { return true }},
		B: FormulaTerm{Fn: func() bool { return true }},
	}
	if !eq.eval(ctx) {
		t.Fatal("two formula terms evaluating to the same bool should compare equal")
	}
	neq := GuardValueEq{
		A: FormulaTerm{Fn: func() bool { return true }},
		B: FormulaTerm{Fn: func() bool { return false }},
	}
	if neq.eval(ctx) {
		t.Fatal("formula terms evaluating to different bools should not compare equal")
	}
}

func TestGuardValueEqTypeMismatchPanics(t *testing.T) {
	infoA := typeinfo.New(8, 8, typeinfo.WithName("a"))
	infoB := typeinfo.New(8, 8, typeinfo.WithName("b"))
	a, b := int64(1), int64(1)

	r := &protoR{
		kinds:      []LocKind{PortPutter, PortPutter},
		types:      []*typeinfo.Info{infoA, infoB},
		poPuSpaces: []*PoPuSpace{newPoPuSpace(infoA), newPoPuSpace(infoB)},
	}
	r.poPuSpaces[0].SetPtr(unsafe.Pointer(&a))
	r.poPuSpaces[1].SetPtr(unsafe.Pointer(&b))
	ctx := &evalCtx{h: &ProtoAll{r: r}}

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic comparing terms of different types")
		}
	}()
	(GuardValueEq{A: ValueTerm{Loc: 0}, B: ValueTerm{Loc: 1}}).eval(ctx)
}
