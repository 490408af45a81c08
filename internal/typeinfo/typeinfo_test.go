package typeinfo

import (
	"testing"
	"unsafe"
)

func TestOfBasicLayout(t *testing.T) {
	info := Of[uint32](WithName("u32"))
	if info.Size == 0 {
		t.Fatal("expected non-zero size for uint32")
	}
	if info.String() != "u32" {
		t.Fatalf("String() = %q, want %q", info.String(), "u32")
	}
}

func TestDropNoopWithoutFn(t *testing.T) {
	info := Of[uint32]()
	// Must not panic even though no drop fn was supplied.
	info.Drop(nil)
}

func TestCloneUndefinedPanics(t *testing.T) {
	info := Of[string]()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic for undefined clone")
		}
		if _, ok := r.(*UndefinedErr); !ok {
			t.Fatalf("expected *UndefinedErr, got %T", r)
		}
	}()
	var a, b string
	info.Clone(unsafe.Pointer(&a), unsafe.Pointer(&b))
}

func TestPartialEqDefined(t *testing.T) {
	info := Of[int](WithPartialEq(func(a, b unsafe.Pointer) bool {
		return *(*int)(a) == *(*int)(b)
	}))
	x, y := 5, 5
	if !info.PartialEq(unsafe.Pointer(&x), unsafe.Pointer(&y)) {
		t.Fatal("expected equal ints to compare equal")
	}
	z := 6
	if info.PartialEq(unsafe.Pointer(&x), unsafe.Pointer(&z)) {
		t.Fatal("expected different ints to compare unequal")
	}
}

func TestDistinctIDs(t *testing.T) {
	a := Of[int8]()
	b := Of[int16]()
	if a.ID == b.ID {
		t.Fatal("expected distinct type ids")
	}
}
