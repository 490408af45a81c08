package storage

import (
	"testing"
	"unsafe"

	"github.com/NikoMalik/reoproto/internal/typeinfo"
)

func TestAllocFreeReuse(t *testing.T) {
	a := NewArena()
	info := typeinfo.Of[uint64](typeinfo.WithName("u64"))

	p1 := a.Alloc(info)
	*(*uint64)(p1) = 0xdeadbeef
	a.Free(info, p1)

	p2 := a.Alloc(info)
	if got := *(*uint64)(p2); got != 0 {
		t.Fatalf("reused slot not zeroed: got %x", got)
	}
}

func TestMoveOutCopiesBytes(t *testing.T) {
	a := NewArena()
	info := typeinfo.Of[uint32](typeinfo.WithName("u32"))

	var src uint32 = 7
	dst := a.MoveOut(info, unsafe.Pointer(&src))
	if got := *(*uint32)(dst); got != 7 {
		t.Fatalf("MoveOut() value = %d, want 7", got)
	}
}

func TestCloneInto(t *testing.T) {
	a := NewArena()
	var cloned int
	info := typeinfo.Of[int](typeinfo.WithClone(func(src, dst unsafe.Pointer) {
		*(*int)(dst) = *(*int)(src)
		cloned++
	}))

	var src = 5
	dst := a.CloneInto(info, unsafe.Pointer(&src))
	if got := *(*int)(dst); got != 5 {
		t.Fatalf("CloneInto() value = %d, want 5", got)
	}
	if cloned != 1 {
		t.Fatalf("clone invoked %d times, want 1", cloned)
	}
}

func TestFreeInvokesDrop(t *testing.T) {
	a := NewArena()
	drops := 0
	// typeinfo.Of clears drop for pointer-free types, so build the layout
	// directly to keep the drop function attached.
	info := typeinfo.New(unsafe.Sizeof(int(0)), unsafe.Alignof(int(0)), typeinfo.WithDrop(func(unsafe.Pointer) { drops++ }))

	p := a.Alloc(info)
	a.Free(info, p)
	if drops != 1 {
		t.Fatalf("drop invoked %d times, want 1", drops)
	}
}
