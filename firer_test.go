package proto

import (
	"testing"
	"unsafe"

	"github.com/NikoMalik/reoproto/internal/typeinfo"
)

// TestMemoryReplicationRefcountAndSingleDrop is scenario B4: two mem-getters
// of one memory putter alias the same allocation instead of each getting
// their own copy, the refcount equals the number of distinct getters, and
// the allocation is dropped exactly once — whenever the last reference
// drains, whether that drain is a clone (refcount still shared) or the
// final move (refcount hits zero).
func TestMemoryReplicationRefcountAndSingleDrop(t *testing.T) {
	const (
		locSrc LocId = iota
		locA
		locB
		locGetA
		locGetB
		numLocs
	)
	var drops int
	info := typeinfo.New(unsafe.Sizeof(int(0)), 8,
		typeinfo.WithDrop(func(ptr unsafe.Pointer) { drops++ }),
		typeinfo.WithClone(func(src, dst unsafe.Pointer) { *(*int)(dst) = *(*int)(src) }),
	)
	def := NewProtoDef(int(numLocs)).
		SetKind(locSrc, MemInitialized).SetType(locSrc, info).
		SetKind(locA, MemUninitialized).SetType(locA, info).
		SetKind(locB, MemUninitialized).SetType(locB, info).
		SetKind(locGetA, PortGetter).SetType(locGetA, info).
		SetKind(locGetB, PortGetter).SetType(locGetB, info).
		SetMemFill(locSrc, func(out unsafe.Pointer) { *(*int)(out) = 42 }).
		AddRule(RuleDef{
			Guard:   GuardTrue{},
			Actions: []ActionDef{{Putter: locSrc, Getters: []LocId{locA, locB}}},
		}).
		AddRule(RuleDef{
			Guard:   GuardTrue{},
			Actions: []ActionDef{{Putter: locA, Getters: []LocId{locGetA}}},
		}).
		AddRule(RuleDef{
			Guard:   GuardTrue{},
			Actions: []ActionDef{{Putter: locB, Getters: []LocId{locGetB}}},
		})

	h, err := Build(def)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	l := h.Lock()
	l.ExhaustRules()
	l.Unlock()

	if h.w.memoryBits.Test(int(locSrc)) {
		t.Fatal("source cell should be emptied")
	}
	if !h.w.memoryBits.Test(int(locA)) || !h.w.memoryBits.Test(int(locB)) {
		t.Fatal("both replicas should be full")
	}
	ptrA := h.r.memoSpaces[locA].Ptr()
	ptrB := h.r.memoSpaces[locB].Ptr()
	if ptrA != ptrB {
		t.Fatal("both mem-getters should alias the same allocation, not separate copies")
	}
	if got := h.w.memRefs[ptrA]; got != 2 {
		t.Fatalf("expected refcount 2, got %d", got)
	}

	_, getA, _ := Claim[int](h, locGetA)
	_, getB, _ := Claim[int](h, locGetB)

	va := getA.Get()
	if drops != 0 {
		t.Fatalf("drop should not happen while the other replica still holds a reference, got %d", drops)
	}
	vb := getB.Get()
	if va != 42 || vb != 42 {
		t.Fatalf("got %d,%d want 42,42", va, vb)
	}
	if drops != 1 {
		t.Fatalf("expected exactly one drop once both replicas drain, got %d", drops)
	}
}

// TestMemorySelfLoopNoOp is scenario B3: a self-loop memory action leaves
// the cell's refcount and bytes untouched, and the cell remains full.
func TestMemorySelfLoopNoOp(t *testing.T) {
	const (
		locM LocId = iota
		numLocs
	)
	info := typeinfo.Of[int]()
	def := NewProtoDef(int(numLocs)).
		SetKind(locM, MemInitialized).SetType(locM, info).
		SetMemFill(locM, func(out unsafe.Pointer) { *(*int)(out) = 7 }).
		AddRule(RuleDef{
			Guard:   GuardTrue{},
			Actions: []ActionDef{{Putter: locM, Getters: []LocId{locM}}},
		})

	h, err := Build(def)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	origPtr := h.r.memoSpaces[locM].Ptr()

	l := h.Lock()
	l.ExhaustRules()
	l.Unlock()

	if !h.w.memoryBits.Test(int(locM)) {
		t.Fatal("self-loop cell should remain full")
	}
	if h.r.memoSpaces[locM].Ptr() != origPtr {
		t.Fatal("self-loop must not change the cell's pointer")
	}
	if got := h.w.memRefs[origPtr]; got != 1 {
		t.Fatalf("self-loop must not change the refcount, got %d", got)
	}
	if *(*int)(origPtr) != 7 {
		t.Fatal("self-loop must not change the bytes")
	}
}

// TestPutIntoSingleMemoryGetterMoves is scenario B1: zero port-getters and
// one memory-getter moves the payload, and the putter is told "moved".
func TestPutIntoSingleMemoryGetterMoves(t *testing.T) {
	const (
		locP LocId = iota
		locM
		numLocs
	)
	info := typeinfo.Of[int]()
	def := NewProtoDef(int(numLocs)).
		SetKind(locP, PortPutter).SetType(locP, info).
		SetKind(locM, MemUninitialized).SetType(locM, info).
		AddRule(RuleDef{
			Guard:   GuardTrue{},
			Actions: []ActionDef{{Putter: locP, Getters: []LocId{locM}}},
		})

	h, err := Build(def)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	putter, _, _ := Claim[int](h, locP)

	if _, moved := putter.Put(99); !moved {
		t.Fatal("expected the value to be moved into the memory cell")
	}
	if !h.w.memoryBits.Test(int(locM)) {
		t.Fatal("memory getter should be full after the move")
	}
	if got := h.Stats().MovesPerformed; got != 1 {
		t.Fatalf("expected one move, got %d", got)
	}
	if got := *(*int)(h.r.memoSpaces[locM].Ptr()); got != 99 {
		t.Fatalf("got %d, want 99", got)
	}
}

// TestMemoryPutterZeroGettersDrops is half of scenario B2: a memory
// putter firing with zero getters drops its contents exactly once.
func TestMemoryPutterZeroGettersDrops(t *testing.T) {
	const (
		locM LocId = iota
		numLocs
	)
	var drops int
	info := typeinfo.New(unsafe.Sizeof(int(0)), 8,
		typeinfo.WithDrop(func(ptr unsafe.Pointer) { drops++ }),
	)
	def := NewProtoDef(int(numLocs)).
		SetKind(locM, MemInitialized).SetType(locM, info).
		SetMemFill(locM, func(out unsafe.Pointer) { *(*int)(out) = 1 }).
		AddRule(RuleDef{
			Guard:   GuardTrue{},
			Actions: []ActionDef{{Putter: locM}},
		})

	h, err := Build(def)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	l := h.Lock()
	l.ExhaustRules()
	l.Unlock()

	if h.w.memoryBits.Test(int(locM)) {
		t.Fatal("cell should be emptied")
	}
	if drops != 1 {
		t.Fatalf("expected exactly one drop, got %d", drops)
	}
}

// TestSignalGettersSkipDataCopy is scenario S4: getters that only signal
// never invoke clone and never touch the destination buffer, regardless
// of which one wins move duty internally.
func TestSignalGettersSkipDataCopy(t *testing.T) {
	const (
		locP LocId = iota
		locG1
		locG2
		numLocs
	)
	var cloneCalls int
	info := typeinfo.Of[int](typeinfo.WithClone(func(src, dst unsafe.Pointer) {
		cloneCalls++
		*(*int)(dst) = *(*int)(src)
	}))
	def := NewProtoDef(int(numLocs)).
		SetKind(locP, PortPutter).SetType(locP, info).
		SetKind(locG1, PortGetter).SetType(locG1, info).
		SetKind(locG2, PortGetter).SetType(locG2, info).
		AddRule(RuleDef{
			Guard:   GuardTrue{},
			Actions: []ActionDef{{Putter: locP, Getters: []LocId{locG1, locG2}}},
		})

	h, err := Build(def)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	putter, _, _ := Claim[int](h, locP)
	_, g1, _ := Claim[int](h, locG1)
	_, g2, _ := Claim[int](h, locG2)

	done1 := make(chan struct{})
	done2 := make(chan struct{})
	go func() { g1.GetSignal(); close(done1) }()
	go func() { g2.GetSignal(); close(done2) }()

	if _, moved := putter.Put(5); !moved {
		t.Fatal("expected the value to be moved")
	}
	<-done1
	<-done2
	if cloneCalls != 0 {
		t.Fatalf("signal getters must never invoke clone, got %d calls", cloneCalls)
	}
}

// TestSignalOnlyPortPutterDropsSource is the drop-side counterpart of
// TestSignalGettersSkipDataCopy: when every port-getter in a port-putter
// firing only signals (no destination buffer), nobody ever reads the
// putter's own source datum, so it must still be destroyed exactly once
// rather than silently leaked (spec.md §4.3, property P3).
func TestSignalOnlyPortPutterDropsSource(t *testing.T) {
	const (
		locP LocId = iota
		locG1
		locG2
		numLocs
	)
	var drops int
	info := typeinfo.New(unsafe.Sizeof(int(0)), 8,
		typeinfo.WithDrop(func(ptr unsafe.Pointer) { drops++ }),
		// Build requires a clone for any action with two getters.
		typeinfo.WithClone(func(src, dst unsafe.Pointer) { *(*int)(dst) = *(*int)(src) }),
	)
	def := NewProtoDef(int(numLocs)).
		SetKind(locP, PortPutter).SetType(locP, info).
		SetKind(locG1, PortGetter).SetType(locG1, info).
		SetKind(locG2, PortGetter).SetType(locG2, info).
		AddRule(RuleDef{
			Guard:   GuardTrue{},
			Actions: []ActionDef{{Putter: locP, Getters: []LocId{locG1, locG2}}},
		})

	h, err := Build(def)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	putter, _, _ := Claim[int](h, locP)
	_, g1, _ := Claim[int](h, locG1)
	_, g2, _ := Claim[int](h, locG2)

	done1 := make(chan struct{})
	done2 := make(chan struct{})
	go func() { g1.GetSignal(); close(done1) }()
	go func() { g2.GetSignal(); close(done2) }()

	if _, moved := putter.Put(5); !moved {
		t.Fatal("expected the value to be reported moved")
	}
	<-done1
	<-done2
	if drops != 1 {
		t.Fatalf("expected the unread source datum to be dropped exactly once, got %d", drops)
	}
}
