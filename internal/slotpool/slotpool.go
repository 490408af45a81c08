package slotpool

import (
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/cpu"
)

// Pool is a free list of equally-sized, equally-aligned storage slots,
// adapted from the teacher's sync.Pool-alike Pool[T]: a per-P local shard
// (private slot + a chain of lock-free rings) plus a victim generation
// that is recycled on GC the way sync.Pool recycles across GC cycles.
//
// internal/storage keeps one Pool per distinct (size, align) layout it has
// ever allocated, and draws/returns freed slot addresses through it instead
// of calling the allocator on every put/get cycle.
//
// Unlike the teacher's Pool[T], access here is already serialized by the
// coordination runtime's single protocol lock (spec.md §5: "only the
// coordinator ... allocates and frees"), so the per-P sharding is strictly
// an optimization against cache-line contention between cores running the
// lock, not a correctness requirement; the algorithm is kept byte-for-byte
// faithful to the teacher regardless, since it costs nothing extra and is
// the whole point of reusing it.
type Pool struct {
	noCopy noCopy

	local     unsafe.Pointer // *[]poolLocal
	localSize uintptr

	victim     unsafe.Pointer // *[]poolLocal, previous cycle
	victimSize uintptr
}

type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

type poolLocalInternal struct {
	private unsafe.Pointer
	shared  chain
}

type poolLocal struct {
	poolLocalInternal
	_ [cacheLinePad - unsafe.Sizeof(poolLocalInternal{})%cacheLinePad]byte
}

const cacheLinePad = unsafe.Sizeof(cpu.CacheLinePad{})

// Put returns ptr to the pool for future reuse. ptr must not be used again
// by the caller.
func (p *Pool) Put(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	l := p.pin()
	if l.private == nil {
		l.private = ptr
	} else {
		l.shared.pushHead(ptr)
	}
	procUnpin()
}

// Get removes and returns an arbitrary slot from the pool, or nil if none
// is available.
func (p *Pool) Get() unsafe.Pointer {
	l := p.pin()
	ptr := l.private
	l.private = nil
	if ptr == nil {
		if ptr, _ = l.shared.popHead(); ptr == nil {
			ptr = p.getSlow()
		}
	}
	procUnpin()
	return ptr
}

func (p *Pool) getSlow() unsafe.Pointer {
	size := atomic.LoadUintptr(&p.localSize)
	locals := p.local
	pid := pid()

	for i := 0; i < int(size); i++ {
		l := indexLocal(locals, (pid+i+1)%int(size))
		if ptr, ok := l.shared.popTail(); ok {
			return ptr
		}
	}

	size = atomic.LoadUintptr(&p.victimSize)
	if uintptr(pid) >= size {
		return nil
	}
	locals = p.victim
	l := indexLocal(locals, pid)
	if l.private != nil {
		ptr := l.private
		l.private = nil
		return ptr
	}
	for i := 0; i < int(size); i++ {
		l := indexLocal(locals, (pid+i)%int(size))
		if ptr, ok := l.shared.popTail(); ok {
			return ptr
		}
	}

	atomic.StoreUintptr(&p.victimSize, 0)
	return nil
}

func (p *Pool) pin() *poolLocal {
	id := procPin()
	s := atomic.LoadUintptr(&p.localSize)
	l := p.local
	if uintptr(id) < s {
		return indexLocal(l, id)
	}
	return p.pinSlow()
}

func (p *Pool) pinSlow() *poolLocal {
	procUnpin()
	allPoolsMu.Lock()
	defer allPoolsMu.Unlock()

	id := procPin()
	s := p.localSize
	l := p.local
	if uintptr(id) < s {
		return indexLocal(l, id)
	}
	if p.local == nil {
		allPools = append(allPools, p)
	}
	size := runtime.GOMAXPROCS(0)
	local := make([]poolLocal, size)
	atomic.StorePointer(&p.local, unsafe.Pointer(&local[0]))
	atomic.StoreUintptr(&p.localSize, uintptr(size))
	return &local[id]
}

func indexLocal(l unsafe.Pointer, i int) *poolLocal {
	return (*poolLocal)(unsafe.Add(l, uintptr(i)*unsafe.Sizeof(poolLocal{})))
}

func pid() int {
	id := procPin()
	procUnpin()
	return id
}

var (
	allPoolsMu sync.Mutex
	allPools   []*Pool
	oldPools   []*Pool
)

// DropStale moves every pool's local cache to its victim generation and
// discards the previous victim generation, mirroring sync.Pool's GC-driven
// poolCleanup. internal/storage calls this from its own explicit
// maintenance hook rather than a GC callback, since a coordination runtime
// has no business reaching into the garbage collector's cleanup list for
// what is, here, a bounded and explicitly owned set of slots.
func DropStale() {
	allPoolsMu.Lock()
	defer allPoolsMu.Unlock()

	for _, p := range oldPools {
		p.victim = nil
		p.victimSize = 0
	}
	for _, p := range allPools {
		p.victim = p.local
		p.victimSize = p.localSize
		p.local = nil
		p.localSize = 0
	}
	oldPools, allPools = allPools, nil
}
