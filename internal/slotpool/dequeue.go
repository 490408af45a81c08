// Package slotpool implements the per-type-layout free list that
// internal/storage draws released allocations from.
//
// It is adapted wholesale from the teacher's pool.go/pool_queue.go: a
// per-P sharded, lock-free dequeue-of-dequeues (fixed-size ring buffers
// chained and doubled in size as they fill) with a generational victim
// cache. The teacher instantiates this structure generically over an
// arbitrary value type T; here it is fixed to unsafe.Pointer (the address
// of a released storage slot), so the generic-nil trick the teacher needs
// (isNil[T] via reflect) is replaced with a direct `== nil` comparison —
// see DESIGN.md for why that simplification doesn't drop any load-bearing
// behavior.
package slotpool

import (
	"sync/atomic"
	"unsafe"
)

// dequeueBits matches the teacher's pool_queue.go exactly: packing a
// head and tail index into one atomic word, with room to spare for
// wraparound detection.
const dequeueBits = 32

// dequeueLimit is the largest a single ring may grow to before the chain
// starts a fresh ring instead of doubling further, identical reasoning to
// the teacher's comment: it must stay under (1<<dequeueBits)/2 so fullness
// detection doesn't wrap around the index space.
const dequeueLimit = (1 << dequeueBits) / 4

// dequeue is a lock-free fixed-size single-producer, multi-consumer ring
// of slot pointers. The single producer may push/pop from the head;
// consumers may pop from the tail.
type dequeue struct {
	headTail atomic.Uint64
	vals     []atomic.Pointer[byte]
}

func (d *dequeue) unpack(ptrs uint64) (head, tail uint32) {
	const mask = 1<<dequeueBits - 1
	head = uint32((ptrs >> dequeueBits) & mask)
	tail = uint32(ptrs & mask)
	return
}

func (d *dequeue) pack(head, tail uint32) uint64 {
	const mask = 1<<dequeueBits - 1
	return (uint64(head) << dequeueBits) | uint64(tail&mask)
}

// pushHead adds ptr at the head of the ring. Returns false if full. Must
// only be called by a single producer (the pool's pinned-P owner).
func (d *dequeue) pushHead(ptr unsafe.Pointer) bool {
	ptrs := d.headTail.Load()
	head, tail := d.unpack(ptrs)

	if (tail+uint32(len(d.vals)))&(1<<dequeueBits-1) == head {
		return false
	}

	slot := &d.vals[head&uint32(len(d.vals)-1)]
	if slot.Load() != nil {
		return false
	}
	slot.Store((*byte)(ptr))
	d.headTail.Add(1 << dequeueBits)
	return true
}

// popHead removes and returns the ring's head element. Single producer
// only.
func (d *dequeue) popHead() (unsafe.Pointer, bool) {
	var slot *atomic.Pointer[byte]
	for {
		ptrs := d.headTail.Load()
		head, tail := d.unpack(ptrs)
		if tail == head {
			return nil, false
		}
		head--
		ptrs2 := d.pack(head, tail)
		if d.headTail.CompareAndSwap(ptrs, ptrs2) {
			slot = &d.vals[head&uint32(len(d.vals)-1)]
			break
		}
	}
	val := slot.Swap(nil)
	if val == nil {
		return nil, false
	}
	return unsafe.Pointer(val), true
}

// popTail removes and returns the ring's tail element. May be called by
// any number of consumers concurrently.
func (d *dequeue) popTail() (unsafe.Pointer, bool) {
	var slot *atomic.Pointer[byte]
	for {
		ptrs := d.headTail.Load()
		head, tail := d.unpack(ptrs)
		if tail == head {
			return nil, false
		}
		ptrs2 := d.pack(head, tail+1)
		if d.headTail.CompareAndSwap(ptrs, ptrs2) {
			slot = &d.vals[tail&uint32(len(d.vals)-1)]
			break
		}
	}
	val := slot.Swap(nil)
	if val == nil {
		return nil, false
	}
	return unsafe.Pointer(val), true
}

// chain is a dynamically sized version of dequeue: a doubly-linked list of
// rings, each double the size of the last, so the producer never blocks on
// a full ring. Pushes always land in the newest ring; pops from the tail
// drain and then discard exhausted rings.
type chainElt struct {
	dequeue
	next, prev atomic.Pointer[chainElt]
}

type chain struct {
	head *chainElt
	tail atomic.Pointer[chainElt]
}

func (c *chain) pushHead(ptr unsafe.Pointer) {
	d := c.head
	if d == nil {
		const initSize = 8
		d = &chainElt{}
		d.vals = make([]atomic.Pointer[byte], initSize)
		c.head = d
		c.tail.Store(d)
	}
	if d.pushHead(ptr) {
		return
	}

	newSize := len(d.vals) << 1
	if newSize >= dequeueLimit {
		newSize = dequeueLimit
	}
	d2 := &chainElt{}
	d2.prev.Store(d)
	d2.vals = make([]atomic.Pointer[byte], newSize)
	c.head = d2
	d.next.Store(d2)
	d2.pushHead(ptr)
}

func (c *chain) popHead() (unsafe.Pointer, bool) {
	d := c.head
	for d != nil {
		if val, ok := d.popHead(); ok {
			return val, true
		}
		d = d.prev.Load()
	}
	return nil, false
}

func (c *chain) popTail() (unsafe.Pointer, bool) {
	d := c.tail.Load()
	if d == nil {
		return nil, false
	}
	for {
		d2 := d.next.Load()
		if val, ok := d.popTail(); ok {
			return val, true
		}
		if d2 == nil {
			return nil, false
		}
		if c.tail.CompareAndSwap(d, d2) {
			d2.prev.Store(nil)
		}
		d = d2
	}
}
