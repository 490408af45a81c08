// Package dropbox implements the one-slot rendezvous channel (spec.md §3,
// "MsgDropbox") used to park a port thread and later deliver it exactly one
// uint64 instruction. The coordinator sends a putter its move/observed
// flag; a getter's message is only a wakeup, since the getter's source is
// published separately through PoGeSpace.SetAcquire.
//
// The parking primitive is the teacher's own trick in lib_golang.go: a
// go:linkname into the runtime's internal semaphore
// (runtime_Semacquire/runtime_Semrelease), the same pair the teacher
// borrows to implement P-pinning. Here it parks a goroutine waiting for
// exactly one wakeup instead of pinning a P.
package dropbox

import (
	"sync/atomic"
	"time"
)

// empty is the sentinel "no message yet" slot value. Messages are stored
// unchanged, so 0 and 1 stay usable as the OBSERVED/MOVED payload
// (spec.md §4.3); the all-ones word is reserved and is never a valid
// message.
const empty uint64 = ^uint64(0)

// Dropbox is a single-producer, single-consumer, single-message mailbox.
// Exactly one Send may occur between a Recv beginning and returning; Send
// on an already-filled, unconsumed Dropbox is a protocol bug (panics).
//
// Not safe for concurrent Send calls, nor concurrent Recv calls: the
// coordinator's single lock (spec.md §5) ensures only one Send is ever
// in flight per Dropbox, and each Dropbox belongs to exactly one port
// thread which is the sole caller of Recv.
type Dropbox struct {
	slot atomic.Uint64
	sema uint32
}

// New returns a ready-to-use, empty Dropbox.
func New() *Dropbox {
	d := &Dropbox{}
	d.slot.Store(empty)
	return d
}

// Send delivers msg to the dropbox and wakes any goroutine parked in Recv.
// Panics if a message is already pending (the previous recipient hasn't
// consumed it yet) — this is the "dropbox received unexpected message"
// class of runtime misuse in spec.md §7, surfaced here on the sender side
// since a double-send is exactly as much a protocol bug as a double-recv.
func (d *Dropbox) Send(msg uint64) {
	if !d.slot.CompareAndSwap(empty, msg) {
		panic("dropbox: Send on a dropbox with an unconsumed message")
	}
	runtimeSemrelease(&d.sema)
}

// Recv blocks until a message is delivered, consumes it, and returns it.
func (d *Dropbox) Recv() uint64 {
	for {
		if msg, ok := d.tryTake(); ok {
			return msg
		}
		runtimeSemacquire(&d.sema)
	}
}

// RecvTimeout blocks until a message is delivered or the timeout elapses.
// On timeout, ok is false and the dropbox is left armed for the eventual
// real message (the caller is expected to race re-checking its own
// readiness bit under the protocol lock, per spec.md §4.3 step 3).
func (d *Dropbox) RecvTimeout(timeout time.Duration) (msg uint64, ok bool) {
	if msg, ok := d.tryTake(); ok {
		return msg, true
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	done := make(chan uint64, 1)
	stop := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if msg, ok := d.tryTake(); ok {
				done <- msg
				return
			}
			runtimeSemacquireTimeout(&d.sema, 2*time.Millisecond)
		}
	}()
	select {
	case msg := <-done:
		return msg, true
	case <-deadline.C:
		close(stop)
		<-exited
		// The poller may have taken a message just before it saw stop.
		select {
		case msg := <-done:
			return msg, true
		default:
			return 0, false
		}
	}
}

func (d *Dropbox) tryTake() (uint64, bool) {
	for {
		v := d.slot.Load()
		if v == empty {
			return 0, false
		}
		if d.slot.CompareAndSwap(v, empty) {
			return v, true
		}
	}
}

// Armed reports whether a message is currently pending. Used by a timed
// out Put/Get to check, under the protocol lock, whether a firing raced
// ahead of the timeout before the caller gives up and withdraws.
func (d *Dropbox) Armed() bool {
	return d.slot.Load() != empty
}
