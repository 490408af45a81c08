package proto

import (
	"time"
	"unsafe"

	"github.com/NikoMalik/reoproto/internal/typeinfo"
)

// Putter is a claimed PortPutter location, typed to the Go type it was
// claimed with (spec.md §6).
type Putter[T any] struct {
	proto *ProtoAll
	id    LocId
	space *PoPuSpace
	info  *typeinfo.Info
}

// Id returns the underlying LocId, for use with PortGroup.
func (p *Putter[T]) Id() LocId { return p.id }

// Put publishes v and blocks until some rule consumes it (spec.md §4.2,
// §6 "put(T) → Option<T>"). It reports whether v was moved: true means
// some getter took ownership of v (the zero value is returned in its
// place); false means the rule fired with zero getters, so v was merely
// observed and is handed back to the caller untouched.
func (p *Putter[T]) Put(v T) (T, bool) {
	p.space.SetPtr(unsafe.Pointer(&v))
	p.proto.coordinate(p.id)
	msg := p.space.Dropbox.Recv()
	if msg == outcomeMoved {
		var zero T
		return zero, true
	}
	return v, false
}

// PutOutcome is the three-way result of PutTimeout (spec.md §6
// "put_timeout(T, duration) → { Moved | Observed(T) | Timeout(T) }").
type PutOutcome int

const (
	// PutMoved: some getter took ownership of the value.
	PutMoved PutOutcome = iota
	// PutObserved: the rule fired with zero getters; the value is handed
	// back unchanged.
	PutObserved
	// PutTimedOut: no rule consumed the value within the deadline; the
	// value is handed back unchanged and participation was withdrawn.
	PutTimedOut
)

// PutTimeout attempts to put v, but gives up and withdraws participation
// if no rule consumes it within d.
func (p *Putter[T]) PutTimeout(v T, d time.Duration) (T, PutOutcome) {
	p.space.SetPtr(unsafe.Pointer(&v))
	p.proto.coordinate(p.id)
	msg, ok := p.space.Dropbox.RecvTimeout(d)
	if !ok {
		var fired bool
		msg, fired = p.withdraw()
		if !fired {
			return v, PutTimedOut
		}
	}
	if msg == outcomeMoved {
		var zero T
		return zero, PutMoved
	}
	return v, PutObserved
}

// withdraw clears this putter's readiness if it is still pending,
// re-checking under the lock for a firing that raced ahead of the
// timeout (spec.md §5: a firing, once started, always completes). A
// cleared ready bit means a firing already took this put, so withdraw
// then waits for its outcome. Reports the eventual dropbox message and
// whether a firing did in fact claim this put before the withdrawal could
// take effect.
func (p *Putter[T]) withdraw() (uint64, bool) {
	p.proto.w.mu.Lock()
	if !p.proto.w.ready.Test(int(p.id)) {
		p.proto.w.mu.Unlock()
		return p.space.Dropbox.Recv(), true
	}
	p.proto.w.ready.Clear(int(p.id))
	p.proto.w.metrics.TimedOut.Add(1)
	p.proto.w.mu.Unlock()
	p.space.ClearPtr()
	return 0, false
}

// Close drops this handle, returning the location to the protocol's
// unclaimed registry (spec.md §6).
func (p *Putter[T]) Close() error {
	p.proto.release(p.id)
	return nil
}
