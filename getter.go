package proto

import (
	"time"
	"unsafe"

	"github.com/NikoMalik/reoproto/internal/typeinfo"
)

// Getter is a claimed PortGetter location, typed to the Go type it was
// claimed with (spec.md §6).
type Getter[T any] struct {
	proto *ProtoAll
	id    LocId
	space *PoGeSpace
	info  *typeinfo.Info
}

// Id returns the underlying LocId, for use with PortGroup.
func (g *Getter[T]) Id() LocId { return g.id }

// Get blocks until some rule fires an action assigning this getter a
// value, by move or clone, and returns it (spec.md §4.2).
func (g *Getter[T]) Get() T {
	var out T
	g.space.SetDest(unsafe.Pointer(&out))
	g.proto.coordinate(g.id)
	g.space.Dropbox.Recv()
	g.space.AcquireData()
	return out
}

// GetSignal blocks until some rule fires an action assigning this getter
// a role, but never acquires the datum itself (spec.md §6 "get_signal()",
// glossary "Signal"). Unlike Get, this never requires the putter's type to
// define a clone function, since no data is ever copied into this getter.
func (g *Getter[T]) GetSignal() {
	g.space.SetDest(nil)
	g.proto.coordinate(g.id)
	g.space.Dropbox.Recv()
	g.space.AcquireData()
}

// GetSignalTimeout attempts a GetSignal, giving up if no rule fires
// within d. Reports whether the firing happened.
func (g *Getter[T]) GetSignalTimeout(d time.Duration) bool {
	g.space.SetDest(nil)
	g.proto.coordinate(g.id)
	if _, ok := g.space.Dropbox.RecvTimeout(d); ok {
		g.space.AcquireData()
		return true
	}
	return g.withdraw()
}

// GetTimeout attempts a Get, giving up if no rule fires within d.
func (g *Getter[T]) GetTimeout(d time.Duration) (T, bool) {
	var out T
	g.space.SetDest(unsafe.Pointer(&out))
	g.proto.coordinate(g.id)
	if _, ok := g.space.Dropbox.RecvTimeout(d); ok {
		g.space.AcquireData()
		return out, true
	}
	if g.withdraw() {
		return out, true
	}
	var zero T
	return zero, false
}

func (g *Getter[T]) withdraw() bool {
	g.proto.w.mu.Lock()
	if g.space.Dropbox.Armed() {
		g.proto.w.mu.Unlock()
		g.space.Dropbox.Recv()
		g.space.AcquireData()
		return true
	}
	g.proto.w.ready.Clear(int(g.id))
	g.proto.w.metrics.TimedOut.Add(1)
	g.proto.w.mu.Unlock()
	g.space.SetDest(nil)
	return false
}

// Close drops this handle, returning the location to the protocol's
// unclaimed registry (spec.md §6).
func (g *Getter[T]) Close() error {
	g.proto.release(g.id)
	return nil
}
