package dropbox

import (
	"time"
	_ "unsafe" // for go:linkname
)

// The following three functions are the teacher's lib_golang.go trick,
// reused verbatim: a go:linkname into the runtime's internal semaphore
// implementation, the same primitive sync.Mutex and sync.WaitGroup are
// built on. The teacher borrows it to pin/unpin a P; we borrow the
// semaphore half only, to park exactly one goroutine per Dropbox.
//
// Do not remove or change these signatures — like the teacher's own
// poolCleanup comment notes, several widely used packages (and the Go
// runtime itself) link against this exact symbol set, so it is stable in
// practice even though it is not part of the Go 1 compatibility promise.

//go:linkname runtimeSemacquire0 sync.runtime_Semacquire
func runtimeSemacquire0(s *uint32)

//go:linkname runtimeSemrelease0 sync.runtime_Semrelease
func runtimeSemrelease0(s *uint32, handoff bool, skipframes int)

func runtimeSemacquire(s *uint32) {
	runtimeSemacquire0(s)
}

func runtimeSemrelease(s *uint32) {
	runtimeSemrelease0(s, false, 0)
}

// runtimeSemacquireTimeout is not a runtime primitive: the linknamed
// semaphore has no timeout variant exposed through sync. For the bounded
// wait used by RecvTimeout's backstop poll, we fall back to a short sleep;
// the real wakeup path is still the semaphore release in Send, which this
// call races against on each iteration of RecvTimeout's loop.
func runtimeSemacquireTimeout(s *uint32, d time.Duration) {
	time.Sleep(d)
}

// Semacquire and Semrelease expose this package's linknamed runtime
// semaphore primitive to other internal packages that need a raw
// park/wake signal of their own rather than Dropbox's one-slot-message
// contract (spec.md §3 "mover_sema").
func Semacquire(s *uint32) { runtimeSemacquire(s) }
func Semrelease(s *uint32) { runtimeSemrelease(s) }
