package slotpool

import _ "unsafe" // for go:linkname

// Reused verbatim from the teacher's lib_golang.go: a go:linkname into the
// runtime's P-pinning primitives, giving each goroutine a stable small
// integer shard index for the lifetime of one Get/Put call without
// disabling preemption any more than sync.Pool itself does.

//go:linkname procPin runtime.procPin
func procPin() int

//go:linkname procUnpin runtime.procUnpin
func procUnpin()
