// Package metrics restores the in-process diagnostic counters present in
// the original implementation's logic.rs/proto.rs (firings attempted,
// committed, timed out, clones/moves performed) that spec.md's distillation
// dropped. There is no export surface (Prometheus, expvar, ...) — spec.md's
// Non-goals exclude that, not the counters themselves.
package metrics

import "sync/atomic"

// Counters holds atomic counters updated by the coordinator and firer.
// The zero value is ready to use.
type Counters struct {
	RulesScanned    atomic.Uint64
	Fired           atomic.Uint64
	Committed       atomic.Uint64
	TimedOut        atomic.Uint64
	ClonesPerformed atomic.Uint64
	MovesPerformed  atomic.Uint64
	SignalsSent     atomic.Uint64
}

// Snapshot is a point-in-time, non-atomic copy of Counters for reporting.
type Snapshot struct {
	RulesScanned    uint64
	Fired           uint64
	Committed       uint64
	TimedOut        uint64
	ClonesPerformed uint64
	MovesPerformed  uint64
	SignalsSent     uint64
}

// Snapshot reads every counter. Individual loads are not mutually atomic
// with each other, which is fine for a diagnostics surface.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		RulesScanned:    c.RulesScanned.Load(),
		Fired:           c.Fired.Load(),
		Committed:       c.Committed.Load(),
		TimedOut:        c.TimedOut.Load(),
		ClonesPerformed: c.ClonesPerformed.Load(),
		MovesPerformed:  c.MovesPerformed.Load(),
		SignalsSent:     c.SignalsSent.Load(),
	}
}
