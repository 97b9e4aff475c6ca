package session

import "sync/atomic"

// Phase is the cancellation token described by spec.md §4.C/§5: it
// increments on every material state change, and any callback or scheduled
// task stamped with a stale phase is dropped without side effect instead of
// being explicitly cancelled. This is the sole mechanism the session thread
// uses to defeat stale-task hazards, so it deliberately does not use
// mutexes or context.Context cancellation.
type Phase struct {
	v atomic.Int64
}

// Current returns the live phase value.
func (p *Phase) Current() int64 {
	return p.v.Load()
}

// Advance increments the phase and returns the new value. Called by the
// state transitions in manager.go.
func (p *Phase) Advance() int64 {
	return p.v.Add(1)
}

// Valid reports whether stamped (a phase captured earlier, e.g. when a
// timer was scheduled or a transport callback was registered) still
// matches the current phase. A false result means the caller must drop
// whatever it was about to do.
func (p *Phase) Valid(stamped int64) bool {
	return p.v.Load() == stamped
}
