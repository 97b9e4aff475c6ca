package session

import "time"

// RecoveryBean is the recovery state handed from an outgoing Session to
// the incoming Session that replaces it, per spec.md §3. It lets the new
// Session decide between a bind_session "recover" (resuming the old
// session id from the last received progressive) and a fresh
// create_session.
type RecoveryBean struct {
	SessionID          string
	LastProgressive    int64
	TimeBudgetRemaining time.Duration
	Recovery           bool
}

// eligible reports whether this bean is usable for a recover attempt: a
// session id must be present, some time budget must remain, and the prior
// Session must have actually flagged itself as recoverable.
func (b *RecoveryBean) eligible() bool {
	return b != nil && b.Recovery && b.SessionID != "" && b.TimeBudgetRemaining > 0
}
