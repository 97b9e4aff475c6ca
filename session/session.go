package session

import "time"

// sessionInfo is the identity and accounting state of one server-assigned
// session, per spec.md component C / §3. It is replaced wholesale on
// every create_session (never mutated field-by-field across a turnover),
// so a stale goroutine holding an old *sessionInfo can never observe a
// half-updated view of the next one.
type sessionInfo struct {
	id              string
	requestLimit    int64
	keepaliveMs     int64
	createdAt       time.Time
	lastProgressive int64
}

// withProgressive returns a copy of s with lastProgressive advanced by one,
// used instead of an in-place increment so a *sessionInfo handed to a
// RecoveryBean under construction never changes out from under it.
func (s *sessionInfo) withProgressive(p int64) *sessionInfo {
	cp := *s
	cp.lastProgressive = p
	return &cp
}

func (s *sessionInfo) toRecoveryBean(budget time.Duration, recoverable bool) *RecoveryBean {
	if s == nil {
		return nil
	}
	return &RecoveryBean{
		SessionID:           s.id,
		LastProgressive:     s.lastProgressive,
		TimeBudgetRemaining: budget,
		Recovery:            recoverable,
	}
}
