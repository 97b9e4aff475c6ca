package session

import (
	"time"

	"golang.org/x/time/rate"
)

// reverseHeartbeat keeps a streaming connection's reverse channel (the
// control link, for HTTP streaming; the same socket, for WS) from going
// idle long enough for an intermediate proxy to tear it down, per spec.md
// §4.A/§6's ReverseHeartbeatInterval option. Grounded on golang.org/x/time,
// already a teacher dependency (kept, see DESIGN.md), generalized from the
// teacher's read/write-size limiting use to a send-cadence limiter.
type reverseHeartbeat struct {
	interval time.Duration
	limiter  *rate.Limiter
	cancel   CancelFunc
}

// newReverseHeartbeat returns nil if interval <= 0 (the feature is
// disabled, the default).
func newReverseHeartbeat(interval time.Duration) *reverseHeartbeat {
	if interval <= 0 {
		return nil
	}
	return &reverseHeartbeat{
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// start arms sched to call send every interval for as long as lastActivity
// reports the connection has been otherwise idle for at least interval;
// the limiter prevents a burst of real traffic from also triggering a
// redundant heartbeat send in the same window.
func (h *reverseHeartbeat) start(sched *Scheduler, lastActivity func() time.Time, send func()) {
	var tick func()
	tick = func() {
		if h.cancel == nil {
			return // stopped
		}
		idleFor := time.Since(lastActivity())
		if idleFor >= h.interval && h.limiter.Allow() {
			send()
		}
		h.cancel = sched.PostDelayed(h.interval, tick)
	}
	h.cancel = sched.PostDelayed(h.interval, tick)
}

func (h *reverseHeartbeat) stop() {
	if h == nil || h.cancel == nil {
		return
	}
	h.cancel()
	h.cancel = nil
}

// bandwidthLimiter throttles how often the Session Manager is willing to
// post a fresh control/msg request line, as a client-side complement to
// RequestedMaxBandwidth (which is a server-side hint carried in
// create_session, see internal/wire.CreateSessionRequest). nil means
// unlimited.
type bandwidthLimiter struct {
	limiter *rate.Limiter
}

func newBandwidthLimiter(requestsPerSecond float64) *bandwidthLimiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	return &bandwidthLimiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1)}
}

// delay returns how long the caller must wait before the limiter admits the
// next send (0 if it may send immediately), using Reserve rather than Wait
// so the single session goroutine never blocks: the caller reschedules the
// send via Scheduler.PostDelayed instead of parking the goroutine.
func (b *bandwidthLimiter) delay() time.Duration {
	if b == nil {
		return 0
	}
	r := b.limiter.Reserve()
	if !r.OK() {
		return 0
	}
	return r.Delay()
}
