package session

import (
	"container/list"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// MessageListener receives the outcome of one SendMessage call, per spec.md
// component G.
type MessageListener interface {
	OnProcessed(progressive int64)
	OnError(code int, message string)
	// OnDiscarded fires when the message's ack timeout elapses before a
	// MSGDONE resolves it, or when the session is torn down while the
	// message is still pending. OnError is not called by this package.
	OnDiscarded()
}

// pendingMessage is one outstanding SendMessage call.
type pendingMessage struct {
	sequence    string
	progressive int64 // 0 for UNORDERED_MESSAGES
	text        string
	listener    MessageListener
	enqueuedAt  time.Time
	ackTimeout  time.Duration
	cancelTimer CancelFunc
	sent        bool

	// retry tracks the backoff between resend attempts triggered by
	// MSGFAIL, lazily created on the first failure. It never decides
	// abandonment itself — only the discard timer armed at send time does
	// that, per spec.md component G.
	retry *backoff.ExponentialBackOff
}

// messageManager sequences outbound application messages per named
// sequence, per spec.md component G. Grounded on the teacher pack's MQTT
// client token/ack bookkeeping (other_examples paho.mqtt.golang client.go):
// each message gets a per-sequence progressive exactly like an MQTT packet
// id, is tracked in a FIFO awaiting acknowledgement, and a client-side timer
// discards it rather than retrying forever if the server never answers.
type messageManager struct {
	mu        sync.Mutex
	scheduler *Scheduler
	sequences map[string]*list.List // sequence name -> *list.List of *pendingMessage, in submission order
	progCount map[string]int64
}

func newMessageManager(sched *Scheduler) *messageManager {
	return &messageManager{
		scheduler: sched,
		sequences: make(map[string]*list.List),
		progCount: make(map[string]int64),
	}
}

// enqueue records a new pending message and returns it; the caller (the
// Session Manager) is responsible for actually transmitting it and for
// arming ackTimeout via arm. A message enqueued while there is no
// connection is not transmitted later: it stays pending until its ack
// timeout or a teardown discards it.
func (m *messageManager) enqueue(sequence, text string, listener MessageListener) *pendingMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	pm := &pendingMessage{
		sequence:   sequence,
		text:       text,
		listener:   listener,
		enqueuedAt: time.Now(),
	}
	if sequence != "" && sequence != "UNORDERED_MESSAGES" {
		m.progCount[sequence]++
		pm.progressive = m.progCount[sequence]
		l, ok := m.sequences[sequence]
		if !ok {
			l = list.New()
			m.sequences[sequence] = l
		}
		l.PushBack(pm)
	}
	return pm
}

// arm schedules the client-side discard timeout for pm. SendMessage calls
// it right after enqueue, whether or not the message could be transmitted.
func (m *messageManager) arm(pm *pendingMessage, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	pm.ackTimeout = timeout
	pm.cancelTimer = m.scheduler.PostDelayed(timeout, func() {
		m.discard(pm)
	})
}

func (m *messageManager) discard(pm *pendingMessage) {
	if pm.sequence != "" && pm.sequence != "UNORDERED_MESSAGES" {
		m.mu.Lock()
		m.removeLocked(pm)
		m.mu.Unlock()
	}
	if pm.listener != nil {
		pm.listener.OnDiscarded()
	}
}

func (m *messageManager) removeLocked(pm *pendingMessage) {
	l, ok := m.sequences[pm.sequence]
	if !ok {
		return
	}
	for e := l.Front(); e != nil; e = e.Next() {
		if e.Value.(*pendingMessage) == pm {
			l.Remove(e)
			break
		}
	}
}

// resolve looks up the pending message for (sequence, progressive) — used
// for MSGDONE/MSGFAIL on a sequenced message — cancels its discard timer,
// and removes it from the FIFO.
func (m *messageManager) resolve(sequence string, progressive int64) *pendingMessage {
	m.mu.Lock()
	l, ok := m.sequences[sequence]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	var found *pendingMessage
	for e := l.Front(); e != nil; e = e.Next() {
		pm := e.Value.(*pendingMessage)
		if pm.progressive == progressive {
			found = pm
			l.Remove(e)
			break
		}
	}
	m.mu.Unlock()
	if found != nil && found.cancelTimer != nil {
		found.cancelTimer()
	}
	return found
}

// pendingFrom returns progressive and every later message still pending in
// sequence, in submission order — the set spec.md component G says gets
// re-sent on a MSGFAIL ("the client retries the failed progressive, and
// subsequent ones are re-sent"). A progressive already resolved (MSGDONE)
// or already discarded (ack timeout elapsed) is simply absent from the
// FIFO, so it is silently skipped rather than re-sent.
func (m *messageManager) pendingFrom(sequence string, progressive int64) []*pendingMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.sequences[sequence]
	if !ok {
		return nil
	}
	var out []*pendingMessage
	started := false
	for e := l.Front(); e != nil; e = e.Next() {
		pm := e.Value.(*pendingMessage)
		if pm.progressive == progressive {
			started = true
		}
		if started {
			out = append(out, pm)
		}
	}
	return out
}

// onFail handles a MSGFAIL naming progressive as the first undelivered
// message in sequence: it resends that message and every later one still
// pending, per spec.md component G. It does not resolve or discard
// anything itself — a message is abandoned only when its own discard
// timer (armed once at enqueue/send time, independent of any MSGFAIL)
// elapses, which is what eventually calls onDiscarded if MSGDONE never
// arrives. The resend cadence backs off per message, grounded on the same
// cenkalti/backoff/v5 the Session Manager uses for create_session retries.
func (m *messageManager) onFail(sequence string, progressive int64, resend func(pm *pendingMessage)) {
	for _, pm := range m.pendingFrom(sequence, progressive) {
		pm := pm
		if pm.retry == nil {
			pm.retry = backoff.NewExponentialBackOff()
			pm.retry.InitialInterval = 250 * time.Millisecond
			pm.retry.Multiplier = 1.5
			pm.retry.MaxInterval = 5 * time.Second
		}
		delay, err := pm.retry.NextBackOff()
		if err != nil {
			continue
		}
		m.scheduler.PostDelayed(delay, func() {
			resend(pm)
		})
	}
}

// stillPending reports whether pm has not yet been resolved (MSGDONE) or
// discarded (ack timeout) — used by a deferred resend to avoid re-sending
// a message that settled while its retry backoff was waiting.
func (m *messageManager) stillPending(pm *pendingMessage) bool {
	if pm.sequence == "" || pm.sequence == "UNORDERED_MESSAGES" {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.sequences[pm.sequence]
	if !ok {
		return false
	}
	for e := l.Front(); e != nil; e = e.Next() {
		if e.Value.(*pendingMessage) == pm {
			return true
		}
	}
	return false
}

// pendingInSequence returns every message still queued for sequence, in
// submission order. Nothing in this package calls it: messages held while
// disconnected are not resent when a session is created.
func (m *messageManager) pendingInSequence(sequence string) []*pendingMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.sequences[sequence]
	if !ok {
		return nil
	}
	out := make([]*pendingMessage, 0, l.Len())
	for e := l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*pendingMessage))
	}
	return out
}

// allPending returns every message still outstanding across every
// sequence, used when tearing a session down to discard what could not be
// delivered (spec.md component G).
func (m *messageManager) allPending() []*pendingMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*pendingMessage
	for _, l := range m.sequences {
		for e := l.Front(); e != nil; e = e.Next() {
			out = append(out, e.Value.(*pendingMessage))
		}
	}
	return out
}
