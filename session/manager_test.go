package session

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pushcore/go-client/transport/faketransport"
)

// recordingListener and recordingUpdates are guarded by a mutex because
// Manager invokes them from its scheduler goroutine while the test
// goroutine polls their contents.
type recordingListener struct {
	mu       sync.Mutex
	statuses []Status
	errs     []*ProtocolError
}

func (r *recordingListener) OnStatusChange(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}
func (r *recordingListener) OnServerError(e *ProtocolError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, e)
}
func (r *recordingListener) has(s Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.statuses {
		if got == s {
			return true
		}
	}
	return false
}
func (r *recordingListener) errCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}
func (r *recordingListener) firstErr() *ProtocolError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs[0]
}

type recordingUpdates struct {
	mu      sync.Mutex
	updates []string
}

func (r *recordingUpdates) OnItemUpdate(itemIdx int, fields []*string, isSnapshot bool) {
	if len(fields) > 0 && fields[0] != nil {
		r.mu.Lock()
		r.updates = append(r.updates, *fields[0])
		r.mu.Unlock()
	}
}
func (r *recordingUpdates) OnCommandUpdate(itemIdx int, key, command string, fields []*string, isSnapshot bool) {
}
func (r *recordingUpdates) OnSubscriptionError(code int, message string) {}
func (r *recordingUpdates) OnUnsubscription()                            {}
func (r *recordingUpdates) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}
func (r *recordingUpdates) first() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[0]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func newTestManager(t *testing.T, create, ws *faketransport.Provider, listener Listener) *Manager {
	opts := DefaultConnectionOptions()
	opts.ForcedTransport = ForcedWSStreaming
	opts.EarlyWSOpenEnabled = false
	m := NewManager(opts, Providers{
		Create:     create,
		WS:         ws,
		HTTPStream: ws,
		HTTPPoll:   ws,
	}, listener, nil)
	t.Cleanup(func() { m.sched.Stop() })
	return m
}

func TestConnectBindAndReceiveUpdate(t *testing.T) {
	create := faketransport.New()
	create.Push(faketransport.Script{Lines: []string{"CONOK,sess-1,5,5000,*"}})

	ws := faketransport.New()
	ws.Push(faketransport.Script{
		Lines:      []string{"U,1,1,hello"},
		Persistent: true,
	})

	rl := &recordingListener{}
	m := newTestManager(t, create, ws, rl)
	listener := &recordingUpdates{}
	sub := NewSubscription(ModeMerge, []string{"item1"}, []string{"field1"}, listener)
	require.NoError(t, m.Subscribe(sub))

	m.Connect("fake://server")

	waitFor(t, func() bool { return rl.has(StatusConnectedWSStreaming) })
	waitFor(t, func() bool { return listener.count() > 0 })
	require.Equal(t, "hello", listener.first())
}

func TestFatalConerrSurfacesServerError(t *testing.T) {
	create := faketransport.New()
	create.Push(faketransport.Script{Lines: []string{"CONERR,1,license limit reached"}})

	ws := faketransport.New()
	rl := &recordingListener{}
	m := newTestManager(t, create, ws, rl)

	m.Connect("fake://server")

	waitFor(t, func() bool { return rl.errCount() > 0 })
	require.True(t, rl.firstErr().Fatal)
	require.Equal(t, 1, rl.firstErr().Code)
}

// TestStallWatchdogRecoversAfterSilence covers spec.md §8 scenario 3: once a
// bind has delivered its first byte, silence past KeepaliveInterval+
// StalledTimeout moves status to STALLED, and a further ReconnectTimeout of
// silence abandons the connection and starts a recovery bind (not a status
// transition straight back to CONNECTING/WILL-RETRY).
func TestStallWatchdogRecoversAfterSilence(t *testing.T) {
	create := faketransport.New()
	create.Push(faketransport.Script{Lines: []string{"CONOK,sess-1,5,5000,*"}})

	ws := faketransport.New()
	ws.Push(faketransport.Script{Lines: []string{"U,1,1,hello"}, Persistent: true})
	ws.Push(faketransport.Script{Persistent: true}) // recovery bind: stays open, idle

	rl := &recordingListener{}
	m := newTestManager(t, create, ws, rl)
	m.opts.KeepaliveInterval = 10 * time.Millisecond
	m.opts.StalledTimeout = 10 * time.Millisecond
	m.opts.ReconnectTimeout = 20 * time.Millisecond

	m.Connect("fake://server")

	waitFor(t, func() bool { return rl.has(StatusStalled) })
	waitFor(t, func() bool { return rl.has(StatusDisconnectedTryingRecovery) })
}

// TestMessageManagerRetriesOnMsgFail covers spec.md §8 scenario 5: a MSGFAIL
// resends the named progressive rather than discarding it outright, and
// OnDiscarded fires only once the message's own ack timeout elapses. The
// ack timeout is longer than the first resend backoff (250ms ±50%), so the
// resend is on the wire before the discard.
func TestMessageManagerRetriesOnMsgFail(t *testing.T) {
	create := faketransport.New()
	create.Push(faketransport.Script{Lines: []string{"CONOK,sess-1,5,5000,*"}})

	ws := faketransport.New()
	ws.Push(faketransport.Script{Lines: []string{"U,1,1,hello"}, Persistent: true})
	ws.Push(faketransport.Script{Lines: []string{"MSGFAIL,s,1,32,timeout exceeded"}, Persistent: true})

	rl := &recordingListener{}
	m := newTestManager(t, create, ws, rl)
	m.Connect("fake://server")

	waitFor(t, func() bool { return rl.has(StatusConnectedWSStreaming) })

	var mu sync.Mutex
	discarded := false
	listener := &fakeMessageListener{onDiscarded: func() {
		mu.Lock()
		discarded = true
		mu.Unlock()
	}}
	m.SendMessage("s", "hello again", time.Second, listener)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return discarded
	})

	sent := 0
	for _, l := range ws.Sent {
		if containsLSMessage(l) {
			sent++
		}
	}
	require.GreaterOrEqual(t, sent, 2, "expected the original send plus a resend after MSGFAIL")
}

func containsLSMessage(s string) bool {
	return strings.Contains(s, "LS_message=")
}

type fakeMessageListener struct {
	onDiscarded func()
}

func (f *fakeMessageListener) OnProcessed(progressive int64)    {}
func (f *fakeMessageListener) OnError(code int, message string) {}
func (f *fakeMessageListener) OnDiscarded() {
	if f.onDiscarded != nil {
		f.onDiscarded()
	}
}
