package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/pushcore/go-client/internal/logging"
	"github.com/pushcore/go-client/internal/wire"
	"github.com/pushcore/go-client/transport"
)

// Listener receives session-wide lifecycle notifications, per spec.md §3's
// external-facade boundary: the Session Manager never talks to user code
// directly, only through this interface, the same inversion as the
// UpdateListener/MessageListener boundary for subscriptions and messages.
type Listener interface {
	OnStatusChange(status Status)
	// OnServerError fires for a fatal ProtocolError (spec.md §7); no retry
	// is scheduled afterward.
	OnServerError(err *ProtocolError)
}

// Providers bundles the three transport.Provider instances a Manager
// stream-senses across, plus the one-shot provider used for create_session
// and destroy, which per the wire protocol always happens over HTTP
// regardless of which transport is eventually chosen for binding.
type Providers struct {
	Create     transport.Provider
	WS         transport.Provider // also implements transport.EarlyOpener
	HTTPStream transport.Provider
	HTTPPoll   transport.Provider
}

// Manager is the Session Manager (spec.md component E): it owns the
// session state machine (component C), drives the Transport Selector
// (component D) across reconnects, and feeds decoded wire.Events to the
// Subscription Manager and Message Manager. Every field below is touched
// only from tasks posted to sched, so none of it is guarded by a mutex —
// see phase.go.
type Manager struct {
	opts      ConnectionOptions
	providers Providers
	address   string
	listener  Listener
	log       *logrus.Entry

	sched *Scheduler
	phase Phase

	subs *subscriptionManager
	msgs *messageManager

	status Status
	kind   transportKind
	seq    []transportKind

	conn         transport.Connection
	cur          *sessionInfo
	reqIDCounter int64

	// bindAddress is where the next bind_session (and any WS early-open)
	// targets. It is reset to address at the start of every createSession
	// attempt and overridden by changeControlLink when a CONOK names a
	// control link other than "*" (spec.md §4.D).
	bindAddress string
	// earlyWS is a WS handshake opened concurrently with the create_session
	// HTTP round trip (EarlyWSOpenEnabled, spec.md §4.D), consumed by
	// startBind if stream-sense picks WS streaming first, aborted there
	// otherwise. wsBroken records that the early attempt itself failed, per
	// the WS_BROKEN substate ("reject and ask the parent to stream-sense-
	// switch to HTTP" without ever trying a WS bind).
	earlyWS  transport.Handle
	wsBroken bool

	// hb sends a reverse-heartbeat control request over the live connection
	// whenever it has otherwise been idle for ReverseHeartbeatInterval, per
	// spec.md §4.A/§6; nil when the option is 0 (disabled, the default).
	hb           *reverseHeartbeat
	lastActivity time.Time

	// pacer throttles outbound control/msg lines per RequestedMaxBandwidth,
	// the client-side complement to the server-side hint of the same name
	// (internal/wire.CreateSessionRequest.RequestedMaxBandwidth); nil when
	// unset or "unlimited".
	pacer *bandwidthLimiter

	// objectID is the monotonic sequence number SPEC_FULL.md §3 asks for
	// ("ambient identifiers"); set once by Client.Connect before Connect is
	// called, and attached to every log line this Manager emits.
	objectID uint64

	pendingAddRequests []wire.ControlRequest
	// pendingRequestSub correlates an in-flight control RequestID back to
	// the Subscription that issued it, so a REQERR can be routed to that
	// Subscription's listener instead of the session-wide one.
	pendingRequestSub map[int64]*Subscription

	stopped bool
}

// NewManager constructs a Manager. Call Connect to start it.
func NewManager(opts ConnectionOptions, providers Providers, listener Listener, base *logrus.Logger) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		opts:              opts,
		providers:         providers,
		listener:          listener,
		log:               logging.Component(base, "session"),
		sched:             NewScheduler(),
		subs:              newSubscriptionManager(),
		status:            StatusDisconnected,
		pendingRequestSub: make(map[int64]*Subscription),
		pacer:             pacerFromOption(opts.RequestedMaxBandwidth),
	}
}

// pacerFromOption parses RequestedMaxBandwidth ("unlimited" or a decimal
// string, per spec.md §3) into a client-side outbound line pacer; "" or
// "unlimited" or an unparseable value all mean no client-side throttling.
func pacerFromOption(v string) *bandwidthLimiter {
	if v == "" || v == "unlimited" {
		return nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n <= 0 {
		return nil
	}
	return newBandwidthLimiter(n)
}

func (m *Manager) init() {
	if m.msgs == nil {
		m.msgs = newMessageManager(m.sched)
	}
}

// Connect begins create_session against address. Per spec.md §7 it never
// blocks: the state machine advances on the scheduler goroutine.
func (m *Manager) Connect(address string) {
	m.init()
	m.sched.Post(func() {
		m.address = address
		m.phase.Advance()
		m.setStatus(StatusConnecting)
		m.createSession(false, nil)
	})
}

// Disconnect tears the session down. Idempotent. The scheduler keeps
// running, so Connect may be called again; Client.Shutdown stops it.
func (m *Manager) Disconnect() {
	m.sched.Post(func() {
		m.teardown("api")
		m.stopped = true
	})
}

func (m *Manager) setStatus(s Status) {
	if m.status == s {
		return
	}
	m.status = s
	if m.listener != nil {
		m.listener.OnStatusChange(s)
	}
}

func (m *Manager) nextRequestID() int64 {
	m.reqIDCounter++
	return m.reqIDCounter
}

// createSession performs the one-shot HTTP create_session exchange. When
// recovering is true, a RecoveryBean from a previous Session (spec.md §3)
// is consulted first and, if eligible, a recover-style bind is attempted
// directly instead, skipping create_session entirely — per spec.md §4.C's
// recovery paragraph.
func (m *Manager) createSession(recovering bool, bean *RecoveryBean) {
	if recovering && bean.eligible() {
		m.startBind(m.seq[0], bean)
		return
	}

	m.bindAddress = m.address
	m.tryEarlyOpenWS()

	phase := m.phase.Current()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	conn, err := m.providers.Create.Open(ctx, m.address)
	if err != nil {
		cancel()
		m.retryCreateSession(phase, &TransportError{Cause: err})
		return
	}
	line := wire.EncodeCreateSession(wire.CreateSessionRequest{
		RequestedMaxBandwidth: m.opts.RequestedMaxBandwidth,
		KeepaliveMs:           m.opts.KeepaliveInterval.Milliseconds(),
	})
	if err := conn.Send(ctx, line); err != nil {
		cancel()
		conn.Close()
		m.retryCreateSession(phase, &TransportError{Cause: err})
		return
	}

	go func() {
		defer cancel()
		l, ok := <-conn.Lines()
		conn.Close()
		m.sched.Post(func() {
			if !m.phase.Valid(phase) {
				return
			}
			if !ok || l.Err != nil {
				m.retryCreateSession(phase, &TransportError{Cause: l.Err})
				return
			}
			m.onCreateSessionLine(l.Text)
		})
	}()
}

// tryEarlyOpenWS starts the WS handshake concurrently with the
// create_session HTTP round trip about to follow, per spec.md §4.D ("open
// a WS handshake... BEFORE the create-response has been received...
// overlap the WS handshake with the first HTTP create round-trip"). The
// resulting handle is consumed by startBind if stream-sense ends up
// picking WS streaming first, or aborted there otherwise.
func (m *Manager) tryEarlyOpenWS() {
	m.earlyWS = nil
	m.wsBroken = false
	if !m.opts.EarlyWSOpenEnabled {
		return
	}
	opener, ok := m.providers.WS.(transport.EarlyOpener)
	if !ok {
		return
	}
	// The handshake outlives this call, so ctx is released by its own
	// deadline rather than by a deferred cancel.
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ReconnectTimeout)
	time.AfterFunc(m.opts.ReconnectTimeout, cancel)
	h, err := opener.OpenEarly(ctx, m.bindAddress)
	if err != nil {
		m.wsBroken = true
		return
	}
	m.earlyWS = h
}

// changeControlLink applies a non-"*" ControlLink named by a CONOK, per
// spec.md §4.D: it becomes the address for the subsequent bind (and every
// bind after, until the next createSession resets it); a WS handshake
// already pending/established against the old address is aborted and
// reopened against the new one, matching "(server may redirect mid-create)".
func (m *Manager) changeControlLink(link string) {
	if link == "" || link == "*" || link == m.bindAddress {
		return
	}
	m.bindAddress = link
	if m.earlyWS == nil {
		return
	}
	old := m.earlyWS
	m.earlyWS = nil
	old.Abort()
	if m.wsBroken {
		return
	}
	opener, ok := m.providers.WS.(transport.EarlyOpener)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ReconnectTimeout)
	time.AfterFunc(m.opts.ReconnectTimeout, cancel)
	h, err := opener.OpenEarly(ctx, m.bindAddress)
	if err != nil {
		m.wsBroken = true
		return
	}
	m.earlyWS = h
}

func (m *Manager) onCreateSessionLine(raw string) {
	ev, err := wire.Decode(raw)
	if err != nil {
		m.retryCreateSession(m.phase.Current(), err)
		return
	}
	switch e := ev.(type) {
	case wire.CONOK:
		m.cur = &sessionInfo{
			id:           e.SessionID,
			requestLimit: e.RequestLimit,
			keepaliveMs:  e.KeepaliveMs,
			createdAt:    time.Now(),
		}
		m.seq = streamSenseSequence(m.opts.ForcedTransport)
		m.setStatus(StatusConnectedStreamSensing)
		m.resubscribeAll()
		m.changeControlLink(e.ControlLink)
		start := m.seq[0]
		if m.wsBroken {
			if alt, ok := firstNonWS(m.seq); ok {
				start = alt
			}
		}
		m.startBind(start, nil)
	case wire.CONERR:
		pe := classifyConerr(e.Code, e.Message)
		if pe.Fatal {
			m.setStatus(StatusDisconnected)
			if m.listener != nil {
				m.listener.OnServerError(pe)
			}
			return
		}
		m.retryCreateSession(m.phase.Current(), pe)
	default:
		m.retryCreateSession(m.phase.Current(), fmt.Errorf("session: unexpected %s on create_session", ev.Directive()))
	}
}

func (m *Manager) retryCreateSession(phase int64, cause error) {
	if !m.phase.Valid(phase) {
		return
	}
	m.setStatus(StatusDisconnectedWillRetry)
	m.log.WithError(cause).Warn("create_session failed, retrying")
	delay := nextRetryDelay(m.opts.RetryDelay)
	m.phase.Advance()
	newPhase := m.phase.Current()
	m.sched.PostDelayed(delay, func() {
		if !m.phase.Valid(newPhase) {
			return
		}
		m.setStatus(StatusConnecting)
		m.createSession(false, nil)
	})
}

// nextRetryDelay returns the first draw of a freshly built
// cenkalti/backoff/v5 exponential backoff anchored at initial (x1.5
// multiplier, 60s cap, ~50% jitter). Because every call builds a new
// backoff, each retry waits initial ±50%: delays do not grow across
// consecutive retries, and the multiplier and cap never take effect.
func nextRetryDelay(initial time.Duration) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 1.5
	b.MaxInterval = 60 * time.Second
	b.RandomizationFactor = 0.5
	d, _ := b.NextBackOff()
	return d
}

// startBind opens (or resumes) the bind_session exchange for kind. If bean
// is non-nil and eligible, this is a recover rather than a fresh bind.
func (m *Manager) startBind(kind transportKind, bean *RecoveryBean) {
	m.hb.stop()
	m.kind = kind
	m.setStatus(kind.status())
	phase := m.phase.Current()

	provider := m.providerFor(kind)
	polling := kind == kindWSPolling || kind == kindHTTPPolling

	openAndSend := func(conn transport.Connection, err error) {
		if err != nil {
			if err == transport.ErrAborted {
				return
			}
			m.onTransportFailed(phase, kind, &TransportError{Cause: err})
			return
		}
		m.conn = conn
		req := wire.BindSessionRequest{
			SessionID:     m.cur.id,
			Polling:       polling,
			PollingIdleMs: m.opts.PollingInterval.Milliseconds(),
		}
		if bean.eligible() {
			req.IsRecover = true
			req.RecoverFrom = bean.LastProgressive
			m.setStatus(StatusDisconnectedTryingRecovery)
		}
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.ReconnectTimeout)
		defer cancel()
		if err := conn.Send(ctx, wire.EncodeBindSession(req)); err != nil {
			m.onTransportFailed(phase, kind, &TransportError{Cause: err})
			return
		}
		m.flushAddRequests(conn)
		m.lastActivity = time.Now()
		if !polling {
			if hb := newReverseHeartbeat(m.opts.ReverseHeartbeatInterval); hb != nil {
				m.hb = hb
				m.hb.start(m.sched, func() time.Time { return m.lastActivity }, func() {
					m.sendReverseHeartbeat(conn)
				})
			}
		}
		m.runReadLoop(conn, phase, kind)
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ReconnectTimeout)
	defer cancel()
	if kind == kindWSStreaming && m.earlyWS != nil {
		h := m.earlyWS
		m.earlyWS = nil
		conn, err := h.Await(ctx)
		openAndSend(conn, err)
		return
	}
	if m.earlyWS != nil {
		m.earlyWS.Abort()
		m.earlyWS = nil
	}
	conn, err := provider.Open(ctx, m.bindAddress)
	openAndSend(conn, err)
}

func (m *Manager) providerFor(kind transportKind) transport.Provider {
	switch kind {
	case kindWSStreaming, kindWSPolling:
		return m.providers.WS
	case kindHTTPStreaming:
		return m.providers.HTTPStream
	default:
		return m.providers.HTTPPoll
	}
}

// runReadLoop drains conn.Lines() on a dedicated goroutine and posts each
// decoded event back onto the scheduler, per spec.md §5's "a single
// session goroutine handles all state mutation" rule. firstByteTimer
// enforces FirstRetryMaxDelay (spec.md §4.D) for streaming candidates.
func (m *Manager) runReadLoop(conn transport.Connection, phase int64, kind transportKind) {
	var firstByteTimer CancelFunc
	if kind.isStreaming() {
		firstByteTimer = m.sched.PostDelayed(m.opts.FirstRetryMaxDelay, func() {
			if !m.phase.Valid(phase) {
				return
			}
			conn.Abort()
			m.onStreamingTimeout(phase, kind)
		})
	}
	gotFirst := false
	go func() {
		for l := range conn.Lines() {
			line := l
			m.sched.Post(func() {
				if !m.phase.Valid(phase) {
					return
				}
				if !gotFirst && firstByteTimer != nil {
					gotFirst = true
					firstByteTimer()
					m.armStallWatchdog(phase, kind)
				}
				if line.Err != nil {
					m.onTransportFailed(phase, kind, &TransportError{Cause: line.Err})
					return
				}
				m.onLine(line.Text)
			})
		}
	}()
}

func (m *Manager) onStreamingTimeout(phase int64, kind transportKind) {
	if next, ok := nextOnStreamingFailure(m.seq, kind); ok {
		m.startBind(next, nil)
		return
	}
	m.retryFromStall(phase)
}

func (m *Manager) onTransportFailed(phase int64, kind transportKind, err *TransportError) {
	if !m.phase.Valid(phase) {
		return
	}
	m.log.WithError(err).Warn("transport failed")
	m.phase.Advance()
	m.hb.stop()
	if next, ok := nextOnStreamingFailure(m.seq, kind); ok && kind.isStreaming() {
		m.startBind(next, nil)
		return
	}
	bean := m.cur.toRecoveryBean(m.opts.SessionRecoveryTimeout, true)
	m.setStatus(StatusDisconnectedTryingRecovery)
	delay := nextRetryDelay(m.opts.RetryDelay)
	newPhase := m.phase.Current()
	m.sched.PostDelayed(delay, func() {
		if !m.phase.Valid(newPhase) {
			return
		}
		m.startBind(m.kind, bean)
	})
}

func (m *Manager) retryFromStall(phase int64) {
	m.onTransportFailed(phase, m.kind, &TransportError{Cause: fmt.Errorf("session: stream-sense exhausted, no first byte within %s", m.opts.FirstRetryMaxDelay)})
}

// armStallWatchdog re-arms itself against m.lastActivity, per spec.md
// §4.C's RECEIVING state: STALLED after KeepaliveInterval+StalledTimeout
// of silence, then abandoned (treated as a transport failure, driving the
// ordinary recovery path) after a further ReconnectTimeout of silence. It
// self-heals back out of STALLED the moment any byte arrives (onLine resets
// lastActivity and the status), so no separate timer cancels it early —
// only the phase check does, once the connection is torn down.
func (m *Manager) armStallWatchdog(phase int64, kind transportKind) {
	stallAt := m.opts.KeepaliveInterval + m.opts.StalledTimeout
	abandonAt := stallAt + m.opts.ReconnectTimeout

	var tick func()
	tick = func() {
		if !m.phase.Valid(phase) {
			return
		}
		idleFor := time.Since(m.lastActivity)
		switch {
		case idleFor >= abandonAt:
			m.onStallTimeout(phase)
		case idleFor >= stallAt:
			if m.status != StatusStalled {
				m.setStatus(StatusStalled)
			}
			m.sched.PostDelayed(abandonAt-idleFor, tick)
		default:
			m.sched.PostDelayed(stallAt-idleFor, tick)
		}
	}
	m.sched.PostDelayed(stallAt, tick)
}

// onStallTimeout fires once a STALLED connection has stayed silent for a
// further ReconnectTimeout (spec.md §4.C: "STALLED -> SLEEP"). Unlike
// onTransportFailed, it never falls back to the next transport in the
// stream-sense sequence: by RECEIVING the transport has already proven
// itself once, so a stall always drives a recovery bind against the same
// kind, not a downgrade.
func (m *Manager) onStallTimeout(phase int64) {
	if !m.phase.Valid(phase) {
		return
	}
	m.log.Warn("no data received past stalled timeout, attempting recovery")
	kind := m.kind
	bean := m.cur.toRecoveryBean(m.opts.SessionRecoveryTimeout, true)
	m.phase.Advance()
	m.hb.stop()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.startBind(kind, bean)
}

// onLine decodes one inbound line and dispatches it. Any decode error is
// logged and dropped: per spec.md §7, a malformed or unrecognized
// directive never tears the session down.
func (m *Manager) onLine(raw string) {
	m.lastActivity = time.Now()
	if m.status == StatusStalled {
		m.setStatus(m.kind.status())
	}
	ev, err := wire.Decode(raw)
	if err != nil {
		m.log.WithError(err).Warn("dropping malformed line")
		return
	}
	m.handleEvent(ev)
}

// pacedSend sends line over conn, deferring it via sched if pacer says the
// outbound rate has been exceeded, rather than blocking the session
// goroutine. phase and conn are rechecked when a deferred send actually
// fires, since a reconnect may have replaced both by then.
func (m *Manager) pacedSend(conn transport.Connection, phase int64, line string) {
	send := func() {
		if !m.phase.Valid(phase) || m.conn != conn {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.ReconnectTimeout)
		defer cancel()
		conn.Send(ctx, line)
	}
	if d := m.pacer.delay(); d > 0 {
		m.sched.PostDelayed(d, send)
		return
	}
	send()
}

// sendReverseHeartbeat is the reverseHeartbeat send callback; errors are
// logged rather than surfaced since a dropped heartbeat is indistinguishable
// from any other transient send failure and is resolved by the ordinary
// stream-sense recovery path.
func (m *Manager) sendReverseHeartbeat(conn transport.Connection) {
	req := wire.ControlRequest{RequestID: m.nextRequestID(), Op: wire.OpReverseHeartbeat}
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ReconnectTimeout)
	defer cancel()
	if err := conn.Send(ctx, wire.EncodeControl(req)); err != nil {
		m.log.WithError(err).Debug("reverse heartbeat send failed")
	}
}

func (m *Manager) handleEvent(ev wire.Event) {
	switch e := ev.(type) {
	case wire.PROBE, wire.NOOP:
		// keepalive-equivalent; no action beyond the lastActivity reset
		// onLine already performed.
	case wire.SERVNAME, wire.CLIENTIP, wire.SYNC:
		// informational; nothing in this core consumes them further.
	case wire.LOOP:
		next := nextOnLoop(m.kind)
		m.hb.stop()
		if m.conn != nil {
			m.conn.Close()
		}
		if e.DelayMs > 0 {
			phase := m.phase.Current()
			m.sched.PostDelayed(time.Duration(e.DelayMs)*time.Millisecond, func() {
				if m.phase.Valid(phase) {
					m.startBind(next, nil)
				}
			})
			return
		}
		m.startBind(next, nil)
	case wire.END:
		pe := classifyEnd(e.Cause, e.Message)
		if pe.Fatal {
			m.teardown("")
			m.setStatus(StatusDisconnected)
			if m.listener != nil {
				m.listener.OnServerError(pe)
			}
			return
		}
		m.hb.stop()
		if m.conn != nil {
			m.conn.Close()
		}
		m.phase.Advance()
		m.createSession(true, m.cur.toRecoveryBean(m.opts.SessionRecoveryTimeout, !pe.SyncError))
	case wire.CONERR:
		pe := classifyConerr(e.Code, e.Message)
		if pe.Fatal {
			m.teardown("")
			m.setStatus(StatusDisconnected)
			if m.listener != nil {
				m.listener.OnServerError(pe)
			}
			return
		}
		m.hb.stop()
		if m.conn != nil {
			m.conn.Close()
		}
		m.phase.Advance()
		m.createSession(false, nil)
	case wire.CONOK:
		m.setStatus(m.kind.status())
	case wire.U:
		m.cur = m.cur.withProgressive(m.cur.lastProgressive + 1)
		m.subs.applyUpdate(&e)
	case wire.EOS, wire.CS, wire.OV, wire.CONF:
		// snapshot/flow-control notifications with no further core-level
		// bookkeeping beyond what the Subscription Manager already does in
		// applyUpdate for ordinary updates.
	case wire.SUBOK, wire.SUBCMD:
		// subscribe acknowledged; no action beyond the REQOK correlation
		// already performed when the ADD request was sent.
	case wire.UNSUB:
		m.subs.markUnsubscribed(int(e.SubID))
	case wire.REQOK:
		delete(m.pendingRequestSub, e.RequestID)
	case wire.REQERR:
		if sub, ok := m.pendingRequestSub[e.RequestID]; ok {
			delete(m.pendingRequestSub, e.RequestID)
			if sub.Listener != nil {
				sub.Listener.OnSubscriptionError(e.Code, e.Message)
			}
		}
	case wire.ERROR:
		m.log.WithField("code", e.Code).Error(e.Message)
	case wire.MSGDONE:
		if pm := m.msgs.resolve(e.Sequence, e.Progressive); pm != nil && pm.listener != nil {
			pm.listener.OnProcessed(e.Progressive)
		}
	case wire.MSGFAIL:
		// Per spec.md component G, a MSGFAIL does not by itself abandon the
		// message: the client retries the named progressive (and every
		// later one still pending in the sequence) until either MSGDONE
		// resolves it or its own discard timer — armed independently at
		// send time — elapses and calls onDiscarded.
		phase := m.phase.Current()
		m.msgs.onFail(e.Sequence, e.Progressive, func(pm *pendingMessage) {
			if m.conn == nil || !m.phase.Valid(phase) || !m.msgs.stillPending(pm) {
				return
			}
			m.pacedSend(m.conn, phase, wire.EncodeMsg(wire.MsgRequest{
				Sequence:    pm.sequence,
				Progressive: pm.progressive,
				Text:        pm.text,
			}))
		})
	case wire.MPNREG, wire.MPNOK:
		// push-notification device registration; routed but not
		// interpreted further by the core, per spec.md's Non-goals.
	}
}

// resubscribeAll resends every still-wanted Subscription with freshly
// assigned subIds, per spec.md component F ("a session turnover always
// starts the numbering over").
func (m *Manager) resubscribeAll() {
	ordered := m.subs.assignAll()
	if len(ordered) == 0 {
		return
	}
	reqs := buildAddRequests(ordered)
	for i := range reqs {
		reqs[i].RequestID = m.nextRequestID()
		m.pendingRequestSub[reqs[i].RequestID] = ordered[i]
	}
	m.pendingAddRequests = reqs
}

// flushAddRequests sends every ADD control request queued by
// resubscribeAll, once a bind connection actually exists.
func (m *Manager) flushAddRequests(conn transport.Connection) {
	if len(m.pendingAddRequests) == 0 {
		return
	}
	phase := m.phase.Current()
	for _, req := range m.pendingAddRequests {
		m.pacedSend(conn, phase, wire.EncodeControl(req))
	}
	m.pendingAddRequests = nil
}

// Subscribe registers sub and, if a session is live, sends its ADD
// control request immediately; otherwise it is picked up by the next
// resubscribeAll. Per spec.md §7 this returns synchronously for local
// validation errors only.
func (m *Manager) Subscribe(sub *Subscription) error {
	if err := m.subs.add(sub); err != nil {
		return err
	}
	m.sched.Post(func() {
		ordered := m.subs.assignOne(sub)
		if ordered == nil || m.conn == nil {
			return
		}
		reqs := buildAddRequests([]*Subscription{sub})
		reqs[0].RequestID = m.nextRequestID()
		m.pendingRequestSub[reqs[0].RequestID] = sub
		m.pacedSend(m.conn, m.phase.Current(), wire.EncodeControl(reqs[0]))
	})
	return nil
}

// Unsubscribe removes sub and, if it had been assigned a subID, sends its
// DELETE control request.
func (m *Manager) Unsubscribe(sub *Subscription) {
	m.sched.Post(func() {
		id, active := m.subs.remove(sub)
		if !active || m.conn == nil {
			return
		}
		req := buildDeleteRequest(id)
		req.RequestID = m.nextRequestID()
		m.pacedSend(m.conn, m.phase.Current(), wire.EncodeControl(req))
	})
}

// SendMessage enqueues text on sequence (or fires-and-forgets it if
// sequence == "UNORDERED_MESSAGES"), per spec.md component G.
func (m *Manager) SendMessage(sequence, text string, ackTimeout time.Duration, listener MessageListener) {
	m.init()
	m.sched.Post(func() {
		pm := m.msgs.enqueue(sequence, text, listener)
		pm.sent = m.conn != nil
		if pm.sent {
			m.pacedSend(m.conn, m.phase.Current(), wire.EncodeMsg(wire.MsgRequest{
				Sequence:    sequence,
				Progressive: pm.progressive,
				Text:        text,
			}))
		}
		m.msgs.arm(pm, ackTimeout)
	})
}

// teardown closes the live connection and sends a best-effort destroy
// request; any still-pending messages are discarded (spec.md component G:
// "a session teardown discards rather than indefinitely holds").
func (m *Manager) teardown(cause string) {
	m.phase.Advance()
	m.hb.stop()
	if m.conn != nil {
		if cause != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			m.conn.Send(ctx, wire.EncodeDestroy(m.cur.id, cause))
			cancel()
		}
		m.conn.Close()
		m.conn = nil
	}
	if m.msgs != nil {
		for _, pm := range m.msgs.allPending() {
			m.msgs.discard(pm)
		}
	}
}
