package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Client is the thin public façade of spec.md §6 (connect/disconnect/
// subscribe/unsubscribe/sendMessage/getStatus/option setters). It holds a
// Manager plus the one extra piece of plumbing the façade is explicitly
// responsible for per SPEC_FULL.md §5: a bounded events queue draining on
// its own goroutine, decoupling listener callbacks from the session
// goroutine, grounded on the teacher's separation between the connection
// read loop and the request-handling goroutine in mcp/streamable.go.
type Client struct {
	ID string // process-visible client identity, per SPEC_FULL.md §3 ("ambient identifiers")

	mgr *Manager

	mu        sync.Mutex
	listeners []Listener

	events     chan func()
	eventsDone chan struct{}

	status atomic.Value // Status

	nextObjectSeq atomic.Uint64
}

// Option configures a Client at construction time, the *Options
// struct-pointer-and-functional-option pattern used throughout the teacher
// SDK's StreamableClientTransportOptions/StreamableHTTPOptions.
type Option func(*ConnectionOptions)

func WithForcedTransport(t ForcedTransport) Option {
	return func(o *ConnectionOptions) { o.ForcedTransport = t }
}
func WithRetryDelay(d time.Duration) Option {
	return func(o *ConnectionOptions) { o.RetryDelay = d }
}
func WithPollingInterval(d time.Duration) Option {
	return func(o *ConnectionOptions) { o.PollingInterval = d }
}
func WithReverseHeartbeatInterval(d time.Duration) Option {
	return func(o *ConnectionOptions) { o.ReverseHeartbeatInterval = d }
}
func WithRequestedMaxBandwidth(v string) Option {
	return func(o *ConnectionOptions) { o.RequestedMaxBandwidth = v }
}
func WithContentLengthRequired(v bool) Option {
	return func(o *ConnectionOptions) { o.ContentLengthRequired = v }
}
func WithEarlyWSOpen(v bool) Option {
	return func(o *ConnectionOptions) { o.EarlyWSOpenEnabled = v }
}

// NewClient builds a Client ready to Connect. log defaults to
// logrus.StandardLogger() when nil.
func NewClient(providers Providers, log *logrus.Logger, opts ...Option) *Client {
	cfg := DefaultConnectionOptions()
	for _, o := range opts {
		o(&cfg)
	}
	c := &Client{
		ID:         uuid.NewString(),
		events:     make(chan func(), 256),
		eventsDone: make(chan struct{}),
	}
	c.status.Store(StatusDisconnected)
	c.mgr = NewManager(cfg, providers, c, log)
	go c.runEvents()
	return c
}

func (c *Client) runEvents() {
	defer close(c.eventsDone)
	for fn := range c.events {
		fn()
	}
}

// post enqueues fn onto the events goroutine, dropping it rather than
// blocking the session goroutine if a consumer is badly backed up — a
// slow listener must not stall protocol processing.
func (c *Client) post(fn func()) {
	select {
	case c.events <- fn:
	default:
	}
}

// OnStatusChange implements Listener; it fans the new status out to every
// registered listener on the events goroutine.
func (c *Client) OnStatusChange(status Status) {
	c.status.Store(status)
	c.post(func() {
		c.mu.Lock()
		ls := append([]Listener(nil), c.listeners...)
		c.mu.Unlock()
		for _, l := range ls {
			l.OnStatusChange(status)
		}
	})
}

// OnServerError implements Listener, fanning fatal ProtocolErrors out the
// same way as OnStatusChange.
func (c *Client) OnServerError(err *ProtocolError) {
	c.post(func() {
		c.mu.Lock()
		ls := append([]Listener(nil), c.listeners...)
		c.mu.Unlock()
		for _, l := range ls {
			l.OnServerError(err)
		}
	})
}

// AddListener registers l to receive future status/error notifications.
func (c *Client) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// RemoveListener unregisters l; a no-op if it was never registered.
func (c *Client) RemoveListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, x := range c.listeners {
		if x == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// Connect starts the session against address.
func (c *Client) Connect(address string) {
	c.mgr.objectID = c.nextObjectID()
	c.mgr.log = c.mgr.log.WithField("objectId", c.mgr.objectID)
	c.mgr.Connect(address)
}

// Disconnect tears the session down without stopping the Client's events
// goroutine; Connect may be called again afterward.
func (c *Client) Disconnect() {
	c.mgr.Disconnect()
}

// GetStatus returns the last status this Client observed. Safe to call
// from any goroutine.
func (c *Client) GetStatus() Status {
	return c.status.Load().(Status)
}

// Subscribe registers sub. See Manager.Subscribe for semantics.
func (c *Client) Subscribe(sub *Subscription) error {
	return c.mgr.Subscribe(sub)
}

// Unsubscribe removes sub. See Manager.Unsubscribe for semantics.
func (c *Client) Unsubscribe(sub *Subscription) {
	c.mgr.Unsubscribe(sub)
}

// SendMessage enqueues text for delivery. See Manager.SendMessage for
// semantics.
func (c *Client) SendMessage(sequence, text string, ackTimeout time.Duration, listener MessageListener) {
	c.mgr.SendMessage(sequence, text, ackTimeout, listener)
}

// nextObjectID returns a monotonically increasing, process-local sequence
// number, per SPEC_FULL.md §3's "objectId" ordering requirement; the
// externally visible, non-guessable identity is Client.ID (a UUID), the
// sequence number exists only to order events relative to one another.
func (c *Client) nextObjectID() uint64 {
	return c.nextObjectSeq.Add(1)
}

// Shutdown tears the session down and waits for both the session
// scheduler and the events goroutine to drain, or for ctx to expire,
// whichever comes first. Grounded on the teacher's
// StreamableHTTPHandler.closeAll drain-then-clear shutdown pattern.
func (c *Client) Shutdown(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.mgr.Disconnect()
		drained := make(chan struct{})
		c.mgr.sched.Post(func() { close(drained) })
		select {
		case <-drained:
		case <-ctx.Done():
		}
		c.mgr.sched.Stop()
		close(c.events)
		select {
		case <-c.eventsDone:
		case <-ctx.Done():
		}
	}()
	return done
}
