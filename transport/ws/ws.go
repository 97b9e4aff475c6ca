// Package ws is a WebSocket Transport Provider, grounded on the teacher
// SDK's mcp/websocket.go: a gorilla/websocket dialer wrapped in the
// transport.Connection contract, with context-deadline-to-write-deadline
// translation and close-handshake-to-io.EOF translation.
package ws

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pushcore/go-client/transport"
)

// Provider opens WebSocket connections to the push server, and supports
// early-open (spec.md §4.D) so the handshake can start before the first
// create_session response arrives over HTTP.
type Provider struct {
	// Dialer is the WebSocket dialer to use. If nil, websocket.DefaultDialer
	// is used.
	Dialer *websocket.Dialer
	// Header carries additional HTTP headers sent during the handshake
	// (e.g. cookies configured process-wide per spec.md §5).
	Header http.Header
	// Subprotocol is the WS subprotocol to negotiate.
	Subprotocol string
}

var _ transport.Provider = (*Provider)(nil)
var _ transport.EarlyOpener = (*Provider)(nil)

func (p *Provider) dialer() *websocket.Dialer {
	if p.Dialer != nil {
		return p.Dialer
	}
	return websocket.DefaultDialer
}

// Open dials and wraps the resulting socket; no request has been sent yet,
// matching spec.md §4.A's contract that Send is a distinct, later step.
func (p *Provider) Open(ctx context.Context, address string) (transport.Connection, error) {
	d := *p.dialer()
	if p.Subprotocol != "" {
		d.Subprotocols = []string{p.Subprotocol}
	}
	conn, resp, err := d.DialContext(ctx, address, p.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("ws: handshake failed: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("ws: handshake failed: %w", err)
	}
	return newConn(conn), nil
}

// OpenEarly starts the handshake in a goroutine and returns a handle that
// resolves once it completes, implementing transport.EarlyOpener.
func (p *Provider) OpenEarly(ctx context.Context, address string) (transport.Handle, error) {
	ctx, cancel := context.WithCancel(ctx)
	h := &handle{
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer close(h.done)
		conn, err := p.Open(ctx, address)
		h.conn, h.err = conn, err
	}()
	return h, nil
}

type handle struct {
	done   chan struct{}
	cancel context.CancelFunc
	conn   transport.Connection
	err    error

	mu       sync.Mutex
	aborted  bool
}

func (h *handle) Await(ctx context.Context) (transport.Connection, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		aborted := h.aborted
		h.mu.Unlock()
		if aborted {
			return nil, transport.ErrAborted
		}
		return h.conn, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *handle) Abort() {
	h.mu.Lock()
	h.aborted = true
	h.mu.Unlock()
	h.cancel()
	select {
	case <-h.done:
		if h.conn != nil {
			h.conn.Abort()
		}
	default:
	}
}

// conn adapts a *websocket.Conn to transport.Connection.
type conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	lines     chan transport.Line
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn) *conn {
	c := &conn{
		ws:    ws,
		lines: make(chan transport.Line, 64),
	}
	go c.readLoop()
	return c
}

func (c *conn) readLoop() {
	defer close(c.lines)
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.lines <- transport.Line{Err: io.EOF}
			} else {
				c.lines <- transport.Line{Err: fmt.Errorf("ws: read error: %w", err)}
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		c.lines <- transport.Line{Text: string(data)}
	}
}

func (c *conn) Send(ctx context.Context, line string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		c.ws.SetWriteDeadline(deadline)
		defer c.ws.SetWriteDeadline(time.Time{})
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		return fmt.Errorf("ws: write error: %w", err)
	}
	return nil
}

func (c *conn) Lines() <-chan transport.Line { return c.lines }

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ws.Close()
	})
	return err
}

func (c *conn) Abort() error {
	return c.Close()
}
