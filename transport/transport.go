// Package transport defines the byte-level contract the session core
// consumes from a transport implementation, per spec.md §4.A/§6. The core
// never imports transport/ws or transport/http directly — it is handed a
// Provider at construction time, the same inversion the teacher SDK uses
// for its Connection interface (mcp/websocket.go, mcp/streamable.go).
package transport

import "context"

// Line is one inbound text line, or a terminal error ending the lazy
// sequence produced by a Connection.
type Line struct {
	Text string
	Err  error
}

// Connection is bytes in/out over an already-open transport, per spec.md
// §4.A. Implementations must make Close/Abort idempotent.
type Connection interface {
	// Send transmits a single encoded request line. It must not block the
	// caller on network I/O beyond what ctx allows; completion is a
	// posted continuation in the caller's own event loop, not a
	// synchronous wire round-trip.
	Send(ctx context.Context, line string) error

	// Lines returns the channel of inbound lines. The channel is closed
	// exactly once, after which the last sent Line (if any) carries the
	// terminal error (io.EOF on a graceful close).
	Lines() <-chan Line

	// Close closes the connection gracefully. Idempotent.
	Close() error

	// Abort closes the connection immediately, without a close handshake.
	// Per spec.md §4.A, Abort on an in-flight Open must resolve that
	// call's result to ErrAborted without a connected callback ever
	// firing.
	Abort() error
}

// Provider opens connections to a server address. HTTP and WS transports
// both implement it; the WS transport additionally implements
// EarlyOpener (see below) to support EarlyWSOpenEnabled (spec.md §4.D).
type Provider interface {
	// Open opens a new connection. It sends no request line itself; for
	// the HTTP transports the first line passed to Send becomes the body
	// of the first request.
	Open(ctx context.Context, address string) (Connection, error)
}

// EarlyOpener is implemented by transports that can open the underlying
// socket before any request line is ready to send, so the handshake can
// overlap the first HTTP create_session round-trip (spec.md §4.D).
type EarlyOpener interface {
	// OpenEarly begins the handshake immediately and returns a Handle
	// that resolves once it completes (or fails). No request is sent
	// until the caller sends on the Connection returned by Handle.Await.
	OpenEarly(ctx context.Context, address string) (Handle, error)
}

// Handle represents an in-flight or completed early-opened connection.
type Handle interface {
	// Await blocks until the handshake completes, the context is
	// cancelled, or the handle is aborted. A cancelled context here does
	// not abort the underlying dial; call Abort explicitly for that.
	Await(ctx context.Context) (Connection, error)
	// Abort cancels an in-flight handshake so that Await resolves to
	// ErrAborted without a connected callback ever firing, or closes an
	// already-established connection.
	Abort()
}

// ErrAborted is returned by Handle.Await (and may be returned by Open) when
// the in-flight connection attempt was aborted before completing.
var ErrAborted = errAborted{}

type errAborted struct{}

func (errAborted) Error() string { return "transport: connection attempt aborted" }
