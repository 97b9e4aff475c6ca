package session

import "fmt"

// TransportError wraps a failure from the Transport Provider (handshake
// failure, unexpected close, write failure). Per spec.md §7 it is always
// recovered internally (stream-sense switch or retry loop) and never
// surfaces to user code as a panic or returned error from a public method.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string { return fmt.Sprintf("session: transport error: %v", e.Cause) }
func (e *TransportError) Unwrap() error { return e.Cause }

// ProtocolError wraps a CONERR or END directive from the server. Fatal
// ProtocolErrors are surfaced to the façade's onServerError listener and no
// retry is scheduled; non-fatal ones drive a fresh create_session.
type ProtocolError struct {
	Code    int
	Message string
	Fatal   bool
	// SyncError is true for the specific "resume refused" case (spec.md
	// §4.C's recovery paragraph): a fresh create_session is required, but
	// unlike a generic fatal error, retrying immediately is fine.
	SyncError bool
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("session: protocol error %d: %s", e.Code, e.Message)
}

// RequestError wraps a REQERR or MSGFAIL result, routed to the originating
// listener (subscription or message) rather than the session-wide error
// channel.
type RequestError struct {
	Code    int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("session: request error %d: %s", e.Code, e.Message)
}

// StateError reports a local programmer error (spec.md §7): subscribing an
// already-active Subscription, an invalid sequence name, connecting
// without a server address. It fails synchronously, never on the session
// thread.
type StateError struct {
	Msg string
}

func (e *StateError) Error() string { return "session: " + e.Msg }

// fatalConerrCodes are CONERR codes that spec.md §9 leaves as an open
// question; resolved in SPEC_FULL.md's "Open Question resolutions" to mean
// "fatal to the client, no retry scheduled, surfaced via onServerError".
var fatalConerrCodes = map[int]bool{
	1:  true, // conflicting session name / resource unavailable
	32: true, // requested max concurrent sessions reached
	33: true, // requested max concurrent sessions reached (session-specific)
	34: true, // create_session rate limit
}

// syncErrorConerrCode is the CONERR code meaning "the session this client
// tried to recover no longer exists on the server"; it forces a fresh
// create_session without being treated as fatal.
const syncErrorConerrCode = 20

// classifyConerr turns a raw CONERR code/message into a *ProtocolError with
// Fatal/SyncError set per the Open Question resolution recorded in
// SPEC_FULL.md.
func classifyConerr(code int, msg string) *ProtocolError {
	return &ProtocolError{
		Code:      code,
		Message:   msg,
		Fatal:     fatalConerrCodes[code],
		SyncError: code == syncErrorConerrCode,
	}
}

// classifyEnd turns an END cause code into a *ProtocolError. Every END
// cause is retry-eligible except the ones that also appear in
// fatalConerrCodes (a license/slot-limit condition can also arrive as an
// END on an already-bound session).
func classifyEnd(cause int, msg string) *ProtocolError {
	return &ProtocolError{
		Code:    cause,
		Message: msg,
		Fatal:   fatalConerrCodes[cause],
	}
}
