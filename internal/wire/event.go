package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Event is a single decoded inbound directive. It is a closed sum type:
// the concrete types below are the only implementations, distinguished by
// an unexported marker method in the style of the teacher SDK's
// isParams()/isResult() convention.
type Event interface {
	isEvent()
	// Directive returns the wire directive name, e.g. "CONOK".
	Directive() string
}

// CONOK acknowledges a successful create_session or bind_session.
type CONOK struct {
	SessionID      string
	RequestLimit   int64
	KeepaliveMs    int64
	ControlLink    string // "*" means "use the same link"
}

func (CONOK) isEvent()          {}
func (CONOK) Directive() string { return "CONOK" }

// CONERR reports a fatal or retryable failure to create/bind a session.
type CONERR struct {
	Code    int
	Message string
}

func (CONERR) isEvent()          {}
func (CONERR) Directive() string { return "CONERR" }

// END reports that the server deliberately closed the session.
type END struct {
	Cause   int
	Message string
}

func (END) isEvent()          {}
func (END) Directive() string { return "END" }

// LOOP asks the client to close the current connection and reissue the
// bind/rebind request, optionally after a delay (streaming-to-polling
// downgrade signal).
type LOOP struct {
	DelayMs int64
}

func (LOOP) isEvent()          {}
func (LOOP) Directive() string { return "LOOP" }

// PROBE is a keepalive-equivalent payload carrying no data.
type PROBE struct{}

func (PROBE) isEvent()          {}
func (PROBE) Directive() string { return "PROBE" }

// SYNC reports the server's view of elapsed time since the last client
// activity, used to detect clock skew during recovery.
type SYNC struct {
	ElapsedMs int64
}

func (SYNC) isEvent()          {}
func (SYNC) Directive() string { return "SYNC" }

// SERVNAME reports the server's canonical name.
type SERVNAME struct {
	Name string
}

func (SERVNAME) isEvent()          {}
func (SERVNAME) Directive() string { return "SERVNAME" }

// CLIENTIP reports the client's IP address as seen by the server.
type CLIENTIP struct {
	Addr string
}

func (CLIENTIP) isEvent()          {}
func (CLIENTIP) Directive() string { return "CLIENTIP" }

// NOOP carries no data; it exists purely to keep a connection from being
// mistaken for idle by intermediate proxies.
type NOOP struct{}

func (NOOP) isEvent()          {}
func (NOOP) Directive() string { return "NOOP" }

// MSGDONE reports that a sequenced message was processed successfully.
type MSGDONE struct {
	Sequence    string
	Progressive int64
}

func (MSGDONE) isEvent()          {}
func (MSGDONE) Directive() string { return "MSGDONE" }

// MSGFAIL reports that a sequenced message could not be processed.
type MSGFAIL struct {
	Sequence    string
	Progressive int64
	Code        int
	Message     string
}

func (MSGFAIL) isEvent()          {}
func (MSGFAIL) Directive() string { return "MSGFAIL" }

// U is an item update.
type U struct {
	SubID  int64
	ItemIdx int64
	Fields []Field
}

func (U) isEvent()          {}
func (U) Directive() string { return "U" }

// EOS reports end-of-snapshot for an item in a subscription.
type EOS struct {
	SubID   int64
	ItemIdx int64
}

func (EOS) isEvent()          {}
func (EOS) Directive() string { return "EOS" }

// CS (clear snapshot) asks the client to discard any snapshot state held
// for an item.
type CS struct {
	SubID   int64
	ItemIdx int64
}

func (CS) isEvent()          {}
func (CS) Directive() string { return "CS" }

// OV reports that updates for an item were coalesced (overflow) due to the
// requested max frequency.
type OV struct {
	SubID      int64
	ItemIdx    int64
	LostCount  int64
}

func (OV) isEvent()          {}
func (OV) Directive() string { return "OV" }

// CONF acknowledges a constrain (frequency/bandwidth change) request.
type CONF struct {
	SubID     int64
	Frequency string // "unlimited" or a decimal string
}

func (CONF) isEvent()          {}
func (CONF) Directive() string { return "CONF" }

// SUBOK acknowledges a MERGE/DISTINCT/RAW subscription.
type SUBOK struct {
	SubID     int64
	ItemCount int64
	FieldCount int64
}

func (SUBOK) isEvent()          {}
func (SUBOK) Directive() string { return "SUBOK" }

// SUBCMD acknowledges a COMMAND-mode subscription, which additionally
// reports the index of the key and command fields.
type SUBCMD struct {
	SubID      int64
	ItemCount  int64
	FieldCount int64
	KeyIdx     int64
	CommandIdx int64
}

func (SUBCMD) isEvent()          {}
func (SUBCMD) Directive() string { return "SUBCMD" }

// UNSUB reports that a subscription was dropped.
type UNSUB struct {
	SubID int64
}

func (UNSUB) isEvent()          {}
func (UNSUB) Directive() string { return "UNSUB" }

// REQOK acknowledges an arbitrary request by id.
type REQOK struct {
	RequestID int64
}

func (REQOK) isEvent()          {}
func (REQOK) Directive() string { return "REQOK" }

// REQERR reports that a request failed.
type REQERR struct {
	RequestID int64
	Code      int
	Message   string
}

func (REQERR) isEvent()          {}
func (REQERR) Directive() string { return "REQERR" }

// ERROR is a general, session-level error not tied to a specific request.
type ERROR struct {
	Code    int
	Message string
}

func (ERROR) isEvent()          {}
func (ERROR) Directive() string { return "ERROR" }

// MPNREG/MPNOK acknowledge push-notification device registration; the
// session core only needs to route them, not interpret their payload.
type MPNREG struct {
	DeviceID string
}

func (MPNREG) isEvent()          {}
func (MPNREG) Directive() string { return "MPNREG" }

type MPNOK struct {
	SubID int64
}

func (MPNOK) isEvent()          {}
func (MPNOK) Directive() string { return "MPNOK" }

// UnknownDirectiveError is returned for a directive the codec does not
// recognize. Per spec it is always recoverable: the session treats it as a
// protocol error, not a fatal one.
type UnknownDirectiveError struct {
	Directive string
	Line      string
}

func (e *UnknownDirectiveError) Error() string {
	return fmt.Sprintf("wire: unknown directive %q in line %q", e.Directive, e.Line)
}

// FieldCountError is returned when a recognized directive has the wrong
// number of comma-separated fields for its verb.
type FieldCountError struct {
	Directive string
	Got, Want int
}

func (e *FieldCountError) Error() string {
	return fmt.Sprintf("wire: directive %s has %d fields, want %d", e.Directive, e.Got, e.Want)
}

func parseInt(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func requireFields(directive string, got []string, want int) error {
	if len(got) != want {
		return &FieldCountError{Directive: directive, Got: len(got), Want: want}
	}
	return nil
}

// joinCSV builds a comma-separated directive line, used by tests that need
// to assert the codec's own encode(decode(line)) == line round trip as well
// as by EncodeEvent (see encode_event.go).
func joinCSV(fields ...string) string {
	return strings.Join(fields, ",")
}
