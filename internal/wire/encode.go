package wire

import (
	"sort"
	"strconv"
	"strings"
)

// Params is an unordered set of request parameters; encodeParams renders
// them sorted by name so encoding is reproducible (tests rely on it). The
// server does not care about order.
type Params map[string]string

// encodeParams renders params as a sorted name=value&name=value... line,
// escaping each value.
func encodeParams(params Params) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + Escape(params[k])
	}
	return strings.Join(parts, "&")
}

// CreateSessionRequest parameters, per spec.md §4.C (OFF -> CREATING).
type CreateSessionRequest struct {
	Adapter           string
	RequestedMaxBandwidth string // "unlimited" or decimal string
	KeepaliveMs       int64
	Polling           bool
	ContentLength     int64 // 0 means omit
}

// EncodeCreateSession builds the create_session request line.
func EncodeCreateSession(r CreateSessionRequest) string {
	p := Params{
		"LS_op2":   "create",
		"LS_cause": "api",
	}
	if r.Adapter != "" {
		p["LS_adapter_set"] = r.Adapter
	}
	if r.RequestedMaxBandwidth != "" {
		p["LS_requested_max_bandwidth"] = r.RequestedMaxBandwidth
	}
	if r.KeepaliveMs > 0 {
		p["LS_keepalive_millis"] = strconv.FormatInt(r.KeepaliveMs, 10)
	}
	if r.Polling {
		p["LS_polling"] = "true"
	}
	if r.ContentLength > 0 {
		p["LS_content_length"] = strconv.FormatInt(r.ContentLength, 10)
	}
	return encodeParams(p)
}

// BindSessionRequest parameters, per spec.md §4.C (CREATED -> FIRST_BINDING).
type BindSessionRequest struct {
	SessionID string
	// RecoverFrom is the last received progressive; it is sent only when
	// IsRecover is true, which turns the bind into a recover request
	// (spec.md §4.C's "Recovery").
	RecoverFrom int64
	IsRecover   bool
	Polling     bool
	PollingIdleMs int64
}

// EncodeBindSession builds a bind_session or recover request line.
func EncodeBindSession(r BindSessionRequest) string {
	p := Params{
		"LS_session": r.SessionID,
	}
	if r.IsRecover {
		p["LS_recovery_from"] = strconv.FormatInt(r.RecoverFrom, 10)
	}
	if r.Polling {
		p["LS_polling"] = "true"
		if r.PollingIdleMs > 0 {
			p["LS_idle_millis"] = strconv.FormatInt(r.PollingIdleMs, 10)
		}
	}
	return encodeParams(p)
}

// SubscriptionMode mirrors spec.md §3's Subscription.Mode.
type SubscriptionMode string

const (
	ModeMerge    SubscriptionMode = "MERGE"
	ModeDistinct SubscriptionMode = "DISTINCT"
	ModeRaw      SubscriptionMode = "RAW"
	ModeCommand  SubscriptionMode = "COMMAND"
)

// ControlOp is the verb of a control request.
type ControlOp string

const (
	OpAddSub        ControlOp = "add"
	OpDeleteSub     ControlOp = "delete"
	OpConstrain     ControlOp = "reconf"
	OpReverseHeartbeat ControlOp = "force_rebind"
)

// ControlRequest parameters for subscribe/unsubscribe/constrain/reverse
// heartbeat, per spec.md §4.B.
type ControlRequest struct {
	RequestID int64
	SubID     int64
	Op        ControlOp
	Mode      SubscriptionMode
	Group     string
	Schema    string
	MaxFrequency string
	BufferSize   int64
	Snapshot     bool
}

// EncodeControl builds a control request line.
func EncodeControl(r ControlRequest) string {
	p := Params{
		"LS_reqId": strconv.FormatInt(r.RequestID, 10),
		"LS_op":    string(r.Op),
		"LS_subId": strconv.FormatInt(r.SubID, 10),
	}
	switch r.Op {
	case OpAddSub:
		p["LS_mode"] = string(r.Mode)
		p["LS_group"] = r.Group
		p["LS_schema"] = r.Schema
		if r.MaxFrequency != "" {
			p["LS_requested_max_frequency"] = r.MaxFrequency
		}
		if r.BufferSize > 0 {
			p["LS_requested_buffer_size"] = strconv.FormatInt(r.BufferSize, 10)
		}
		if r.Snapshot {
			p["LS_snapshot"] = "true"
		}
	case OpConstrain:
		if r.MaxFrequency != "" {
			p["LS_requested_max_frequency"] = r.MaxFrequency
		}
	}
	return encodeParams(p)
}

// MsgRequest parameters for a sequenced or unordered application message.
type MsgRequest struct {
	Sequence    string
	Progressive int64 // 0 for UNORDERED_MESSAGES
	Text        string
}

// EncodeMsg builds a msg request line.
func EncodeMsg(r MsgRequest) string {
	p := Params{
		"LS_message": r.Text,
	}
	if r.Sequence != "" {
		p["LS_sequence"] = r.Sequence
	}
	if r.Progressive > 0 {
		p["LS_msg_prog"] = strconv.FormatInt(r.Progressive, 10)
	}
	return encodeParams(p)
}

// EncodeDestroy builds a destroy request line.
func EncodeDestroy(sessionID, cause string) string {
	return encodeParams(Params{
		"LS_session": sessionID,
		"LS_cause":   cause,
	})
}
