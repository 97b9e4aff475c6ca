package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	cases := []string{
		"",
		"plain",
		"a&b=c",
		"100%",
		"pipe|separated|value",
		"comma,value",
		"line\r\nbreak",
	}
	for _, c := range cases {
		escaped := Escape(c)
		got, err := Unescape(escaped)
		require.NoError(t, err)
		assert.Equal(t, c, got, "round-trip for %q", c)
	}
}

func TestUnescapeMalformed(t *testing.T) {
	_, err := Unescape("100%")
	assert.Error(t, err)
	_, err = Unescape("100%ZZ")
	assert.Error(t, err)
}

func TestSplitFieldsSentinels(t *testing.T) {
	fields, err := SplitFields("|#|$|abc")
	require.NoError(t, err)
	require.Len(t, fields, 4)
	assert.Equal(t, FieldUnchanged, fields[0].Kind)
	assert.Equal(t, FieldNull, fields[1].Kind)
	assert.Equal(t, FieldEmpty, fields[2].Kind)
	assert.Equal(t, FieldValue, fields[3].Kind)
	assert.Equal(t, "abc", fields[3].Value)
}

func TestJoinFieldsInverse(t *testing.T) {
	fields := []Field{
		{Kind: FieldUnchanged},
		{Kind: FieldNull},
		{Kind: FieldEmpty},
		{Kind: FieldValue, Value: "has,comma"},
	}
	raw := JoinFields(fields)
	got, err := SplitFields(raw)
	require.NoError(t, err)
	assert.Equal(t, fields, got)
}

// decodeEncodeRoundTripCases lists one line per directive the codec emits,
// satisfying spec.md §8's "encode(decode(line)) = line" property.
var decodeEncodeRoundTripCases = []string{
	"CONOK,Sabcd1234,50000,5000,*",
	"CONERR,21,bad credentials",
	"END,40,requested by client",
	"LOOP,0",
	"PROBE",
	"SYNC,123",
	"SERVNAME,push1.example.com",
	"CLIENTIP,203.0.113.9",
	"NOOP",
	"MSGDONE,UNORDERED_MESSAGES,3",
	"MSGFAIL,orders,2,32,timeout exceeded",
	"U,1,1,AAPL|150.25|#",
	"EOS,1,1",
	"CS,1,1",
	"OV,1,1,4",
	"CONF,1,unlimited",
	"SUBOK,1,2,3",
	"SUBCMD,2,5,4,0,1",
	"UNSUB,1",
	"REQOK,9",
	"REQERR,9,21,invalid subscription",
	"ERROR,10,generic error",
	"MPNREG,device-123",
	"MPNOK,4",
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	for _, line := range decodeEncodeRoundTripCases {
		ev, err := Decode(line)
		require.NoError(t, err, "decode %q", line)
		got := EncodeEvent(ev)
		assert.Equal(t, line, got, "round-trip for %q", line)
	}
}

func TestDecodeUnknownDirective(t *testing.T) {
	_, err := Decode("WOOZLE,1,2")
	require.Error(t, err)
	var unk *UnknownDirectiveError
	assert.ErrorAs(t, err, &unk)
}

func TestDecodeWrongFieldCount(t *testing.T) {
	_, err := Decode("CONOK,onlyonefield")
	require.Error(t, err)
	var fc *FieldCountError
	assert.ErrorAs(t, err, &fc)
}

func TestEncodeCreateSessionRequest(t *testing.T) {
	line := EncodeCreateSession(CreateSessionRequest{
		Adapter:               "DEMO",
		RequestedMaxBandwidth: "unlimited",
		KeepaliveMs:           5000,
	})
	assert.Contains(t, line, "LS_adapter_set=DEMO")
	assert.Contains(t, line, "LS_op2=create")
	assert.Contains(t, line, "LS_keepalive_millis=5000")
}

func TestEncodeBindSessionRecover(t *testing.T) {
	line := EncodeBindSession(BindSessionRequest{
		SessionID:   "Sabcd",
		IsRecover:   true,
		RecoverFrom: 42,
	})
	assert.Contains(t, line, "LS_session=Sabcd")
	assert.Contains(t, line, "LS_recovery_from=42")
}

func TestEncodeControlAddSub(t *testing.T) {
	line := EncodeControl(ControlRequest{
		RequestID: 1,
		SubID:     2,
		Op:        OpAddSub,
		Mode:      ModeMerge,
		Group:     "items",
		Schema:    "f1 f2",
		Snapshot:  true,
	})
	assert.Contains(t, line, "LS_mode=MERGE")
	assert.Contains(t, line, "LS_group=items")
	assert.Contains(t, line, "LS_snapshot=true")
}

func TestEncodeMsgUnordered(t *testing.T) {
	line := EncodeMsg(MsgRequest{Text: "hello world"})
	assert.Contains(t, line, "LS_message=hello world")
	assert.NotContains(t, line, "LS_sequence")
}

func TestEncodeMsgSequenced(t *testing.T) {
	line := EncodeMsg(MsgRequest{Sequence: "orders", Progressive: 7, Text: "cancel"})
	assert.Contains(t, line, "LS_sequence=orders")
	assert.Contains(t, line, "LS_msg_prog=7")
}

func TestEncodeDestroy(t *testing.T) {
	line := EncodeDestroy("Sabcd", "api")
	assert.Contains(t, line, "LS_session=Sabcd")
	assert.Contains(t, line, "LS_cause=api")
}
