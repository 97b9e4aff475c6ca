package wire

import "strings"

// Decode parses a single inbound line into exactly one typed Event.
// Unknown directives yield an *UnknownDirectiveError; a recognized
// directive with the wrong field count yields a *FieldCountError. Both are
// recoverable protocol errors per spec: the session downgrades them to a
// logged warning and keeps the connection open, it never panics or closes
// the transport because of them.
func Decode(line string) (Event, error) {
	directive, rest, _ := strings.Cut(line, ",")
	var fields []string
	if rest != "" || strings.Contains(line, ",") {
		fields = strings.Split(rest, ",")
	}

	switch directive {
	case "CONOK":
		if err := requireFields(directive, fields, 4); err != nil {
			return nil, err
		}
		reqLimit, err := parseInt(fields[1])
		if err != nil {
			return nil, err
		}
		keepalive, err := parseInt(fields[2])
		if err != nil {
			return nil, err
		}
		return CONOK{SessionID: fields[0], RequestLimit: reqLimit, KeepaliveMs: keepalive, ControlLink: fields[3]}, nil

	case "CONERR":
		if err := requireFields(directive, fields, 2); err != nil {
			return nil, err
		}
		code, err := parseInt(fields[0])
		if err != nil {
			return nil, err
		}
		msg, err := Unescape(fields[1])
		if err != nil {
			return nil, err
		}
		return CONERR{Code: int(code), Message: msg}, nil

	case "END":
		if err := requireFields(directive, fields, 2); err != nil {
			return nil, err
		}
		cause, err := parseInt(fields[0])
		if err != nil {
			return nil, err
		}
		msg, err := Unescape(fields[1])
		if err != nil {
			return nil, err
		}
		return END{Cause: int(cause), Message: msg}, nil

	case "LOOP":
		if err := requireFields(directive, fields, 1); err != nil {
			return nil, err
		}
		delay, err := parseInt(fields[0])
		if err != nil {
			return nil, err
		}
		return LOOP{DelayMs: delay}, nil

	case "PROBE":
		if err := requireFields(directive, fields, 0); err != nil {
			return nil, err
		}
		return PROBE{}, nil

	case "SYNC":
		if err := requireFields(directive, fields, 1); err != nil {
			return nil, err
		}
		elapsed, err := parseInt(fields[0])
		if err != nil {
			return nil, err
		}
		return SYNC{ElapsedMs: elapsed}, nil

	case "SERVNAME":
		if err := requireFields(directive, fields, 1); err != nil {
			return nil, err
		}
		name, err := Unescape(fields[0])
		if err != nil {
			return nil, err
		}
		return SERVNAME{Name: name}, nil

	case "CLIENTIP":
		if err := requireFields(directive, fields, 1); err != nil {
			return nil, err
		}
		return CLIENTIP{Addr: fields[0]}, nil

	case "NOOP":
		if err := requireFields(directive, fields, 0); err != nil {
			return nil, err
		}
		return NOOP{}, nil

	case "MSGDONE":
		if err := requireFields(directive, fields, 2); err != nil {
			return nil, err
		}
		prog, err := parseInt(fields[1])
		if err != nil {
			return nil, err
		}
		seq, err := Unescape(fields[0])
		if err != nil {
			return nil, err
		}
		return MSGDONE{Sequence: seq, Progressive: prog}, nil

	case "MSGFAIL":
		if err := requireFields(directive, fields, 4); err != nil {
			return nil, err
		}
		prog, err := parseInt(fields[1])
		if err != nil {
			return nil, err
		}
		code, err := parseInt(fields[2])
		if err != nil {
			return nil, err
		}
		seq, err := Unescape(fields[0])
		if err != nil {
			return nil, err
		}
		msg, err := Unescape(fields[3])
		if err != nil {
			return nil, err
		}
		return MSGFAIL{Sequence: seq, Progressive: prog, Code: int(code), Message: msg}, nil

	case "U":
		if len(fields) < 2 {
			return nil, &FieldCountError{Directive: directive, Got: len(fields), Want: 2}
		}
		subID, err := parseInt(fields[0])
		if err != nil {
			return nil, err
		}
		itemIdx, err := parseInt(fields[1])
		if err != nil {
			return nil, err
		}
		raw := ""
		if len(fields) > 2 {
			raw = strings.Join(fields[2:], ",")
		}
		parsed, err := SplitFields(raw)
		if err != nil {
			return nil, err
		}
		return U{SubID: subID, ItemIdx: itemIdx, Fields: parsed}, nil

	case "EOS":
		if err := requireFields(directive, fields, 2); err != nil {
			return nil, err
		}
		subID, err := parseInt(fields[0])
		if err != nil {
			return nil, err
		}
		itemIdx, err := parseInt(fields[1])
		if err != nil {
			return nil, err
		}
		return EOS{SubID: subID, ItemIdx: itemIdx}, nil

	case "CS":
		if err := requireFields(directive, fields, 2); err != nil {
			return nil, err
		}
		subID, err := parseInt(fields[0])
		if err != nil {
			return nil, err
		}
		itemIdx, err := parseInt(fields[1])
		if err != nil {
			return nil, err
		}
		return CS{SubID: subID, ItemIdx: itemIdx}, nil

	case "OV":
		if err := requireFields(directive, fields, 3); err != nil {
			return nil, err
		}
		subID, err := parseInt(fields[0])
		if err != nil {
			return nil, err
		}
		itemIdx, err := parseInt(fields[1])
		if err != nil {
			return nil, err
		}
		lost, err := parseInt(fields[2])
		if err != nil {
			return nil, err
		}
		return OV{SubID: subID, ItemIdx: itemIdx, LostCount: lost}, nil

	case "CONF":
		if err := requireFields(directive, fields, 2); err != nil {
			return nil, err
		}
		subID, err := parseInt(fields[0])
		if err != nil {
			return nil, err
		}
		return CONF{SubID: subID, Frequency: fields[1]}, nil

	case "SUBOK":
		if err := requireFields(directive, fields, 3); err != nil {
			return nil, err
		}
		subID, err := parseInt(fields[0])
		if err != nil {
			return nil, err
		}
		items, err := parseInt(fields[1])
		if err != nil {
			return nil, err
		}
		flds, err := parseInt(fields[2])
		if err != nil {
			return nil, err
		}
		return SUBOK{SubID: subID, ItemCount: items, FieldCount: flds}, nil

	case "SUBCMD":
		if err := requireFields(directive, fields, 5); err != nil {
			return nil, err
		}
		subID, err := parseInt(fields[0])
		if err != nil {
			return nil, err
		}
		items, err := parseInt(fields[1])
		if err != nil {
			return nil, err
		}
		flds, err := parseInt(fields[2])
		if err != nil {
			return nil, err
		}
		keyIdx, err := parseInt(fields[3])
		if err != nil {
			return nil, err
		}
		cmdIdx, err := parseInt(fields[4])
		if err != nil {
			return nil, err
		}
		return SUBCMD{SubID: subID, ItemCount: items, FieldCount: flds, KeyIdx: keyIdx, CommandIdx: cmdIdx}, nil

	case "UNSUB":
		if err := requireFields(directive, fields, 1); err != nil {
			return nil, err
		}
		subID, err := parseInt(fields[0])
		if err != nil {
			return nil, err
		}
		return UNSUB{SubID: subID}, nil

	case "REQOK":
		if err := requireFields(directive, fields, 1); err != nil {
			return nil, err
		}
		reqID, err := parseInt(fields[0])
		if err != nil {
			return nil, err
		}
		return REQOK{RequestID: reqID}, nil

	case "REQERR":
		if err := requireFields(directive, fields, 3); err != nil {
			return nil, err
		}
		reqID, err := parseInt(fields[0])
		if err != nil {
			return nil, err
		}
		code, err := parseInt(fields[1])
		if err != nil {
			return nil, err
		}
		msg, err := Unescape(fields[2])
		if err != nil {
			return nil, err
		}
		return REQERR{RequestID: reqID, Code: int(code), Message: msg}, nil

	case "ERROR":
		if err := requireFields(directive, fields, 2); err != nil {
			return nil, err
		}
		code, err := parseInt(fields[0])
		if err != nil {
			return nil, err
		}
		msg, err := Unescape(fields[1])
		if err != nil {
			return nil, err
		}
		return ERROR{Code: int(code), Message: msg}, nil

	case "MPNREG":
		if err := requireFields(directive, fields, 1); err != nil {
			return nil, err
		}
		return MPNREG{DeviceID: fields[0]}, nil

	case "MPNOK":
		if err := requireFields(directive, fields, 1); err != nil {
			return nil, err
		}
		subID, err := parseInt(fields[0])
		if err != nil {
			return nil, err
		}
		return MPNOK{SubID: subID}, nil

	default:
		return nil, &UnknownDirectiveError{Directive: directive, Line: line}
	}
}
