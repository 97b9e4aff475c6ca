package wire

import "strconv"

// EncodeEvent renders an Event back into its wire line. It exists primarily
// to let tests assert the round-trip property required by spec.md §8
// ("encode(decode(line)) = line for every directive the codec emits") and
// to let test doubles script server behavior without hand-formatting lines.
func EncodeEvent(e Event) string {
	switch v := e.(type) {
	case CONOK:
		return joinCSV("CONOK", v.SessionID, strconv.FormatInt(v.RequestLimit, 10), strconv.FormatInt(v.KeepaliveMs, 10), v.ControlLink)
	case CONERR:
		return joinCSV("CONERR", strconv.Itoa(v.Code), Escape(v.Message))
	case END:
		return joinCSV("END", strconv.Itoa(v.Cause), Escape(v.Message))
	case LOOP:
		return joinCSV("LOOP", strconv.FormatInt(v.DelayMs, 10))
	case PROBE:
		return "PROBE"
	case SYNC:
		return joinCSV("SYNC", strconv.FormatInt(v.ElapsedMs, 10))
	case SERVNAME:
		return joinCSV("SERVNAME", Escape(v.Name))
	case CLIENTIP:
		return joinCSV("CLIENTIP", v.Addr)
	case NOOP:
		return "NOOP"
	case MSGDONE:
		return joinCSV("MSGDONE", Escape(v.Sequence), strconv.FormatInt(v.Progressive, 10))
	case MSGFAIL:
		return joinCSV("MSGFAIL", Escape(v.Sequence), strconv.FormatInt(v.Progressive, 10), strconv.Itoa(v.Code), Escape(v.Message))
	case U:
		return joinCSV("U", strconv.FormatInt(v.SubID, 10), strconv.FormatInt(v.ItemIdx, 10), JoinFields(v.Fields))
	case EOS:
		return joinCSV("EOS", strconv.FormatInt(v.SubID, 10), strconv.FormatInt(v.ItemIdx, 10))
	case CS:
		return joinCSV("CS", strconv.FormatInt(v.SubID, 10), strconv.FormatInt(v.ItemIdx, 10))
	case OV:
		return joinCSV("OV", strconv.FormatInt(v.SubID, 10), strconv.FormatInt(v.ItemIdx, 10), strconv.FormatInt(v.LostCount, 10))
	case CONF:
		return joinCSV("CONF", strconv.FormatInt(v.SubID, 10), v.Frequency)
	case SUBOK:
		return joinCSV("SUBOK", strconv.FormatInt(v.SubID, 10), strconv.FormatInt(v.ItemCount, 10), strconv.FormatInt(v.FieldCount, 10))
	case SUBCMD:
		return joinCSV("SUBCMD", strconv.FormatInt(v.SubID, 10), strconv.FormatInt(v.ItemCount, 10), strconv.FormatInt(v.FieldCount, 10), strconv.FormatInt(v.KeyIdx, 10), strconv.FormatInt(v.CommandIdx, 10))
	case UNSUB:
		return joinCSV("UNSUB", strconv.FormatInt(v.SubID, 10))
	case REQOK:
		return joinCSV("REQOK", strconv.FormatInt(v.RequestID, 10))
	case REQERR:
		return joinCSV("REQERR", strconv.FormatInt(v.RequestID, 10), strconv.Itoa(v.Code), Escape(v.Message))
	case ERROR:
		return joinCSV("ERROR", strconv.Itoa(v.Code), Escape(v.Message))
	case MPNREG:
		return joinCSV("MPNREG", v.DeviceID)
	case MPNOK:
		return joinCSV("MPNOK", strconv.FormatInt(v.SubID, 10))
	default:
		return ""
	}
}
