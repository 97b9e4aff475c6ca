package session

// transportKind identifies one of the four concrete wire transports a
// candidate in the stream-sense sequence resolves to (spec.md component D).
type transportKind int

const (
	kindWSStreaming transportKind = iota
	kindWSPolling
	kindHTTPStreaming
	kindHTTPPolling
)

func (k transportKind) status() Status {
	switch k {
	case kindWSStreaming:
		return StatusConnectedWSStreaming
	case kindWSPolling:
		return StatusConnectedWSPolling
	case kindHTTPStreaming:
		return StatusConnectedHTTPStreaming
	default:
		return StatusConnectedHTTPPolling
	}
}

func (k transportKind) isWS() bool {
	return k == kindWSStreaming || k == kindWSPolling
}

func (k transportKind) isStreaming() bool {
	return k == kindWSStreaming || k == kindHTTPStreaming
}

// streamSenseSequence returns the ordered list of transport kinds the
// Session Manager tries in turn, per spec.md §4.D: WS streaming is
// preferred, then WS polling, then HTTP streaming, then HTTP polling,
// unless ForcedTransport narrows the sequence to a single entry or a
// same-protocol pair.
func streamSenseSequence(forced ForcedTransport) []transportKind {
	switch forced {
	case ForcedWS:
		return []transportKind{kindWSStreaming, kindWSPolling}
	case ForcedWSStreaming:
		return []transportKind{kindWSStreaming}
	case ForcedWSPolling:
		return []transportKind{kindWSPolling}
	case ForcedHTTP:
		return []transportKind{kindHTTPStreaming, kindHTTPPolling}
	case ForcedHTTPStreaming:
		return []transportKind{kindHTTPStreaming}
	case ForcedHTTPPolling:
		return []transportKind{kindHTTPPolling}
	default:
		return []transportKind{kindWSStreaming, kindWSPolling, kindHTTPStreaming, kindHTTPPolling}
	}
}

// nextOnStreamingFailure returns the next kind to try after kind fails to
// deliver a first byte within FirstRetryMaxDelay, or ok=false if the
// sequence is exhausted and a full retry delay must be waited out first.
func nextOnStreamingFailure(seq []transportKind, kind transportKind) (transportKind, bool) {
	for i, k := range seq {
		if k == kind && i+1 < len(seq) {
			return seq[i+1], true
		}
	}
	return 0, false
}

// firstNonWS returns the first HTTP candidate in seq, or ok=false if the
// sequence is WS-only (a forced WS transport), per spec.md §4.D's
// WS_BROKEN rule: "reject and ask the parent to stream-sense-switch to
// HTTP" rather than ever attempting a WS bind once the early handshake is
// known to have failed.
func firstNonWS(seq []transportKind) (transportKind, bool) {
	for _, k := range seq {
		if !k.isWS() {
			return k, true
		}
	}
	return 0, false
}

// nextOnLoop returns the kind a LOOP directive should switch to: the
// current streaming transport's polling counterpart, per spec.md §4.D ("a
// LOOP directive degrades a streaming connection to the matching polling
// one without restarting stream-sense from WS").
func nextOnLoop(kind transportKind) transportKind {
	switch kind {
	case kindWSStreaming:
		return kindWSPolling
	case kindHTTPStreaming:
		return kindHTTPPolling
	default:
		return kind
	}
}
