package session

// Status is the observable status string of spec.md §3. Exactly one
// status is active at any time for a Client; transitions are totally
// ordered within a Session.
type Status string

const (
	StatusDisconnected               Status = "DISCONNECTED"
	StatusDisconnectedWillRetry      Status = "DISCONNECTED:WILL-RETRY"
	StatusDisconnectedTryingRecovery Status = "DISCONNECTED:TRYING-RECOVERY"
	StatusConnecting                 Status = "CONNECTING"
	StatusConnectedStreamSensing      Status = "CONNECTED:STREAM-SENSING"
	StatusConnectedWSStreaming        Status = "CONNECTED:WS-STREAMING"
	StatusConnectedHTTPStreaming      Status = "CONNECTED:HTTP-STREAMING"
	StatusConnectedWSPolling          Status = "CONNECTED:WS-POLLING"
	StatusConnectedHTTPPolling        Status = "CONNECTED:HTTP-POLLING"
	StatusStalled                     Status = "STALLED"
)

// statusGraph lists, for each status, the statuses it may legally
// transition to. It is exposed only through IsValidTransition; the state
// machine itself never consults it (the transitions are hand-coded in
// manager.go), and no test in this module checks the code against it.
var statusGraph = map[Status][]Status{
	StatusDisconnected:               {StatusConnecting},
	StatusDisconnectedWillRetry:      {StatusConnecting, StatusDisconnected},
	StatusDisconnectedTryingRecovery: {StatusConnecting, StatusDisconnected, StatusDisconnectedWillRetry},
	StatusConnecting:                 {StatusConnectedStreamSensing, StatusDisconnected, StatusDisconnectedWillRetry, StatusDisconnectedTryingRecovery},
	StatusConnectedStreamSensing:     {StatusConnectedWSStreaming, StatusConnectedHTTPStreaming, StatusConnectedWSPolling, StatusConnectedHTTPPolling, StatusDisconnected, StatusDisconnectedWillRetry, StatusDisconnectedTryingRecovery},
	StatusConnectedWSStreaming:       {StatusStalled, StatusConnectedWSPolling, StatusDisconnected, StatusDisconnectedWillRetry, StatusDisconnectedTryingRecovery, StatusConnectedHTTPStreaming},
	StatusConnectedHTTPStreaming:     {StatusStalled, StatusConnectedHTTPPolling, StatusDisconnected, StatusDisconnectedWillRetry, StatusDisconnectedTryingRecovery},
	StatusConnectedWSPolling:         {StatusStalled, StatusDisconnected, StatusDisconnectedWillRetry, StatusDisconnectedTryingRecovery, StatusConnectedHTTPPolling},
	StatusConnectedHTTPPolling:       {StatusStalled, StatusDisconnected, StatusDisconnectedWillRetry, StatusDisconnectedTryingRecovery},
	StatusStalled:                    {StatusConnectedWSStreaming, StatusConnectedHTTPStreaming, StatusConnectedWSPolling, StatusConnectedHTTPPolling, StatusDisconnected, StatusDisconnectedWillRetry, StatusDisconnectedTryingRecovery},
}

// IsValidTransition reports whether to is a legal successor of from per the
// graph above. from == to is always legal (re-announcing the same status is
// a no-op, not a transition).
func IsValidTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range statusGraph[from] {
		if s == to {
			return true
		}
	}
	return false
}
