package session

import "time"

// ForcedTransport enumerates the values ConnectionOptions.ForcedTransport
// may take, per spec.md §3. The zero value means "no forcing: let
// stream-sense decide".
type ForcedTransport string

const (
	ForcedNone         ForcedTransport = ""
	ForcedWS           ForcedTransport = "WS"
	ForcedWSStreaming  ForcedTransport = "WS-STREAMING"
	ForcedWSPolling    ForcedTransport = "WS-POLLING"
	ForcedHTTP         ForcedTransport = "HTTP"
	ForcedHTTPStreaming ForcedTransport = "HTTP-STREAMING"
	ForcedHTTPPolling   ForcedTransport = "HTTP-POLLING"
)

// ConnectionOptions configures a Client, per spec.md §3. Every field is
// read by the session thread only; the façade never mutates it directly,
// per spec.md §9 ("public mutable option properties... become explicit
// command messages"); it is set once at construction through client.go's
// Option functions.
type ConnectionOptions struct {
	ForcedTransport          ForcedTransport
	EarlyWSOpenEnabled       bool
	ContentLengthRequired    bool
	ReverseHeartbeatInterval time.Duration
	RequestedMaxBandwidth    string // "unlimited" or a decimal string
	IdleTimeout              time.Duration
	KeepaliveInterval        time.Duration
	PollingInterval          time.Duration
	RetryDelay               time.Duration
	SessionRecoveryTimeout   time.Duration
	StalledTimeout           time.Duration
	ReconnectTimeout         time.Duration
	// FirstRetryMaxDelay bounds how long stream-sense waits for the first
	// byte of stream data before LOOPing down to polling (spec.md §4.D).
	FirstRetryMaxDelay time.Duration
}

// DefaultConnectionOptions returns the documented defaults referenced by
// SPEC_FULL.md's Open Question resolution: a 4s initial retry delay, 5s
// keepalive, 2s stalled timeout, 3s reconnect timeout, 4s polling interval.
func DefaultConnectionOptions() ConnectionOptions {
	return ConnectionOptions{
		ForcedTransport:          ForcedNone,
		EarlyWSOpenEnabled:       true,
		ContentLengthRequired:    false,
		ReverseHeartbeatInterval: 0,
		RequestedMaxBandwidth:    "unlimited",
		IdleTimeout:              19 * time.Second,
		KeepaliveInterval:        5 * time.Second,
		PollingInterval:          4 * time.Second,
		RetryDelay:               4 * time.Second,
		SessionRecoveryTimeout:   60 * time.Second,
		StalledTimeout:           2 * time.Second,
		ReconnectTimeout:         3 * time.Second,
		FirstRetryMaxDelay:       6 * time.Second,
	}
}

func (o ConnectionOptions) withDefaults() ConnectionOptions {
	d := DefaultConnectionOptions()
	if o.KeepaliveInterval <= 0 {
		o.KeepaliveInterval = d.KeepaliveInterval
	}
	if o.PollingInterval <= 0 {
		o.PollingInterval = d.PollingInterval
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = d.RetryDelay
	}
	if o.SessionRecoveryTimeout <= 0 {
		o.SessionRecoveryTimeout = d.SessionRecoveryTimeout
	}
	if o.StalledTimeout <= 0 {
		o.StalledTimeout = d.StalledTimeout
	}
	if o.ReconnectTimeout <= 0 {
		o.ReconnectTimeout = d.ReconnectTimeout
	}
	if o.FirstRetryMaxDelay <= 0 {
		o.FirstRetryMaxDelay = d.FirstRetryMaxDelay
	}
	if o.RequestedMaxBandwidth == "" {
		o.RequestedMaxBandwidth = d.RequestedMaxBandwidth
	}
	return o
}
