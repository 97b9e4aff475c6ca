// Package faketransport is an in-memory transport.Provider test double,
// grounded on the teacher SDK's in-process pipe-based transport used by
// mcp_test.go to drive Client/Server without a real socket. It lets
// session package tests script server lines and assert the requests a
// Manager sends, without opening real sockets.
package faketransport

import (
	"context"
	"sync"

	"github.com/pushcore/go-client/transport"
)

// Script is one scripted exchange: when a request line matching Match (a
// substring, or "" to match anything) is sent, Lines are fed back in
// order, then the connection either stays open (Persistent) or closes.
type Script struct {
	Match      string
	Lines      []string
	Err        error // terminal error fed after Lines, instead of a clean close
	Persistent bool
}

// Provider is a scriptable transport.Provider. Safe for concurrent Open
// calls; Sent records every line actually transmitted across every
// connection it has opened, in order.
type Provider struct {
	mu       sync.Mutex
	scripts  []Script
	Sent     []string
	OpenErr  error
	opened   int
}

func New() *Provider { return &Provider{} }

// Push appends a Script consumed, in order, by successive Send calls
// across all connections this Provider opens (tests typically open one
// connection per scripted round).
func (p *Provider) Push(s Script) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts = append(p.scripts, s)
}

func (p *Provider) Open(ctx context.Context, address string) (transport.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	p.opened++
	return &conn{provider: p, lines: make(chan transport.Line, 64)}, nil
}

type conn struct {
	provider  *Provider
	lines     chan transport.Line
	closeOnce sync.Once
}

func (c *conn) Send(ctx context.Context, line string) error {
	c.provider.mu.Lock()
	c.provider.Sent = append(c.provider.Sent, line)
	var script *Script
	for i := range c.provider.scripts {
		s := &c.provider.scripts[i]
		if s.Match == "" || containsSubstring(line, s.Match) {
			script = s
			c.provider.scripts = append(c.provider.scripts[:i], c.provider.scripts[i+1:]...)
			break
		}
	}
	c.provider.mu.Unlock()

	if script == nil {
		return nil
	}
	go func() {
		for _, l := range script.Lines {
			c.lines <- transport.Line{Text: l}
		}
		if script.Err != nil {
			c.lines <- transport.Line{Err: script.Err}
		} else if !script.Persistent {
			close(c.lines)
		}
	}()
	return nil
}

func (c *conn) Lines() <-chan transport.Line { return c.lines }

func (c *conn) Close() error {
	c.closeOnce.Do(func() {})
	return nil
}

func (c *conn) Abort() error { return c.Close() }

func containsSubstring(s, substr string) bool {
	return len(substr) == 0 || indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	n, m := len(s), len(substr)
	if m > n {
		return -1
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == substr {
			return i
		}
	}
	return -1
}
