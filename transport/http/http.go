// Package http is an HTTP Transport Provider supporting both a chunked
// streaming mode and a short-lived polling mode, per spec.md §4.A/§6.
// Grounded on the teacher SDK's mcp/streamable.go streamableClientConn:
// the same hanging-request/retry-with-backoff shape, adapted from SSE
// framing to the push protocol's own line framing, and from a single
// always-HTTP transport into one stream-sense can pick between.
package http

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/pushcore/go-client/transport"
)

// Mode selects streaming (one long-lived chunked request) or polling
// (repeated short request/response exchanges), per spec.md §4.A.
type Mode int

const (
	ModeStreaming Mode = iota
	ModePolling
)

// Provider opens HTTP connections to the push server.
type Provider struct {
	// Client is the *http.Client to use. If nil, http.DefaultClient.
	Client *http.Client
	Mode   Mode
	// ContentLengthRequired disables chunked transfer encoding in favor
	// of a buffered body with an explicit Content-Length header, for
	// environments (e.g. some corporate proxies) that reject chunked
	// requests, per spec.md §4.A/§6.
	ContentLengthRequired bool
	// PollingInterval is the delay between polling requests.
	PollingInterval time.Duration
	// MaxRetryElapsed bounds how long a single request is retried before
	// the connection reports a terminal error.
	MaxRetryElapsed time.Duration
	// Header carries additional request headers (e.g. cookies configured
	// process-wide per spec.md §5).
	Header http.Header
}

var _ transport.Provider = (*Provider)(nil)

func (p *Provider) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}

// Open starts the background goroutine that drives the connection; the
// first line passed to Send becomes the request body that establishes the
// logical session with the server.
func (p *Provider) Open(ctx context.Context, address string) (transport.Connection, error) {
	ctx, cancel := context.WithCancel(ctx)
	c := &httpConn{
		provider: p,
		address:  address,
		lines:    make(chan transport.Line, 64),
		outbound: make(chan string, 64),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
	switch p.Mode {
	case ModeStreaming:
		go c.runStreaming(ctx)
	default:
		go c.runPolling(ctx)
	}
	return c, nil
}

type httpConn struct {
	provider *Provider
	address  string

	lines    chan transport.Line
	outbound chan string

	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (c *httpConn) Send(ctx context.Context, line string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return io.EOF
	case c.outbound <- line:
		return nil
	}
}

func (c *httpConn) Lines() <-chan transport.Line { return c.lines }

func (c *httpConn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.done)
	})
	return nil
}

func (c *httpConn) Abort() error { return c.Close() }

// runStreaming issues one long-lived request whose body is the first
// queued outbound line, then reads the chunked response line by line.
// Every subsequent queued outbound line is a control request sent
// independently (the push protocol's "control link"), mirroring how the
// real server expects control traffic on streaming sessions.
func (c *httpConn) runStreaming(ctx context.Context) {
	var first string
	select {
	case first = <-c.outbound:
	case <-c.done:
		return
	}

	go c.forwardControlRequests(ctx)

	resp, err := c.doRequestWithRetry(ctx, first)
	if err != nil {
		c.emit(transport.Line{Err: fmt.Errorf("http: streaming request failed: %w", err)})
		return
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-c.done:
			return
		default:
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		c.emit(transport.Line{Text: line})
	}
	if err := scanner.Err(); err != nil {
		c.emit(transport.Line{Err: fmt.Errorf("http: stream read error: %w", err)})
		return
	}
	c.emit(transport.Line{Err: io.EOF})
}

// forwardControlRequests sends every outbound line after the first as an
// independent short request, so a slow control round-trip never blocks the
// primary streaming read.
func (c *httpConn) forwardControlRequests(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case line := <-c.outbound:
			resp, err := c.doRequestWithRetry(ctx, line)
			if err != nil {
				c.emit(transport.Line{Err: fmt.Errorf("http: control request failed: %w", err)})
				continue
			}
			scanner := bufio.NewScanner(resp.Body)
			for scanner.Scan() {
				if t := scanner.Text(); t != "" {
					c.emit(transport.Line{Text: t})
				}
			}
			resp.Body.Close()
		}
	}
}

// runPolling waits for an outbound line, sends it in one short request
// together with any other lines already queued, emits every line of the
// response, and then waits out the polling interval before taking the next
// line. No request is issued while nothing is queued.
func (c *httpConn) runPolling(ctx context.Context) {
	interval := c.provider.PollingInterval
	if interval <= 0 {
		interval = 4 * time.Second
	}
	for {
		var pending []string
		select {
		case line := <-c.outbound:
			pending = append(pending, line)
		case <-c.done:
			return
		}
	drain:
		for {
			select {
			case line := <-c.outbound:
				pending = append(pending, line)
			default:
				break drain
			}
		}

		body := pending[0]
		for _, extra := range pending[1:] {
			body += "\r\n" + extra
		}

		resp, err := c.doRequestWithRetry(ctx, body)
		if err != nil {
			c.emit(transport.Line{Err: fmt.Errorf("http: polling request failed: %w", err)})
			return
		}
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if t := scanner.Text(); t != "" {
				c.emit(transport.Line{Text: t})
			}
		}
		resp.Body.Close()

		select {
		case <-c.done:
			return
		case <-time.After(interval):
		}
	}
}

func (c *httpConn) emit(l transport.Line) {
	select {
	case c.lines <- l:
	case <-c.done:
	}
}

// doRequestWithRetry issues a single POST and retries transient failures
// with bounded exponential backoff, grounded on cenkalti/backoff/v5 (see
// DESIGN.md) rather than a hand-rolled retry loop.
func (c *httpConn) doRequestWithRetry(ctx context.Context, body string) (*http.Response, error) {
	maxElapsed := c.provider.MaxRetryElapsed
	if maxElapsed <= 0 {
		maxElapsed = 30 * time.Second
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second

	return backoff.Retry(ctx, func() (*http.Response, error) {
		resp, err := c.doRequest(ctx, body)
		if err != nil {
			if isRetryable(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return resp, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(maxElapsed))
}

func (c *httpConn) doRequest(ctx context.Context, body string) (*http.Response, error) {
	data := []byte(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.address, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	for k, vs := range c.provider.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.provider.ContentLengthRequired {
		req.ContentLength = int64(len(data))
	}

	resp, err := c.provider.client().Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &statusError{Code: resp.StatusCode, Body: string(b)}
	}
	return resp, nil
}

// statusError wraps a non-2xx HTTP response.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http: unexpected status %d: %s", e.Code, e.Body)
}

// isRetryable reports whether an error indicates a transient network or
// server condition worth retrying, grounded on the teacher's isRetryable
// (mcp/streamable.go) but using an explicit status-code allowlist.
func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests,
			http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return false
}
