package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestPollingRoundTrip exercises one polling cycle end to end against a
// real httptest.Server, grounded on the teacher's fakeStreamableServer
// style of driving the client against a real net/http.Server rather than
// mocking the transport.
func TestPollingRoundTrip(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		io.ReadAll(r.Body)
		w.Write([]byte("CONOK,sess-1,5,5000,*\n"))
	}))
	defer srv.Close()

	p := &Provider{Mode: ModePolling, PollingInterval: 20 * time.Millisecond}
	conn, err := p.Open(context.Background(), srv.URL)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send(context.Background(), "LS_op=create_session"))

	select {
	case line := <-conn.Lines():
		require.NoError(t, line.Err)
		require.Equal(t, "CONOK,sess-1,5,5000,*", line.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for polling response")
	}
	require.GreaterOrEqual(t, requests.Load(), int32(1))
}

// TestStreamingControlRequestsForwardedIndependently verifies that a
// second Send (a control request) is forwarded on its own HTTP request
// rather than being appended to the primary streaming body.
func TestStreamingControlRequestsForwardedIndependently(t *testing.T) {
	var primaryBody, controlBody string
	var primaryHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		body := string(buf)
		if strings.Contains(body, "bind_session") {
			primaryHits.Add(1)
			primaryBody = body
			flusher, _ := w.(http.Flusher)
			w.Write([]byte("CONOK,sess-1,5,5000,*\n"))
			if flusher != nil {
				flusher.Flush()
			}
			<-r.Context().Done()
			return
		}
		controlBody = body
		w.Write([]byte("REQOK,1\n"))
	}))
	defer srv.Close()

	p := &Provider{Mode: ModeStreaming}
	conn, err := p.Open(context.Background(), srv.URL)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send(context.Background(), "LS_op=bind_session"))
	select {
	case line := <-conn.Lines():
		require.NoError(t, line.Err)
		require.Equal(t, "CONOK,sess-1,5,5000,*", line.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for primary stream line")
	}

	require.NoError(t, conn.Send(context.Background(), "LS_reqId=1&LS_op=add"))
	select {
	case line := <-conn.Lines():
		require.NoError(t, line.Err)
		require.Equal(t, "REQOK,1", line.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for control response")
	}

	require.Contains(t, primaryBody, "bind_session")
	require.Contains(t, controlBody, "LS_op=add")
	require.Equal(t, int32(1), primaryHits.Load())
}

// TestNonRetryableStatusSurfacesImmediately verifies a 4xx other than the
// retryable allowlist fails the connection without exhausting retries.
func TestNonRetryableStatusSurfacesImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := &Provider{Mode: ModePolling, MaxRetryElapsed: 200 * time.Millisecond}
	conn, err := p.Open(context.Background(), srv.URL)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send(context.Background(), "LS_op=create_session"))

	select {
	case line := <-conn.Lines():
		require.Error(t, line.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error line")
	}
}
