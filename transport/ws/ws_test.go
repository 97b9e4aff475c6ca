package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// echoServer upgrades every request and echoes text frames back, grounded
// on the teacher's TestWebSocketClientTransport echo server.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
}

func TestOpenSendAndReceive(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	p := &Provider{}
	conn, err := p.Open(context.Background(), wsURL)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send(context.Background(), "LS_op=bind_session"))

	select {
	case line := <-conn.Lines():
		require.NoError(t, line.Err)
		require.Equal(t, "LS_op=bind_session", line.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed line")
	}
}

func TestCloseEndsLinesWithError(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	p := &Provider{}
	conn, err := p.Open(context.Background(), wsURL)
	require.NoError(t, err)

	require.NoError(t, conn.Close())

	select {
	case line, ok := <-conn.Lines():
		if ok {
			require.Error(t, line.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for lines channel to settle")
	}
}

func TestOpenEarlyResolvesToUsableConnection(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	p := &Provider{}
	h, err := p.OpenEarly(context.Background(), wsURL)
	require.NoError(t, err)

	conn, err := h.Await(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send(context.Background(), "probe"))
	select {
	case line := <-conn.Lines():
		require.NoError(t, line.Err)
		require.Equal(t, "probe", line.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed probe")
	}
}

func TestOpenEarlyAbortBeforeConnect(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	p := &Provider{}
	h, err := p.OpenEarly(context.Background(), wsURL)
	require.NoError(t, err)
	h.Abort()

	_, err = h.Await(context.Background())
	require.Error(t, err)
}
