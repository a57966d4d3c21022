package wsfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fraudpulse/internal/application"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFeedServer(t *testing.T, serve func(ws *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		serve(ws)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/transactions"
}

func dial(t *testing.T, url string) application.PushConn {
	t.Helper()
	dialer, err := NewDialer(Config{URL: url})
	require.NoError(t, err)
	conn, err := dialer.Dial(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestConnDeliversMessagesThenCleanClose(t *testing.T) {
	url := newFeedServer(t, func(ws *websocket.Conn) {
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"id":1}`))
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"id":2}`))
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		_, _, _ = ws.ReadMessage()
	})
	conn := dial(t, url)
	ctx := context.Background()

	first, err := conn.ReadMessage(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1}`, string(first))
	second, err := conn.ReadMessage(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":2}`, string(second))

	_, err = conn.ReadMessage(ctx)
	require.ErrorIs(t, err, application.ErrPushClosed)
}

func TestConnAbnormalCloseIsAnError(t *testing.T) {
	url := newFeedServer(t, func(ws *websocket.Conn) {
		_ = ws.UnderlyingConn().Close()
	})
	conn := dial(t, url)

	_, err := conn.ReadMessage(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, application.ErrPushClosed)
}

func TestConnCancelUnblocksRead(t *testing.T) {
	release := make(chan struct{})
	url := newFeedServer(t, func(ws *websocket.Conn) {
		<-release
	})
	defer close(release)

	dialer, err := NewDialer(Config{URL: url})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	conn, err := dialer.Dial(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := conn.ReadMessage(ctx)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("read was not unblocked by cancellation")
	}
}

func TestDialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	dialer, err := NewDialer(Config{URL: "ws" + strings.TrimPrefix(server.URL, "http")})
	require.NoError(t, err)
	_, err = dialer.Dial(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestDeriveURL(t *testing.T) {
	got, err := DeriveURL("http://localhost:8000/")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8000/ws/transactions", got)

	got, err = DeriveURL("https://fraud.example.com/base")
	require.NoError(t, err)
	assert.Equal(t, "wss://fraud.example.com/base/ws/transactions", got)

	_, err = DeriveURL("ftp://nope")
	assert.Error(t, err)
}

func TestNewDialerRejectsHTTPURL(t *testing.T) {
	_, err := NewDialer(Config{URL: "http://localhost:8000/ws/transactions"})
	assert.Error(t, err)
}
