package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsServer accepts websocket connections and hands each one to serve.
func wsServer(t *testing.T, serve func(ctx context.Context, r *http.Request, c *websocket.Conn)) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow() //nolint:errcheck // test cleanup

		serve(r.Context(), r, c)
	}))
	t.Cleanup(srv.Close)

	return srv
}

// drain reads until the client goes away.
func drain(ctx context.Context, c *websocket.Conn) {
	for {
		if _, _, err := c.Read(ctx); err != nil {
			return
		}
	}
}

func TestWebSocket_URL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "http", in: "http://localhost:5001/ws", want: "ws://localhost:5001/ws?userId=u1"},
		{name: "https", in: "https://chat.example.com/ws", want: "wss://chat.example.com/ws?userId=u1"},
		{name: "ws untouched", in: "ws://localhost:5001/ws", want: "ws://localhost:5001/ws?userId=u1"},
		{name: "keeps query", in: "ws://h/ws?v=2", want: "ws://h/ws?userId=u1&v=2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewWebSocket("u1", WebSocketOptions{URL: tt.in}).URL()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWebSocket_DeliversEvents(t *testing.T) {
	var gotUser atomic.Value

	srv := wsServer(t, func(ctx context.Context, r *http.Request, c *websocket.Conn) {
		gotUser.Store(r.URL.Query().Get("userId"))
		_ = wsjson.Write(ctx, c, Frame{Type: EventOnlineUsers, Payload: json.RawMessage(`["u1","u2"]`)})
		drain(ctx, c)
	})

	ws := NewWebSocket("u1", WebSocketOptions{URL: srv.URL})
	defer ws.Disconnect()

	got := make(chan []string, 1)
	ws.On(EventOnlineUsers, func(p json.RawMessage) {
		ids, err := Decode[[]string](p)
		if err == nil {
			got <- ids
		}
	})

	require.NoError(t, ws.Connect())

	select {
	case ids := <-got:
		assert.Equal(t, []string{"u1", "u2"}, ids)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	assert.Equal(t, "u1", gotUser.Load())
	assert.True(t, ws.Connected())
}

func TestWebSocket_ConnectTwiceIsNoop(t *testing.T) {
	var dials atomic.Int32

	srv := wsServer(t, func(ctx context.Context, _ *http.Request, c *websocket.Conn) {
		dials.Add(1)
		drain(ctx, c)
	})

	ws := NewWebSocket("u1", WebSocketOptions{URL: srv.URL})
	defer ws.Disconnect()

	require.NoError(t, ws.Connect())
	require.NoError(t, ws.Connect())

	assert.Eventually(t, ws.Connected, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), dials.Load())
}

func TestWebSocket_Emit(t *testing.T) {
	received := make(chan Frame, 1)

	srv := wsServer(t, func(ctx context.Context, _ *http.Request, c *websocket.Conn) {
		var f Frame
		if err := wsjson.Read(ctx, c, &f); err == nil {
			received <- f
		}
		drain(ctx, c)
	})

	ws := NewWebSocket("u1", WebSocketOptions{URL: srv.URL})
	defer ws.Disconnect()

	assert.ErrorIs(t, ws.Emit(context.Background(), "typing", nil), ErrNotConnected)

	require.NoError(t, ws.Connect())
	require.Eventually(t, ws.Connected, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, ws.Emit(context.Background(), "typing", map[string]string{"to": "u2"}))

	select {
	case f := <-received:
		assert.Equal(t, "typing", f.Type)
		assert.JSONEq(t, `{"to":"u2"}`, string(f.Payload))
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for frame")
	}
}

func TestWebSocket_DropsMalformedFrames(t *testing.T) {
	srv := wsServer(t, func(ctx context.Context, _ *http.Request, c *websocket.Conn) {
		_ = c.Write(ctx, websocket.MessageText, []byte(`not json`))
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"payload":{}}`))
		_ = wsjson.Write(ctx, c, Frame{Type: EventNewMessage, Payload: json.RawMessage(`{"_id":"m1"}`)})
		drain(ctx, c)
	})

	ws := NewWebSocket("u1", WebSocketOptions{URL: srv.URL})
	defer ws.Disconnect()

	got := make(chan string, 1)
	ws.On(EventNewMessage, func(p json.RawMessage) { got <- string(p) })

	require.NoError(t, ws.Connect())

	select {
	case p := <-got:
		assert.JSONEq(t, `{"_id":"m1"}`, p)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestWebSocket_Redials(t *testing.T) {
	var (
		mu    sync.Mutex
		dials int
	)

	srv := wsServer(t, func(ctx context.Context, _ *http.Request, c *websocket.Conn) {
		mu.Lock()
		dials++
		n := dials
		mu.Unlock()

		if n == 1 {
			_ = c.Close(websocket.StatusGoingAway, "restart")
			return
		}
		_ = wsjson.Write(ctx, c, Frame{Type: EventOnlineUsers, Payload: json.RawMessage(`["u1"]`)})
		drain(ctx, c)
	})

	ws := NewWebSocket("u1", WebSocketOptions{URL: srv.URL, BaseDelay: 5 * time.Millisecond})
	defer ws.Disconnect()

	got := make(chan struct{}, 1)
	ws.On(EventOnlineUsers, func(json.RawMessage) { got <- struct{}{} })

	require.NoError(t, ws.Connect())

	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for redial")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, dials, 2)
}

func TestWebSocket_RetriesUnreachableServer(t *testing.T) {
	ws := NewWebSocket("u1", WebSocketOptions{URL: "ws://127.0.0.1:1/ws"})

	var sleeps atomic.Int32
	ws.sleepFunc = func(ctx context.Context, _ time.Duration) error {
		if sleeps.Add(1) >= 3 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}

	require.NoError(t, ws.Connect())
	assert.Eventually(t, func() bool { return sleeps.Load() >= 3 }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, ws.Connected())

	ws.Disconnect()
}

func TestWebSocket_DisconnectIsFinal(t *testing.T) {
	srv := wsServer(t, func(ctx context.Context, _ *http.Request, c *websocket.Conn) {
		drain(ctx, c)
	})

	ws := NewWebSocket("u1", WebSocketOptions{URL: srv.URL})
	require.NoError(t, ws.Connect())
	require.Eventually(t, ws.Connected, 5*time.Second, 10*time.Millisecond)

	ws.Disconnect()
	ws.Disconnect()

	assert.False(t, ws.Connected())
	assert.ErrorIs(t, ws.Connect(), ErrClosed)
	assert.ErrorIs(t, ws.Emit(context.Background(), "x", nil), ErrClosed)
}

func TestWebSocket_DisconnectBeforeConnect(t *testing.T) {
	ws := NewWebSocket("u1", WebSocketOptions{URL: "ws://127.0.0.1:1/ws"})
	ws.Disconnect()

	assert.ErrorIs(t, ws.Connect(), ErrClosed)
}

func TestWebSocket_Backoff(t *testing.T) {
	ws := NewWebSocket("u1", WebSocketOptions{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second})
	ws.randFunc = func() float64 { return 0.5 }

	assert.Equal(t, 100*time.Millisecond, ws.backoff(0))
	assert.Equal(t, 200*time.Millisecond, ws.backoff(1))
	assert.Equal(t, 800*time.Millisecond, ws.backoff(3))
	assert.Equal(t, time.Second, ws.backoff(10))

	ws.randFunc = func() float64 { return 0 }
	assert.Equal(t, 75*time.Millisecond, ws.backoff(0))
}

func TestWebSocket_BackoffLargeDelays(t *testing.T) {
	ws := NewWebSocket("u1", WebSocketOptions{BaseDelay: 10 * time.Second, MaxDelay: time.Hour})
	ws.randFunc = func() float64 { return 0.5 }

	for _, attempt := range []int{30, 31, 64, 1000} {
		assert.Equal(t, time.Hour, ws.backoff(attempt), "attempt %d", attempt)
	}

	// A base above the cap is clamped.
	ws = NewWebSocket("u1", WebSocketOptions{BaseDelay: time.Minute, MaxDelay: time.Second})
	ws.randFunc = func() float64 { return 0.5 }
	assert.Equal(t, time.Second, ws.backoff(0))
}

func TestWebSocketDialer(t *testing.T) {
	dial := WebSocketDialer(WebSocketOptions{URL: "ws://h/ws"})

	h := dial("u9")
	ws, ok := h.(*WebSocket)
	require.True(t, ok)

	u, err := ws.URL()
	require.NoError(t, err)
	assert.Equal(t, "ws://h/ws?userId=u9", u)
}
