package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"
)

// DefaultReadLimit bounds a single inbound frame. Messages can carry base64
// images, so it is far above the coder/websocket default of 32 KiB.
const DefaultReadLimit = 16 << 20

// WebSocketOptions configures a WebSocket handle.
type WebSocketOptions struct {
	URL          string        // ws://, wss://, http:// or https:// endpoint.
	HTTPClient   *http.Client  // Used for the handshake; shares the session cookie jar.
	Header       http.Header   // Extra handshake headers.
	BaseDelay    time.Duration // Initial re-dial delay (default 500ms).
	MaxDelay     time.Duration // Re-dial delay cap (default 10s).
	PingInterval time.Duration // Keepalive ping period; 0 disables pings.
	ReadLimit    int64         // Max inbound frame size (default DefaultReadLimit).
	Logger       *slog.Logger
}

// WebSocket is a Handle over a single websocket connection that is re-dialed
// in the background whenever it drops, until Disconnect is called.
type WebSocket struct {
	opts   WebSocketOptions
	userID string
	log    *slog.Logger
	reg    Registry

	mu      sync.Mutex
	conn    *websocket.Conn
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}

	connected atomic.Bool

	// sleepFunc is used for testing; defaults to a context-aware sleep.
	sleepFunc func(ctx context.Context, d time.Duration) error
	// randFunc returns a random float64 in [0,1); used for jitter.
	randFunc func() float64
}

// NewWebSocket creates an unconnected handle for userID.
func NewWebSocket(userID string, opts WebSocketOptions) *WebSocket {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 10 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = DefaultReadLimit
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &WebSocket{
		opts:      opts,
		userID:    userID,
		log:       log.With("component", "transport", "user", userID),
		done:      make(chan struct{}),
		sleepFunc: contextSleep,
		randFunc:  rand.Float64,
	}
}

// WebSocketDialer returns a Dialer producing WebSocket handles.
func WebSocketDialer(opts WebSocketOptions) Dialer {
	return func(userID string) Handle {
		return NewWebSocket(userID, opts)
	}
}

// Connect starts the background dial loop.
func (w *WebSocket) Connect() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.started {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.started = true
	w.cancel = cancel

	go w.run(ctx)

	return nil
}

// Disconnect stops the dial loop, closes the connection and waits until no
// more listeners can fire.
func (w *WebSocket) Disconnect() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	started := w.started
	cancel := w.cancel
	conn := w.conn
	w.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "disconnect")
	}
	if !started {
		return
	}

	cancel()
	<-w.done
	w.log.Debug("disconnected")
}

// Connected reports whether a websocket link is currently up.
func (w *WebSocket) Connected() bool {
	return w.connected.Load()
}

func (w *WebSocket) On(event string, fn Listener) Token { return w.reg.On(event, fn) }
func (w *WebSocket) Off(event string)                   { w.reg.Off(event) }
func (w *WebSocket) Remove(tok Token)                   { w.reg.Remove(tok) }

// Emit writes one frame on the current connection.
func (w *WebSocket) Emit(ctx context.Context, event string, payload any) error {
	w.mu.Lock()
	conn, closed := w.conn, w.closed
	w.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	frame, err := NewFrame(event, payload)
	if err != nil {
		return err
	}
	if err := wsjson.Write(ctx, conn, frame); err != nil {
		return fmt.Errorf("transport: emit %s: %w", event, err)
	}

	return nil
}

// URL returns the endpoint dialed for this handle, with the userId query
// parameter the server uses to associate the connection with the user.
func (w *WebSocket) URL() (string, error) {
	raw := w.opts.URL
	switch {
	case strings.HasPrefix(raw, "https://"):
		raw = "wss://" + raw[len("https://"):]
	case strings.HasPrefix(raw, "http://"):
		raw = "ws://" + raw[len("http://"):]
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("transport: parse url: %w", err)
	}
	q := u.Query()
	q.Set("userId", w.userID)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// run dials, serves and re-dials until ctx is cancelled.
func (w *WebSocket) run(ctx context.Context) {
	defer close(w.done)

	attempt := 0
	for {
		linked, err := w.serve(ctx)
		if ctx.Err() != nil {
			return
		}
		if linked {
			attempt = 0
		}

		delay := w.backoff(attempt)
		attempt++
		w.log.Warn("connection lost, redialing", "err", err, "attempt", attempt, "delay", delay)

		if err := w.sleepFunc(ctx, delay); err != nil {
			return
		}
	}
}

// serve dials once and reads frames until the link fails. linked reports
// whether the handshake succeeded.
func (w *WebSocket) serve(ctx context.Context) (linked bool, err error) {
	u, err := w.URL()
	if err != nil {
		return false, err
	}

	conn, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{
		HTTPClient: w.opts.HTTPClient,
		HTTPHeader: w.opts.Header,
	})
	if err != nil {
		return false, fmt.Errorf("dial websocket: %w", err)
	}
	conn.SetReadLimit(w.opts.ReadLimit)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "disconnect")
		return true, ErrClosed
	}
	w.conn = conn
	w.mu.Unlock()

	w.connected.Store(true)
	w.log.Debug("connected")

	defer func() {
		w.connected.Store(false)
		w.mu.Lock()
		w.conn = nil
		w.mu.Unlock()
		_ = conn.CloseNow()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.readLoop(gctx, conn) })
	if w.opts.PingInterval > 0 {
		g.Go(func() error { return w.keepAlive(gctx, conn) })
	}

	return true, g.Wait()
}

func (w *WebSocket) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return fmt.Errorf("closed by server: %w", err)
			}
			return err
		}
		if typ != websocket.MessageText {
			w.log.Warn("dropping binary frame", "size", len(data))
			continue
		}

		// Malformed frames are dropped without closing the link.
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			w.log.Warn("dropping malformed frame", "err", err)
			continue
		}
		if frame.Type == "" {
			w.log.Warn("dropping frame without type")
			continue
		}

		if n := w.reg.Dispatch(frame.Type, frame.Payload); n == 0 {
			w.log.Debug("no listener for event", "event", frame.Type)
		}
	}
}

func (w *WebSocket) keepAlive(ctx context.Context, conn *websocket.Conn) error {
	t := time.NewTicker(w.opts.PingInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			pingCtx, cancel := context.WithTimeout(ctx, w.opts.PingInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

// backoff returns BaseDelay * 2^attempt capped at MaxDelay, with ±25% jitter.
func (w *WebSocket) backoff(attempt int) time.Duration {
	d := min(w.opts.BaseDelay, w.opts.MaxDelay)
	for range attempt {
		if d >= w.opts.MaxDelay/2 {
			d = w.opts.MaxDelay
			break
		}
		d *= 2
	}
	factor := 0.75 + w.randFunc()*0.5 //nolint:mnd // jitter range: ±25%
	return time.Duration(float64(d) * factor)
}

// contextSleep sleeps for d or until ctx is cancelled.
func contextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
