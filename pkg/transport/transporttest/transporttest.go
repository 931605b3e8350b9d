// Package transporttest provides an in-memory transport.Handle for tests.
package transporttest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/germanamz/parley/pkg/transport"
)

// Handle is a recording transport.Handle. Inbound events are injected with
// Deliver and run synchronously on the caller's goroutine.
type Handle struct {
	UserID string

	// ConnectErr, when set, is returned by Connect.
	ConnectErr error

	reg transport.Registry

	mu          sync.Mutex
	connected   bool
	closed      bool
	connects    int
	disconnects int
	onCalls     []string
	offCalls    []string
	removeCalls []transport.Token
	emitted     []transport.Frame
}

var _ transport.Handle = (*Handle)(nil)

// New returns a fake handle for userID.
func New(userID string) *Handle {
	return &Handle{UserID: userID}
}

func (h *Handle) Connect() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connects++
	if h.ConnectErr != nil {
		return h.ConnectErr
	}
	if h.closed {
		return transport.ErrClosed
	}
	h.connected = true

	return nil
}

func (h *Handle) Disconnect() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.disconnects++
	h.connected = false
	h.closed = true
}

func (h *Handle) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.connected
}

func (h *Handle) On(event string, fn transport.Listener) transport.Token {
	h.mu.Lock()
	h.onCalls = append(h.onCalls, event)
	h.mu.Unlock()

	return h.reg.On(event, fn)
}

func (h *Handle) Off(event string) {
	h.mu.Lock()
	h.offCalls = append(h.offCalls, event)
	h.mu.Unlock()

	h.reg.Off(event)
}

func (h *Handle) Remove(tok transport.Token) {
	h.mu.Lock()
	h.removeCalls = append(h.removeCalls, tok)
	h.mu.Unlock()

	h.reg.Remove(tok)
}

func (h *Handle) Emit(_ context.Context, event string, payload any) error {
	frame, err := transport.NewFrame(event, payload)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return transport.ErrClosed
	}
	if !h.connected {
		return transport.ErrNotConnected
	}
	h.emitted = append(h.emitted, frame)

	return nil
}

// Deliver encodes payload and dispatches it to the listeners of event, as if
// the server had pushed it. It returns the number of listeners invoked.
// Deliveries after Disconnect are dropped.
func (h *Handle) Deliver(event string, payload any) int {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return h.DeliverRaw(event, raw)
}

// DeliverRaw dispatches an already encoded payload.
func (h *Handle) DeliverRaw(event string, raw json.RawMessage) int {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()

	if closed {
		return 0
	}

	return h.reg.Dispatch(event, raw)
}

// SetConnected flips the reported link state.
func (h *Handle) SetConnected(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connected = v
}

// Listeners returns the number of listeners registered for event.
func (h *Handle) Listeners(event string) int {
	return h.reg.Count(event)
}

// Closed reports whether Disconnect has been called.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.closed
}

// Connects returns the number of Connect calls.
func (h *Handle) Connects() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.connects
}

// Disconnects returns the number of Disconnect calls.
func (h *Handle) Disconnects() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.disconnects
}

// OnCalls returns the event names passed to On, in order.
func (h *Handle) OnCalls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]string(nil), h.onCalls...)
}

// OffCalls returns the event names passed to Off, in order.
func (h *Handle) OffCalls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]string(nil), h.offCalls...)
}

// RemoveCalls returns the tokens passed to Remove, in order.
func (h *Handle) RemoveCalls() []transport.Token {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]transport.Token(nil), h.removeCalls...)
}

// Emitted returns the frames sent with Emit.
func (h *Handle) Emitted() []transport.Frame {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]transport.Frame(nil), h.emitted...)
}

// Dialer hands out fake handles and remembers each one.
type Dialer struct {
	// ConnectErr is copied into every handle it creates.
	ConnectErr error

	mu      sync.Mutex
	handles []*Handle
}

// Dial is a transport.Dialer.
func (d *Dialer) Dial(userID string) transport.Handle {
	h := New(userID)

	d.mu.Lock()
	defer d.mu.Unlock()

	h.ConnectErr = d.ConnectErr
	d.handles = append(d.handles, h)

	return h
}

// Calls returns every handle created so far.
func (d *Dialer) Calls() []*Handle {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]*Handle(nil), d.handles...)
}

// Last returns the most recent handle, or nil.
func (d *Dialer) Last() *Handle {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.handles) == 0 {
		return nil
	}
	return d.handles[len(d.handles)-1]
}
