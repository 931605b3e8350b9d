package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Event names used by the chat server.
const (
	EventOnlineUsers = "getOnlineUsers" // Payload: []string of online user ids.
	EventNewMessage  = "newMessage"     // Payload: message.Message.
)

var (
	// ErrClosed is returned when using a handle after Disconnect.
	ErrClosed = errors.New("transport: handle closed")
	// ErrNotConnected is returned by Emit while no link is established.
	ErrNotConnected = errors.New("transport: not connected")
)

// Listener handles the raw JSON payload of one inbound event. Listeners run
// on the transport's reader goroutine and must not call Disconnect.
type Listener func(payload json.RawMessage)

// Token identifies one registered listener.
type Token string

// Handle is a bidirectional named-event channel bound to one user session.
type Handle interface {
	// Connect starts the link. It does not block on the network. Calling it
	// again while the handle is live is a no-op.
	Connect() error
	// Disconnect tears the link down for good. It is idempotent.
	Disconnect()
	// Connected reports whether the link is currently established.
	Connected() bool
	// On registers fn for event and returns its token.
	On(event string, fn Listener) Token
	// Off removes every listener registered for event.
	Off(event string)
	// Remove detaches the listener identified by tok. Unknown tokens are ignored.
	Remove(tok Token)
	// Emit sends an event with a JSON-encodable payload.
	Emit(ctx context.Context, event string, payload any) error
}

// Dialer creates a Handle for the given user id. It only constructs the
// handle; the caller decides when to Connect.
type Dialer func(userID string) Handle

// Frame is the JSON envelope of every message on the wire.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewFrame encodes payload into a Frame for event.
func NewFrame(event string, payload any) (Frame, error) {
	if payload == nil {
		return Frame{Type: event}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("transport: encode %s payload: %w", event, err)
	}
	return Frame{Type: event, Payload: raw}, nil
}

// Decode unmarshals an event payload into T.
func Decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("transport: decode payload: %w", err)
	}
	return v, nil
}
