// Package events carries store change notifications to frontends. Stores
// publish an Event after every state transition; frontends subscribe, then
// re-read the store snapshot they care about.
package events

import (
	"sync"
	"time"
)

// Kind identifies what changed.
type Kind string

const (
	SessionChanged   Kind = "session_changed"   // Status, identity or in-flight flags.
	PresenceChanged  Kind = "presence_changed"  // Online user set replaced.
	SocketChanged    Kind = "socket_changed"    // Transport handle created or torn down.
	RosterChanged    Kind = "roster_changed"    // Roster or its loading flag.
	SelectionChanged Kind = "selection_changed" // Selected partner.
	MessagesChanged  Kind = "messages_changed"  // Conversation log or its loading flag.
	Notice           Kind = "notice"            // A user-facing notification; Data is the note.
)

// Event is an immutable change notification.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Data      any
}

// Subscription receives events from a Bus.
type Subscription struct {
	C  <-chan Event
	ch chan Event
}

// Bus fans out events to all active subscribers. It is safe for concurrent
// use. A nil *Bus accepts Publish calls and drops them.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewBus creates a Bus ready for use.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscribe creates a new subscription with the given channel buffer size.
// The caller should read from sub.C and eventually call Unsubscribe.
func (b *Bus) Subscribe(bufSize int) *Subscription {
	ch := make(chan Event, bufSize)
	sub := &Subscription{C: ch, ch: ch}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes the subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Publish sends an event to all subscribers. If a subscriber's buffer is full
// the event is dropped for that subscriber so a slow frontend never stalls a
// store or the transport reader.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
		}
	}
}

// Emit publishes an event of the given kind with no data.
func (b *Bus) Emit(kind Kind) {
	b.Publish(Event{Kind: kind})
}
