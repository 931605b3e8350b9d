package transport

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

type entry struct {
	tok Token
	fn  Listener
}

// Registry is a listener table keyed by event name. Listeners for one event
// are called in registration order. The zero value is ready to use and it is
// safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	listeners map[string][]entry
}

// On registers fn for event.
func (r *Registry) On(event string, fn Listener) Token {
	tok := Token(uuid.NewString())

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listeners == nil {
		r.listeners = make(map[string][]entry)
	}
	r.listeners[event] = append(r.listeners[event], entry{tok: tok, fn: fn})

	return tok
}

// Off removes all listeners for event.
func (r *Registry) Off(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.listeners, event)
}

// Remove removes the listener identified by tok.
func (r *Registry) Remove(tok Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for event, list := range r.listeners {
		for i, e := range list {
			if e.tok != tok {
				continue
			}
			list = append(list[:i:i], list[i+1:]...)
			if len(list) == 0 {
				delete(r.listeners, event)
			} else {
				r.listeners[event] = list
			}
			return
		}
	}
}

// Count returns the number of listeners registered for event.
func (r *Registry) Count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.listeners[event])
}

// Dispatch calls every listener for event with payload. The table lock is
// released before listeners run, so a listener may register or remove others.
func (r *Registry) Dispatch(event string, payload json.RawMessage) int {
	r.mu.Lock()
	list := append([]entry(nil), r.listeners[event]...)
	r.mu.Unlock()

	for _, e := range list {
		e.fn(payload)
	}

	return len(list)
}
