// Package conversation holds the roster, the selected partner, the message
// log for that partner and the realtime subscription that feeds it.
//
// The log only ever holds messages exchanged with the selected partner.
// Every change of partner id starts a new selection epoch: the log is
// cleared, and fetch results, send results and pushed messages that belong
// to an older epoch are dropped instead of applied.
package conversation

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"github.com/germanamz/parley/pkg/chats/chat"
	"github.com/germanamz/parley/pkg/chats/identity"
	"github.com/germanamz/parley/pkg/chats/message"
	"github.com/germanamz/parley/pkg/events"
	"github.com/germanamz/parley/pkg/failure"
	"github.com/germanamz/parley/pkg/notify"
	"github.com/germanamz/parley/pkg/transport"
)

// Gateway is the subset of the backend API the conversation store needs.
type Gateway interface {
	Users(ctx context.Context) ([]identity.Identity, error)
	Messages(ctx context.Context, partnerID string) ([]message.Message, error)
	Send(ctx context.Context, partnerID string, d message.Draft) (message.Message, error)
}

// SocketSource lends the current transport handle. The store only registers
// and removes listeners on it; it never connects or disconnects it.
type SocketSource interface {
	Socket() transport.Handle
}

// State is a point-in-time copy of the store.
type State struct {
	Users             []identity.Identity
	Messages          []message.Message
	Selected          *identity.Identity
	Subscribed        bool
	IsUsersLoading    bool
	IsMessagesLoading bool
}

type subscription struct {
	h       transport.Handle
	tok     transport.Token
	partner string
	epoch   uint64
}

// Store is the conversation store. It is safe for concurrent use.
type Store struct {
	gw      Gateway
	sockets SocketSource
	sink    notify.Sink
	bus     *events.Bus
	log     *slog.Logger

	// subMu serializes subscribe and unsubscribe so registrations never stack.
	subMu sync.Mutex

	mu              sync.Mutex
	users           []identity.Identity
	chat            *chat.Chat
	selected        *identity.Identity
	epoch           uint64
	sub             *subscription
	usersLoading    int
	messagesLoading int
}

// Option configures a Store.
type Option func(*Store)

// WithSink sets the notification sink. Defaults to notify.Discard.
func WithSink(sink notify.Sink) Option {
	return func(s *Store) { s.sink = sink }
}

// WithEvents sets the bus change events are published on.
func WithEvents(bus *events.Bus) Option {
	return func(s *Store) { s.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// New creates an empty store.
func New(gw Gateway, sockets SocketSource, opts ...Option) *Store {
	s := &Store{
		gw:      gw,
		sockets: sockets,
		sink:    notify.Discard{},
		log:     slog.New(slog.DiscardHandler),
		users:   []identity.Identity{},
		chat:    chat.New(),
	}

	for _, o := range opts {
		o(s)
	}

	s.log = s.log.With("component", "conversation")

	return s
}

// FetchRoster replaces the roster with the backend's user list. On failure
// the roster is left empty.
func (s *Store) FetchRoster(ctx context.Context) error {
	s.mu.Lock()
	s.usersLoading++
	s.mu.Unlock()
	s.bus.Emit(events.RosterChanged)

	users, err := s.gw.Users(ctx)

	s.mu.Lock()
	s.usersLoading--
	if err != nil {
		s.users = []identity.Identity{}
	} else {
		s.users = append([]identity.Identity{}, users...)
	}
	s.mu.Unlock()
	s.bus.Emit(events.RosterChanged)

	if err != nil {
		return s.fail(failure.NewRemote("fetchRoster", err, "Failed to load users"))
	}

	s.log.Debug("roster loaded", "count", len(users))

	return nil
}

// FetchConversation replaces the log with the conversation with partnerID.
// On failure the log is emptied. With no partner selected the result still
// applies; it is dropped when a different partner is selected or the
// selection changed while the request was in flight.
func (s *Store) FetchConversation(ctx context.Context, partnerID string) error {
	if partnerID == "" {
		return s.fail(failure.Validationf("fetchConversation", "No conversation selected"))
	}

	s.mu.Lock()
	s.messagesLoading++
	epoch := s.epoch
	s.mu.Unlock()
	s.bus.Emit(events.MessagesChanged)

	msgs, err := s.gw.Messages(ctx, partnerID)

	s.mu.Lock()
	s.messagesLoading--
	current := s.epoch == epoch && (s.selected == nil || s.selected.ID == partnerID)
	if current {
		if err != nil {
			s.chat.Reset()
		} else {
			s.chat.Replace(msgs...)
		}
	}
	s.mu.Unlock()
	s.bus.Emit(events.MessagesChanged)

	if !current {
		s.log.Debug("discarding stale conversation", "partner", partnerID, "err", err)
		if err != nil {
			return failure.NewRemote("fetchConversation", err, "Failed to load messages")
		}
		return nil
	}

	if err != nil {
		return s.fail(failure.NewRemote("fetchConversation", err, "Failed to load messages"))
	}

	s.log.Debug("conversation loaded", "partner", partnerID, "count", len(msgs))

	return nil
}

// SelectPartner changes the selection; nil deselects. Switching to a
// different partner id clears the log and starts a new epoch. It neither
// fetches nor touches the subscription.
func (s *Store) SelectPartner(p *identity.Identity) {
	s.mu.Lock()
	prev := partnerID(s.selected)
	if p == nil {
		s.selected = nil
	} else {
		cp := *p
		s.selected = &cp
	}
	changed := prev != partnerID(s.selected)
	if changed {
		s.epoch++
		s.chat.Reset()
	}
	s.mu.Unlock()

	s.bus.Emit(events.SelectionChanged)
	if changed {
		s.bus.Emit(events.MessagesChanged)
	}
}

// SendMessage posts d to the selected partner. The server's copy is
// appended once it is confirmed; a failed send leaves the log untouched.
func (s *Store) SendMessage(ctx context.Context, d message.Draft) (message.Message, error) {
	d = d.Normalized()

	s.mu.Lock()
	sel := partnerID(s.selected)
	epoch := s.epoch
	s.mu.Unlock()

	if sel == "" {
		return message.Message{}, s.fail(failure.Validationf("sendMessage", "No conversation selected"))
	}
	if d.Empty() {
		return message.Message{}, s.fail(failure.Validationf("sendMessage", "Message cannot be empty"))
	}

	m, err := s.gw.Send(ctx, sel, d)
	if err != nil {
		return message.Message{}, s.fail(failure.NewRemote("sendMessage", err, "Failed to send message"))
	}

	s.mu.Lock()
	appended := s.epoch == epoch && !s.duplicateLocked(m)
	if appended {
		s.chat.Append(m)
	}
	s.mu.Unlock()

	if appended {
		s.bus.Emit(events.MessagesChanged)
	}

	return m, nil
}

// SubscribeToMessages registers the new-message listener for the selected
// partner, replacing any earlier registration. Without a handle or a
// selection it does nothing.
func (s *Store) SubscribeToMessages() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	h := s.sockets.Socket()

	s.mu.Lock()
	if h == nil || s.selected == nil {
		s.mu.Unlock()
		s.log.Debug("subscribe skipped", "has_socket", h != nil)
		return
	}
	prev := s.sub
	s.sub = nil
	partner, epoch := s.selected.ID, s.epoch
	s.mu.Unlock()

	if prev != nil {
		prev.h.Remove(prev.tok)
	}

	tok := h.On(transport.EventNewMessage, func(p json.RawMessage) {
		s.onMessage(partner, epoch, p)
	})

	s.mu.Lock()
	s.sub = &subscription{h: h, tok: tok, partner: partner, epoch: epoch}
	s.mu.Unlock()

	s.log.Debug("subscribed", "partner", partner)
}

// UnsubscribeFromMessages removes every new-message listener from the
// current handle. It is safe to call without a prior subscribe.
func (s *Store) UnsubscribeFromMessages() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	h := s.sockets.Socket()

	s.mu.Lock()
	prev := s.sub
	s.sub = nil
	s.mu.Unlock()

	if h != nil {
		h.Off(transport.EventNewMessage)
	}
	if prev != nil && prev.h != h {
		prev.h.Remove(prev.tok)
	}
}

// Reset drops every piece of conversation state: roster, selection, log and
// subscription. It is used when the session ends.
func (s *Store) Reset() {
	s.UnsubscribeFromMessages()

	s.mu.Lock()
	s.users = []identity.Identity{}
	s.selected = nil
	s.epoch++
	s.chat.Reset()
	s.mu.Unlock()

	s.bus.Emit(events.RosterChanged)
	s.bus.Emit(events.SelectionChanged)
	s.bus.Emit(events.MessagesChanged)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return State{
		Users:             append([]identity.Identity{}, s.users...),
		Messages:          s.chat.Messages(),
		Selected:          s.selectedLocked(),
		Subscribed:        s.sub != nil,
		IsUsersLoading:    s.usersLoading > 0,
		IsMessagesLoading: s.messagesLoading > 0,
	}
}

// Users returns a copy of the roster.
func (s *Store) Users() []identity.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]identity.Identity{}, s.users...)
}

// Messages returns a copy of the log.
func (s *Store) Messages() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.chat.Messages()
}

// Selected returns a copy of the selected partner, or nil.
func (s *Store) Selected() *identity.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.selectedLocked()
}

// OnlineRoster returns the roster entries whose id is in online, in roster
// order.
func (s *Store) OnlineRoster(online []string) []identity.Identity {
	set := lo.Keyify(online)

	s.mu.Lock()
	defer s.mu.Unlock()

	return lo.Filter(s.users, func(u identity.Identity, _ int) bool {
		_, ok := set[u.ID]
		return ok
	})
}

// OnlineCount returns how many roster entries are online. The roster never
// contains the caller, so this is the online count excluding self.
func (s *Store) OnlineCount(online []string) int {
	return len(s.OnlineRoster(online))
}

func (s *Store) onMessage(partner string, epoch uint64, payload json.RawMessage) {
	m, err := transport.Decode[message.Message](payload)
	if err != nil {
		s.log.Warn("bad message payload", "event", transport.EventNewMessage, "err", err)
		return
	}

	s.mu.Lock()
	ok := m.SenderID == partner &&
		s.epoch == epoch &&
		partnerID(s.selected) == partner &&
		!s.duplicateLocked(m)
	if ok {
		s.chat.Append(m)
	}
	s.mu.Unlock()

	if !ok {
		s.log.Debug("dropping pushed message", "partner", partner, "sender", m.SenderID)
		return
	}

	s.bus.Emit(events.MessagesChanged)
}

// duplicateLocked reports whether m is already in the log.
func (s *Store) duplicateLocked(m message.Message) bool {
	return m.ID != "" && s.chat.Contains(m.ID)
}

func (s *Store) selectedLocked() *identity.Identity {
	if s.selected == nil {
		return nil
	}
	cp := *s.selected
	return &cp
}

func (s *Store) fail(fe *failure.Error) error {
	s.log.Debug("operation failed", "op", fe.Op, "kind", fe.Kind, "err", fe.Err)
	s.sink.Error(fe.Message)
	return fe
}

func partnerID(p *identity.Identity) string {
	if p == nil {
		return ""
	}
	return p.ID
}
