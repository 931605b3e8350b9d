// Package session holds the authenticated identity, the realtime transport
// handle bound to it and the presence set that handle reports.
//
// A [Store] moves between three states: CheckingAuth (initial), Anonymous
// and Authenticated. Entering Authenticated dials the transport; leaving it
// tears the transport down. The handle never survives a logout/login
// boundary.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/germanamz/parley/pkg/chats/identity"
	"github.com/germanamz/parley/pkg/events"
	"github.com/germanamz/parley/pkg/failure"
	"github.com/germanamz/parley/pkg/gateway"
	"github.com/germanamz/parley/pkg/notify"
	"github.com/germanamz/parley/pkg/transport"
)

// Status is the authentication state.
type Status int

const (
	StatusCheckingAuth Status = iota
	StatusAnonymous
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusCheckingAuth:
		return "checking_auth"
	case StatusAnonymous:
		return "anonymous"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Gateway is the subset of the backend API the session needs.
type Gateway interface {
	CheckAuth(ctx context.Context) (identity.Identity, error)
	Signup(ctx context.Context, req gateway.SignupRequest) (identity.Identity, error)
	Login(ctx context.Context, req gateway.LoginRequest) (identity.Identity, error)
	Logout(ctx context.Context) error
	UpdateProfile(ctx context.Context, upd gateway.ProfileUpdate) (identity.Identity, error)
}

// User-facing texts.
const (
	MsgSignedUp       = "Account created successfully"
	MsgLoggedIn       = "Logged in successfully"
	MsgLoggedOut      = "Logged out successfully"
	MsgProfileUpdated = "Profile updated successfully"
)

// State is a point-in-time copy of the store.
type State struct {
	Status            Status
	AuthUser          *identity.Identity
	OnlineUsers       []string
	HasSocket         bool
	IsCheckingAuth    bool
	IsSigningUp       bool
	IsLoggingIn       bool
	IsUpdatingProfile bool
}

// Store is the session store. It is safe for concurrent use.
type Store struct {
	gw   Gateway
	dial transport.Dialer
	sink notify.Sink
	bus  *events.Bus
	log  *slog.Logger

	mu          sync.Mutex
	status      Status
	user        *identity.Identity
	gen         uint64 // Bumped whenever the identity is set or cleared.
	online      []string
	socket      transport.Handle
	socketUser  string
	presenceTok transport.Token
	checking    int
	signingUp   int
	loggingIn   int
	updating    int
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

// New creates a store in the CheckingAuth state.
func New(gw Gateway, dial transport.Dialer, opts ...Option) *Store {
	s := &Store{
		gw:     gw,
		dial:   dial,
		sink:   notify.Discard{},
		log:    slog.New(slog.DiscardHandler),
		status: StatusCheckingAuth,
	}

	for _, o := range opts {
		o(s)
	}

	s.log = s.log.With("component", "session")

	return s
}

// CheckAuth asks the backend whether the stored session cookie is still
// valid. A failure moves the store to Anonymous without notifying the sink,
// since being logged out is the normal case for a fresh client.
func (s *Store) CheckAuth(ctx context.Context) error {
	s.mu.Lock()
	s.checking++
	gen := s.gen
	s.mu.Unlock()
	s.bus.Emit(events.SessionChanged)

	id, err := s.gw.CheckAuth(ctx)

	s.mu.Lock()
	s.checking--
	stale := s.gen != gen
	if !stale {
		s.setUserLocked(id, err == nil)
	}
	s.mu.Unlock()
	s.bus.Emit(events.SessionChanged)

	if stale {
		// A login, signup or logout finished first and owns the state now.
		s.log.Debug("discarding stale auth check", "err", err)
		return err
	}

	if err != nil {
		s.log.Debug("not authenticated", "err", err)
		s.DisconnectSocket()
		return failure.NewRemote("checkAuth", err, "Not authenticated")
	}

	s.log.Info("session restored", "user", id.ID)
	s.ConnectSocket()

	return nil
}

// Signup validates req locally, creates the account and connects the
// transport.
func (s *Store) Signup(ctx context.Context, req gateway.SignupRequest) error {
	req = req.Normalized()
	if err := req.Validate(); err != nil {
		return s.fail(validationFailure("signup", err))
	}

	s.begin(&s.signingUp)
	id, err := s.gw.Signup(ctx, req)
	s.finish(&s.signingUp, id, err)

	if err != nil {
		return s.fail(failure.NewRemote("signup", err, "Signup failed"))
	}

	s.log.Info("signed up", "user", id.ID)
	s.sink.Success(MsgSignedUp)
	s.ConnectSocket()

	return nil
}

// Login validates req locally, authenticates and connects the transport.
func (s *Store) Login(ctx context.Context, req gateway.LoginRequest) error {
	req = req.Normalized()
	if err := req.Validate(); err != nil {
		return s.fail(validationFailure("login", err))
	}

	s.begin(&s.loggingIn)
	id, err := s.gw.Login(ctx, req)
	s.finish(&s.loggingIn, id, err)

	if err != nil {
		return s.fail(failure.NewRemote("login", err, "Login failed"))
	}

	s.log.Info("logged in", "user", id.ID)
	s.sink.Success(MsgLoggedIn)
	s.ConnectSocket()

	return nil
}

// UpdateProfile sends upd and replaces the identity with the server's copy.
// The identity is left unchanged on failure.
func (s *Store) UpdateProfile(ctx context.Context, upd gateway.ProfileUpdate) error {
	s.mu.Lock()
	authed := s.status == StatusAuthenticated && s.user != nil
	gen := s.gen
	s.mu.Unlock()

	if !authed {
		return s.fail(failure.Validationf("updateProfile", "You must be logged in"))
	}
	if upd.Empty() {
		return s.fail(failure.Validationf("updateProfile", "Nothing to update"))
	}
	if err := upd.Validate(); err != nil {
		return s.fail(validationFailure("updateProfile", err))
	}

	s.begin(&s.updating)
	id, err := s.gw.UpdateProfile(ctx, upd)

	s.mu.Lock()
	s.updating--
	if err == nil && s.gen == gen {
		s.user = &id
	}
	s.mu.Unlock()
	s.bus.Emit(events.SessionChanged)

	if err != nil {
		return s.fail(failure.NewRemote("updateProfile", err, "Profile update failed"))
	}

	s.sink.Success(MsgProfileUpdated)

	return nil
}

// Logout ends the session. Local teardown always happens, even when the
// request fails; the request error is still reported and returned.
func (s *Store) Logout(ctx context.Context) error {
	err := s.gw.Logout(ctx)

	s.mu.Lock()
	s.setUserLocked(identity.Identity{}, false)
	s.mu.Unlock()

	s.DisconnectSocket()
	s.bus.Emit(events.SessionChanged)

	if err != nil {
		s.log.Warn("logout request failed", "err", err)
		return s.fail(failure.NewRemote("logout", err, "Logout failed"))
	}

	s.log.Info("logged out")
	s.sink.Success(MsgLoggedOut)

	return nil
}

// ConnectSocket creates and connects the transport handle for the current
// identity. It is a no-op without an identity or when a handle for the same
// user already exists. A handle bound to another user is torn down first.
func (s *Store) ConnectSocket() {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		s.log.Debug("connect skipped: no identity")
		return
	}
	uid := s.user.ID
	if s.socket != nil && s.socketUser == uid {
		s.mu.Unlock()
		return
	}
	stale, staleTok := s.socket, s.presenceTok
	s.socket, s.socketUser, s.presenceTok, s.online = nil, "", "", nil
	s.mu.Unlock()

	if stale != nil {
		stale.Remove(staleTok)
		stale.Disconnect()
	}

	h := s.dial(uid)
	tok := h.On(transport.EventOnlineUsers, func(p json.RawMessage) {
		s.onPresence(h, p)
	})

	s.mu.Lock()
	if s.socket != nil || s.user == nil || s.user.ID != uid {
		// Lost a race with another connect or with a logout.
		s.mu.Unlock()
		h.Remove(tok)
		h.Disconnect()
		return
	}
	s.socket, s.socketUser, s.presenceTok = h, uid, tok
	s.mu.Unlock()

	if err := h.Connect(); err != nil {
		s.log.Warn("transport connect failed", "user", uid, "err", err)
	} else {
		s.log.Debug("transport connecting", "user", uid)
	}

	s.bus.Emit(events.SocketChanged)
}

// DisconnectSocket tears the transport handle down and clears presence. It
// is a no-op when there is no handle. It must not be called from a
// transport listener.
func (s *Store) DisconnectSocket() {
	s.mu.Lock()
	h, tok := s.socket, s.presenceTok
	s.socket, s.socketUser, s.presenceTok = nil, "", ""
	hadPresence := len(s.online) > 0
	s.online = nil
	s.mu.Unlock()

	if h == nil {
		return
	}

	h.Remove(tok)
	h.Disconnect()
	s.log.Debug("transport disconnected")

	s.bus.Emit(events.SocketChanged)
	if hadPresence {
		s.bus.Emit(events.PresenceChanged)
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return State{
		Status:            s.status,
		AuthUser:          s.userLocked(),
		OnlineUsers:       append([]string{}, s.online...),
		HasSocket:         s.socket != nil,
		IsCheckingAuth:    s.checking > 0 || s.status == StatusCheckingAuth,
		IsSigningUp:       s.signingUp > 0,
		IsLoggingIn:       s.loggingIn > 0,
		IsUpdatingProfile: s.updating > 0,
	}
}

// Status returns the authentication state.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

// AuthUser returns a copy of the identity, or nil when anonymous.
func (s *Store) AuthUser() *identity.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.userLocked()
}

// Socket returns the current transport handle, or nil.
func (s *Store) Socket() transport.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.socket
}

// OnlineUsers returns the ids from the last presence broadcast.
func (s *Store) OnlineUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string{}, s.online...)
}

// IsOnline reports whether id was in the last presence broadcast.
func (s *Store) IsOnline(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return lo.Contains(s.online, id)
}

func (s *Store) onPresence(h transport.Handle, payload json.RawMessage) {
	ids, err := transport.Decode[[]string](payload)
	if err != nil {
		s.log.Warn("bad presence payload", "event", transport.EventOnlineUsers, "err", err)
		return
	}

	s.mu.Lock()
	if s.socket != h {
		s.mu.Unlock()
		return
	}
	s.online = lo.Uniq(lo.Compact(ids))
	s.mu.Unlock()

	s.bus.Emit(events.PresenceChanged)
}

func (s *Store) begin(counter *int) {
	s.mu.Lock()
	*counter++
	s.mu.Unlock()
	s.bus.Emit(events.SessionChanged)
}

// finish closes a login or signup request: it clears the flag and, on
// success, installs the identity.
func (s *Store) finish(counter *int, id identity.Identity, err error) {
	s.mu.Lock()
	*counter--
	if err == nil {
		s.setUserLocked(id, true)
	}
	s.mu.Unlock()
	s.bus.Emit(events.SessionChanged)
}

// setUserLocked installs id (ok) or clears the identity (!ok).
func (s *Store) setUserLocked(id identity.Identity, ok bool) {
	s.gen++
	if ok {
		s.user = &id
		s.status = StatusAuthenticated
		return
	}
	s.user = nil
	s.status = StatusAnonymous
}

func (s *Store) userLocked() *identity.Identity {
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Store) fail(fe *failure.Error) error {
	s.log.Debug("operation failed", "op", fe.Op, "kind", fe.Kind, "err", fe.Err)
	s.sink.Error(fe.Message)
	return fe
}

var fieldMessages = map[string]string{
	"FullName.required":      "Full name is required",
	"Email.required":         "Email is required",
	"Email.email":            "Invalid email format",
	"Password.required":      "Password is required",
	"Password.min":           "Password must be at least 6 characters",
	"ProfilePic.datauri|url": "Profile picture must be an image URL",
}

// validationFailure turns the first validator error into a Validation failure.
func validationFailure(op string, err error) *failure.Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return failure.Validationf(op, "Invalid input")
	}

	fe := verrs[0]
	if msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]; ok {
		return failure.Validationf(op, "%s", msg)
	}

	return failure.Validationf(op, "Invalid %s", fe.Field())
}
