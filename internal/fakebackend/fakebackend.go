// Package fakebackend is an in-memory chat backend: the REST routes the
// gateway calls plus the websocket endpoint that pushes presence and new
// messages. It backs the end-to-end tests and the client's demo mode.
package fakebackend

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/germanamz/parley/pkg/chats/identity"
	"github.com/germanamz/parley/pkg/chats/message"
	"github.com/germanamz/parley/pkg/gateway"
	"github.com/germanamz/parley/pkg/transport"
)

// CookieName is the session cookie set by the auth routes.
const CookieName = "jwt"

const writeTimeout = 5 * time.Second

type account struct {
	id   identity.Identity
	hash string
}

type injected struct {
	status  int
	message string
}

// Server is the fake backend. It is safe for concurrent use.
type Server struct {
	log *slog.Logger
	now func() time.Time
	mux *http.ServeMux

	mu       sync.Mutex
	accounts map[string]*account // by id
	byEmail  map[string]string   // email -> id
	sessions map[string]string   // token -> id
	messages []message.Message
	conns    map[string]map[*websocket.Conn]struct{} // user id -> live sockets
	failures map[string]injected                     // route -> next response
	requests []string
	reply    ReplyFunc
}

// ReplyFunc answers a message sent through the REST route. Returning false
// sends nothing.
type ReplyFunc func(m message.Message) (message.Message, bool)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithAutoReply makes the backend answer every sent message with fn.
func WithAutoReply(fn ReplyFunc) Option {
	return func(s *Server) { s.reply = fn }
}

// New creates an empty backend.
func New(opts ...Option) *Server {
	s := &Server{
		log:      slog.New(slog.DiscardHandler),
		now:      time.Now,
		accounts: make(map[string]*account),
		byEmail:  make(map[string]string),
		sessions: make(map[string]string),
		conns:    make(map[string]map[*websocket.Conn]struct{}),
		failures: make(map[string]injected),
	}

	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/signup", s.route("signup", s.handleSignup))
	mux.HandleFunc("POST /api/auth/login", s.route("login", s.handleLogin))
	mux.HandleFunc("POST /api/auth/logout", s.route("logout", s.handleLogout))
	mux.HandleFunc("GET /api/auth/check", s.route("check", s.authed(s.handleCheck)))
	mux.HandleFunc("PUT /api/auth/update-profile", s.route("update-profile", s.authed(s.handleUpdateProfile)))
	mux.HandleFunc("GET /api/messages/users", s.route("users", s.authed(s.handleUsers)))
	mux.HandleFunc("GET /api/messages/{id}", s.route("messages", s.authed(s.handleMessages)))
	mux.HandleFunc("POST /api/messages/send/{id}", s.route("send", s.authed(s.handleSend)))
	mux.HandleFunc("GET /ws", s.handleSocket)
	s.mux = mux

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// AddUser creates an account directly and returns its identity.
func (s *Server) AddUser(fullName, email, password string) (identity.Identity, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return identity.Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createLocked(fullName, email, hash), nil
}

// Fail makes the next request to route answer with status and message.
// Routes: signup, login, logout, check, update-profile, users, messages, send.
func (s *Server) Fail(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[route] = injected{status: status, message: message}
}

// Requests returns the routes served so far, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.requests...)
}

// Online returns the ids with at least one live socket, sorted.
func (s *Server) Online() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.onlineLocked()
}

// Deliver stores m and pushes it to the receiver's sockets, as if another
// client had sent it.
func (s *Server) Deliver(ctx context.Context, m message.Message) message.Message {
	s.mu.Lock()
	m = s.storeLocked(m)
	s.mu.Unlock()

	s.push(ctx, m.ReceiverID, transport.EventNewMessage, m)

	return m
}

// Messages returns every stored message.
func (s *Server) Messages() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]message.Message(nil), s.messages...)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req gateway.SignupRequest
	if !decode(w, r, &req) {
		return
	}
	req = req.Normalized()
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	s.mu.Lock()
	if _, taken := s.byEmail[strings.ToLower(req.Email)]; taken {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "Email already exists")
		return
	}
	id := s.createLocked(req.FullName, req.Email, hash)
	token := s.startSessionLocked(id.ID)
	s.mu.Unlock()

	setSession(w, token)
	writeJSON(w, http.StatusCreated, id)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req gateway.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	acc := s.accounts[s.byEmail[strings.ToLower(strings.TrimSpace(req.Email))]]
	s.mu.Unlock()

	if acc == nil {
		writeError(w, http.StatusBadRequest, "Invalid credentials")
		return
	}
	if ok, err := checkPassword(req.Password, acc.hash); err != nil || !ok {
		writeError(w, http.StatusBadRequest, "Invalid credentials")
		return
	}

	s.mu.Lock()
	token := s.startSessionLocked(acc.id.ID)
	id := acc.id
	s.mu.Unlock()

	setSession(w, token)
	writeJSON(w, http.StatusOK, id)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if ck, err := r.Cookie(CookieName); err == nil {
		s.mu.Lock()
		delete(s.sessions, ck.Value)
		s.mu.Unlock()
	}

	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) handleCheck(w http.ResponseWriter, _ *http.Request, me identity.Identity) {
	writeJSON(w, http.StatusOK, me)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, me identity.Identity) {
	var upd gateway.ProfileUpdate
	if !decode(w, r, &upd) {
		return
	}
	if upd.Empty() {
		writeError(w, http.StatusBadRequest, "Profile pic is required")
		return
	}

	s.mu.Lock()
	acc := s.accounts[me.ID]
	if name := strings.TrimSpace(upd.FullName); name != "" {
		acc.id.FullName = name
	}
	if upd.ProfilePic != "" {
		acc.id.ProfilePic = upd.ProfilePic
	}
	acc.id.UpdatedAt = s.now().UTC()
	id := acc.id
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, id)
}

func (s *Server) handleUsers(w http.ResponseWriter, _ *http.Request, me identity.Identity) {
	s.mu.Lock()
	users := make([]identity.Identity, 0, len(s.accounts))
	for id, acc := range s.accounts {
		if id != me.ID {
			users = append(users, acc.id)
		}
	}
	s.mu.Unlock()

	sort.Slice(users, func(i, j int) bool { return users[i].FullName < users[j].FullName })

	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, me identity.Identity) {
	other := r.PathValue("id")

	s.mu.Lock()
	msgs := lo.Filter(s.messages, func(m message.Message, _ int) bool {
		return (m.SenderID == me.ID && m.ReceiverID == other) || (m.SenderID == other && m.ReceiverID == me.ID)
	})
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request, me identity.Identity) {
	var d message.Draft
	if !decode(w, r, &d) {
		return
	}
	d = d.Normalized()
	if d.Empty() {
		writeError(w, http.StatusBadRequest, "Message text or image is required")
		return
	}

	receiver := r.PathValue("id")

	s.mu.Lock()
	if _, ok := s.accounts[receiver]; !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	m := s.storeLocked(message.Message{SenderID: me.ID, ReceiverID: receiver, Text: d.Text, Image: d.Image})
	s.mu.Unlock()

	s.push(r.Context(), receiver, transport.EventNewMessage, m)

	writeJSON(w, http.StatusCreated, m)

	if s.reply != nil {
		if answer, ok := s.reply(m); ok {
			go s.Deliver(context.Background(), answer)
		}
	}
}

// handleSocket accepts a websocket for the user named in the userId query
// parameter and keeps it registered until it closes.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "err", err)
		return
	}
	defer c.CloseNow() //nolint:errcheck // best-effort close

	s.mu.Lock()
	if userID != "" {
		if s.conns[userID] == nil {
			s.conns[userID] = make(map[*websocket.Conn]struct{})
		}
		s.conns[userID][c] = struct{}{}
	}
	s.mu.Unlock()

	s.log.Debug("socket connected", "user", userID)
	s.broadcastPresence()

	ctx := r.Context()
	for {
		if _, _, err := c.Read(ctx); err != nil {
			break
		}
	}

	s.mu.Lock()
	if set := s.conns[userID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(s.conns, userID)
		}
	}
	s.mu.Unlock()

	s.log.Debug("socket disconnected", "user", userID)
	s.broadcastPresence()
}

// route records the request and answers with an injected failure if one is
// pending for name.
func (s *Server) route(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, name)
		f, ok := s.failures[name]
		delete(s.failures, name)
		s.mu.Unlock()

		if ok {
			writeError(w, f.status, f.message)
			return
		}

		next(w, r)
	}
}

// authed resolves the session cookie to an identity.
func (s *Server) authed(next func(http.ResponseWriter, *http.Request, identity.Identity)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie(CookieName)
		if err != nil || ck.Value == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized - No Token Provided")
			return
		}

		s.mu.Lock()
		acc := s.accounts[s.sessions[ck.Value]]
		var me identity.Identity
		if acc != nil {
			me = acc.id
		}
		s.mu.Unlock()

		if acc == nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized - Invalid Token")
			return
		}

		next(w, r, me)
	}
}

func (s *Server) createLocked(fullName, email, hash string) identity.Identity {
	now := s.now().UTC()
	id := identity.Identity{
		ID:        uuid.NewString(),
		FullName:  fullName,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.accounts[id.ID] = &account{id: id, hash: hash}
	s.byEmail[strings.ToLower(email)] = id.ID

	return id
}

func (s *Server) startSessionLocked(userID string) string {
	token := uuid.NewString()
	s.sessions[token] = userID
	return token
}

func (s *Server) storeLocked(m message.Message) message.Message {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}
	s.messages = append(s.messages, m)
	return m
}

func (s *Server) onlineLocked() []string {
	ids := lo.Keys(s.conns)
	sort.Strings(ids)
	return ids
}

func (s *Server) broadcastPresence() {
	s.mu.Lock()
	online := s.onlineLocked()
	targets := s.socketsLocked(lo.Keys(s.conns)...)
	s.mu.Unlock()

	s.write(context.Background(), targets, transport.EventOnlineUsers, online)
}

func (s *Server) push(ctx context.Context, userID, event string, payload any) {
	s.mu.Lock()
	targets := s.socketsLocked(userID)
	s.mu.Unlock()

	s.write(ctx, targets, event, payload)
}

func (s *Server) socketsLocked(userIDs ...string) []*websocket.Conn {
	var out []*websocket.Conn
	for _, id := range userIDs {
		for c := range s.conns[id] {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) write(ctx context.Context, targets []*websocket.Conn, event string, payload any) {
	frame, err := transport.NewFrame(event, payload)
	if err != nil {
		s.log.Error("encode frame", "event", event, "err", err)
		return
	}

	ctx = context.WithoutCancel(ctx)
	for _, c := range targets {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		if err := wsjson.Write(wctx, c, frame); err != nil {
			s.log.Debug("push failed", "event", event, "err", err)
		}
		cancel()
	}
}

func setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int((7 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
