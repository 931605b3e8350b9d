// Package client wires the gateway, the transport and both stores into one
// chat client built from a config.Config. It also owns the ordering of the
// conversation switch: unsubscribe, select, fetch, subscribe.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/germanamz/parley/pkg/chats/identity"
	"github.com/germanamz/parley/pkg/chats/message"
	"github.com/germanamz/parley/pkg/config"
	"github.com/germanamz/parley/pkg/conversation"
	"github.com/germanamz/parley/pkg/events"
	"github.com/germanamz/parley/pkg/gateway"
	"github.com/germanamz/parley/pkg/notify"
	"github.com/germanamz/parley/pkg/session"
	"github.com/germanamz/parley/pkg/transport"
)

// Client is a complete chat client.
type Client struct {
	Session      *session.Store
	Conversation *conversation.Store

	gw  *gateway.Client
	bus *events.Bus
	log *slog.Logger

	// openMu serializes conversation switches and session changes.
	openMu sync.Mutex
}

type options struct {
	log    *slog.Logger
	sinks  []notify.Sink
	dialer transport.Dialer
	http   *http.Client
}

// Option configures a Client.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithSink adds a notification sink. Notes always go to the event bus too.
func WithSink(sink notify.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sink) }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d transport.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithHTTPClient replaces the gateway's HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.http = hc }
}

// New builds a client from cfg. Nothing touches the network until Start.
func New(cfg config.Config, opts ...Option) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}

	gwOpts := []gateway.Option{gateway.WithLogger(o.log), gateway.WithHeader("X-Client", "parley")}
	if o.http != nil {
		gwOpts = append(gwOpts, gateway.WithHTTPClient(o.http))
	} else {
		gwOpts = append(gwOpts, gateway.WithTimeout(cfg.Timeout()))
	}

	gw, err := gateway.New(cfg.APIURL, gwOpts...)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	dial := o.dialer
	if dial == nil {
		// Share the cookie jar with the handshake, but not the request
		// timeout: the socket lives for the whole session.
		hc := gw.HTTPClient()
		dial = transport.WebSocketDialer(transport.WebSocketOptions{
			URL:          cfg.SocketURL,
			HTTPClient:   &http.Client{Jar: hc.Jar, Transport: hc.Transport},
			BaseDelay:    cfg.BaseDelay(),
			MaxDelay:     cfg.MaxDelay(),
			PingInterval: cfg.Ping(),
			Logger:       o.log,
		})
	}

	bus := events.NewBus()
	sink := notify.Multi(append([]notify.Sink{notify.NewBus(bus), notify.NewLog(o.log)}, o.sinks...))

	sess := session.New(gw, dial,
		session.WithSink(sink),
		session.WithEvents(bus),
		session.WithLogger(o.log),
	)
	conv := conversation.New(gw, sess,
		conversation.WithSink(sink),
		conversation.WithEvents(bus),
		conversation.WithLogger(o.log),
	)

	return &Client{
		Session:      sess,
		Conversation: conv,
		gw:           gw,
		bus:          bus,
		log:          o.log.With("component", "client"),
	}, nil
}

// Events returns the bus every store publishes on.
func (c *Client) Events() *events.Bus { return c.bus }

// Gateway returns the HTTP gateway.
func (c *Client) Gateway() *gateway.Client { return c.gw }

// Start restores a previous session if the cookie is still valid and loads
// the roster. Being logged out is not an error.
func (c *Client) Start(ctx context.Context) error {
	if err := c.Session.CheckAuth(ctx); err != nil {
		c.log.Debug("no session to restore", "err", err)
		return nil
	}

	return c.Conversation.FetchRoster(ctx)
}

// Login authenticates and loads the roster for the new identity.
func (c *Client) Login(ctx context.Context, req gateway.LoginRequest) error {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	if err := c.Session.Login(ctx, req); err != nil {
		return err
	}

	c.Conversation.Reset()

	return c.Conversation.FetchRoster(ctx)
}

// Signup creates an account and loads the roster.
func (c *Client) Signup(ctx context.Context, req gateway.SignupRequest) error {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	if err := c.Session.Signup(ctx, req); err != nil {
		return err
	}

	c.Conversation.Reset()

	return c.Conversation.FetchRoster(ctx)
}

// OpenConversation switches to partner: the old listener is removed, the
// selection changes, the history is fetched and a listener for the new
// partner is registered, in that order. A nil partner just closes the
// current conversation.
func (c *Client) OpenConversation(ctx context.Context, partner *identity.Identity) error {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	c.Conversation.UnsubscribeFromMessages()
	c.Conversation.SelectPartner(partner)
	if partner == nil {
		return nil
	}

	err := c.Conversation.FetchConversation(ctx, partner.ID)

	// Subscribe even when the fetch failed: new messages still arrive.
	c.Conversation.SubscribeToMessages()

	return err
}

// CloseConversation deselects the partner and drops the listener.
func (c *Client) CloseConversation() {
	_ = c.OpenConversation(context.Background(), nil)
}

// Send posts a message to the open conversation.
func (c *Client) Send(ctx context.Context, d message.Draft) (message.Message, error) {
	return c.Conversation.SendMessage(ctx, d)
}

// Logout clears the conversation state and ends the session.
func (c *Client) Logout(ctx context.Context) error {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	c.Conversation.Reset()

	return c.Session.Logout(ctx)
}

// Close detaches listeners and tears the transport down without logging
// out. The session cookie stays valid for the next Start.
func (c *Client) Close() {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	c.Conversation.UnsubscribeFromMessages()
	c.Session.DisconnectSocket()
}
