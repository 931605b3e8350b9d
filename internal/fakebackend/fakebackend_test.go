package fakebackend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/parley/pkg/chats/identity"
	"github.com/germanamz/parley/pkg/chats/message"
	"github.com/germanamz/parley/pkg/gateway"
)

func newGateway(t *testing.T, srv *httptest.Server) *gateway.Client {
	t.Helper()

	gw, err := gateway.New(srv.URL + "/api")
	require.NoError(t, err)

	return gw
}

func TestServer_AuthFlow(t *testing.T) {
	fb := New()
	srv := httptest.NewServer(fb)
	defer srv.Close()

	gw := newGateway(t, srv)
	ctx := context.Background()

	_, err := gw.CheckAuth(ctx)
	var se *gateway.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Status)

	me, err := gw.Signup(ctx, gateway.SignupRequest{FullName: "Ana", Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, me.ID)

	got, err := gw.CheckAuth(ctx)
	require.NoError(t, err)
	assert.Equal(t, me.ID, got.ID)

	_, err = gw.Signup(ctx, gateway.SignupRequest{FullName: "Ana", Email: "ANA@example.com", Password: "secret1"})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Email already exists", se.Message)

	require.NoError(t, gw.Logout(ctx))
	_, err = gw.CheckAuth(ctx)
	assert.Error(t, err)

	_, err = gw.Login(ctx, gateway.LoginRequest{Email: "ana@example.com", Password: "wrong"})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Invalid credentials", se.Message)

	got, err = gw.Login(ctx, gateway.LoginRequest{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, me.ID, got.ID)
}

func TestServer_Messages(t *testing.T) {
	fb := New()
	srv := httptest.NewServer(fb)
	defer srv.Close()

	bob, err := fb.AddUser("Bob", "bob@example.com", "secret1")
	require.NoError(t, err)

	gw := newGateway(t, srv)
	ctx := context.Background()
	me, err := gw.Signup(ctx, gateway.SignupRequest{FullName: "Ana", Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)

	users, err := gw.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, bob.ID, users[0].ID)

	m, err := gw.Send(ctx, bob.ID, message.Draft{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, me.ID, m.SenderID)
	assert.Equal(t, bob.ID, m.ReceiverID)
	assert.False(t, m.CreatedAt.IsZero())

	fb.Deliver(ctx, message.Message{SenderID: bob.ID, ReceiverID: me.ID, Text: "hey"})

	msgs, err := gw.Messages(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Text)
	assert.Equal(t, "hey", msgs[1].Text)

	_, err = gw.Send(ctx, "nobody", message.Draft{Text: "x"})
	assert.Error(t, err)
}

func TestServer_FailInjection(t *testing.T) {
	fb := New()
	srv := httptest.NewServer(fb)
	defer srv.Close()

	gw := newGateway(t, srv)
	ctx := context.Background()
	_, err := gw.Signup(ctx, gateway.SignupRequest{FullName: "Ana", Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)

	fb.Fail("users", http.StatusInternalServerError, "db down")

	_, err = gw.Users(ctx)
	var se *gateway.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "db down", se.Message)

	// Only the next request fails.
	_, err = gw.Users(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"signup", "users", "users"}, fb.Requests())
}

func TestPassword(t *testing.T) {
	hash, err := hashPassword("secret1")
	require.NoError(t, err)

	ok, err := checkPassword("secret1", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checkPassword("secret2", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = checkPassword("x", "garbage")
	assert.ErrorIs(t, err, errBadHash)
}

func TestServer_AutoReply(t *testing.T) {
	var bot identity.Identity
	fb := New(WithAutoReply(func(m message.Message) (message.Message, bool) {
		if m.ReceiverID != bot.ID {
			return message.Message{}, false
		}
		return message.Message{SenderID: bot.ID, ReceiverID: m.SenderID, Text: "echo: " + m.Text}, true
	}))
	srv := httptest.NewServer(fb)
	defer srv.Close()

	var err error
	bot, err = fb.AddUser("Bot", "bot@example.com", "secret1")
	require.NoError(t, err)

	gw := newGateway(t, srv)
	ctx := context.Background()
	_, err = gw.Signup(ctx, gateway.SignupRequest{FullName: "Ana", Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = gw.Send(ctx, bot.ID, message.Draft{Text: "ping"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(fb.Messages()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "echo: ping", fb.Messages()[1].Text)
}
