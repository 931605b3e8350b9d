package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/germanamz/parley/internal/fakebackend"
	"github.com/germanamz/parley/pkg/chats/message"
	"github.com/germanamz/parley/pkg/config"
)

const demoPassword = "demo123"

// demoUsers are seeded into the demo backend. The first one answers every
// message it receives.
var demoUsers = []struct{ name, email string }{
	{"Echo Bot", "echo@parley.local"},
	{"Grace Hopper", "grace@parley.local"},
	{"Alan Turing", "alan@parley.local"},
}

// startDemo serves a fake backend on a loopback port and points cfg at it.
func startDemo(ctx context.Context, cfg *config.Config, log *slog.Logger) (func(), error) {
	var echoID string
	fb := fakebackend.New(
		fakebackend.WithLogger(log.With("component", "demo")),
		fakebackend.WithAutoReply(func(m message.Message) (message.Message, bool) {
			if m.ReceiverID != echoID || m.Text == "" {
				return message.Message{}, false
			}
			return message.Message{SenderID: echoID, ReceiverID: m.SenderID, Text: "echo: " + m.Text}, true
		}),
	)

	for i, u := range demoUsers {
		id, err := fb.AddUser(u.name, u.email, demoPassword)
		if err != nil {
			return nil, fmt.Errorf("demo: seed %s: %w", u.email, err)
		}
		if i == 0 {
			echoID = id.ID
		}
	}

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("demo: listen: %w", err)
	}

	srv := &http.Server{Handler: fb, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("demo backend stopped", "err", err)
		}
	}()

	addr := ln.Addr().String()
	cfg.APIURL = "http://" + addr + "/api"
	cfg.SocketURL = "ws://" + addr + "/ws"

	emails := make([]string, 0, len(demoUsers))
	for _, u := range demoUsers {
		emails = append(emails, u.email)
	}
	fmt.Fprintf(os.Stderr, "demo backend on %s\naccounts: %s (password %q)\n", addr, strings.Join(emails, ", "), demoPassword)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}
