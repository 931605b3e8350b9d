// Package chats provides the client-side data model for two-party chat.
//
// It is organized into sub-packages:
//   - [github.com/germanamz/parley/pkg/chats/identity]: authenticated user records (roster entries, self)
//   - [github.com/germanamz/parley/pkg/chats/message]: immutable messages and outgoing drafts
//   - [github.com/germanamz/parley/pkg/chats/chat]: insertion-ordered conversation log
//
// No transport or store code is included; chats is a foundation layer
// that the gateway, transport and stores build on.
package chats
