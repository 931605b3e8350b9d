// Package transport defines the session-scoped realtime channel between the
// chat client and the server.
//
// It contains:
//   - [Handle]: the named-event channel the stores talk to, with explicit
//     listener tokens instead of an implicit global listener registry
//   - [Registry]: the token-based listener table shared by implementations
//   - [WebSocket]: a [Handle] over github.com/coder/websocket that dials in
//     the background and re-dials with exponential backoff until disconnected
//   - [github.com/germanamz/parley/pkg/transport/transporttest]: a recording
//     fake for store tests
//
// Frames on the wire are JSON envelopes: {"type": <event>, "payload": <json>}.
package transport
