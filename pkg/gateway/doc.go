// Package gateway is a typed HTTP client for the chat backend.
//
// It contains:
//   - [Client] with one method per backend route (auth, roster, messages)
//   - [SignupRequest], [LoginRequest] and [ProfileUpdate] request bodies with validation tags
//   - [StatusError] and [RateLimitError] for non-2xx responses
//
// The session is a cookie set by the auth routes and kept in the client's
// cookie jar. The same *http.Client is handed to the websocket dialer so the
// realtime handshake carries the cookie too.
package gateway
