package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StatusError is returned for any non-2xx response other than 429.
type StatusError struct {
	Status  int
	Message string // From the `{"message": ...}` body, if any.
	Body    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// UserMessage returns the backend's message for end users.
func (e *StatusError) UserMessage() string { return e.Message }

// RateLimitError is returned when the backend responds with HTTP 429. It
// carries an optional RetryAfter duration parsed from the Retry-After header.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
	Body       string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter, e.Body)
	}
	return fmt.Sprintf("rate limited: %s", e.Body)
}

// UserMessage returns the backend's message, or a generic one.
func (e *RateLimitError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if e.RetryAfter > 0 {
		return fmt.Sprintf("Too many requests, retry in %s", e.RetryAfter.Round(time.Second))
	}
	return "Too many requests, try again later"
}

// ParseRetryAfter parses the Retry-After header value as either seconds (integer)
// or an HTTP-date (RFC 7231). Returns zero if unparseable or if the date is in the past.
func ParseRetryAfter(val string) time.Duration {
	if val == "" {
		return 0
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(val); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// bodyMessage extracts the `message` field of an error body.
func bodyMessage(body []byte) string {
	var b struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &b); err != nil {
		return ""
	}
	return strings.TrimSpace(b.Message)
}
