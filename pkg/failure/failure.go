// Package failure classifies the errors surfaced by the chat stores.
//
// Every store operation that can fail returns a *Error whose Kind tells the
// caller whether a request was attempted:
//   - [Validation]: a local precondition failed, nothing was sent
//   - [Remote]: the backend rejected the request or could not be reached
//
// A missing or unusable realtime transport is not an error: subscribe and
// connect calls made at the wrong time are logged no-ops.
//
// Message is a one-line human readable text suitable for a notification.
package failure

import (
	"errors"
	"fmt"
)

// Kind is the failure category.
type Kind int

const (
	Validation Kind = iota + 1
	Remote
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Remote:
		return "remote"
	default:
		return "unknown"
	}
}

// UserMessager is implemented by errors that carry a message meant for
// end users (for example a backend `{"message": ...}` body).
type UserMessager interface {
	UserMessage() string
}

// Error is a classified store failure.
type Error struct {
	Kind    Kind
	Op      string // Store operation, e.g. "login".
	Message string // One-line text for the notification sink.
	Err     error  // Underlying cause, nil for validation failures.
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s failure: %s: %v", e.Op, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s failure: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Validationf builds a Validation failure with a formatted message.
func Validationf(op, format string, args ...any) *Error {
	return &Error{Kind: Validation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NewRemote wraps err as a Remote failure. The message is taken from err when
// it implements UserMessager, otherwise fallback is used.
func NewRemote(op string, err error, fallback string) *Error {
	msg := fallback
	var um UserMessager
	if errors.As(err, &um) && um.UserMessage() != "" {
		msg = um.UserMessage()
	}
	return &Error{Kind: Remote, Op: op, Message: msg, Err: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, k Kind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == k
}

// MessageOf returns the user-facing message of err. Non-classified errors
// fall back to err.Error().
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}
