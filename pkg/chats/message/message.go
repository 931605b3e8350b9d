// Package message defines chat messages and the drafts used to create them.
package message

import (
	"strings"
	"time"
)

// Message is a single chat message as stored by the backend. It is a value
// type and is never mutated after it has been received.
type Message struct {
	ID         string    `json:"_id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"` // Attachment reference (URL or data URL).
	CreatedAt  time.Time `json:"createdAt,omitzero"`
}

// HasAttachment reports whether the message carries an image.
func (m Message) HasAttachment() bool {
	return m.Image != ""
}

// From reports whether the message was sent by the given user id.
func (m Message) From(userID string) bool {
	return m.SenderID == userID
}

// Draft is the payload of an outgoing message. At least one of Text or Image
// must be set.
type Draft struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// Normalized returns a copy with surrounding whitespace removed from Text.
func (d Draft) Normalized() Draft {
	return Draft{Text: strings.TrimSpace(d.Text), Image: d.Image}
}

// Empty reports whether the draft has neither text nor an image.
func (d Draft) Empty() bool {
	return strings.TrimSpace(d.Text) == "" && d.Image == ""
}
