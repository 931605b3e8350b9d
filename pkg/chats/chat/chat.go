// Package chat provides the insertion-ordered conversation log for the
// currently selected partner.
package chat

import "github.com/germanamz/parley/pkg/chats/message"

// Chat is an append-only message log. Entries keep their insertion order and
// are never edited or removed individually; the only way to drop entries is
// to replace the whole log. The zero value is ready to use.
// Chat is not safe for concurrent use; callers must synchronize externally.
type Chat struct {
	messages []message.Message
}

// New creates a Chat pre-populated with the given messages.
func New(msgs ...message.Message) *Chat {
	return &Chat{messages: msgs}
}

// Append adds one or more messages to the end of the log.
func (c *Chat) Append(msgs ...message.Message) {
	c.messages = append(c.messages, msgs...)
}

// Replace discards the current entries and installs a copy of msgs.
func (c *Chat) Replace(msgs ...message.Message) {
	cp := make([]message.Message, len(msgs))
	copy(cp, msgs)
	c.messages = cp
}

// Reset empties the log.
func (c *Chat) Reset() {
	c.messages = []message.Message{}
}

// Messages returns a copy of all messages in the log.
func (c *Chat) Messages() []message.Message {
	cp := make([]message.Message, len(c.messages))
	copy(cp, c.messages)
	return cp
}

// Contains reports whether a message with the given id is in the log.
func (c *Chat) Contains(id string) bool {
	for _, m := range c.messages {
		if m.ID == id {
			return true
		}
	}
	return false
}
