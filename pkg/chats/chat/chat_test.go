package chat

import (
	"testing"

	"github.com/germanamz/parley/pkg/chats/message"

	"github.com/stretchr/testify/assert"
)

func msg(id, sender, text string) message.Message {
	return message.Message{ID: id, SenderID: sender, Text: text}
}

func TestNew(t *testing.T) {
	c := New(msg("1", "alice", "hello"), msg("2", "bob", "hi"))

	assert.Len(t, c.Messages(), 2)
}

func TestChat_ZeroValue(t *testing.T) {
	var c Chat

	assert.Empty(t, c.Messages())
	assert.NotNil(t, c.Messages())
	assert.False(t, c.Contains("1"))
}

func TestChat_Append_PreservesOrder(t *testing.T) {
	c := New(msg("1", "alice", "Hello"))
	c.Append(msg("2", "user123", "Hi"))
	c.Append(msg("3", "alice", "one"), msg("4", "bob", "two"))

	assert.Equal(t, []message.Message{
		msg("1", "alice", "Hello"),
		msg("2", "user123", "Hi"),
		msg("3", "alice", "one"),
		msg("4", "bob", "two"),
	}, c.Messages())
}

func TestChat_Replace(t *testing.T) {
	c := New(msg("1", "alice", "old"))

	fresh := []message.Message{msg("7", "bob", "a"), msg("8", "bob", "b")}
	c.Replace(fresh...)

	assert.Equal(t, []message.Message{msg("7", "bob", "a"), msg("8", "bob", "b")}, c.Messages())

	// The log owns its copy.
	fresh[0].Text = "mutated"
	assert.Equal(t, "a", c.Messages()[0].Text)
}

func TestChat_Reset(t *testing.T) {
	c := New(msg("1", "alice", "old"))
	c.Reset()

	assert.Equal(t, []message.Message{}, c.Messages())
}

func TestChat_Messages_ReturnsCopy(t *testing.T) {
	c := New(msg("1", "alice", "hello"))

	msgs := c.Messages()
	msgs[0] = msg("1", "bob", "modified")

	assert.Equal(t, "hello", c.Messages()[0].Text)
}

func TestChat_Contains(t *testing.T) {
	c := New(msg("1", "alice", "hello"))

	assert.True(t, c.Contains("1"))
	assert.False(t, c.Contains("2"))
}
