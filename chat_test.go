package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatSendAppendsOptimisticallyAndEmits(t *testing.T) {
	t.Parallel()

	rec := &emitRecorder{}
	c := NewChatLog("r1", "main", rec.emit)

	c.Send("alice", "hello")

	require.Equal(t, []ChatMessage{
		{Sender: "alice", Text: "hello", Channel: "main", RoomID: "r1"},
	}, c.Messages())

	emitted := rec.ofType(msgChat)
	require.Len(t, emitted, 1)
	assert.Equal(t, "r1", emitted[0].RoomID)
	assert.Equal(t, "main", emitted[0].Channel)
	assert.Equal(t, "alice", emitted[0].Sender)
	assert.Equal(t, "hello", emitted[0].Text)
}

func TestChatRelayEchoCollapsesWithOptimisticCopy(t *testing.T) {
	t.Parallel()

	c := NewChatLog("r1", "main", nil)

	c.Send("alice", "hello")
	c.Receive(Message{
		Type:    msgChat,
		RoomID:  "r1",
		Channel: "main",
		Sender:  "alice",
		Text:    "hello",
	})

	assert.Len(t, c.Messages(), 1)
}

func TestChatDedupWorksInEitherOrder(t *testing.T) {
	t.Parallel()

	c := NewChatLog("r1", "main", nil)

	// The echo beat the local append.
	c.Receive(Message{
		Type:    msgChat,
		RoomID:  "r1",
		Channel: "main",
		Sender:  "alice",
		Text:    "hello",
	})
	c.Send("alice", "hello")

	assert.Len(t, c.Messages(), 1)
}

func TestChatDistinctMessagesAllKept(t *testing.T) {
	t.Parallel()

	c := NewChatLog("r1", "main", nil)

	c.Send("alice", "hello")
	c.Send("alice", "hello?")
	c.Receive(Message{Type: msgChat, RoomID: "r1", Channel: "main", Sender: "bob", Text: "hello"})

	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "alice", msgs[0].Sender)
	assert.Equal(t, "bob", msgs[2].Sender)
}

func TestChatReceiveFiltersByScope(t *testing.T) {
	t.Parallel()

	c := NewChatLog("r1", "main", nil)

	c.Receive(Message{Type: msgChat, RoomID: "r2", Channel: "main", Sender: "bob", Text: "wrong room"})
	c.Receive(Message{Type: msgChat, RoomID: "r1", Channel: "side", Sender: "bob", Text: "wrong channel"})
	assert.Empty(t, c.Messages())

	// A scope-less message is a global broadcast and passes.
	c.Receive(Message{Type: msgChat, Sender: "bob", Text: "everyone"})
	assert.Len(t, c.Messages(), 1)
}

func TestChatSystemMarker(t *testing.T) {
	t.Parallel()

	c := NewChatLog("r1", "main", nil)

	c.Receive(Message{Type: msgChat, RoomID: "r1", Sender: SystemSender, Text: "bob joined the room"})
	c.Receive(Message{Type: msgChat, RoomID: "r1", Sender: "bob", Text: "hi"})

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].System())
	assert.False(t, msgs[1].System())
}
