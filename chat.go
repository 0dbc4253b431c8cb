package main

import (
	"sync"
)

// ChatMessage is one entry in a client's chat view, ordered by arrival.
type ChatMessage struct {
	Sender  string
	Text    string
	Channel string
	RoomID  string
}

// System reports whether the message was authored by the relay rather
// than a player.
func (m ChatMessage) System() bool {
	return m.Sender == SystemSender
}

// ChatLog is the client-side chat view for one (room, channel) scope.
// The sender appends its own messages optimistically, so the relay's
// echo of the same message arrives twice; deduplication by the
// (sender, text, channel, room) tuple collapses the pair.
type ChatLog struct {
	mu sync.Mutex

	scope    scope
	emit     func(Message)
	messages []ChatMessage
}

// NewChatLog creates a chat view scoped to (room, channel). emit is
// called with outbound messages already tagged with that scope; a nil
// emit discards them.
func NewChatLog(room, channel string, emit func(Message)) *ChatLog {
	if emit == nil {
		emit = func(Message) {}
	}

	return &ChatLog{
		scope: scope{room: room, channel: channel},
		emit:  emit,
	}
}

// Send appends the message to the local view without waiting for the
// round-trip, then forwards it to the relay.
func (c *ChatLog) Send(sender, text string) {
	msg := ChatMessage{
		Sender:  sender,
		Text:    text,
		Channel: c.scope.channel,
		RoomID:  c.scope.room,
	}

	c.mu.Lock()
	c.appendLocked(msg)
	c.mu.Unlock()

	c.emit(Message{
		Type:    msgChat,
		RoomID:  msg.RoomID,
		Channel: msg.Channel,
		Sender:  msg.Sender,
		Text:    msg.Text,
	})
}

// Receive applies the scoping filter, then deduplicates against the
// held messages before appending.
func (c *ChatLog) Receive(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.scope.accepts(msg.RoomID, msg.Channel) {
		return
	}

	c.appendLocked(ChatMessage{
		Sender:  msg.Sender,
		Text:    msg.Text,
		Channel: msg.Channel,
		RoomID:  msg.RoomID,
	})
}

func (c *ChatLog) appendLocked(msg ChatMessage) {
	for _, held := range c.messages {
		if held == msg {
			return
		}
	}
	c.messages = append(c.messages, msg)
}

// Messages returns a copy of the visible messages, in arrival order.
func (c *ChatLog) Messages() []ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}
