package main

import (
	"encoding/json"
)

// Message types exchanged over the sketch websocket.
const (
	msgJoinRoom     = "join-room"
	msgRoomMembers  = "room-members"
	msgChat         = "chat-message"
	msgDraw         = "draw-operation"
	msgSnapshot     = "canvas-snapshot"
	msgClear        = "clear-canvas"
	msgTurnNotify   = "turn-notify"
	msgWordSelected = "word-selected"
)

// SystemSender is the reserved sender marker for relay-authored chat
// notifications (joins, leaves). Clients render these differently from
// player messages.
const SystemSender = "system"

// Participant is one member of a room, as seen on the wire.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is the envelope for everything exchanged over the sketch
// websocket. Fields are populated per message type; unused fields are
// omitted from the wire.
type Message struct {
	Type    string `json:"type"`
	RoomID  string `json:"roomId,omitempty"`
	Channel string `json:"channel,omitempty"`

	// join-room, word-selected
	Name string `json:"name,omitempty"`

	// chat-message
	Sender string `json:"sender,omitempty"`
	Text   string `json:"text,omitempty"`

	// word-selected (stripped before relay to other participants)
	Word string `json:"word,omitempty"`

	// turn-notify: the three words offered to the turn-holder
	Words []string `json:"words,omitempty"`

	// room-members
	Players []Participant `json:"players,omitempty"`

	// draw-operation carries one serialized shape;
	// canvas-snapshot carries the full serialized shape list
	Payload json.RawMessage `json:"payload,omitempty"`
}

// scope is a receiver's active (room, channel) filter. A zero scope
// accepts everything.
type scope struct {
	room    string
	channel string
}

// accepts reports whether a message tagged with the given room and
// channel should be applied by a receiver holding this scope. A message
// with an explicit room is rejected when the receiver's active room
// differs; likewise for a non-empty channel tag. Messages lacking a
// room or channel pass the corresponding filter (legacy/global
// broadcast).
func (s scope) accepts(room, channel string) bool {
	if s.room != "" && room != "" && room != s.room {
		return false
	}
	if s.channel != "" && channel != "" && channel != s.channel {
		return false
	}
	return true
}
