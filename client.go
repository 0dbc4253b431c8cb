package main

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

// GameClient is the Go rendition of the in-browser player: it owns the
// local canvas model and chat view, keeps the room's member list, and
// speaks the sketch wire protocol over a single websocket. The server
// never holds canvas state; this is where it lives.
type GameClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	name  string
	scope scope

	Board *Board
	Chat  *ChatLog

	mu            sync.Mutex
	players       []Participant
	offered       []string
	myTurn        bool
	selectedWord  string
	lastSelection string

	// onTurn, when set, is invoked with the offered words each time the
	// relay hands this client the turn.
	onTurn func([]string)

	done chan struct{}
}

// DialSketch connects to a sketch websocket endpoint and joins the
// given room under the given display name. The channel tag is an
// optional secondary scope; pass "" for none.
func DialSketch(url, name, room, channel string) (*GameClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}

	c := &GameClient{
		conn:  conn,
		name:  name,
		scope: scope{room: room, channel: channel},
		done:  make(chan struct{}),
	}
	c.Board = NewBoard(room, channel, c.send)
	c.Chat = NewChatLog(room, channel, c.send)

	go c.readLoop()

	if err := c.write(Message{
		Type:   msgJoinRoom,
		RoomID: room,
		Name:   name,
	}); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return c, nil
}

// OnTurn registers a hook invoked with the offered words whenever the
// relay hands this client the turn.
func (c *GameClient) OnTurn(fn func([]string)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onTurn = fn
}

// Close tears down the connection; the relay treats it as a leave.
func (c *GameClient) Close() error {
	return c.conn.Close()
}

// Done is closed once the read loop exits.
func (c *GameClient) Done() <-chan struct{} {
	return c.done
}

func (c *GameClient) send(msg Message) {
	_ = c.write(msg)
}

func (c *GameClient) write(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.conn.WriteJSON(msg)
}

func (c *GameClient) readLoop() {
	defer close(c.done)

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		c.dispatch(msg)
	}
}

func (c *GameClient) dispatch(msg Message) {
	switch msg.Type {
	case msgRoomMembers:
		if msg.RoomID != c.scope.room {
			return
		}
		c.mu.Lock()
		c.players = msg.Players
		c.mu.Unlock()

	case msgChat:
		c.Chat.Receive(msg)

	case msgDraw, msgSnapshot, msgClear:
		// Scope filtering happens inside the board.
		_ = c.Board.ApplyMessage(msg)

	case msgTurnNotify:
		if !c.scope.accepts(msg.RoomID, msg.Channel) {
			return
		}
		c.mu.Lock()
		c.offered = msg.Words
		c.myTurn = true
		fn := c.onTurn
		c.mu.Unlock()

		if fn != nil {
			fn(msg.Words)
		}

	case msgWordSelected:
		if !c.scope.accepts(msg.RoomID, msg.Channel) {
			return
		}
		c.mu.Lock()
		c.lastSelection = msg.Name
		c.myTurn = false
		c.mu.Unlock()
	}
}

// Players returns the last member list broadcast for the active room.
func (c *GameClient) Players() []Participant {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Participant, len(c.players))
	copy(out, c.players)
	return out
}

// MyTurn reports whether this client currently holds the turn.
func (c *GameClient) MyTurn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.myTurn
}

// Offered returns the words currently offered to this client.
func (c *GameClient) Offered() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.offered))
	copy(out, c.offered)
	return out
}

// SelectedWord returns the word this client chose to draw, if any.
func (c *GameClient) SelectedWord() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.selectedWord
}

// LastSelection returns the display name of the participant whose
// selection was most recently announced.
func (c *GameClient) LastSelection() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastSelection
}

// SelectWord commits one of the offered words as this turn's secret and
// notifies the relay. The other participants learn that a selection
// happened, not what it was.
func (c *GameClient) SelectWord(word string) error {
	c.mu.Lock()

	if !c.myTurn {
		c.mu.Unlock()
		return errors.New("not this client's turn")
	}

	found := false
	for _, offered := range c.offered {
		if offered == word {
			found = true
			break
		}
	}
	if !found {
		c.mu.Unlock()
		return errors.New("word was not offered")
	}

	c.selectedWord = word
	c.offered = nil
	c.myTurn = false
	c.mu.Unlock()

	return c.write(Message{
		Type:   msgWordSelected,
		RoomID: c.scope.room,
		Name:   c.name,
		Word:   word,
	})
}

// Say sends a chat message under this client's display name.
func (c *GameClient) Say(text string) {
	c.Chat.Send(c.name, text)
}
