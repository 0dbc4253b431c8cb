// Skibbly Sketch & Guess
//
// Participants join a shared room, one participant draws while the others
// watch a synchronized canvas and chat to guess the secret word.
//
// The relay is a pure message forwarder: authoritative canvas content lives
// on each client and is reconciled peer-to-peer via full snapshots, so the
// server never holds drawing state. All rooms share a single websocket
// endpoint; every message carries its own room (and optional channel) tag,
// and receivers drop anything outside their active scope.
//
// Features:
// - One websocket transport for all rooms: /sketch/ws
// - Random 8-char room IDs via crypto/rand, shareable as /sketch/room/:roomid
// - In-browser QR button to share the current room, backed by go-qrcode
// - Membership tracking with idempotent rejoin (rename in place)
// - System-authored join/leave notices on the room's chat
// - Turn pointer per room; turn-notify tells the holder to pick a word
// - word-selected advances the turn and is relayed with the word stripped
// - Idle connections dropped after the configured session timeout

package main

import (
	"crypto/rand"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

type Client struct {
	conn *websocket.Conn
	send chan any

	// id is the connection identity, unique per live connection.
	id string

	// room is the client's active room. Written only by the relay loop.
	room string
}

type inbound struct {
	client *Client
	msg    Message
}

// minPlayersToStart is how many participants a room needs before the
// relay starts offering words to the turn-holder.
const minPlayersToStart = 2

// Relay fans messages out between the participants of each room. All
// state transitions happen on the single run goroutine: each inbound
// event is handled to completion before the next, so registry mutation
// and broadcast are atomic relative to other messages.
type Relay struct {
	registry Registry
	clients  map[*Client]bool

	// vocab seeds one WordSelector per occupied room; selectors are
	// discarded with their room.
	vocab     []string
	selectors map[string]*WordSelector

	register chan *Client
	unreg    chan *Client
	inbound  chan inbound
}

func newRelay(registry Registry, vocab []string) *Relay {
	return &Relay{
		registry:  registry,
		clients:   make(map[*Client]bool),
		vocab:     vocab,
		selectors: make(map[string]*WordSelector),
		register:  make(chan *Client),
		unreg:     make(chan *Client),
		inbound:   make(chan inbound),
	}
}

func (rl *Relay) selector(roomID string) *WordSelector {
	sel, ok := rl.selectors[roomID]
	if !ok {
		sel = NewWordSelector(rl.vocab, time.Now().UnixNano())
		rl.selectors[roomID] = sel
	}
	return sel
}

func (rl *Relay) run(cfg *Config) {
	for {
		select {
		case c := <-rl.register:
			rl.clients[c] = true

		case c := <-rl.unreg:
			rl.handleEvent(cfg, func() {
				rl.disconnect(cfg, c)
			})

		case in := <-rl.inbound:
			rl.handleEvent(cfg, func() {
				rl.handleMessage(cfg, in.client, in.msg)
			})
		}
	}
}

// handleEvent isolates a per-message failure to that message: a panic
// while handling one event is logged and must not take down the other
// rooms sharing this process.
func (rl *Relay) handleEvent(cfg *Config, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logf(cfg, "ERROR: recovered from relay panic: %v", r)
		}
	}()

	fn()
}

// disconnect runs the leave path for a closed connection. It is driven
// by the same loop that handles messages, so no later message naming
// this identity can be processed against a stale participant.
func (rl *Relay) disconnect(cfg *Config, c *Client) {
	if _, ok := rl.clients[c]; ok {
		delete(rl.clients, c)
		close(c.send)
	}

	rl.leaveAll(cfg, c.id)
}

// leaveAll removes the identity from every room it belonged to and
// broadcasts the aftermath per affected room.
func (rl *Relay) leaveAll(cfg *Config, playerID string) {
	for _, update := range rl.registry.Leave(playerID) {
		logf(cfg, "GAMES: Player %q left sketch room %s", update.Left.Name, update.RoomID)

		if len(update.Members) == 0 {
			delete(rl.selectors, update.RoomID)
			continue
		}

		rl.broadcastRoom(update.RoomID, Message{
			Type:    msgRoomMembers,
			RoomID:  update.RoomID,
			Players: update.Members,
		}, nil)

		rl.systemChat(update.RoomID, update.Left.Name+" left the room")
		rl.notifyTurn(cfg, update.RoomID)
	}
}

func (rl *Relay) handleMessage(cfg *Config, c *Client, msg Message) {
	switch msg.Type {
	case msgJoinRoom:
		// A join without a room identifier is a no-op, not an error.
		if msg.RoomID == "" {
			return
		}
		rl.handleJoin(cfg, c, msg)

	case msgChat:
		if msg.RoomID == "" {
			rl.broadcastAll(msg, nil)
			return
		}
		rl.broadcastRoom(msg.RoomID, msg, nil)

	case msgDraw, msgSnapshot:
		// Low-latency replication: the sender already applied this
		// locally, so it is excluded from the fan-out.
		if msg.RoomID == "" {
			rl.broadcastAll(msg, c)
			return
		}
		rl.broadcastRoom(msg.RoomID, msg, c)

	case msgClear:
		if msg.RoomID == "" {
			rl.broadcastAll(msg, nil)
			return
		}
		rl.broadcastRoom(msg.RoomID, msg, nil)

	case msgWordSelected:
		rl.handleWordSelected(cfg, c, msg)

	default:
		// ignore unknown types
	}
}

func (rl *Relay) handleJoin(cfg *Config, c *Client, msg Message) {
	// A connection belongs to at most one room; switching rooms runs
	// the leave path for the old one first.
	if c.room != "" && c.room != msg.RoomID {
		rl.leaveAll(cfg, c.id)
	}

	name := msg.Name
	if name == "" {
		name = "Player"
	}

	members := rl.registry.Join(msg.RoomID, c.id, name)
	c.room = msg.RoomID

	logf(cfg, "GAMES: Player %q joined sketch room %s", name, msg.RoomID)

	rl.broadcastRoom(msg.RoomID, Message{
		Type:    msgRoomMembers,
		RoomID:  msg.RoomID,
		Players: members,
	}, nil)

	rl.systemChat(msg.RoomID, name+" joined the room")
	rl.notifyTurn(cfg, msg.RoomID)
}

func (rl *Relay) handleWordSelected(cfg *Config, c *Client, msg Message) {
	roomID := msg.RoomID
	if roomID == "" {
		roomID = c.room
	}
	if roomID == "" {
		return
	}

	if holder, ok := rl.registry.TurnHolder(roomID); !ok || holder.ID != c.id {
		logf(cfg, "GAMES: ignoring selection from non-holder in room %s", roomID)
		return
	}

	sel := rl.selector(roomID)

	// Only a word from the current offer is accepted; it leaves the
	// pool permanently and is never reoffered in this session.
	if err := sel.Select(msg.Word); err != nil {
		logf(cfg, "GAMES: rejected selection in room %s: %v", roomID, err)
		return
	}

	logf(cfg, "GAMES: Player %q selected a word in sketch room %s", msg.Name, roomID)

	// The selection is announced to the guessers, the secret is not.
	relayed := msg
	relayed.RoomID = roomID
	relayed.Word = ""
	rl.broadcastRoom(roomID, relayed, c)

	// Round timing and scoring live outside this core: the round is
	// considered played as soon as the word is chosen, and the turn
	// pointer advances to the next participant.
	_ = sel.StartRound()
	_ = sel.EndTurn()

	if _, ok := rl.registry.Advance(roomID); ok {
		rl.notifyTurn(cfg, roomID)
	}
}

// notifyTurn offers three words to the participant under the room's
// turn pointer. Nothing is offered until the room can actually play;
// re-sending to an unchanged holder repeats the same pending offer.
func (rl *Relay) notifyTurn(cfg *Config, roomID string) {
	members := rl.registry.Members(roomID)
	if len(members) < minPlayersToStart {
		return
	}

	holder, ok := rl.registry.TurnHolder(roomID)
	if !ok {
		return
	}

	sel := rl.selector(roomID)
	if sel.State() == StateIdle {
		if err := sel.GeneratePool(len(members)); err != nil {
			logf(cfg, "GAMES: word pool for room %s: %v", roomID, err)
			return
		}
	}

	words, err := sel.Offer(holder.ID)
	if err != nil {
		logf(cfg, "GAMES: offering words in room %s: %v", roomID, err)
		return
	}

	rl.sendTo(holder.ID, Message{
		Type:   msgTurnNotify,
		RoomID: roomID,
		Words:  words,
	})
}

func (rl *Relay) systemChat(roomID, text string) {
	rl.broadcastRoom(roomID, Message{
		Type:   msgChat,
		RoomID: roomID,
		Sender: SystemSender,
		Text:   text,
	}, nil)
}

func (rl *Relay) broadcastRoom(roomID string, msg Message, except *Client) {
	for client := range rl.clients {
		if client.room != roomID || client == except {
			continue
		}
		rl.trySend(client, msg)
	}
}

func (rl *Relay) broadcastAll(msg Message, except *Client) {
	for client := range rl.clients {
		if client == except {
			continue
		}
		rl.trySend(client, msg)
	}
}

func (rl *Relay) sendTo(playerID string, msg Message) {
	for client := range rl.clients {
		if client.id == playerID {
			rl.trySend(client, msg)
			return
		}
	}
}

// trySend drops clients whose send buffer is full rather than blocking
// the relay loop. Delivery is at-most-once; snapshot reconciliation
// compensates for drops.
func (rl *Relay) trySend(c *Client, msg Message) {
	select {
	case c.send <- msg:
	default:
		delete(rl.clients, c)
		close(c.send)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWS upgrades the connection and hands it to the relay. Every
// connection gets a fresh identity; display names arrive later with
// join-room.
func serveWS(cfg *Config, rl *Relay) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: websocket upgrade: %v", err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, 8),
			id:   uuid.NewString(),
		}

		rl.register <- client

		go client.writePump()
		client.readPump(cfg, rl)
	}
}

func (c *Client) readPump(cfg *Config, rl *Relay) {
	defer func() {
		rl.unreg <- c
		_ = c.conn.Close()
	}()

	for {
		if cfg.sessionTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(cfg.sessionTimeout))
		}

		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		rl.inbound <- inbound{
			client: c,
			msg:    msg,
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// newRoomID generates a crypto-random room ID. Sessions only exist
// while occupied, so uniqueness comes from the ID space rather than a
// server-side collision check.
func newRoomID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	out := make([]byte, 8)
	for i := range out {
		out[i] = letters[int(buf[i])%len(letters)]
	}
	return string(out)
}

// redirectNewRoom handles GET /sketch by generating a new random room ID
// and redirecting to /sketch/room/:roomid.
func redirectNewRoom(cfg *Config, path string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		roomID := newRoomID()
		logf(cfg, "GAMES: Created room %s/room/%s", path, roomID)
		http.Redirect(w, r, path+"/room/"+roomID, http.StatusTemporaryRedirect)
	}
}

func serveRoomPage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")
		if roomID == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		var page strings.Builder

		page.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
		page.WriteString(`<style>html,body{font-family:sans-serif;}img{display:block;margin:1em 0;}</style>`)
		page.WriteString(`<title>skibbly - room ` + roomID + `</title></head><body>`)
		page.WriteString(`<h1>Room ` + roomID + `</h1>`)
		page.WriteString(`<p>Share this page to invite players.</p>`)
		page.WriteString(`<img src="` + r.URL.Path + `/qr" alt="QR code for this room" width="320" height="320">`)
		page.WriteString(`</body></html>`)

		_, _ = w.Write([]byte(page.String()))
	}
}

// qrHandler generates a PNG QR code for the current room URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	roomID := ps.ByName("roomid")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../room/:roomid/qr; strip trailing "/qr" to get the room URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// serveWordList exposes the server's vocabulary so every client draws
// from the same word set regardless of --wordlist overrides.
func serveWordList(cfg *Config, vocab []string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		securityHeaders(cfg, w)

		enc := json.NewEncoder(w)
		if err := enc.Encode(vocab); err != nil {
			logf(cfg, "ERROR: encoding word list: %v", err)
		}
	}
}

// registerSketchGame sets up routes so that:
//   - $path                    → redirects to a new random room
//   - $path/room/:roomid       → HTML room page
//   - $path/room/:roomid/qr    → PNG QR code for that room URL
//   - $path/words              → JSON vocabulary for word selection
//   - $path/ws                 → the shared websocket for all rooms
func registerSketchGame(cfg *Config, path string, vocab []string, mux *httprouter.Router) *Relay {
	relay := newRelay(newRoomTable(), vocab)
	go relay.run(cfg)

	mux.GET(cfg.prefix+path, redirectNewRoom(cfg, cfg.prefix+path))

	mux.GET(cfg.prefix+path+"/room/:roomid", serveRoomPage(cfg))

	mux.GET(cfg.prefix+path+"/room/:roomid/qr", qrHandler)

	mux.GET(cfg.prefix+path+"/words", serveWordList(cfg, vocab))

	mux.GET(cfg.prefix+path+"/ws", serveWS(cfg, relay))

	return relay
}
