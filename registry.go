package main

// Registry is the room membership store behind the relay. Implementations
// are not required to be safe for concurrent use; the relay confines all
// calls to its single event loop.
type Registry interface {
	// Join adds the identity to the room, or updates its display name in
	// place if it already belongs, and returns the updated member list.
	Join(roomID, playerID, name string) []Participant

	// Leave removes the identity from every room it belongs to and
	// returns one update per affected room. Safe to call for identities
	// that never joined anything.
	Leave(playerID string) []RoomUpdate

	// Members returns the current member list of the room, in join order.
	Members(roomID string) []Participant

	// TurnHolder returns the participant under the room's turn pointer.
	TurnHolder(roomID string) (Participant, bool)

	// Advance moves the room's turn pointer to the next participant,
	// modulo the current member count, and returns the new holder.
	Advance(roomID string) (Participant, bool)
}

// RoomUpdate describes the aftermath of a Leave for one room.
type RoomUpdate struct {
	RoomID  string
	Left    Participant
	Members []Participant
}

type session struct {
	players []Participant
	turn    int
}

// roomTable is the in-memory Registry. Sessions are created on first
// join and discarded as soon as their last member leaves, so empty
// rooms never accumulate.
type roomTable struct {
	rooms map[string]*session
}

func newRoomTable() *roomTable {
	return &roomTable{
		rooms: make(map[string]*session),
	}
}

func (t *roomTable) Join(roomID, playerID, name string) []Participant {
	s, ok := t.rooms[roomID]
	if !ok {
		s = &session{}
		t.rooms[roomID] = s
	}

	for i := range s.players {
		if s.players[i].ID == playerID {
			s.players[i].Name = name
			return membersCopy(s)
		}
	}

	s.players = append(s.players, Participant{
		ID:   playerID,
		Name: name,
	})

	return membersCopy(s)
}

func (t *roomTable) Leave(playerID string) []RoomUpdate {
	var updates []RoomUpdate

	for roomID, s := range t.rooms {
		dst := s.players[:0]
		var left Participant
		changed := false

		for _, p := range s.players {
			if p.ID == playerID {
				left = p
				changed = true
				continue
			}
			dst = append(dst, p)
		}
		s.players = dst

		if !changed {
			continue
		}

		if len(s.players) == 0 {
			delete(t.rooms, roomID)
		} else if s.turn >= len(s.players) {
			s.turn = 0
		}

		updates = append(updates, RoomUpdate{
			RoomID:  roomID,
			Left:    left,
			Members: membersCopy(s),
		})
	}

	return updates
}

func (t *roomTable) Members(roomID string) []Participant {
	s, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	return membersCopy(s)
}

func (t *roomTable) TurnHolder(roomID string) (Participant, bool) {
	s, ok := t.rooms[roomID]
	if !ok || len(s.players) == 0 {
		return Participant{}, false
	}
	if s.turn >= len(s.players) {
		s.turn = 0
	}
	return s.players[s.turn], true
}

func (t *roomTable) Advance(roomID string) (Participant, bool) {
	s, ok := t.rooms[roomID]
	if !ok || len(s.players) == 0 {
		return Participant{}, false
	}
	s.turn = (s.turn + 1) % len(s.players)
	return s.players[s.turn], true
}

func membersCopy(s *session) []Participant {
	out := make([]Participant, len(s.players))
	copy(out, s.players)
	return out
}
