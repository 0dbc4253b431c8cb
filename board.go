package main

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Shape kinds. Paths have no precise containment test, so eraser hits
// against them fall back to the inflated bounding box.
const (
	ShapePath    = "path"
	ShapeRect    = "rect"
	ShapeEllipse = "ellipse"
)

const (
	// historyLimit bounds the undo history to the most recent snapshots;
	// the oldest entry is evicted first.
	historyLimit = 50

	// eraseMargin widens the eraser's bounding-box test beyond half the
	// brush width.
	eraseMargin = 3

	// resizeRetryDelay is how long to wait before re-measuring a
	// container that reported zero size.
	resizeRetryDelay = 100 * time.Millisecond
)

// Point is a canvas coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Shape is one drawable primitive in the canvas arena: a flat record
// with serializable geometry, addressed by ID. A draw-operation carries
// one Shape; a canvas-snapshot carries the whole arena.
type Shape struct {
	ID     string  `json:"id"`
	Kind   string  `json:"kind"`
	Points []Point `json:"points"`
	Color  string  `json:"color,omitempty"`
	Width  float64 `json:"width,omitempty"`
}

// Bounds returns the axis-aligned bounding box of the shape.
func (s *Shape) Bounds() (minX, minY, maxX, maxY float64) {
	if len(s.Points) == 0 {
		return 0, 0, 0, 0
	}

	minX, maxX = s.Points[0].X, s.Points[0].X
	minY, maxY = s.Points[0].Y, s.Points[0].Y

	for _, p := range s.Points[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}

	return minX, minY, maxX, maxY
}

// containsPoint reports whether the shape has a precise containment
// test for p, and its result. Paths and unknown kinds have none.
func (s *Shape) containsPoint(p Point) (hit, ok bool) {
	minX, minY, maxX, maxY := s.Bounds()

	switch s.Kind {
	case ShapeRect:
		return p.X >= minX && p.X <= maxX && p.Y >= minY && p.Y <= maxY, true
	case ShapeEllipse:
		rx := (maxX - minX) / 2
		ry := (maxY - minY) / 2
		if rx == 0 || ry == 0 {
			return false, true
		}
		cx := minX + rx
		cy := minY + ry
		dx := (p.X - cx) / rx
		dy := (p.Y - cy) / ry
		return dx*dx+dy*dy <= 1, true
	default:
		return false, false
	}
}

// hitTest applies the eraser rule: a shape is hit when the precise
// containment test succeeds, or when the pointer lands inside the
// bounding box inflated by radius. A precise miss still falls through
// to the inflated box, so brushing close to a shape's edge erases it.
func (s *Shape) hitTest(p Point, radius float64) bool {
	if hit, ok := s.containsPoint(p); ok && hit {
		return true
	}

	minX, minY, maxX, maxY := s.Bounds()

	return p.X >= minX-radius && p.X <= maxX+radius &&
		p.Y >= minY-radius && p.Y <= maxY+radius
}

// Origin tags every board mutation with where it came from. Remote
// mutations are never re-broadcast and never create undo entries; that
// distinction is what prevents feedback loops between peers.
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

// Board is the client-side canvas model: an ordered arena of shapes,
// a bounded undo history of full snapshots, and an emit hook toward the
// wire. The relay never sees this state; peers reconcile through the
// snapshots the board emits.
type Board struct {
	mu sync.Mutex

	scope  scope
	shapes []Shape

	// history holds full post-mutation snapshots, the current state
	// last. It is seeded with the blank initial state.
	history [][]Shape

	emit func(Message)

	width  int
	height int

	// erasing gesture state
	erased    map[string]bool
	erasedAny bool
}

// NewBoard creates a canvas model scoped to (room, channel). emit is
// called with outbound messages already tagged with that scope; a nil
// emit discards them.
func NewBoard(room, channel string, emit func(Message)) *Board {
	if emit == nil {
		emit = func(Message) {}
	}

	b := &Board{
		scope: scope{room: room, channel: channel},
		emit:  emit,
	}
	b.history = append(b.history, nil) // blank initial state

	return b
}

// Shapes returns a copy of the current arena, in draw order.
func (b *Board) Shapes() []Shape {
	b.mu.Lock()
	defer b.mu.Unlock()

	return cloneShapes(b.shapes)
}

// HistoryLen reports the current undo depth.
func (b *Board) HistoryLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.history)
}

// AddStroke applies a locally authored shape: it is added to the arena,
// committed to the undo history, and emitted both as a discrete
// draw-operation and as a full canvas-snapshot. Emitting both is a
// deliberate redundancy: operations are cheap for the common case,
// snapshots repair any peer whose operation stream is out of sync.
func (b *Board) AddStroke(s Shape) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	op, err := json.Marshal(&s)
	if err != nil {
		return fmt.Errorf("serializing shape: %w", err)
	}

	b.apply(OriginLocal, func() {
		b.shapes = append(b.shapes, s)
	})

	b.emit(Message{
		Type:    msgDraw,
		RoomID:  b.scope.room,
		Channel: b.scope.channel,
		Payload: op,
	})
	b.emitSnapshotLocked()

	return nil
}

// apply is the single mutation handler: every change to the arena comes
// through here tagged with its origin, and only local origins commit an
// undo entry.
func (b *Board) apply(origin Origin, fn func()) {
	fn()

	if origin == OriginLocal {
		b.pushHistoryLocked()
	}
}

// ApplyMessage applies a remote draw-operation, canvas-snapshot or
// clear-canvas to the local arena. Messages outside the board's active
// scope are dropped silently, by design.
func (b *Board) ApplyMessage(msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.scope.accepts(msg.RoomID, msg.Channel) {
		return nil
	}

	switch msg.Type {
	case msgDraw:
		var s Shape
		if err := json.Unmarshal(msg.Payload, &s); err != nil {
			return fmt.Errorf("materializing draw operation: %w", err)
		}
		b.apply(OriginRemote, func() {
			b.shapes = append(b.shapes, s)
		})

	case msgSnapshot:
		var shapes []Shape
		if err := json.Unmarshal(msg.Payload, &shapes); err != nil {
			return fmt.Errorf("materializing snapshot: %w", err)
		}
		// Full reconciliation, not a merge.
		b.apply(OriginRemote, func() {
			b.shapes = shapes
		})

	case msgClear:
		b.apply(OriginRemote, func() {
			b.shapes = nil
		})
	}

	return nil
}

// Undo pops the snapshot representing the current state, then applies
// the remaining most-recent snapshot; when the history empties, the
// canvas resets to blank. The resulting state is always re-broadcast as
// a fresh snapshot, forcing every peer to converge on it.
func (b *Board) Undo() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.history) == 0 {
		return
	}

	b.history = b.history[:len(b.history)-1]

	if n := len(b.history); n > 0 {
		b.shapes = cloneShapes(b.history[n-1])
	} else {
		b.shapes = nil
	}

	b.emitSnapshotLocked()
}

// Clear wipes the canvas back to its initial empty configuration and
// broadcasts a clear event; receivers wipe identically.
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.apply(OriginLocal, func() {
		b.shapes = nil
	})

	b.emit(Message{
		Type:    msgClear,
		RoomID:  b.scope.room,
		Channel: b.scope.channel,
	})
}

// BeginErase starts an eraser gesture.
func (b *Board) BeginErase() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.erased = make(map[string]bool)
	b.erasedAny = false
}

// EraseAt tests every shape against the pointer position and removes
// matches from the arena. The per-gesture removed set prevents a shape
// from being counted twice within one gesture.
func (b *Board) EraseAt(p Point, brushWidth float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.erased == nil {
		return
	}

	radius := brushWidth/2 + eraseMargin

	dst := b.shapes[:0]
	for _, s := range b.shapes {
		if !b.erased[s.ID] && s.hitTest(p, radius) {
			b.erased[s.ID] = true
			b.erasedAny = true
			continue
		}
		dst = append(dst, s)
	}
	b.shapes = dst
}

// EndErase finishes the gesture. If anything was removed, the removal
// is committed as one undo entry and broadcast as a snapshot.
func (b *Board) EndErase() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.erasedAny {
		b.pushHistoryLocked()
		b.emitSnapshotLocked()
	}

	b.erased = nil
	b.erasedAny = false
}

// Resize adopts the container's measured dimensions. A container that
// reports zero size has not been laid out yet; the measurement is
// retried after a short delay instead of failing.
func (b *Board) Resize(measure func() (int, int)) {
	w, h := measure()
	if w == 0 || h == 0 {
		time.AfterFunc(resizeRetryDelay, func() {
			b.Resize(measure)
		})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.width = w
	b.height = h
}

// Size returns the current drawable surface dimensions.
func (b *Board) Size() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.width, b.height
}

// Snapshot serializes the full current canvas state.
func (b *Board) Snapshot() (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	shapes := b.shapes
	if shapes == nil {
		shapes = []Shape{}
	}
	return json.Marshal(shapes)
}

func (b *Board) pushHistoryLocked() {
	b.history = append(b.history, cloneShapes(b.shapes))
	if len(b.history) > historyLimit {
		b.history = b.history[1:]
	}
}

func (b *Board) emitSnapshotLocked() {
	shapes := b.shapes
	if shapes == nil {
		shapes = []Shape{}
	}

	payload, err := json.Marshal(shapes)
	if err != nil {
		return
	}

	b.emit(Message{
		Type:    msgSnapshot,
		RoomID:  b.scope.room,
		Channel: b.scope.channel,
		Payload: payload,
	})
}

func cloneShapes(shapes []Shape) []Shape {
	if shapes == nil {
		return nil
	}
	out := make([]Shape, len(shapes))
	copy(out, shapes)
	return out
}
