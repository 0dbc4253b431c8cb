package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitRecorder struct {
	messages []Message
}

func (r *emitRecorder) emit(msg Message) {
	r.messages = append(r.messages, msg)
}

func (r *emitRecorder) ofType(msgType string) []Message {
	var out []Message
	for _, m := range r.messages {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func shapeAt(id string, kind string, points ...Point) Shape {
	return Shape{ID: id, Kind: kind, Points: points, Color: "#000", Width: 4}
}

func TestBoardAddStrokeEmitsOperationAndSnapshot(t *testing.T) {
	t.Parallel()

	rec := &emitRecorder{}
	b := NewBoard("r1", "main", rec.emit)

	s := shapeAt("s1", ShapePath, Point{X: 1, Y: 1}, Point{X: 5, Y: 5})
	require.NoError(t, b.AddStroke(s))

	assert.Equal(t, []Shape{s}, b.Shapes())
	assert.Equal(t, 2, b.HistoryLen())

	draws := rec.ofType(msgDraw)
	require.Len(t, draws, 1)
	assert.Equal(t, "r1", draws[0].RoomID)
	assert.Equal(t, "main", draws[0].Channel)

	var wired Shape
	require.NoError(t, json.Unmarshal(draws[0].Payload, &wired))
	assert.Equal(t, s, wired)

	require.Len(t, rec.ofType(msgSnapshot), 1)
}

func TestBoardUndoRestoresPreviousSnapshot(t *testing.T) {
	t.Parallel()

	rec := &emitRecorder{}
	b := NewBoard("r1", "main", rec.emit)

	s1 := shapeAt("s1", ShapePath, Point{X: 1, Y: 1})
	s2 := shapeAt("s2", ShapePath, Point{X: 2, Y: 2})
	require.NoError(t, b.AddStroke(s1))
	require.NoError(t, b.AddStroke(s2))

	rec.messages = nil
	b.Undo()

	assert.Equal(t, []Shape{s1}, b.Shapes())

	// The post-undo state is always re-broadcast.
	snapshots := rec.ofType(msgSnapshot)
	require.Len(t, snapshots, 1)
	var wired []Shape
	require.NoError(t, json.Unmarshal(snapshots[0].Payload, &wired))
	assert.Equal(t, []Shape{s1}, wired)
}

func TestBoardUndoPastFirstMutationBlanksCanvas(t *testing.T) {
	t.Parallel()

	rec := &emitRecorder{}
	b := NewBoard("r1", "main", rec.emit)

	require.NoError(t, b.AddStroke(shapeAt("s1", ShapePath, Point{X: 1, Y: 1})))

	rec.messages = nil
	b.Undo()

	assert.Empty(t, b.Shapes())
	snapshots := rec.ofType(msgSnapshot)
	require.Len(t, snapshots, 1)
	assert.JSONEq(t, "[]", string(snapshots[0].Payload))
}

func TestBoardUndoOnExhaustedHistoryIsSilent(t *testing.T) {
	t.Parallel()

	rec := &emitRecorder{}
	b := NewBoard("r1", "main", rec.emit)

	b.Undo() // pops the blank seed, still broadcasts blank
	require.Len(t, rec.ofType(msgSnapshot), 1)

	rec.messages = nil
	b.Undo()
	b.Undo()

	assert.Empty(t, rec.messages)
	assert.Empty(t, b.Shapes())
}

func TestBoardHistoryIsBounded(t *testing.T) {
	t.Parallel()

	b := NewBoard("r1", "main", nil)

	for i := 0; i < 80; i++ {
		require.NoError(t, b.AddStroke(shapeAt("s", ShapePath, Point{X: float64(i)})))
	}

	assert.Equal(t, historyLimit, b.HistoryLen())

	// Undoing to the bottom lands on the oldest retained snapshot: the
	// state after stroke 31, not the blank seed, which was evicted.
	for i := 0; i < historyLimit-1; i++ {
		b.Undo()
	}
	assert.Len(t, b.Shapes(), 80-historyLimit+1)

	// One more pops the floor and blanks the canvas.
	b.Undo()
	assert.Empty(t, b.Shapes())
}

func TestBoardRemoteDrawSkipsUndoAndEmit(t *testing.T) {
	t.Parallel()

	rec := &emitRecorder{}
	b := NewBoard("r1", "main", rec.emit)

	s := shapeAt("s1", ShapePath, Point{X: 1, Y: 1})
	payload, err := json.Marshal(&s)
	require.NoError(t, err)

	require.NoError(t, b.ApplyMessage(Message{
		Type:    msgDraw,
		RoomID:  "r1",
		Channel: "main",
		Payload: payload,
	}))

	assert.Equal(t, []Shape{s}, b.Shapes())
	assert.Equal(t, 1, b.HistoryLen())
	assert.Empty(t, rec.messages)
}

func TestBoardRemoteSnapshotReplacesWholesale(t *testing.T) {
	t.Parallel()

	b := NewBoard("r1", "main", nil)
	require.NoError(t, b.AddStroke(shapeAt("mine", ShapePath, Point{X: 9, Y: 9})))

	theirs := []Shape{
		shapeAt("a", ShapeRect, Point{X: 0, Y: 0}, Point{X: 10, Y: 10}),
		shapeAt("b", ShapePath, Point{X: 5, Y: 5}),
	}
	payload, err := json.Marshal(theirs)
	require.NoError(t, err)

	require.NoError(t, b.ApplyMessage(Message{
		Type:    msgSnapshot,
		RoomID:  "r1",
		Payload: payload,
	}))

	assert.Equal(t, theirs, b.Shapes())
}

func TestBoardRemoteClearWipes(t *testing.T) {
	t.Parallel()

	b := NewBoard("r1", "main", nil)
	require.NoError(t, b.AddStroke(shapeAt("s1", ShapePath, Point{X: 1, Y: 1})))

	require.NoError(t, b.ApplyMessage(Message{Type: msgClear, RoomID: "r1"}))

	assert.Empty(t, b.Shapes())
}

func TestBoardDropsMessagesOutsideScope(t *testing.T) {
	t.Parallel()

	b := NewBoard("r1", "main", nil)

	s := shapeAt("s1", ShapePath, Point{X: 1, Y: 1})
	payload, err := json.Marshal(&s)
	require.NoError(t, err)

	require.NoError(t, b.ApplyMessage(Message{Type: msgDraw, RoomID: "r2", Payload: payload}))
	assert.Empty(t, b.Shapes())

	require.NoError(t, b.ApplyMessage(Message{Type: msgDraw, RoomID: "r1", Channel: "side", Payload: payload}))
	assert.Empty(t, b.Shapes())

	// No room tag means a global broadcast; it passes the filter.
	require.NoError(t, b.ApplyMessage(Message{Type: msgDraw, Payload: payload}))
	assert.Len(t, b.Shapes(), 1)
}

func TestBoardClearEmitsClearEvent(t *testing.T) {
	t.Parallel()

	rec := &emitRecorder{}
	b := NewBoard("r1", "main", rec.emit)

	require.NoError(t, b.AddStroke(shapeAt("s1", ShapePath, Point{X: 1, Y: 1})))

	rec.messages = nil
	b.Clear()

	assert.Empty(t, b.Shapes())
	clears := rec.ofType(msgClear)
	require.Len(t, clears, 1)
	assert.Equal(t, "r1", clears[0].RoomID)

	// Clears are undoable like any other local mutation.
	b.Undo()
	assert.Len(t, b.Shapes(), 1)
}

func TestShapeHitTestRect(t *testing.T) {
	t.Parallel()

	r := shapeAt("r", ShapeRect, Point{X: 10, Y: 10}, Point{X: 20, Y: 20})

	assert.True(t, r.hitTest(Point{X: 15, Y: 15}, 5))
	assert.True(t, r.hitTest(Point{X: 10, Y: 10}, 5))
	// A precise miss still hits through the inflated box when the
	// pointer is within brush radius of the edge.
	assert.True(t, r.hitTest(Point{X: 22, Y: 15}, 5))
	assert.False(t, r.hitTest(Point{X: 40, Y: 15}, 5))
}

func TestShapeHitTestEllipse(t *testing.T) {
	t.Parallel()

	e := shapeAt("e", ShapeEllipse, Point{X: 0, Y: 0}, Point{X: 20, Y: 10})

	assert.True(t, e.hitTest(Point{X: 10, Y: 5}, 0))
	// The bounding-box corner is outside the ellipse but inside the
	// inflated box, so it still counts as a hit.
	assert.True(t, e.hitTest(Point{X: 0.5, Y: 0.5}, 3))
	assert.False(t, e.hitTest(Point{X: 100, Y: 100}, 3))
}

func TestShapeHitTestInflatedBoxForPath(t *testing.T) {
	t.Parallel()

	p := shapeAt("p", ShapePath, Point{X: 10, Y: 10}, Point{X: 20, Y: 20})

	assert.True(t, p.hitTest(Point{X: 15, Y: 15}, 0))
	assert.True(t, p.hitTest(Point{X: 8, Y: 10}, 3))
	assert.False(t, p.hitTest(Point{X: 6, Y: 10}, 3))
}

func TestBoardEraseGesture(t *testing.T) {
	t.Parallel()

	rec := &emitRecorder{}
	b := NewBoard("r1", "main", rec.emit)

	near := shapeAt("near", ShapePath, Point{X: 10, Y: 10})
	far := shapeAt("far", ShapePath, Point{X: 500, Y: 500})
	require.NoError(t, b.AddStroke(near))
	require.NoError(t, b.AddStroke(far))
	depth := b.HistoryLen()

	rec.messages = nil
	b.BeginErase()
	b.EraseAt(Point{X: 11, Y: 11}, 4)
	b.EraseAt(Point{X: 11, Y: 11}, 4)
	b.EndErase()

	assert.Equal(t, []Shape{far}, b.Shapes())
	// One undo entry for the whole gesture, committed at its end.
	assert.Equal(t, depth+1, b.HistoryLen())
	assert.Len(t, rec.ofType(msgSnapshot), 1)

	b.Undo()
	assert.Equal(t, []Shape{near, far}, b.Shapes())
}

func TestBoardEraseNearRectEdgeRemovesIt(t *testing.T) {
	t.Parallel()

	b := NewBoard("r1", "main", nil)

	rect := shapeAt("r", ShapeRect, Point{X: 0, Y: 0}, Point{X: 10, Y: 10})
	require.NoError(t, b.AddStroke(rect))

	// The pointer is outside the rect but within brush radius (4/2+3=5)
	// of its edge; the inflated box still removes it.
	b.BeginErase()
	b.EraseAt(Point{X: 12, Y: 5}, 4)
	b.EndErase()

	assert.Empty(t, b.Shapes())
}

func TestBoardEraseGestureWithoutHitsCommitsNothing(t *testing.T) {
	t.Parallel()

	rec := &emitRecorder{}
	b := NewBoard("r1", "main", rec.emit)

	require.NoError(t, b.AddStroke(shapeAt("s1", ShapePath, Point{X: 10, Y: 10})))
	depth := b.HistoryLen()

	rec.messages = nil
	b.BeginErase()
	b.EraseAt(Point{X: 500, Y: 500}, 4)
	b.EndErase()

	assert.Equal(t, depth, b.HistoryLen())
	assert.Empty(t, rec.messages)
}

func TestBoardEraseWithoutGestureIsIgnored(t *testing.T) {
	t.Parallel()

	b := NewBoard("r1", "main", nil)
	require.NoError(t, b.AddStroke(shapeAt("s1", ShapePath, Point{X: 10, Y: 10})))

	b.EraseAt(Point{X: 10, Y: 10}, 4)

	assert.Len(t, b.Shapes(), 1)
}

func TestBoardResizeRetriesZeroMeasurement(t *testing.T) {
	t.Parallel()

	b := NewBoard("r1", "main", nil)

	calls := 0
	b.Resize(func() (int, int) {
		calls++
		if calls == 1 {
			return 0, 0
		}
		return 800, 600
	})

	w, h := b.Size()
	assert.Zero(t, w)
	assert.Zero(t, h)

	assert.Eventually(t, func() bool {
		w, h := b.Size()
		return w == 800 && h == 600
	}, time.Second, 10*time.Millisecond)
}

func TestBoardSnapshotSerializesEmptyCanvasAsList(t *testing.T) {
	t.Parallel()

	b := NewBoard("r1", "main", nil)

	payload, err := b.Snapshot()
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(payload))
}
