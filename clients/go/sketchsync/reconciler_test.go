package sketchsync

import (
	"testing"

	"github.com/sketchsync/sketchsync/internal/models"
	"github.com/sketchsync/sketchsync/internal/protocol"
)

func shape(id string) models.Shape {
	return models.Shape{ID: id, Kind: models.KindRectangle, X2: 10, Y2: 10, Color: "#ff0000", UserID: "me"}
}

func ids(shapes []models.Shape) []string {
	out := make([]string, len(shapes))
	for i, s := range shapes {
		out[i] = s.ID
	}
	return out
}

func assertIDs(t *testing.T, shapes []models.Shape, want ...string) {
	t.Helper()
	got := ids(shapes)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestUndoRedoRoundTrip(t *testing.T) {
	r := NewReconciler()
	r.ApplyInit([]models.Shape{shape("s0")}, nil)

	r.LocalShapeAdd(shape("s1"))
	assertIDs(t, r.Shapes(), "s0", "s1")

	ev, ok := r.Undo()
	if !ok {
		t.Fatal("undo unavailable after a local add")
	}
	assertIDs(t, r.Shapes(), "s0")
	assertIDs(t, ev.Shapes, "s0")

	ev, ok = r.Redo()
	if !ok {
		t.Fatal("redo unavailable after undo")
	}
	assertIDs(t, r.Shapes(), "s0", "s1")
	assertIDs(t, ev.Shapes, "s0", "s1")
}

func TestUndoRedoOnEmptyStacks(t *testing.T) {
	r := NewReconciler()
	if _, ok := r.Undo(); ok {
		t.Fatal("undo on empty history")
	}
	if _, ok := r.Redo(); ok {
		t.Fatal("redo on empty history")
	}
}

func TestLocalAddClearsRedo(t *testing.T) {
	r := NewReconciler()
	r.LocalShapeAdd(shape("s1"))
	r.Undo()
	if !r.CanRedo() {
		t.Fatal("expected redo after undo")
	}

	r.LocalShapeAdd(shape("s2"))
	if r.CanRedo() {
		t.Fatal("redo stack survived a new local edit")
	}
}

func TestEchoedShapeAddIsNoOp(t *testing.T) {
	r := NewReconciler()
	ev := r.LocalShapeAdd(shape("s1"))

	// The server echoes the confirmed event back to the sender.
	r.ApplyServer(ev)
	assertIDs(t, r.Shapes(), "s1")

	// A peer's genuinely new shape appends.
	r.ApplyServer(protocol.ShapeAdd(shape("s2")))
	assertIDs(t, r.Shapes(), "s1", "s2")
}

func TestOwnShapesUpdateEchoKeepsHistory(t *testing.T) {
	r := NewReconciler()
	r.LocalShapeAdd(shape("s1"))
	r.LocalShapeAdd(shape("s2"))

	ev, _ := r.Undo()
	if !r.CanRedo() {
		t.Fatal("expected redo after undo")
	}

	// Our own echo must not invalidate the redo stack.
	r.ApplyServer(ev)
	if !r.CanRedo() {
		t.Fatal("own echo cleared the redo stack")
	}

	if _, ok := r.Redo(); !ok {
		t.Fatal("redo failed after echo")
	}
	assertIDs(t, r.Shapes(), "s1", "s2")
}

func TestRemoteShapesUpdateReplacesAndInvalidatesRedo(t *testing.T) {
	r := NewReconciler()
	r.LocalShapeAdd(shape("s1"))
	r.LocalShapeAdd(shape("s2"))
	r.Undo()
	if !r.CanRedo() {
		t.Fatal("expected redo after undo")
	}

	// A peer rewrites the board underneath us.
	r.ApplyServer(protocol.ShapesUpdate([]models.Shape{shape("p1")}))

	assertIDs(t, r.Shapes(), "p1")
	if r.CanRedo() {
		t.Fatal("redo into a stale base state must be invalidated")
	}
}

func TestEchoAfterNewerLocalEditDoesNotClobber(t *testing.T) {
	r := NewReconciler()
	r.LocalShapeAdd(shape("s1"))
	ev, _ := r.Undo() // board now empty, update in flight

	// Before the echo lands we draw again.
	r.LocalShapeAdd(shape("s2"))

	r.ApplyServer(ev)
	assertIDs(t, r.Shapes(), "s2")
}

func TestInitDiscardsHistoryAndInstallsSnapshot(t *testing.T) {
	r := NewReconciler()
	r.SetSelf(models.User{ID: "me", Name: "Me"})
	r.LocalShapeAdd(shape("s1"))
	r.Undo()

	r.ApplyInit(
		[]models.Shape{shape("server1")},
		[]models.User{{ID: "me", Name: "Me", Color: "#3cb44b"}, {ID: "peer", Name: "Peer", Color: "#e6194b"}},
	)

	assertIDs(t, r.Shapes(), "server1")
	if r.CanUndo() || r.CanRedo() {
		t.Fatal("history survived resync")
	}
	if r.Self().Color != "#3cb44b" {
		t.Fatalf("server-assigned color not adopted: %+v", r.Self())
	}
	if len(r.Users()) != 2 {
		t.Fatalf("roster: %v", r.Users())
	}
}

func TestPresenceEventsNeverTouchHistory(t *testing.T) {
	r := NewReconciler()
	r.LocalShapeAdd(shape("s1"))
	r.Undo()
	if !r.CanRedo() {
		t.Fatal("expected redo")
	}

	r.ApplyServer(protocol.CursorUpdate(models.Cursor{UserID: "peer", X: 1, Y: 2}))
	r.ApplyServer(protocol.UserJoin(models.User{ID: "peer", Name: "Peer"}))
	r.ApplyServer(protocol.UserLeave(models.User{ID: "peer", Name: "Peer"}))

	if !r.CanRedo() {
		t.Fatal("presence traffic touched the redo stack")
	}
	if _, ok := r.Cursors()["peer"]; ok {
		t.Fatal("cursor survived user_leave")
	}
}

func TestUserLeaveRemovesRosterEntryAndCursor(t *testing.T) {
	r := NewReconciler()
	r.ApplyServer(protocol.UserJoin(models.User{ID: "peer", Name: "Peer"}))
	r.ApplyServer(protocol.CursorUpdate(models.Cursor{UserID: "peer", X: 1}))
	if len(r.Users()) != 1 || len(r.Cursors()) != 1 {
		t.Fatalf("setup: %v %v", r.Users(), r.Cursors())
	}

	r.ApplyServer(protocol.UserLeave(models.User{ID: "peer", Name: "Peer"}))
	if len(r.Users()) != 0 || len(r.Cursors()) != 0 {
		t.Fatalf("leave not applied: %v %v", r.Users(), r.Cursors())
	}
}

func TestCursorUpdateLastWriteWinsPerUser(t *testing.T) {
	r := NewReconciler()
	r.ApplyServer(protocol.CursorUpdate(models.Cursor{UserID: "a", X: 1, Y: 1}))
	r.ApplyServer(protocol.CursorUpdate(models.Cursor{UserID: "b", X: 2, Y: 2}))
	r.ApplyServer(protocol.CursorUpdate(models.Cursor{UserID: "a", X: 9, Y: 9}))

	cursors := r.Cursors()
	if c := cursors["a"]; c.X != 9 || c.Y != 9 {
		t.Fatalf("cursor a: %+v", c)
	}
	if c := cursors["b"]; c.X != 2 || c.Y != 2 {
		t.Fatalf("cursor b: %+v", c)
	}
}

func TestServerEventWithMissingPayloadIsIgnored(t *testing.T) {
	r := NewReconciler()
	r.LocalShapeAdd(shape("s1"))

	// ApplyServer is exported; events built by hand can carry nil
	// payloads and must not panic the receive path.
	r.ApplyServer(protocol.Event{Type: protocol.TypeShapeAdd})
	r.ApplyServer(protocol.Event{Type: protocol.TypeCursorUpdate})
	r.ApplyServer(protocol.Event{Type: protocol.TypeUserJoin})

	assertIDs(t, r.Shapes(), "s1")
	if len(r.Users()) != 0 || len(r.Cursors()) != 0 {
		t.Fatalf("presence changed: %v %v", r.Users(), r.Cursors())
	}
}

func TestDeepUndoChain(t *testing.T) {
	r := NewReconciler()
	for _, id := range []string{"s1", "s2", "s3"} {
		r.LocalShapeAdd(shape(id))
	}

	r.Undo()
	r.Undo()
	assertIDs(t, r.Shapes(), "s1")

	r.Redo()
	assertIDs(t, r.Shapes(), "s1", "s2")

	r.Redo()
	assertIDs(t, r.Shapes(), "s1", "s2", "s3")
}
