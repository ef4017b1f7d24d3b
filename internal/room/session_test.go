package room

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sketchsync/sketchsync/internal/board"
	"github.com/sketchsync/sketchsync/internal/models"
	"github.com/sketchsync/sketchsync/internal/protocol"
)

// fakeConn records every frame the session fans out to it.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	full   bool // simulate a stalled outbound queue
}

func (c *fakeConn) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	c.frames = append(c.frames, data)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) events(t *testing.T) []protocol.Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Event, 0, len(c.frames))
	for _, f := range c.frames {
		var ev protocol.Event
		if err := json.Unmarshal(f, &ev); err != nil {
			t.Fatalf("undecodable frame %s: %v", f, err)
		}
		out = append(out, ev)
	}
	return out
}

func (c *fakeConn) eventsOfType(t *testing.T, typ string) []protocol.Event {
	t.Helper()
	var out []protocol.Event
	for _, ev := range c.events(t) {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s := NewSession(context.Background(), "room-1", nil, zerolog.Nop())
	t.Cleanup(s.Stop)
	return s
}

func join(t *testing.T, s *Session, conn Conn, id, name string) models.User {
	t.Helper()
	u, err := s.Join(context.Background(), conn, id, name)
	if err != nil {
		t.Fatalf("join %s: %v", id, err)
	}
	return u
}

func submit(t *testing.T, s *Session, userID string, ev protocol.Event) {
	t.Helper()
	if err := s.Submit(context.Background(), userID, ev); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// Submit hands the event to the session goroutine; a follow-up
	// query can only be answered once the event is fully applied.
	s.MemberCount(context.Background())
}

func shape(id string) models.Shape {
	return models.Shape{ID: id, Kind: models.KindRectangle, X2: 10, Y2: 10, Color: "#ff0000"}
}

func TestJoinSendsInitAndAnnouncesToOthers(t *testing.T) {
	s := newTestSession(t)

	a := &fakeConn{}
	userA := join(t, s, a, "ua", "Alice")
	if userA.Color == "" {
		t.Fatal("join did not assign a color")
	}

	// First frame to A must be the init snapshot.
	evs := a.events(t)
	if len(evs) == 0 || evs[0].Type != protocol.TypeInit {
		t.Fatalf("expected init first, got %v", evs)
	}
	if len(evs[0].Users) != 1 || evs[0].Users[0].ID != "ua" {
		t.Fatalf("unexpected init roster: %v", evs[0].Users)
	}

	b := &fakeConn{}
	userB := join(t, s, b, "ub", "Bob")
	if userB.Color == userA.Color {
		t.Fatal("second member got the first member's color")
	}

	// A hears about B; B does not hear about its own join.
	if got := a.eventsOfType(t, protocol.TypeUserJoin); len(got) != 1 || got[0].User.ID != "ub" {
		t.Fatalf("A's user_join events: %v", got)
	}
	if got := b.eventsOfType(t, protocol.TypeUserJoin); len(got) != 0 {
		t.Fatalf("B received its own join: %v", got)
	}
	// B's init carries the full roster.
	if init := b.events(t)[0]; len(init.Users) != 2 {
		t.Fatalf("B's init roster: %v", init.Users)
	}
}

func TestShapeAddEchoesToSenderAndOthers(t *testing.T) {
	s := newTestSession(t)
	a, b := &fakeConn{}, &fakeConn{}
	join(t, s, a, "ua", "Alice")
	join(t, s, b, "ub", "Bob")

	submit(t, s, "ua", protocol.ShapeAdd(shape("s1")))

	for name, conn := range map[string]*fakeConn{"sender": a, "peer": b} {
		got := conn.eventsOfType(t, protocol.TypeShapeAdd)
		if len(got) != 1 || got[0].Shape.ID != "s1" {
			t.Fatalf("%s shape_add events: %v", name, got)
		}
		if got[0].Shape.UserID != "ua" {
			t.Fatalf("%s: authorship not stamped: %v", name, got[0].Shape)
		}
	}
}

func TestDuplicateShapeAddIsDroppedSilently(t *testing.T) {
	s := newTestSession(t)
	a := &fakeConn{}
	join(t, s, a, "ua", "Alice")

	submit(t, s, "ua", protocol.ShapeAdd(shape("s1")))
	submit(t, s, "ua", protocol.ShapeAdd(shape("s1")))

	if got := a.eventsOfType(t, protocol.TypeShapeAdd); len(got) != 1 {
		t.Fatalf("duplicate append was broadcast: %v", got)
	}
	if snap := s.BoardSnapshot(context.Background()); len(snap) != 1 {
		t.Fatalf("board has %d shapes, want 1", len(snap))
	}
}

func TestCursorUpdateExcludesSender(t *testing.T) {
	s := newTestSession(t)
	a, b := &fakeConn{}, &fakeConn{}
	userA := join(t, s, a, "ua", "Alice")
	join(t, s, b, "ub", "Bob")

	submit(t, s, "ua", protocol.CursorUpdate(models.Cursor{X: 3, Y: 4}))

	if got := a.eventsOfType(t, protocol.TypeCursorUpdate); len(got) != 0 {
		t.Fatalf("sender received its own cursor: %v", got)
	}
	got := b.eventsOfType(t, protocol.TypeCursorUpdate)
	if len(got) != 1 {
		t.Fatalf("peer cursor events: %v", got)
	}
	c := got[0].Cursor
	if c.X != 3 || c.Y != 4 || c.UserID != "ua" || c.UserName != "Alice" || c.Color != userA.Color {
		t.Fatalf("cursor not stamped with sender identity: %+v", c)
	}
}

func TestSessionMatchesIsolatedStore(t *testing.T) {
	s := newTestSession(t)
	a := &fakeConn{}
	join(t, s, a, "ua", "Alice")

	reference := board.NewStore()
	apply := func(ev protocol.Event) {
		submit(t, s, "ua", ev)
		switch ev.Type {
		case protocol.TypeShapeAdd:
			sh := *ev.Shape
			sh.UserID = "ua"
			_ = reference.Append(sh)
		case protocol.TypeShapesUpdate:
			_ = reference.Replace(ev.Shapes)
		}
	}

	apply(protocol.ShapeAdd(shape("s1")))
	apply(protocol.ShapeAdd(shape("s2")))
	apply(protocol.ShapesUpdate([]models.Shape{shape("s2")}))
	apply(protocol.ShapeAdd(shape("s3")))
	apply(protocol.ShapeAdd(shape("s2"))) // duplicate, rejected both places

	got := s.BoardSnapshot(context.Background())
	want := reference.Snapshot()
	if len(got) != len(want) {
		t.Fatalf("session %d shapes, reference %d", len(got), len(want))
	}
	for i := range got {
		if got[i].ID != want[i].ID {
			t.Fatalf("order mismatch at %d: %s vs %s", i, got[i].ID, want[i].ID)
		}
	}
}

func TestConcurrentShapesUpdateLastWriterWins(t *testing.T) {
	s := newTestSession(t)
	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
	join(t, s, a, "ua", "Alice")
	join(t, s, b, "ub", "Bob")
	join(t, s, c, "uc", "Carol")

	listA := []models.Shape{shape("a1"), shape("a2")}
	listB := []models.Shape{shape("b1")}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = s.Submit(context.Background(), "ua", protocol.ShapesUpdate(listA)) }()
	go func() { defer wg.Done(); _ = s.Submit(context.Background(), "ub", protocol.ShapesUpdate(listB)) }()
	wg.Wait()
	s.MemberCount(context.Background()) // barrier

	final := s.BoardSnapshot(context.Background())

	// Whichever update the session processed last is the state every
	// member converged to.
	for name, conn := range map[string]*fakeConn{"A": a, "B": b, "C": c} {
		ups := conn.eventsOfType(t, protocol.TypeShapesUpdate)
		if len(ups) != 2 {
			t.Fatalf("%s saw %d shapes_update events, want 2", name, len(ups))
		}
		last := ups[len(ups)-1].Shapes
		if len(last) != len(final) {
			t.Fatalf("%s converged to %d shapes, authoritative %d", name, len(last), len(final))
		}
		for i := range last {
			if last[i].ID != final[i].ID {
				t.Fatalf("%s diverged at %d: %s vs %s", name, i, last[i].ID, final[i].ID)
			}
		}
	}
}

func TestLeaveBroadcastsUserLeave(t *testing.T) {
	s := newTestSession(t)
	a, b := &fakeConn{}, &fakeConn{}
	join(t, s, a, "ua", "Alice")
	join(t, s, b, "ub", "Bob")

	submit(t, s, "ua", protocol.CursorUpdate(models.Cursor{X: 1, Y: 1}))

	s.Leave("ua")
	s.Leave("ua") // idempotent

	got := b.eventsOfType(t, protocol.TypeUserLeave)
	if len(got) != 1 {
		t.Fatalf("user_leave events: %v", got)
	}
	if got[0].UserID != "ua" || got[0].UserName != "Alice" {
		t.Fatalf("unexpected user_leave payload: %+v", got[0])
	}
	if s.MemberCount(context.Background()) != 1 {
		t.Fatal("roster not reduced after leave")
	}
}

func TestSlowMemberIsEvictedWithoutStallingOthers(t *testing.T) {
	s := newTestSession(t)
	a := &fakeConn{}
	slow := &fakeConn{}
	join(t, s, a, "ua", "Alice")
	join(t, s, slow, "ub", "Bob")
	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	submit(t, s, "ua", protocol.ShapeAdd(shape("s1")))

	deadline := time.Now().Add(time.Second)
	for s.MemberCount(context.Background()) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("stalled member was not evicted")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !slow.isClosed() {
		t.Fatal("evicted member's connection not closed")
	}
	// The healthy member still got the shape.
	if got := a.eventsOfType(t, protocol.TypeShapeAdd); len(got) != 1 {
		t.Fatalf("healthy member events: %v", got)
	}
}

func TestRejoinReplacesStaleConnection(t *testing.T) {
	s := newTestSession(t)
	stale := &fakeConn{}
	join(t, s, stale, "ua", "Alice")

	fresh := &fakeConn{}
	join(t, s, fresh, "ua", "Alice")

	if !stale.isClosed() {
		t.Fatal("stale connection survived rejoin")
	}
	if s.MemberCount(context.Background()) != 1 {
		t.Fatal("rejoin duplicated the member")
	}
	// The fresh connection got a fresh init.
	if evs := fresh.events(t); len(evs) == 0 || evs[0].Type != protocol.TypeInit {
		t.Fatalf("fresh connection frames: %v", evs)
	}
}

type memArchive struct {
	mu     sync.Mutex
	boards map[string][]models.Shape
}

func (m *memArchive) SaveBoard(_ context.Context, roomID string, shapes []models.Shape) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.boards == nil {
		m.boards = make(map[string][]models.Shape)
	}
	m.boards[roomID] = shapes
	return nil
}

func (m *memArchive) LoadBoard(_ context.Context, roomID string) ([]models.Shape, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.boards[roomID], nil
}

func TestBoardParkedWhenRoomEmptiesAndRestoredOnReopen(t *testing.T) {
	archive := &memArchive{}
	s := NewSession(context.Background(), "room-1", archive, zerolog.Nop())

	a := &fakeConn{}
	join(t, s, a, "ua", "Alice")
	submit(t, s, "ua", protocol.ShapeAdd(shape("s1")))
	s.Leave("ua")

	deadline := time.Now().Add(time.Second)
	for {
		archive.mu.Lock()
		parked := len(archive.boards["room-1"])
		archive.mu.Unlock()
		if parked == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("board never parked after room emptied")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	reopened := NewSession(context.Background(), "room-1", archive, zerolog.Nop())
	defer reopened.Stop()
	if snap := reopened.BoardSnapshot(context.Background()); len(snap) != 1 || snap[0].ID != "s1" {
		t.Fatalf("restored board: %v", snap)
	}
}

func TestStopParksBoardWithLiveMembers(t *testing.T) {
	archive := &memArchive{}
	s := NewSession(context.Background(), "room-1", archive, zerolog.Nop())

	a := &fakeConn{}
	join(t, s, a, "ua", "Alice")
	submit(t, s, "ua", protocol.ShapeAdd(shape("s1")))

	// Nobody left the room; shutdown itself must park the board, and
	// Stop must not return before the save completed.
	s.Stop()

	archive.mu.Lock()
	parked := archive.boards["room-1"]
	archive.mu.Unlock()
	if len(parked) != 1 || parked[0].ID != "s1" {
		t.Fatalf("board not parked on stop: %v", parked)
	}
	if !a.isClosed() {
		t.Fatal("member connection not closed on stop")
	}
}

func TestEventWithMissingPayloadIsIgnored(t *testing.T) {
	s := newTestSession(t)
	a := &fakeConn{}
	join(t, s, a, "ua", "Alice")

	// Submit is exported, so events that never went through the wire
	// decoder can arrive with nil payloads.
	submit(t, s, "ua", protocol.Event{Type: protocol.TypeShapeAdd})
	submit(t, s, "ua", protocol.Event{Type: protocol.TypeCursorUpdate})

	// The session survived and still applies well-formed events.
	submit(t, s, "ua", protocol.ShapeAdd(shape("s1")))
	if snap := s.BoardSnapshot(context.Background()); len(snap) != 1 {
		t.Fatalf("board after malformed events: %v", snap)
	}
}

func TestRegistryReturnsSameSessionPerRoom(t *testing.T) {
	r := NewRegistry(nil, zerolog.Nop())
	defer r.Shutdown()

	s1 := r.Get(context.Background(), "room-1")
	s2 := r.Get(context.Background(), "room-1")
	other := r.Get(context.Background(), "room-2")

	if s1 != s2 {
		t.Fatal("same room id produced two sessions")
	}
	if s1 == other {
		t.Fatal("different rooms share a session")
	}
}
