package sketchsync

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sketchsync/sketchsync/internal/auth"
	"github.com/sketchsync/sketchsync/internal/models"
	"github.com/sketchsync/sketchsync/internal/room"
	"github.com/sketchsync/sketchsync/internal/store"
	"github.com/sketchsync/sketchsync/internal/ws"
)

type knownRooms map[uuid.UUID]bool

func (k knownRooms) RoomExists(_ context.Context, id uuid.UUID) (bool, error) {
	return k[id], nil
}

// roomServer is a real websocket server backed by an in-memory room
// registry, for driving the client end to end.
type roomServer struct {
	client   *Client
	registry *room.Registry
	roomID   string
	identity models.Identity
}

func newRoomServer(t *testing.T) *roomServer {
	t.Helper()

	authSvc := auth.NewService(nil, store.NewMemoryTokenStore(), time.Hour, time.Hour)
	registry := room.NewRegistry(nil, zerolog.Nop())
	t.Cleanup(registry.Shutdown)

	roomID := uuid.New()
	h := ws.NewHandler(registry, authSvc, knownRooms{roomID: true}, zerolog.Nop())

	r := chi.NewRouter()
	r.Get("/ws/rooms/{id}", h.ServeRoom)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	token, identity, err := authSvc.Anonymous(context.Background(), "Ada")
	if err != nil {
		t.Fatal(err)
	}

	c := NewClient(srv.URL)
	c.Token = token
	c.Identity = identity

	return &roomServer{client: c, registry: registry, roomID: roomID.String(), identity: identity}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestJoinRoomRejectsBadTokenAndUnknownRoom(t *testing.T) {
	rs := newRoomServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rs.client.JoinRoom(ctx, uuid.NewString()); err == nil {
		t.Fatal("join to unknown room succeeded")
	}

	rs.client.Token = "bogus"
	if _, err := rs.client.JoinRoom(ctx, rs.roomID); err == nil {
		t.Fatal("join with bad token succeeded")
	}
}

func TestJoinRoomSyncsAndAdoptsAssignedColor(t *testing.T) {
	rs := newRoomServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rc, err := rs.client.JoinRoom(ctx, rs.roomID)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	t.Cleanup(func() { rc.Close() })

	if rc.State() != StateSynced {
		t.Fatalf("state after join: %s", rc.State())
	}
	users := rc.Users()
	if len(users) != 1 || users[0].ID != rs.identity.UserID {
		t.Fatalf("roster after join: %+v", users)
	}
	if rc.Reconciler().Self().Color == "" {
		t.Fatal("server-assigned color not adopted from init")
	}
}

func TestReconnectDiscardsHistoryAndResyncs(t *testing.T) {
	rs := newRoomServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rc, err := rs.client.JoinRoom(ctx, rs.roomID)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	t.Cleanup(func() { rc.Close() })

	if _, err := rc.AddShape(models.KindRectangle, 0, 0, 10, 10, "#ff0000"); err != nil {
		t.Fatalf("add shape: %v", err)
	}
	if !rc.Reconciler().CanUndo() {
		t.Fatal("no undo after a local add")
	}

	// Wait for the server to confirm the shape so the resynced board
	// has something to carry back.
	session := rs.registry.Get(context.Background(), rs.roomID)
	waitFor(t, "shape never reached the server", func() bool {
		return len(session.BoardSnapshot(context.Background())) == 1
	})

	// The server drops the member; the client notices via its read loop.
	session.Leave(rs.identity.UserID)
	waitFor(t, "client never noticed the drop", func() bool {
		return rc.State() == StateDisconnected
	})

	if err := rc.Reconnect(ctx); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if rc.State() != StateSynced {
		t.Fatalf("state after reconnect: %s", rc.State())
	}

	// The fresh init replaces the list and discards local history.
	if rc.Reconciler().CanUndo() || rc.Reconciler().CanRedo() {
		t.Fatal("history survived the resync")
	}
	shapes := rc.Shapes()
	if len(shapes) != 1 || shapes[0].UserID != rs.identity.UserID {
		t.Fatalf("resynced shapes: %+v", shapes)
	}

	// Reconnect from a live connection is refused.
	if err := rc.Reconnect(ctx); err == nil {
		t.Fatal("reconnect from synced state succeeded")
	}
}
