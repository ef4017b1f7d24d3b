package ws

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sketchsync/sketchsync/internal/auth"
	"github.com/sketchsync/sketchsync/internal/room"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect from the app origin; token auth is the
	// actual gate.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RoomLookup answers whether a room id resolves to a known room. It is
// the `exists(roomId)` collaborator; the persistent stores implement it.
type RoomLookup interface {
	RoomExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Handler upgrades authenticated requests on /ws/rooms/{id} into room
// memberships.
type Handler struct {
	registry *room.Registry
	auth     *auth.Service
	rooms    RoomLookup
	logger   zerolog.Logger
}

// NewHandler creates a websocket handler.
func NewHandler(registry *room.Registry, authSvc *auth.Service, rooms RoomLookup, logger zerolog.Logger) *Handler {
	return &Handler{registry: registry, auth: authSvc, rooms: rooms, logger: logger}
}

// ServeRoom is the join handshake. The bearer token and the room id are
// both validated before the connection is upgraded, so a refused client
// gets a plain HTTP error rather than a websocket close.
func (h *Handler) ServeRoom(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	identity, err := h.auth.Validate(r.Context(), token)
	if err != nil {
		http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
		return
	}

	roomIDStr := chi.URLParam(r, "id")
	roomID, err := uuid.Parse(roomIDStr)
	if err != nil {
		http.Error(w, `{"error":"invalid room ID format"}`, http.StatusBadRequest)
		return
	}
	exists, err := h.rooms.RoomExists(r.Context(), roomID)
	if err != nil {
		http.Error(w, `{"error":"database error"}`, http.StatusInternalServerError)
		return
	}
	if !exists {
		http.Error(w, `{"error":"room not found"}`, http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	logger := h.logger.With().Str("room", roomIDStr).Str("user", identity.UserID).Logger()
	c := newClient(conn, logger)

	session := h.registry.Get(r.Context(), roomIDStr)
	if _, err := session.Join(c.ctx, c, identity.UserID, identity.Name); err != nil {
		logger.Warn().Err(err).Msg("join failed")
		c.Close()
		return
	}

	go c.writePump()
	go c.readPump(session, identity.UserID)
}
