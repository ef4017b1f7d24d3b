package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sketchsync/sketchsync/internal/api/middleware"
)

// Room name validation: 1-50 printable characters after trimming.
var roomNameRegex = regexp.MustCompile(`^[\p{L}\p{N} _-]{1,50}$`)

// CreateRoomRequest represents the room creation request.
type CreateRoomRequest struct {
	Name string `json:"name"`
}

// CreateRoom handles room creation (authenticated).
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if !roomNameRegex.MatchString(req.Name) {
		h.Error(w, http.StatusBadRequest, "name must be 1-50 letters, digits, spaces, hyphens or underscores")
		return
	}

	// Guests have no account row, so their rooms carry no creator.
	var createdBy *uuid.UUID
	if !identity.Guest {
		id, err := uuid.Parse(identity.UserID)
		if err != nil {
			h.Error(w, http.StatusUnauthorized, "invalid identity")
			return
		}
		createdBy = &id
	}

	room, err := h.data.CreateRoom(r.Context(), req.Name, createdBy)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	h.JSON(w, http.StatusCreated, room)
}

// ListRooms returns the rooms created by the authenticated account.
// Guests own no rooms and get an empty list.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if identity.Guest {
		h.JSON(w, http.StatusOK, []struct{}{})
		return
	}

	accountID, err := uuid.Parse(identity.UserID)
	if err != nil {
		h.Error(w, http.StatusUnauthorized, "invalid identity")
		return
	}

	rooms, err := h.data.ListRoomsByCreator(r.Context(), accountID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}

	h.JSON(w, http.StatusOK, rooms)
}

// VerifyRoom checks that a room id resolves to a known room. Clients
// call this before dialing the websocket so a bad link fails with a
// clear status instead of a failed upgrade.
func (h *Handler) VerifyRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room ID format")
		return
	}

	room, err := h.data.GetRoom(r.Context(), roomID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if room == nil {
		h.Error(w, http.StatusNotFound, "room not found")
		return
	}

	h.JSON(w, http.StatusOK, room)
}
