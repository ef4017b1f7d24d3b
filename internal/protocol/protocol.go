// Package protocol defines the JSON message envelope exchanged over a
// room websocket. The field names are wire-compatible with the original
// browser client.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sketchsync/sketchsync/internal/models"
)

// Event types. Init, UserJoin and UserLeave only ever travel
// server→client; CursorUpdate, ShapeAdd and ShapesUpdate travel both
// ways.
const (
	TypeInit         = "init"
	TypeCursorUpdate = "cursor_update"
	TypeShapeAdd     = "shape_add"
	TypeShapesUpdate = "shapes_update"
	TypeUserJoin     = "user_join"
	TypeUserLeave    = "user_leave"
)

// ErrProtocol marks a malformed or out-of-contract event. The
// connection that produced one is closed.
var ErrProtocol = errors.New("protocol error")

// Event is the wire envelope. Exactly the fields relevant to Type are
// populated; the rest stay empty and are elided from the JSON.
type Event struct {
	Type string `json:"type"`

	Shape  *models.Shape  `json:"shape,omitempty"`
	Shapes []models.Shape `json:"shapes,omitempty"`
	Cursor *models.Cursor `json:"cursor,omitempty"`
	User   *models.User   `json:"user,omitempty"`
	Users  []models.User  `json:"users,omitempty"`

	UserID   string `json:"userId,omitempty"`
	UserName string `json:"userName,omitempty"`
}

// Init builds the snapshot event sent once after a successful join.
// Empty slices are kept non-nil so the client always receives arrays.
func Init(shapes []models.Shape, users []models.User) Event {
	if shapes == nil {
		shapes = []models.Shape{}
	}
	if users == nil {
		users = []models.User{}
	}
	return Event{Type: TypeInit, Shapes: shapes, Users: users}
}

// ShapeAdd builds a single-shape append event.
func ShapeAdd(shape models.Shape) Event {
	return Event{Type: TypeShapeAdd, Shape: &shape}
}

// ShapesUpdate builds a wholesale list replacement event.
func ShapesUpdate(shapes []models.Shape) Event {
	if shapes == nil {
		shapes = []models.Shape{}
	}
	return Event{Type: TypeShapesUpdate, Shapes: shapes}
}

// CursorUpdate builds a cursor broadcast event.
func CursorUpdate(c models.Cursor) Event {
	return Event{Type: TypeCursorUpdate, Cursor: &c}
}

// UserJoin builds a roster-add event.
func UserJoin(u models.User) Event {
	return Event{Type: TypeUserJoin, User: &u}
}

// UserLeave builds a roster-remove event.
func UserLeave(u models.User) Event {
	return Event{Type: TypeUserLeave, UserID: u.ID, UserName: u.Name}
}

// Encode serializes an event for the wire.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeClientEvent parses and validates an event received from a
// client. Only cursor_update, shape_add and shapes_update are legal
// inbound; anything else, or a payload that does not match its type, is
// an ErrProtocol.
func DecodeClientEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	switch e.Type {
	case TypeCursorUpdate:
		if e.Cursor == nil {
			return Event{}, fmt.Errorf("%w: cursor_update without cursor", ErrProtocol)
		}
	case TypeShapeAdd:
		if e.Shape == nil {
			return Event{}, fmt.Errorf("%w: shape_add without shape", ErrProtocol)
		}
		if err := validateShape(*e.Shape); err != nil {
			return Event{}, err
		}
	case TypeShapesUpdate:
		for _, sh := range e.Shapes {
			if err := validateShape(sh); err != nil {
				return Event{}, err
			}
		}
	default:
		return Event{}, fmt.Errorf("%w: unexpected client event type %q", ErrProtocol, e.Type)
	}
	return e, nil
}

func validateShape(s models.Shape) error {
	if s.ID == "" {
		return fmt.Errorf("%w: shape without id", ErrProtocol)
	}
	if !s.Kind.Valid() {
		return fmt.Errorf("%w: unknown shape kind %q", ErrProtocol, s.Kind)
	}
	return nil
}
