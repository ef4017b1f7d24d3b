package models

import (
	"time"

	"github.com/google/uuid"
)

// Room is the persisted metadata record for a drawing room. The live
// collaborative state (shapes, roster, cursors) is owned by the room
// session, not by this record.
type Room struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	CreatedBy *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
