// Package board holds the authoritative shape list for one room.
//
// The store is deliberately not safe for concurrent use: the owning
// room session is its single writer, which is what gives the protocol
// its strict server-receipt ordering.
package board

import (
	"errors"
	"fmt"

	"github.com/sketchsync/sketchsync/internal/models"
)

// ErrDuplicateID is returned when a mutation would introduce a shape ID
// that already exists in the list.
var ErrDuplicateID = errors.New("board: duplicate shape id")

// Store is the ordered, mutable shape list for one room. Insertion
// order is z-order. The mutation surface is exactly Append and Replace;
// removal is a Replace with a shorter list.
type Store struct {
	shapes []models.Shape
	ids    map[string]struct{}
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{ids: make(map[string]struct{})}
}

// Append adds one shape at the end of the list. It fails if the shape's
// ID is already present, leaving the store unchanged.
func (s *Store) Append(shape models.Shape) error {
	if _, ok := s.ids[shape.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, shape.ID)
	}
	s.shapes = append(s.shapes, shape)
	s.ids[shape.ID] = struct{}{}
	return nil
}

// Replace swaps the whole list. The only validation is ID uniqueness
// within the new list; on failure the store is unchanged.
func (s *Store) Replace(shapes []models.Shape) error {
	ids := make(map[string]struct{}, len(shapes))
	for _, sh := range shapes {
		if _, ok := ids[sh.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, sh.ID)
		}
		ids[sh.ID] = struct{}{}
	}
	s.shapes = append(s.shapes[:0:0], shapes...)
	s.ids = ids
	return nil
}

// Snapshot returns a copy of the current list, safe to hand to a newly
// joined client or to a broadcast without further locking.
func (s *Store) Snapshot() []models.Shape {
	out := make([]models.Shape, len(s.shapes))
	copy(out, s.shapes)
	return out
}

// Len returns the number of shapes on the board.
func (s *Store) Len() int {
	return len(s.shapes)
}
