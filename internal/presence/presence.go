// Package presence tracks the ephemeral per-room roster and cursor
// positions. Nothing here is persisted and nothing here participates in
// undo history.
package presence

import "github.com/sketchsync/sketchsync/internal/models"

// palette is the pool of colors handed to joining users, in assignment
// order. Colors repeat once the room has more members than the palette.
var palette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4",
	"#46f0f0", "#f032e6", "#bcf60c", "#fabebe", "#008080",
	"#9a6324", "#800000", "#808000", "#000075", "#e6beff",
}

// Table holds the roster and cursors for one room. Like the board
// store, it is owned and serialized by the room session.
type Table struct {
	users   map[string]models.User
	cursors map[string]models.Cursor
	joined  []string // user IDs in join order, for stable roster snapshots
}

// NewTable returns an empty presence table.
func NewTable() *Table {
	return &Table{
		users:   make(map[string]models.User),
		cursors: make(map[string]models.Cursor),
	}
}

// Join registers a user in the roster. A rejoin under the same ID
// overwrites the previous entry but keeps its roster position.
func (t *Table) Join(user models.User) {
	if _, ok := t.users[user.ID]; !ok {
		t.joined = append(t.joined, user.ID)
	}
	t.users[user.ID] = user
}

// Leave removes a user and their cursor. Unknown IDs are a no-op, which
// keeps disconnect handling idempotent.
func (t *Table) Leave(userID string) (models.User, bool) {
	u, ok := t.users[userID]
	if !ok {
		return models.User{}, false
	}
	delete(t.users, userID)
	delete(t.cursors, userID)
	for i, id := range t.joined {
		if id == userID {
			t.joined = append(t.joined[:i], t.joined[i+1:]...)
			break
		}
	}
	return u, true
}

// SetCursor records a user's latest pointer position, last write wins.
// Cursors for users not in the roster are dropped.
func (t *Table) SetCursor(c models.Cursor) {
	if _, ok := t.users[c.UserID]; !ok {
		return
	}
	t.cursors[c.UserID] = c
}

// User looks up a roster entry.
func (t *Table) User(userID string) (models.User, bool) {
	u, ok := t.users[userID]
	return u, ok
}

// Roster returns the current members in join order.
func (t *Table) Roster() []models.User {
	out := make([]models.User, 0, len(t.users))
	for _, id := range t.joined {
		out = append(out, t.users[id])
	}
	return out
}

// Len returns the roster size.
func (t *Table) Len() int {
	return len(t.users)
}

// NextColor picks a palette color not held by any current member,
// falling back to round-robin when the palette is exhausted.
func (t *Table) NextColor() string {
	used := make(map[string]bool, len(t.users))
	for _, u := range t.users {
		used[u.Color] = true
	}
	for _, c := range palette {
		if !used[c] {
			return c
		}
	}
	return palette[len(t.users)%len(palette)]
}
