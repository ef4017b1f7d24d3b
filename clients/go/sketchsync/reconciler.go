package sketchsync

import (
	"strings"
	"sync"

	"github.com/sketchsync/sketchsync/internal/models"
	"github.com/sketchsync/sketchsync/internal/protocol"
)

// Reconciler bridges optimistic local editing with authoritative
// server confirmation. Local gestures apply immediately and push
// snapshots onto the undo stack; server events replace or reconfirm
// that state. The UI goroutine and the network receive goroutine both
// call in here, so every method takes the one mutex.
//
// Undo history is strictly local. A remote shapes_update invalidates
// the redo stack — redoing into a base state another user has since
// replaced would resurrect state they deliberately discarded. Echoes of
// our own updates are recognized by fingerprint and leave the stacks
// alone.
type Reconciler struct {
	mu sync.Mutex

	shapes  []models.Shape
	undo    [][]models.Shape
	redo    [][]models.Shape
	pending []string // fingerprints of shapes_update events we sent, FIFO

	self    models.User
	users   []models.User
	cursors map[string]models.Cursor
}

// NewReconciler returns an empty reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{cursors: make(map[string]models.Cursor)}
}

// fingerprint identifies a shape list by its ID sequence. Shapes are
// immutable once created, so equal ID sequences imply equal lists.
func fingerprint(shapes []models.Shape) string {
	ids := make([]string, len(shapes))
	for i, s := range shapes {
		ids[i] = s.ID
	}
	return strings.Join(ids, "\n")
}

func cloneShapes(shapes []models.Shape) []models.Shape {
	out := make([]models.Shape, len(shapes))
	copy(out, shapes)
	return out
}

// ApplyInit installs a fresh authoritative snapshot. Any local history
// is discarded: after a resync the old stacks refer to a world that no
// longer exists.
func (r *Reconciler) ApplyInit(shapes []models.Shape, users []models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shapes = cloneShapes(shapes)
	r.users = append([]models.User(nil), users...)
	r.cursors = make(map[string]models.Cursor)
	r.undo = nil
	r.redo = nil
	r.pending = nil
	for _, u := range users {
		if u.ID == r.self.ID {
			r.self = u // pick up the server-assigned color
		}
	}
}

// SetSelf records our own identity so echoes and roster updates can be
// told apart from peers'.
func (r *Reconciler) SetSelf(u models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.self = u
}

// Self returns our identity, including the server-assigned color once
// an init has been applied.
func (r *Reconciler) Self() models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.self
}

// LocalShapeAdd applies a locally drawn shape optimistically: the
// pre-mutation list goes onto the undo stack, the redo stack clears,
// and the event to send to the server is returned. The entry stays
// provisional until the server echoes it, but since IDs are unique the
// echo reconfirms rather than duplicates it.
func (r *Reconciler) LocalShapeAdd(shape models.Shape) protocol.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.undo = append(r.undo, cloneShapes(r.shapes))
	r.redo = nil
	r.shapes = append(r.shapes, shape)
	return protocol.ShapeAdd(shape)
}

// Undo restores the most recent snapshot and returns the shapes_update
// event to send. The second return is false when there is nothing to
// undo.
func (r *Reconciler) Undo() (protocol.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.undo) == 0 {
		return protocol.Event{}, false
	}
	prev := r.undo[len(r.undo)-1]
	r.undo = r.undo[:len(r.undo)-1]
	r.redo = append(r.redo, r.shapes)
	r.shapes = prev
	r.pending = append(r.pending, fingerprint(prev))
	return protocol.ShapesUpdate(cloneShapes(prev)), true
}

// Redo mirrors Undo.
func (r *Reconciler) Redo() (protocol.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.redo) == 0 {
		return protocol.Event{}, false
	}
	next := r.redo[len(r.redo)-1]
	r.redo = r.redo[:len(r.redo)-1]
	r.undo = append(r.undo, r.shapes)
	r.shapes = next
	r.pending = append(r.pending, fingerprint(next))
	return protocol.ShapesUpdate(cloneShapes(next)), true
}

// CanUndo reports whether the undo stack is non-empty.
func (r *Reconciler) CanUndo() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.undo) > 0
}

// CanRedo reports whether the redo stack is non-empty.
func (r *Reconciler) CanRedo() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.redo) > 0
}

// ApplyServer folds a confirmed server event into local state.
func (r *Reconciler) ApplyServer(ev protocol.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case protocol.TypeShapeAdd:
		if ev.Shape == nil {
			return
		}
		// Our own echo (or a redelivery) is a no-op; only genuinely new
		// shapes append.
		for _, s := range r.shapes {
			if s.ID == ev.Shape.ID {
				return
			}
		}
		r.shapes = append(r.shapes, *ev.Shape)

	case protocol.TypeShapesUpdate:
		fp := fingerprint(ev.Shapes)
		if len(r.pending) > 0 && r.pending[0] == fp {
			// Echo of our own update: local state already reflects it
			// (and possibly newer optimistic edits), and our history
			// stays valid.
			r.pending = r.pending[1:]
			return
		}
		// A peer rewrote the board. Adopt it wholesale and drop the
		// redo stack; in-flight optimism loses under last-writer-wins.
		r.shapes = cloneShapes(ev.Shapes)
		r.redo = nil
		r.pending = nil

	case protocol.TypeCursorUpdate:
		if ev.Cursor == nil {
			return
		}
		r.cursors[ev.Cursor.UserID] = *ev.Cursor

	case protocol.TypeUserJoin:
		if ev.User == nil {
			return
		}
		for _, u := range r.users {
			if u.ID == ev.User.ID {
				return
			}
		}
		r.users = append(r.users, *ev.User)

	case protocol.TypeUserLeave:
		for i, u := range r.users {
			if u.ID == ev.UserID {
				r.users = append(r.users[:i], r.users[i+1:]...)
				break
			}
		}
		delete(r.cursors, ev.UserID)
	}
}

// Shapes returns a copy of the current local shape list, in z-order.
func (r *Reconciler) Shapes() []models.Shape {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneShapes(r.shapes)
}

// Users returns a copy of the current roster view.
func (r *Reconciler) Users() []models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.User(nil), r.users...)
}

// Cursors returns a copy of the peers' latest cursor positions.
func (r *Reconciler) Cursors() map[string]models.Cursor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]models.Cursor, len(r.cursors))
	for k, v := range r.cursors {
		out[k] = v
	}
	return out
}
