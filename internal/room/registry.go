package room

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Registry maps room ids to live sessions, creating them on first
// access. The mutex only guards the map; it is never held across any
// per-room work, so rooms stay fully independent of each other.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	archive BoardArchive
	logger  zerolog.Logger
}

// NewRegistry creates a registry. archive may be nil.
func NewRegistry(archive BoardArchive, logger zerolog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		archive:  archive,
		logger:   logger,
	}
}

// Get returns the live session for roomID, starting one if needed.
// Room existence is the caller's concern; the registry trusts the id.
func (r *Registry) Get(ctx context.Context, roomID string) *Session {
	r.mu.Lock()
	if s, ok := r.sessions[roomID]; ok {
		r.mu.Unlock()
		return s
	}
	r.mu.Unlock()

	// Session construction restores the parked board and may touch the
	// archive, so it happens outside the lock. A racing Get for the
	// same room keeps the first session registered.
	s := NewSession(ctx, roomID, r.archive, r.logger)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[roomID]; ok {
		s.Stop()
		return existing
	}
	r.sessions[roomID] = s
	return s
}

// Shutdown stops every session. Used on process exit.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		s.Stop()
		delete(r.sessions, id)
	}
}
