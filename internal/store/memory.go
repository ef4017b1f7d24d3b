package store

import (
	"context"
	"sync"
	"time"

	"github.com/sketchsync/sketchsync/internal/models"
)

// MemoryTokenStore is an in-process TokenStore for development and
// tests, where a Redis instance is not required. Expiry is checked
// lazily on read.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]memToken
}

type memToken struct {
	identity models.Identity
	expires  time.Time
}

// NewMemoryTokenStore creates an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]memToken)}
}

// SaveToken stores a token's identity with the given TTL.
func (s *MemoryTokenStore) SaveToken(_ context.Context, token string, identity models.Identity, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = memToken{identity: identity, expires: time.Now().Add(ttl)}
	return nil
}

// GetToken resolves a token to its identity. Unknown or expired tokens
// yield (nil, nil).
func (s *MemoryTokenStore) GetToken(_ context.Context, token string) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tokens[token]
	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expires) {
		delete(s.tokens, token)
		return nil, nil
	}
	id := entry.identity
	return &id, nil
}

// DeleteToken revokes a token.
func (s *MemoryTokenStore) DeleteToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

// Ping always succeeds.
func (s *MemoryTokenStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryTokenStore) Close() error { return nil }
