package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sketchsync/sketchsync/internal/models"
)

// DataStore defines the interface for persistent storage of accounts,
// room metadata and parked boards. Both PostgresStore and SQLiteStore
// implement this interface. Lookups report a missing record as
// (nil, nil), not as an error.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Account operations
	CreateAccount(ctx context.Context, email, name, passwordHash string) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	GetAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error)

	// Room metadata operations
	CreateRoom(ctx context.Context, name string, createdBy *uuid.UUID) (*models.Room, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	ListRoomsByCreator(ctx context.Context, createdBy uuid.UUID) ([]models.Room, error)
	RoomExists(ctx context.Context, id uuid.UUID) (bool, error)

	// Parked boards (room idle snapshots)
	SaveBoard(ctx context.Context, roomID string, shapes []models.Shape) error
	LoadBoard(ctx context.Context, roomID string) ([]models.Shape, error)
}

// TokenStore holds issued bearer tokens with their TTLs. RedisStore is
// the production backend; MemoryTokenStore serves development and tests.
type TokenStore interface {
	SaveToken(ctx context.Context, token string, identity models.Identity, ttl time.Duration) error
	GetToken(ctx context.Context, token string) (*models.Identity, error)
	DeleteToken(ctx context.Context, token string) error
	Ping(ctx context.Context) error
	Close() error
}
