package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sketchsync/sketchsync/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}

	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id UUID PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		name TEXT DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS rooms (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		created_by UUID,
		created_at TIMESTAMPTZ DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS boards (
		room_id TEXT PRIMARY KEY,
		shapes JSONB NOT NULL,
		updated_at TIMESTAMPTZ DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_rooms_created_by ON rooms(created_by);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateAccount creates a new account record.
func (s *PostgresStore) CreateAccount(ctx context.Context, email, name, passwordHash string) (*models.Account, error) {
	acc := &models.Account{ID: uuid.New(), Email: email, Name: name, PasswordHash: passwordHash}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, name, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, acc.ID, email, name, passwordHash).Scan(&acc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// GetAccountByEmail retrieves an account by email.
func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	acc := &models.Account{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, name, password_hash, created_at
		FROM accounts WHERE email = $1
	`, email).Scan(&acc.ID, &acc.Email, &acc.Name, &acc.PasswordHash, &acc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// GetAccountByID retrieves an account by ID.
func (s *PostgresStore) GetAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	acc := &models.Account{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, name, password_hash, created_at
		FROM accounts WHERE id = $1
	`, id).Scan(&acc.ID, &acc.Email, &acc.Name, &acc.PasswordHash, &acc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// CreateRoom creates a new room record.
func (s *PostgresStore) CreateRoom(ctx context.Context, name string, createdBy *uuid.UUID) (*models.Room, error) {
	room := &models.Room{ID: uuid.New(), Name: name, CreatedBy: createdBy}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rooms (id, name, created_by)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, room.ID, name, createdBy).Scan(&room.CreatedAt)
	if err != nil {
		return nil, err
	}
	return room, nil
}

// GetRoom retrieves a room by ID.
func (s *PostgresStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	room := &models.Room{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, created_by, created_at
		FROM rooms WHERE id = $1
	`, id).Scan(&room.ID, &room.Name, &room.CreatedBy, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

// ListRoomsByCreator retrieves rooms created by the given account.
func (s *PostgresStore) ListRoomsByCreator(ctx context.Context, createdBy uuid.UUID) ([]models.Room, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, created_by, created_at
		FROM rooms WHERE created_by = $1
		ORDER BY created_at ASC
	`, createdBy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var room models.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatedBy, &room.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// RoomExists reports whether a room record exists.
func (s *PostgresStore) RoomExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM rooms WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// SaveBoard upserts a room's parked shape list.
func (s *PostgresStore) SaveBoard(ctx context.Context, roomID string, shapes []models.Shape) error {
	data, err := json.Marshal(shapes)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO boards (room_id, shapes, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (room_id) DO UPDATE SET shapes = EXCLUDED.shapes, updated_at = now()
	`, roomID, data)
	return err
}

// LoadBoard retrieves a room's parked shape list.
func (s *PostgresStore) LoadBoard(ctx context.Context, roomID string) ([]models.Shape, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT shapes FROM boards WHERE room_id = $1`, roomID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var shapes []models.Shape
	if err := json.Unmarshal(data, &shapes); err != nil {
		return nil, err
	}
	return shapes, nil
}
