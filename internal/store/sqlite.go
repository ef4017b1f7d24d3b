package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sketchsync/sketchsync/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/sketchsync.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/sketchsync.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		name TEXT DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_by TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS boards (
		room_id TEXT PRIMARY KEY,
		shapes TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_email ON accounts(email);
	CREATE INDEX IF NOT EXISTS idx_rooms_created_by ON rooms(created_by);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateAccount creates a new account record.
func (s *SQLiteStore) CreateAccount(ctx context.Context, email, name, passwordHash string) (*models.Account, error) {
	id := uuid.New()
	now := time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, name, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id.String(), email, name, passwordHash, now)
	if err != nil {
		return nil, err
	}

	return &models.Account{ID: id, Email: email, Name: name, PasswordHash: passwordHash, CreatedAt: now}, nil
}

// GetAccountByEmail retrieves an account by email.
func (s *SQLiteStore) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, created_at
		FROM accounts WHERE email = ?
	`, email))
}

// GetAccountByID retrieves an account by ID.
func (s *SQLiteStore) GetAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, created_at
		FROM accounts WHERE id = ?
	`, id.String()))
}

func (s *SQLiteStore) scanAccount(row *sql.Row) (*models.Account, error) {
	acc := &models.Account{}
	var idStr string
	err := row.Scan(&idStr, &acc.Email, &acc.Name, &acc.PasswordHash, &acc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	acc.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// CreateRoom creates a new room record.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name string, createdBy *uuid.UUID) (*models.Room, error) {
	id := uuid.New()
	now := time.Now()

	var creator any
	if createdBy != nil {
		creator = createdBy.String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, name, created_by, created_at)
		VALUES (?, ?, ?, ?)
	`, id.String(), name, creator, now)
	if err != nil {
		return nil, err
	}

	return &models.Room{ID: id, Name: name, CreatedBy: createdBy, CreatedAt: now}, nil
}

// GetRoom retrieves a room by ID.
func (s *SQLiteStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	room := &models.Room{}
	var idStr string
	var creator sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_by, created_at
		FROM rooms WHERE id = ?
	`, id.String()).Scan(&idStr, &room.Name, &creator, &room.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	room.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	if creator.Valid {
		cid, err := uuid.Parse(creator.String)
		if err == nil {
			room.CreatedBy = &cid
		}
	}
	return room, nil
}

// ListRoomsByCreator retrieves rooms created by the given account.
func (s *SQLiteStore) ListRoomsByCreator(ctx context.Context, createdBy uuid.UUID) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_by, created_at
		FROM rooms WHERE created_by = ?
		ORDER BY created_at ASC
	`, createdBy.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var room models.Room
		var idStr string
		var creator sql.NullString
		if err := rows.Scan(&idStr, &room.Name, &creator, &room.CreatedAt); err != nil {
			return nil, err
		}
		room.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		if creator.Valid {
			if cid, err := uuid.Parse(creator.String); err == nil {
				room.CreatedBy = &cid
			}
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// RoomExists reports whether a room record exists.
func (s *SQLiteStore) RoomExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM rooms WHERE id = ?`, id.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SaveBoard upserts a room's parked shape list as a JSON blob.
func (s *SQLiteStore) SaveBoard(ctx context.Context, roomID string, shapes []models.Shape) error {
	data, err := json.Marshal(shapes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO boards (room_id, shapes, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET shapes = excluded.shapes, updated_at = excluded.updated_at
	`, roomID, string(data), time.Now())
	return err
}

// LoadBoard retrieves a room's parked shape list. A room with no parked
// board yields an empty list, not an error.
func (s *SQLiteStore) LoadBoard(ctx context.Context, roomID string) ([]models.Shape, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT shapes FROM boards WHERE room_id = ?`, roomID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var shapes []models.Shape
	if err := json.Unmarshal([]byte(data), &shapes); err != nil {
		return nil, err
	}
	return shapes, nil
}
