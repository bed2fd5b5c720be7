package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"trading-room-game/internal/model"
)

// maxAtomicRetries bounds retries of RunAtomic on write conflicts.
const maxAtomicRetries = 5

// errInsertRaced marks a lost first-insert race on an id with no row to
// lock at read time. The retry re-reads the row the winner committed.
var errInsertRaced = errors.New("room insert raced with a concurrent writer")

// PostgresStore persists each room as one JSONB document keyed by room id.
// RunAtomic locks the row for the duration of the transaction, so
// concurrent writers on the same id queue up instead of losing updates.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// MigrateRooms applies the rooms table schema.
func MigrateRooms(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_rooms_updated ON rooms(updated_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate rooms table: %w", err)
	}
	return nil
}

// List returns rooms ordered by most recent update.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]*model.Room, error) {
	query := `SELECT doc FROM rooms ORDER BY updated_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*model.Room
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		var room model.Room
		if err := json.Unmarshal(doc, &room); err != nil {
			return nil, fmt.Errorf("failed to decode room document: %w", err)
		}
		rooms = append(rooms, &room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rooms: %w", err)
	}
	return rooms, nil
}

// Get retrieves a room by id. Returns ErrRoomNotFound if absent.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Room, error) {
	const query = `SELECT doc FROM rooms WHERE id = $1`

	var doc []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	var room model.Room
	if err := json.Unmarshal(doc, &room); err != nil {
		return nil, fmt.Errorf("failed to decode room document: %w", err)
	}
	return &room, nil
}

// RunAtomic re-reads the row inside a transaction, applies fn and writes
// the result back, retrying on serialization conflicts and deadlocks.
func (s *PostgresStore) RunAtomic(ctx context.Context, id string, fn MutateFunc) (*model.Room, error) {
	var lastErr error
	for attempt := 0; attempt < maxAtomicRetries; attempt++ {
		room, err := s.runAtomicOnce(ctx, id, fn)
		if err != nil && isRetryable(err) {
			lastErr = err
			continue
		}
		return room, err
	}
	return nil, fmt.Errorf("atomic room update did not commit after %d attempts: %w", maxAtomicRetries, lastErr)
}

func (s *PostgresStore) runAtomicOnce(ctx context.Context, id string, fn MutateFunc) (*model.Room, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current *model.Room
	var doc []byte
	err = tx.QueryRow(ctx, `SELECT doc FROM rooms WHERE id = $1 FOR UPDATE`, id).Scan(&doc)
	switch {
	case err == nil:
		current = &model.Room{}
		if err := json.Unmarshal(doc, current); err != nil {
			return nil, fmt.Errorf("failed to decode room document: %w", err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		// no record yet, fn may insert one
	default:
		return nil, fmt.Errorf("failed to read room for update: %w", err)
	}
	inserting := current == nil

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	if next == nil {
		if _, err := tx.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id); err != nil {
			return nil, fmt.Errorf("failed to delete room: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit room delete: %w", err)
		}
		return nil, nil
	}

	next.UpdatedAt = time.Now()
	encoded, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("failed to encode room document: %w", err)
	}

	if inserting {
		// With no row to lock, two writers can both read an absent record.
		// The loser of the insert race retries against the winner's row.
		tag, err := tx.Exec(ctx, `
			INSERT INTO rooms (id, doc, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (id) DO NOTHING
		`, id, encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to insert room document: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, errInsertRaced
		}
	} else {
		_, err = tx.Exec(ctx, `UPDATE rooms SET doc = $2, updated_at = NOW() WHERE id = $1`, id, encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to write room document: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit room update: %w", err)
	}
	return next, nil
}

// Delete removes the room row if present.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	return nil
}

// isRetryable reports whether the error is a transient write conflict.
func isRetryable(err error) bool {
	if errors.Is(err, errInsertRaced) {
		return true
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 40001 serialization_failure, 40P01 deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
