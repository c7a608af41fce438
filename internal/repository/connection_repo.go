package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/voice-relay/backend/internal/model"
)

const defaultListLimit = 100

// ConnectionRepository provides data access for the connection journal.
type ConnectionRepository struct {
	db *sql.DB
}

// NewConnectionRepository creates a new ConnectionRepository.
func NewConnectionRepository(db *sql.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// Create inserts a newly accepted connection.
func (r *ConnectionRepository) Create(ctx context.Context, rec *model.ConnectionRecord) error {
	query := `
		INSERT INTO connections (id, hub, remote_addr, identity, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Hub,
		rec.RemoteAddr,
		rec.Identity,
		rec.Status,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create connection record: %w", err)
	}

	return nil
}

// GetByID retrieves a connection record by its ID.
func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*model.ConnectionRecord, error) {
	query := `
		SELECT id, hub, remote_addr, identity, status, created_at, updated_at, closed_at
		FROM connections
		WHERE id = ?
	`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, model.ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection record: %w", err)
	}
	return rec, nil
}

// List returns the most recent records for hub, newest first. An empty hub
// lists every hub.
func (r *ConnectionRepository) List(ctx context.Context, hub string, limit int) ([]*model.ConnectionRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, hub, remote_addr, identity, status, created_at, updated_at, closed_at
		FROM connections
		WHERE (? = '' OR hub = ?)
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, hub, hub, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list connection records: %w", err)
	}
	defer rows.Close()

	var records []*model.ConnectionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connection records: %w", err)
	}

	return records, nil
}

// SetIdentity records the identity a connection declared.
func (r *ConnectionRepository) SetIdentity(ctx context.Context, id, identity string) error {
	query := `
		UPDATE connections
		SET identity = ?, status = ?, updated_at = ?
		WHERE id = ?
	`

	return r.exec(ctx, "set identity", query, identity, model.ConnectionStatusIdentified, time.Now(), id)
}

// MarkClosed records that a connection went away.
func (r *ConnectionRepository) MarkClosed(ctx context.Context, id string, closedAt time.Time) error {
	query := `
		UPDATE connections
		SET status = ?, closed_at = ?, updated_at = ?
		WHERE id = ?
	`

	return r.exec(ctx, "mark closed", query, model.ConnectionStatusClosed, closedAt, closedAt, id)
}

// CountOpen returns how many connections of hub have not been closed.
func (r *ConnectionRepository) CountOpen(ctx context.Context, hub string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM connections
		WHERE hub = ? AND status != ?
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, hub, model.ConnectionStatusClosed).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open connections: %w", err)
	}

	return count, nil
}

// CloseDangling marks every open record of hub as closed. It is called on
// startup so records left by a crashed process do not look live.
func (r *ConnectionRepository) CloseDangling(ctx context.Context, hub string) (int64, error) {
	query := `
		UPDATE connections
		SET status = ?, closed_at = ?, updated_at = ?
		WHERE hub = ? AND status != ?
	`

	now := time.Now()
	result, err := r.db.ExecContext(ctx, query, model.ConnectionStatusClosed, now, now, hub, model.ConnectionStatusClosed)
	if err != nil {
		return 0, fmt.Errorf("failed to close dangling records: %w", err)
	}
	return result.RowsAffected()
}

func (r *ConnectionRepository) exec(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrConnectionNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*model.ConnectionRecord, error) {
	rec := &model.ConnectionRecord{}
	var identity sql.NullString
	var closedAt sql.NullTime

	err := row.Scan(
		&rec.ID,
		&rec.Hub,
		&rec.RemoteAddr,
		&identity,
		&rec.Status,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}

	if identity.Valid {
		rec.Identity = identity.String
	}
	if closedAt.Valid {
		t := closedAt.Time
		rec.ClosedAt = &t
	}
	return rec, nil
}
