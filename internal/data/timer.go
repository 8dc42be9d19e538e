package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/devricklin/inboxsync/internal/biz/repo"
)

// timerRepo persists durable timers on SQLite
type timerRepo struct {
	db *sql.DB
}

// NewTimerRepo creates a SQLite-backed timer store; it may share the inbox database file
func NewTimerRepo(dbPath string) (repo.TimerStore, error) {
	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS durable_timers (
			key TEXT PRIMARY KEY,
			fire_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create durable_timers table: %w", err)
	}
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_durable_timers_fire_at ON durable_timers(fire_at)`)

	return &timerRepo{db: db}, nil
}

// Put stores or replaces a timer
func (r *timerRepo) Put(ctx context.Context, entry repo.TimerEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO durable_timers (key, fire_at) VALUES (?, ?)
	`, entry.Key, entry.FireAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put timer: %w", err)
	}
	return nil
}

// Delete removes a timer
func (r *timerRepo) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM durable_timers WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete timer: %w", err)
	}
	return nil
}

// DeleteIfUnchanged removes a timer unless it was rescheduled
func (r *timerRepo) DeleteIfUnchanged(ctx context.Context, key string, fireAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM durable_timers WHERE key = ? AND fire_at = ?
	`, key, fireAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to delete fired timer: %w", err)
	}
	return nil
}

// DeleteAll removes all timers
func (r *timerRepo) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM durable_timers`)
	if err != nil {
		return fmt.Errorf("failed to clear timers: %w", err)
	}
	return nil
}

// Due lists timers due at now
func (r *timerRepo) Due(ctx context.Context, now time.Time) ([]repo.TimerEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT key, fire_at FROM durable_timers
		WHERE fire_at <= ?
		ORDER BY fire_at ASC, key ASC
	`, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query due timers: %w", err)
	}
	defer rows.Close()

	var entries []repo.TimerEntry
	for rows.Next() {
		var entry repo.TimerEntry
		var fireAt int64
		if err := rows.Scan(&entry.Key, &fireAt); err != nil {
			return nil, fmt.Errorf("failed to scan timer: %w", err)
		}
		entry.FireAt = time.UnixMilli(fireAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Get gets a timer by key
func (r *timerRepo) Get(ctx context.Context, key string) (*repo.TimerEntry, error) {
	var fireAt int64
	err := r.db.QueryRowContext(ctx, `SELECT fire_at FROM durable_timers WHERE key = ?`, key).Scan(&fireAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query timer: %w", err)
	}
	return &repo.TimerEntry{Key: key, FireAt: time.UnixMilli(fireAt)}, nil
}

// Close closes the database connection
func (r *timerRepo) Close() error {
	return r.db.Close()
}
