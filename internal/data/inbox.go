package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/devricklin/inboxsync/internal/biz/domain"
	"github.com/devricklin/inboxsync/internal/biz/repo"

	_ "modernc.org/sqlite"
)

const inboxColumns = `id, notification_id, notification, time, opened, visible, expires`

// inboxRepo implements the local inbox store on SQLite
type inboxRepo struct {
	db *sql.DB

	listenersMu sync.RWMutex
	listeners   []func()
}

// openSQLite opens a SQLite database file, creating its directory first
func openSQLite(dbPath string) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// NewInboxRepo creates the inbox store
func NewInboxRepo(dbPath string) (repo.InboxRepo, error) {
	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS inbox_items (
			id TEXT PRIMARY KEY,
			notification_id TEXT NOT NULL,
			notification TEXT NOT NULL,
			time INTEGER NOT NULL,
			opened INTEGER NOT NULL DEFAULT 0,
			visible INTEGER NOT NULL DEFAULT 1,
			expires INTEGER
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create inbox_items table: %w", err)
	}

	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_inbox_visible_time ON inbox_items(visible, time DESC)`)
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_inbox_expires ON inbox_items(expires)`)

	return &inboxRepo{db: db}, nil
}

// OnChange registers a mutation listener
func (r *inboxRepo) OnChange(fn func()) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *inboxRepo) notify() {
	r.listenersMu.RLock()
	listeners := append([]func(){}, r.listeners...)
	r.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertItem(ctx context.Context, ex execer, item *domain.InboxItem) error {
	notification, err := json.Marshal(item.Notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	var expires sql.NullInt64
	if item.Expires != nil {
		expires = sql.NullInt64{Int64: item.Expires.UnixMilli(), Valid: true}
	}

	_, err = ex.ExecContext(ctx, `
		INSERT OR REPLACE INTO inbox_items (`+inboxColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID,
		item.NotificationID,
		string(notification),
		item.Time.UnixMilli(),
		item.Opened,
		item.Visible,
		expires,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert inbox item: %w", err)
	}
	return nil
}

// Upsert inserts or replaces an item
func (r *inboxRepo) Upsert(ctx context.Context, item *domain.InboxItem) error {
	if err := upsertItem(ctx, r.db, item); err != nil {
		return err
	}
	r.notify()
	return nil
}

// Update replaces an existing item
func (r *inboxRepo) Update(ctx context.Context, item *domain.InboxItem) error {
	notification, err := json.Marshal(item.Notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	var expires sql.NullInt64
	if item.Expires != nil {
		expires = sql.NullInt64{Int64: item.Expires.UnixMilli(), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE inbox_items
		SET notification_id = ?, notification = ?, time = ?, opened = ?, visible = ?, expires = ?
		WHERE id = ?
	`, item.NotificationID, string(notification), item.Time.UnixMilli(), item.Opened, item.Visible, expires, item.ID)
	if err != nil {
		return fmt.Errorf("failed to update inbox item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update inbox item: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}

	r.notify()
	return nil
}

// GetByID gets an item by ID
func (r *inboxRepo) GetByID(ctx context.Context, id string) (*domain.InboxItem, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+inboxColumns+` FROM inbox_items WHERE id = ?`, id)

	item, err := scanInboxItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query inbox item: %w", err)
	}
	return item, nil
}

// ListAll lists all items
func (r *inboxRepo) ListAll(ctx context.Context) ([]*domain.InboxItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+inboxColumns+`
		FROM inbox_items
		ORDER BY time DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox items: %w", err)
	}
	defer rows.Close()

	return scanInboxItems(rows)
}

// ListVisible lists the items the UI may surface at now
func (r *inboxRepo) ListVisible(ctx context.Context, now time.Time) ([]*domain.InboxItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+inboxColumns+`
		FROM inbox_items
		WHERE visible = 1 AND (expires IS NULL OR expires > ?)
		ORDER BY time DESC, id ASC
	`, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to list visible inbox items: %w", err)
	}
	defer rows.Close()

	return scanInboxItems(rows)
}

// ListExpiring lists items with an expiration
func (r *inboxRepo) ListExpiring(ctx context.Context) ([]*domain.InboxItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+inboxColumns+`
		FROM inbox_items
		WHERE expires IS NOT NULL
		ORDER BY expires ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring inbox items: %w", err)
	}
	defer rows.Close()

	return scanInboxItems(rows)
}

// DeleteByID deletes an item
func (r *inboxRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM inbox_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete inbox item: %w", err)
	}
	r.notify()
	return nil
}

// Clear deletes all items
func (r *inboxRepo) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM inbox_items`)
	if err != nil {
		return fmt.Errorf("failed to clear inbox items: %w", err)
	}
	r.notify()
	return nil
}

// ApplyChanges writes a batch atomically
func (r *inboxRepo) ApplyChanges(ctx context.Context, upserts []*domain.InboxItem, deleteIDs []string) error {
	if len(upserts) == 0 && len(deleteIDs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, item := range upserts {
		if err := upsertItem(ctx, tx, item); err != nil {
			return err
		}
	}
	for _, id := range deleteIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM inbox_items WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete inbox item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit inbox changes: %w", err)
	}
	r.notify()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInboxItem(row rowScanner) (*domain.InboxItem, error) {
	var item domain.InboxItem
	var notification string
	var itemTime int64
	var expires sql.NullInt64
	if err := row.Scan(&item.ID, &item.NotificationID, &notification, &itemTime, &item.Opened, &item.Visible, &expires); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(notification), &item.Notification); err != nil {
		return nil, fmt.Errorf("failed to decode notification: %w", err)
	}
	item.Time = time.UnixMilli(itemTime)
	if expires.Valid {
		exp := time.UnixMilli(expires.Int64)
		item.Expires = &exp
	}
	return &item, nil
}

func scanInboxItems(rows *sql.Rows) ([]*domain.InboxItem, error) {
	var items []*domain.InboxItem
	for rows.Next() {
		item, err := scanInboxItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inbox item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate inbox items: %w", err)
	}
	return items, nil
}

// Close closes the database connection
func (r *inboxRepo) Close() error {
	return r.db.Close()
}
