package repo

import (
	"context"
	"errors"
	"time"

	"github.com/devricklin/inboxsync/internal/biz/domain"
)

// ErrNotFound is returned by Update when the target row does not exist
var ErrNotFound = errors.New("not found")

// InboxRepo is the local store of inbox items
// Responsible for durable persistence (SQLite); every successful mutation notifies change listeners
type InboxRepo interface {
	// Upsert inserts the item or replaces the row with the same ID
	Upsert(ctx context.Context, item *domain.InboxItem) error

	// GetByID returns the item, or nil when absent
	GetByID(ctx context.Context, id string) (*domain.InboxItem, error)

	// ListAll lists every cached item, visible or not
	ListAll(ctx context.Context) ([]*domain.InboxItem, error)

	// ListVisible lists visible, unexpired items ordered newest first (ties by ID)
	ListVisible(ctx context.Context, now time.Time) ([]*domain.InboxItem, error)

	// ListExpiring lists items carrying an expiration, lapsed or not
	ListExpiring(ctx context.Context) ([]*domain.InboxItem, error)

	// Update replaces an existing item; returns ErrNotFound when absent
	Update(ctx context.Context, item *domain.InboxItem) error

	// DeleteByID removes the item; deleting a missing ID is not an error
	DeleteByID(ctx context.Context, id string) error

	// Clear removes every item
	Clear(ctx context.Context) error

	// ApplyChanges upserts and deletes in a single transaction and notifies listeners once
	ApplyChanges(ctx context.Context, upserts []*domain.InboxItem, deleteIDs []string) error

	// OnChange registers a listener invoked after each committed mutation
	OnChange(fn func())

	Close() error
}
