package repo

import (
	"context"
	"time"
)

// TimerEntry is one persisted one-shot task
type TimerEntry struct {
	Key    string
	FireAt time.Time
}

// TimerStore persists pending one-shot tasks so they survive restarts
type TimerStore interface {
	// Put stores the entry, replacing any entry with the same key
	Put(ctx context.Context, entry TimerEntry) error

	// Delete removes the entry for key
	Delete(ctx context.Context, key string) error

	// DeleteIfUnchanged removes the entry only if it still fires at fireAt
	DeleteIfUnchanged(ctx context.Context, key string, fireAt time.Time) error

	// DeleteAll removes every entry
	DeleteAll(ctx context.Context) error

	// Due lists entries whose fire time is at or before now, earliest first
	Due(ctx context.Context, now time.Time) ([]TimerEntry, error)

	// Get returns the entry for key, or nil
	Get(ctx context.Context, key string) (*TimerEntry, error)

	Close() error
}

// TimerFunc is invoked when a scheduled key fires; an error keeps the entry for retry
type TimerFunc func(ctx context.Context, key string) error

// DurableTimer schedules persisted one-shot callbacks
type DurableTimer interface {
	// ScheduleOnce arms key to fire at the given time, replacing any pending schedule
	ScheduleOnce(ctx context.Context, key string, at time.Time) error

	// Cancel drops the pending schedule for key, if any
	Cancel(ctx context.Context, key string) error

	// CancelAll drops every pending schedule
	CancelAll(ctx context.Context) error
}
