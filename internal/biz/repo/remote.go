package repo

import (
	"context"

	"github.com/devricklin/inboxsync/internal/biz/domain"
)

// RemoteInboxRepo is the authoritative server listing
type RemoteInboxRepo interface {
	// FetchInbox returns one page of the listing for the configured device
	FetchInbox(ctx context.Context, skip, limit int) (*domain.RemoteInbox, error)

	// FetchNotification returns the full notification behind an inbox item
	FetchNotification(ctx context.Context, itemID string) (*domain.Notification, error)
}

// NotificationCenterRepo retracts presented notifications from the host surface
type NotificationCenterRepo interface {
	Remove(ctx context.Context, notificationID string) error
}

// EventRepo is the fire-and-forget analytics log
type EventRepo interface {
	LogNotificationOpen(ctx context.Context, notificationID string) error
}
