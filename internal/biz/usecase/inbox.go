package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/devricklin/inboxsync/internal/biz/domain"
	"github.com/devricklin/inboxsync/internal/biz/repo"
	"github.com/devricklin/inboxsync/internal/log"
	"github.com/devricklin/inboxsync/internal/metrics"
)

// InboxConfig contains inbox engine settings
type InboxConfig struct {
	Enabled  bool // entitlement; false makes every facade call fail with ServiceDisabled
	PageSize int  // remote listing page size
}

const defaultPageSize = 100

// Option customizes an InboxUsecase
type Option func(*InboxUsecase)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(uc *InboxUsecase) { uc.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *log.Logger) Option {
	return func(uc *InboxUsecase) { uc.logger = logger }
}

// WithMetrics sets the metrics collectors
func WithMetrics(m *metrics.InboxMetrics) Option {
	return func(uc *InboxUsecase) { uc.metrics = m }
}

// InboxUsecase is the inbox engine: it owns the writer lock, the live projection
// and the expiration schedule over one local store.
type InboxUsecase struct {
	store   repo.InboxRepo
	remote  repo.RemoteInboxRepo
	timer   repo.DurableTimer
	center  repo.NotificationCenterRepo
	events  repo.EventRepo
	config  InboxConfig
	now     func() time.Time
	logger  *log.Logger
	metrics *metrics.InboxMetrics

	projection *Projection

	// writeMu serializes every read-modify-write against the store and the timer
	writeMu sync.Mutex

	ready    atomic.Bool
	hookOnce sync.Once
	refresh  singleflight.Group
}

// NewInboxUsecase creates a new inbox usecase
func NewInboxUsecase(
	store repo.InboxRepo,
	remote repo.RemoteInboxRepo,
	timer repo.DurableTimer,
	center repo.NotificationCenterRepo,
	events repo.EventRepo,
	config InboxConfig,
	opts ...Option,
) *InboxUsecase {
	if config.PageSize <= 0 {
		config.PageSize = defaultPageSize
	}
	uc := &InboxUsecase{
		store:  store,
		remote: remote,
		timer:  timer,
		center: center,
		events: events,
		config: config,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	uc.logger = log.OrNop(uc.logger).Named("inbox")
	uc.projection = NewProjection(store, uc.now, uc.logger, uc.metrics)
	return uc
}

// Projection returns the live projection
func (uc *InboxUsecase) Projection() *Projection {
	return uc.projection
}

// Ready reports whether Configure has completed
func (uc *InboxUsecase) Ready() bool {
	return uc.ready.Load()
}

// Configure attaches the store, publishes the first snapshot and re-arms expirations
func (uc *InboxUsecase) Configure(ctx context.Context) error {
	uc.hookOnce.Do(func() {
		uc.store.OnChange(uc.projection.recomputeQuietly)
	})

	if err := uc.projection.Recompute(ctx); err != nil {
		return domain.Storage("configure", err)
	}
	if err := uc.rescheduleExpirations(ctx); err != nil {
		return err
	}

	uc.ready.Store(true)
	uc.logger.Infow("Inbox configured", "enabled", uc.config.Enabled)
	return nil
}

// Unlaunch clears the cache and retracts every presented notification tied to it
func (uc *InboxUsecase) Unlaunch(ctx context.Context) error {
	if !uc.ready.Load() {
		return nil
	}

	uc.writeMu.Lock()
	items, err := uc.store.ListAll(ctx)
	if err != nil {
		uc.writeMu.Unlock()
		return domain.Storage("unlaunch", err)
	}
	err = uc.clearLocked(ctx)
	uc.writeMu.Unlock()
	if err != nil {
		return domain.Storage("unlaunch", err)
	}

	for _, item := range items {
		uc.retract(ctx, item.NotificationID)
	}
	uc.ready.Store(false)
	return nil
}

// guard enforces the engine state shared by every facade operation
func (uc *InboxUsecase) guard(op string) error {
	if !uc.ready.Load() {
		return domain.NotReady(op)
	}
	if !uc.config.Enabled {
		return domain.ServiceDisabled(op)
	}
	return nil
}

// Snapshot returns the current projection value
func (uc *InboxUsecase) Snapshot() (domain.Snapshot, error) {
	if err := uc.guard("snapshot"); err != nil {
		return domain.Snapshot{}, err
	}
	return uc.projection.Current(), nil
}

// Subscribe registers a projection observer
func (uc *InboxUsecase) Subscribe() (*Subscription, error) {
	if err := uc.guard("subscribe"); err != nil {
		return nil, err
	}
	return uc.projection.Subscribe(), nil
}

// Get returns a cached item
func (uc *InboxUsecase) Get(ctx context.Context, id string) (*domain.InboxItem, error) {
	if err := uc.guard("get"); err != nil {
		return nil, err
	}
	item, err := uc.store.GetByID(ctx, id)
	if err != nil {
		return nil, domain.Storage("get", err)
	}
	if item == nil {
		return nil, domain.NotFound("get", id)
	}
	return item, nil
}

// ListAll returns every cached item, including hidden ones
func (uc *InboxUsecase) ListAll(ctx context.Context) ([]*domain.InboxItem, error) {
	if err := uc.guard("list"); err != nil {
		return nil, err
	}
	items, err := uc.store.ListAll(ctx)
	if err != nil {
		return nil, domain.Storage("list", err)
	}
	return items, nil
}

// Open returns the full notification behind an item, fetching it when the cached copy
// is partial, and marks the item as read
func (uc *InboxUsecase) Open(ctx context.Context, id string) (*domain.Notification, error) {
	if err := uc.guard("open"); err != nil {
		return nil, err
	}

	item, err := uc.store.GetByID(ctx, id)
	if err != nil {
		return nil, domain.Storage("open", err)
	}
	if item == nil {
		return nil, domain.NotFound("open", id)
	}

	notification := item.Notification
	if notification.Partial {
		full, err := uc.remote.FetchNotification(ctx, id)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, domain.NotFound("open", id)
			}
			return nil, domain.Network("open", err)
		}
		notification = *full
		notification.Partial = false
	}

	uc.writeMu.Lock()
	current, err := uc.store.GetByID(ctx, id)
	if err != nil {
		uc.writeMu.Unlock()
		return nil, domain.Storage("open", err)
	}
	if current == nil {
		uc.writeMu.Unlock()
		return nil, domain.NotFound("open", id)
	}
	wasOpened := current.Opened
	current.Opened = true
	current.Notification = notification
	err = uc.store.Update(ctx, current)
	uc.writeMu.Unlock()
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, domain.NotFound("open", id)
		}
		return nil, domain.Storage("open", err)
	}

	if !wasOpened {
		uc.afterRead(ctx, current)
	}
	return &notification, nil
}

// MarkAsRead marks one item as opened. Repeating it is a no-op.
func (uc *InboxUsecase) MarkAsRead(ctx context.Context, id string) error {
	if err := uc.guard("mark_read"); err != nil {
		return err
	}

	uc.writeMu.Lock()
	item, err := uc.store.GetByID(ctx, id)
	if err != nil {
		uc.writeMu.Unlock()
		return domain.Storage("mark_read", err)
	}
	if item == nil {
		uc.writeMu.Unlock()
		return domain.NotFound("mark_read", id)
	}
	if item.Opened {
		uc.writeMu.Unlock()
		return nil
	}
	item.Opened = true
	err = uc.store.Update(ctx, item)
	uc.writeMu.Unlock()
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.NotFound("mark_read", id)
		}
		return domain.Storage("mark_read", err)
	}

	uc.afterRead(ctx, item)
	return nil
}

// MarkAllAsRead opens every visible unopened item in one batch so the badge drops straight to zero
func (uc *InboxUsecase) MarkAllAsRead(ctx context.Context) error {
	if err := uc.guard("mark_all_read"); err != nil {
		return err
	}

	uc.writeMu.Lock()
	items, err := uc.store.ListVisible(ctx, uc.now())
	if err != nil {
		uc.writeMu.Unlock()
		return domain.Storage("mark_all_read", err)
	}
	var changed []*domain.InboxItem
	for _, item := range items {
		if item.Opened {
			continue
		}
		item.Opened = true
		changed = append(changed, item)
	}
	if len(changed) > 0 {
		err = uc.store.ApplyChanges(ctx, changed, nil)
	}
	uc.writeMu.Unlock()
	if err != nil {
		return domain.Storage("mark_all_read", err)
	}

	for _, item := range changed {
		uc.retract(ctx, item.NotificationID)
	}
	uc.logger.Debugw("Marked all as read", "count", len(changed))
	return nil
}

// Remove deletes an item and its pending expiration. Removing a missing item succeeds.
func (uc *InboxUsecase) Remove(ctx context.Context, id string) error {
	if err := uc.guard("remove"); err != nil {
		return err
	}

	uc.writeMu.Lock()
	item, err := uc.store.GetByID(ctx, id)
	if err == nil {
		err = uc.store.DeleteByID(ctx, id)
	}
	if err == nil {
		err = uc.timer.Cancel(ctx, expiryKey(id))
	}
	uc.writeMu.Unlock()
	if err != nil {
		return domain.Storage("remove", err)
	}

	if item != nil {
		uc.retract(ctx, item.NotificationID)
	}
	return nil
}

// Clear deletes every item and every pending expiration
func (uc *InboxUsecase) Clear(ctx context.Context) error {
	if err := uc.guard("clear"); err != nil {
		return err
	}

	uc.writeMu.Lock()
	defer uc.writeMu.Unlock()
	if err := uc.clearLocked(ctx); err != nil {
		return domain.Storage("clear", err)
	}
	return nil
}

func (uc *InboxUsecase) clearLocked(ctx context.Context) error {
	if err := uc.store.Clear(ctx); err != nil {
		return err
	}
	return uc.timer.CancelAll(ctx)
}

// afterRead fires the side effects of a user-initiated read
func (uc *InboxUsecase) afterRead(ctx context.Context, item *domain.InboxItem) {
	if err := uc.events.LogNotificationOpen(ctx, item.NotificationID); err != nil {
		uc.logger.Warnw("Failed to log notification open", "item_id", item.ID, "error", err)
	}
	uc.retract(ctx, item.NotificationID)
}

// retract asks the notification center to drop a presented notification
func (uc *InboxUsecase) retract(ctx context.Context, notificationID string) {
	if notificationID == "" {
		return
	}
	if err := uc.center.Remove(ctx, notificationID); err != nil {
		uc.logger.Warnw("Failed to retract notification", "notification_id", notificationID, "error", err)
	}
}
