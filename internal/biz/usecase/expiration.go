package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/devricklin/inboxsync/internal/biz/domain"
)

const expiryKeyPrefix = "inbox.expire:"

func expiryKey(itemID string) string {
	return expiryKeyPrefix + itemID
}

func parseExpiryKey(key string) (string, bool) {
	id, ok := strings.CutPrefix(key, expiryKeyPrefix)
	return id, ok && id != ""
}

// syncExpiry arms or cancels the expiration for item. Caller holds writeMu.
func (uc *InboxUsecase) syncExpiry(ctx context.Context, item *domain.InboxItem) error {
	if item.Expires == nil {
		return uc.timer.Cancel(ctx, expiryKey(item.ID))
	}
	return uc.timer.ScheduleOnce(ctx, expiryKey(item.ID), *item.Expires)
}

// rescheduleExpirations re-arms every stored expiration; lapsed ones fire on the next tick
func (uc *InboxUsecase) rescheduleExpirations(ctx context.Context) error {
	uc.writeMu.Lock()
	defer uc.writeMu.Unlock()

	items, err := uc.store.ListExpiring(ctx)
	if err != nil {
		return domain.Storage("configure", err)
	}

	now := uc.now()
	lapsed := 0
	for _, item := range items {
		at := *item.Expires
		if !at.After(now) {
			at = now
			lapsed++
		}
		if err := uc.timer.ScheduleOnce(ctx, expiryKey(item.ID), at); err != nil {
			return domain.Storage("configure", fmt.Errorf("failed to schedule expiration: %w", err))
		}
	}
	if len(items) > 0 {
		uc.logger.Infow("Expirations rescheduled", "count", len(items), "lapsed", lapsed)
	}
	return nil
}

// HandleExpiration is the durable timer callback. It purges the item if it is still
// expired; a missing item or an extended expiry makes it a no-op. A returned error
// leaves the timer entry in place for another attempt.
func (uc *InboxUsecase) HandleExpiration(ctx context.Context, key string) error {
	id, ok := parseExpiryKey(key)
	if !ok {
		uc.logger.Warnw("Ignoring unknown timer key", "key", key)
		return nil
	}

	uc.writeMu.Lock()
	defer uc.writeMu.Unlock()

	item, err := uc.store.GetByID(ctx, id)
	if err != nil {
		uc.logger.Errorw("Failed to load expiring item", "item_id", id, "error", err)
		return err
	}
	if item == nil || !item.IsExpired(uc.now()) {
		return nil
	}

	if err := uc.store.DeleteByID(ctx, id); err != nil {
		uc.logger.Errorw("Failed to purge expired item", "item_id", id, "error", err)
		return err
	}
	if uc.metrics != nil {
		uc.metrics.ExpiredTotal.Inc()
	}
	uc.logger.Debugw("Expired item purged", "item_id", id)
	return nil
}
