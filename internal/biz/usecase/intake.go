package usecase

import (
	"context"

	"github.com/google/uuid"

	"github.com/devricklin/inboxsync/internal/biz/domain"
)

// HandleArrival stores an item delivered out-of-band. Failures are logged, never returned.
// A redelivery of a known ID refreshes its content but keeps its read state.
func (uc *InboxUsecase) HandleArrival(ctx context.Context, arrival domain.Arrival) {
	uc.countIntake("arrived")
	if !uc.acceptsIntake("arrival") {
		return
	}

	item := &domain.InboxItem{
		ID:             arrival.ID,
		NotificationID: arrival.Notification.ID,
		Notification:   arrival.Notification,
		Time:           arrival.Time,
		Visible:        arrival.Visible,
		Expires:        arrival.Expires,
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Time.IsZero() {
		item.Time = uc.now()
	}
	if item.Notification.Time.IsZero() {
		item.Notification.Time = item.Time
	}

	uc.writeMu.Lock()
	defer uc.writeMu.Unlock()

	existing, err := uc.store.GetByID(ctx, item.ID)
	if err != nil {
		uc.logger.Errorw("Failed to look up arrived item", "item_id", item.ID, "error", err)
		return
	}
	if existing != nil {
		item.Opened = existing.Opened
	}

	if err := uc.store.Upsert(ctx, item); err != nil {
		uc.logger.Errorw("Failed to store arrived item", "item_id", item.ID, "error", err)
		return
	}
	if err := uc.syncExpiry(ctx, item); err != nil {
		uc.logger.Errorw("Failed to schedule expiration", "item_id", item.ID, "error", err)
	}
	uc.logger.Debugw("Inbox item arrived", "item_id", item.ID, "visible", item.Visible)
}

// HandleExternalRead marks an item opened for a read already reported elsewhere.
// No analytics event is logged. Failures are logged, never returned.
func (uc *InboxUsecase) HandleExternalRead(ctx context.Context, id string) {
	uc.countIntake("read")
	if !uc.acceptsIntake("read") {
		return
	}

	uc.writeMu.Lock()
	defer uc.writeMu.Unlock()

	item, err := uc.store.GetByID(ctx, id)
	if err != nil {
		uc.logger.Errorw("Failed to look up read item", "item_id", id, "error", err)
		return
	}
	if item == nil {
		uc.logger.Debugw("Read signal for unknown item", "item_id", id)
		return
	}
	if item.Opened {
		return
	}

	item.Opened = true
	if err := uc.store.Update(ctx, item); err != nil {
		uc.logger.Errorw("Failed to mark item read", "item_id", id, "error", err)
	}
}

func (uc *InboxUsecase) acceptsIntake(kind string) bool {
	if err := uc.guard("intake_" + kind); err != nil {
		uc.logger.Debugw("Dropping intake signal", "kind", kind, "error", err)
		return false
	}
	return true
}

func (uc *InboxUsecase) countIntake(kind string) {
	if uc.metrics != nil {
		uc.metrics.IntakeTotal.WithLabelValues(kind).Inc()
	}
}
