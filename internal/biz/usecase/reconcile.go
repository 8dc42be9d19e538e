package usecase

import (
	"context"
	"fmt"

	"github.com/devricklin/inboxsync/internal/biz/domain"
)

// ReconcileResult summarizes one reconciliation
type ReconcileResult struct {
	Upserted     int
	Deleted      int
	ServerCount  int
	ServerUnread int
}

// Refresh reconciles the local store with the server listing.
// Concurrent callers share one in-flight reconciliation. A caller whose context ends
// returns early; the shared run still either applies in full or not at all.
func (uc *InboxUsecase) Refresh(ctx context.Context) error {
	if err := uc.guard("refresh"); err != nil {
		return err
	}

	ch := uc.refresh.DoChan("refresh", func() (any, error) {
		return uc.Reconcile(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reconcile fetches the whole listing, then merges it under the writer lock.
// Any fetch failure aborts before the store is touched.
func (uc *InboxUsecase) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	remote, err := uc.fetchListing(ctx)
	if err != nil {
		uc.countReconcile("network_error")
		return nil, domain.Network("refresh", err)
	}
	if err := ctx.Err(); err != nil {
		uc.countReconcile("cancelled")
		return nil, err
	}

	uc.writeMu.Lock()
	defer uc.writeMu.Unlock()

	// The listing is complete; the merge runs to the end once started
	ctx = context.WithoutCancel(ctx)

	local, err := uc.store.ListAll(ctx)
	if err != nil {
		uc.countReconcile("storage_error")
		return nil, domain.Storage("refresh", err)
	}
	localByID := make(map[string]*domain.InboxItem, len(local))
	for _, item := range local {
		localByID[item.ID] = item
	}

	seen := make(map[string]bool, len(remote.Items))
	upserts := make([]*domain.InboxItem, 0, len(remote.Items))
	for _, r := range remote.Items {
		if r == nil || r.ID == "" || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		upserts = append(upserts, mergeRemote(localByID[r.ID], r))
	}

	var deletes []string
	for _, item := range local {
		if !seen[item.ID] {
			deletes = append(deletes, item.ID)
		}
	}

	if err := uc.store.ApplyChanges(ctx, upserts, deletes); err != nil {
		uc.countReconcile("storage_error")
		return nil, domain.Storage("refresh", err)
	}

	// Store writes are committed; timer sync is best-effort past this point
	var firstErr error
	for _, id := range deletes {
		if err := uc.timer.Cancel(ctx, expiryKey(id)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, item := range upserts {
		if err := uc.syncExpiry(ctx, item); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		uc.countReconcile("storage_error")
		return nil, domain.Storage("refresh", fmt.Errorf("failed to sync expirations: %w", firstErr))
	}

	result := &ReconcileResult{
		Upserted:     len(upserts),
		Deleted:      len(deletes),
		ServerCount:  remote.Count,
		ServerUnread: remote.Unread,
	}
	uc.observeServerCounts(result, upserts)
	uc.countReconcile("ok")
	uc.logger.Infow("Inbox reconciled",
		"upserted", result.Upserted,
		"deleted", result.Deleted,
		"server_count", result.ServerCount,
	)
	return result, nil
}

// fetchListing pages through the server listing until it is exhausted.
// A page that adds no unseen id ends the listing, so a server ignoring skip cannot loop us.
func (uc *InboxUsecase) fetchListing(ctx context.Context) (*domain.RemoteInbox, error) {
	all := &domain.RemoteInbox{}
	seen := make(map[string]struct{})
	skip := 0
	for {
		page, err := uc.remote.FetchInbox(ctx, skip, uc.config.PageSize)
		if err != nil {
			return nil, err
		}
		added := 0
		for _, item := range page.Items {
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			all.Items = append(all.Items, item)
			added++
		}
		all.Count = page.Count
		all.Unread = page.Unread
		skip += len(page.Items)

		if len(page.Items) < uc.config.PageSize {
			return all, nil
		}
		if added == 0 {
			uc.logger.Warnw("Remote listing repeated a page, stopping", "skip", skip)
			return all, nil
		}
		if page.Count > 0 && skip >= page.Count {
			return all, nil
		}
	}
}

// mergeRemote builds the item to store for one remote descriptor.
// Local opened is sticky; a remote opened wins over a local unopened.
func mergeRemote(local *domain.InboxItem, r *domain.RemoteItem) *domain.InboxItem {
	item := r.ToInboxItem()
	if local == nil {
		return item
	}

	item.Opened = local.Opened || r.Opened

	// Keep a fetched full payload for the same notification, refreshing its summary
	if !local.Notification.Partial && local.NotificationID == r.NotificationID {
		full := local.Clone().Notification
		full.Title = item.Notification.Title
		full.Subtitle = item.Notification.Subtitle
		full.Message = item.Notification.Message
		item.Notification = full
	}
	return item
}

// observeServerCounts compares the server unread counter against local state
func (uc *InboxUsecase) observeServerCounts(result *ReconcileResult, items []*domain.InboxItem) {
	now := uc.now()
	localUnread := 0
	for _, item := range items {
		if item.IsSurfaced(now) && !item.Opened {
			localUnread++
		}
	}
	if localUnread != result.ServerUnread {
		uc.logger.Debugw("Server unread count differs from local badge",
			"server_unread", result.ServerUnread,
			"local_unread", localUnread,
		)
	}
	if uc.metrics != nil {
		uc.metrics.ServerUnread.Set(float64(result.ServerUnread))
	}
}

func (uc *InboxUsecase) countReconcile(result string) {
	if uc.metrics != nil {
		uc.metrics.ReconcileTotal.WithLabelValues(result).Inc()
	}
}
