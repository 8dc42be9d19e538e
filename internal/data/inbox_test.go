package data

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devricklin/inboxsync/internal/biz/domain"
	"github.com/devricklin/inboxsync/internal/biz/repo"
)

func newTestInboxRepo(t *testing.T) repo.InboxRepo {
	t.Helper()
	r, err := NewInboxRepo(filepath.Join(t.TempDir(), "inbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func testItem(id string, at time.Time) *domain.InboxItem {
	return &domain.InboxItem{
		ID:             id,
		NotificationID: "n-" + id,
		Notification: domain.Notification{
			ID:      "n-" + id,
			Title:   "title " + id,
			Message: "message " + id,
			Time:    at,
			Partial: true,
		},
		Time:    at,
		Visible: true,
	}
}

func TestInboxRepo_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	r := newTestInboxRepo(t)
	now := time.UnixMilli(time.Now().UnixMilli())

	item := testItem("a", now)
	exp := now.Add(time.Hour)
	item.Expires = &exp
	item.Notification.Extra = map[string]any{"k": "v"}
	require.NoError(t, r.Upsert(ctx, item))

	got, err := r.GetByID(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "n-a", got.NotificationID)
	assert.Equal(t, "message a", got.Notification.Message)
	assert.True(t, got.Notification.Partial)
	assert.True(t, got.Time.Equal(now))
	require.NotNil(t, got.Expires)
	assert.True(t, got.Expires.Equal(exp))
	assert.Equal(t, "v", got.Notification.Extra["k"])

	missing, err := r.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInboxRepo_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	r := newTestInboxRepo(t)
	now := time.Now()

	require.NoError(t, r.Upsert(ctx, testItem("a", now)))
	item := testItem("a", now)
	item.Opened = true
	require.NoError(t, r.Upsert(ctx, item))

	all, err := r.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Opened)
}

func TestInboxRepo_UpdateMissing(t *testing.T) {
	r := newTestInboxRepo(t)
	err := r.Update(context.Background(), testItem("ghost", time.Now()))
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestInboxRepo_ListVisible(t *testing.T) {
	ctx := context.Background()
	r := newTestInboxRepo(t)
	now := time.Now()

	hidden := testItem("hidden", now)
	hidden.Visible = false
	lapsed := testItem("lapsed", now)
	past := now.Add(-time.Minute)
	lapsed.Expires = &past
	pending := testItem("pending", now.Add(-time.Hour))
	future := now.Add(time.Minute)
	pending.Expires = &future

	for _, it := range []*domain.InboxItem{
		testItem("b", now.Add(-time.Second)),
		testItem("a", now.Add(-time.Second)),
		testItem("c", now),
		hidden, lapsed, pending,
	} {
		require.NoError(t, r.Upsert(ctx, it))
	}

	visible, err := r.ListVisible(ctx, now)
	require.NoError(t, err)
	ids := make([]string, 0, len(visible))
	for _, it := range visible {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"c", "a", "b", "pending"}, ids)

	expiring, err := r.ListExpiring(ctx)
	require.NoError(t, err)
	require.Len(t, expiring, 2)
	assert.Equal(t, "lapsed", expiring[0].ID)
}

func TestInboxRepo_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	r := newTestInboxRepo(t)
	now := time.Now()

	require.NoError(t, r.Upsert(ctx, testItem("a", now)))
	require.NoError(t, r.Upsert(ctx, testItem("b", now)))

	require.NoError(t, r.DeleteByID(ctx, "a"))
	require.NoError(t, r.DeleteByID(ctx, "a"))
	got, err := r.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, r.Clear(ctx))
	all, err := r.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestInboxRepo_ApplyChangesNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	r := newTestInboxRepo(t)
	now := time.Now()
	require.NoError(t, r.Upsert(ctx, testItem("old", now)))

	var calls atomic.Int32
	r.OnChange(func() { calls.Add(1) })

	err := r.ApplyChanges(ctx,
		[]*domain.InboxItem{testItem("x", now), testItem("y", now)},
		[]string{"old"},
	)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	all, err := r.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, r.ApplyChanges(ctx, nil, nil))
	assert.Equal(t, int32(1), calls.Load())
}

func TestInboxRepo_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "inbox.db")

	r, err := NewInboxRepo(path)
	require.NoError(t, err)
	require.NoError(t, r.Upsert(ctx, testItem("a", time.Now())))
	require.NoError(t, r.Close())

	r, err = NewInboxRepo(path)
	require.NoError(t, err)
	defer r.Close()
	got, err := r.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
