package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devricklin/inboxsync/internal/biz/domain"
)

func TestInbox_NotReadyBeforeConfigure(t *testing.T) {
	ctx := context.Background()
	uc := NewInboxUsecase(newMemStore(), newFakeRemote(), newFakeTimer(), &recorder{}, &recorder{}, InboxConfig{Enabled: true})

	assert.False(t, uc.Ready())

	_, err := uc.Snapshot()
	assert.ErrorIs(t, err, domain.ErrNotReady)
	_, err = uc.Subscribe()
	assert.ErrorIs(t, err, domain.ErrNotReady)
	_, err = uc.Open(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrNotReady)
	assert.ErrorIs(t, uc.Refresh(ctx), domain.ErrNotReady)
	assert.ErrorIs(t, uc.MarkAsRead(ctx, "a"), domain.ErrNotReady)
	assert.ErrorIs(t, uc.MarkAllAsRead(ctx), domain.ErrNotReady)
	assert.ErrorIs(t, uc.Remove(ctx, "a"), domain.ErrNotReady)
	assert.ErrorIs(t, uc.Clear(ctx), domain.ErrNotReady)
}

func TestInbox_ServiceDisabled(t *testing.T) {
	ctx := context.Background()
	ti := buildTestInbox(t, false, nil, item("a", time.Now()))

	assert.True(t, ti.Ready())
	_, err := ti.Snapshot()
	assert.ErrorIs(t, err, domain.ErrServiceDisabled)
	_, err = ti.Open(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrServiceDisabled)
	assert.ErrorIs(t, ti.Refresh(ctx), domain.ErrServiceDisabled)
	assert.ErrorIs(t, ti.MarkAsRead(ctx, "a"), domain.ErrServiceDisabled)
	assert.ErrorIs(t, ti.Clear(ctx), domain.ErrServiceDisabled)

	pages, _ := ti.remote.calls()
	assert.Zero(t, pages)
	assert.False(t, ti.store.get("a").Opened)
}

func TestInbox_OpenFetchesPartialNotification(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	remote := newFakeRemote()
	remote.notifications["a"] = &domain.Notification{
		ID:          "n-a",
		Title:       "Full title",
		Message:     "full body",
		Attachments: []domain.Attachment{{MimeType: "image/png", URI: "https://img"}},
	}
	ti := newTestInbox(t, remote, item("a", now))

	n, err := ti.Open(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "full body", n.Message)
	assert.False(t, n.Partial)
	assert.Len(t, n.Attachments, 1)

	stored := ti.store.get("a")
	assert.True(t, stored.Opened)
	assert.False(t, stored.Notification.Partial)
	assert.Equal(t, "Full title", stored.Notification.Title)
	assert.Equal(t, []string{"n-a"}, ti.rec.events())
	assert.Equal(t, []string{"n-a"}, ti.rec.removals())

	snap, _ := ti.Snapshot()
	assert.Equal(t, 0, snap.Badge)

	// The cached copy is now full: no refetch, no second analytics event
	_, err = ti.Open(ctx, "a")
	require.NoError(t, err)
	_, fetches := remote.calls()
	assert.Equal(t, 1, fetches)
	assert.Len(t, ti.rec.events(), 1)
}

func TestInbox_OpenErrors(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("missing locally", func(t *testing.T) {
		ti := newTestInbox(t, nil)
		_, err := ti.Open(ctx, "ghost")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("gone remotely", func(t *testing.T) {
		ti := newTestInbox(t, nil, item("a", now))
		_, err := ti.Open(ctx, "a")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.False(t, ti.store.get("a").Opened)
	})

	t.Run("network failure", func(t *testing.T) {
		remote := newFakeRemote()
		remote.fetchErr = errors.New("timeout")
		ti := newTestInbox(t, remote, item("a", now))

		_, err := ti.Open(ctx, "a")
		assert.ErrorIs(t, err, domain.ErrNetwork)
		assert.False(t, ti.store.get("a").Opened)
		assert.Empty(t, ti.rec.events())
	})
}

func TestInbox_MarkAsRead(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	ti := newTestInbox(t, nil, item("a", now), item("b", now))

	require.NoError(t, ti.MarkAsRead(ctx, "a"))
	snap, _ := ti.Snapshot()
	assert.Equal(t, 1, snap.Badge)
	assert.Equal(t, []string{"n-a"}, ti.rec.events())
	assert.Equal(t, []string{"n-a"}, ti.rec.removals())

	// repeat is a no-op
	require.NoError(t, ti.MarkAsRead(ctx, "a"))
	assert.Len(t, ti.rec.events(), 1)

	assert.ErrorIs(t, ti.MarkAsRead(ctx, "ghost"), domain.ErrNotFound)
}

func TestInbox_MarkAsReadStorageFailure(t *testing.T) {
	ti := newTestInbox(t, nil, item("a", time.Now()))
	ti.store.failWrites = true

	err := ti.MarkAsRead(context.Background(), "a")
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Empty(t, ti.rec.events())
}

func TestInbox_MarkAllAsRead(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	read := item("read", now)
	read.Opened = true
	hidden := item("hidden", now)
	hidden.Visible = false
	ti := newTestInbox(t, nil, item("a", now), item("b", now), read, hidden)

	require.NoError(t, ti.MarkAllAsRead(ctx))

	snap, _ := ti.Snapshot()
	assert.Equal(t, 0, snap.Badge)
	assert.Equal(t, 1, ti.store.applyCalls)
	assert.Empty(t, ti.rec.events())
	assert.ElementsMatch(t, []string{"n-a", "n-b"}, ti.rec.removals())
	assert.False(t, ti.store.get("hidden").Opened)

	// nothing left to change
	require.NoError(t, ti.MarkAllAsRead(ctx))
	assert.Equal(t, 1, ti.store.applyCalls)
}

func TestInbox_Remove(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	a := item("a", now)
	a.Expires = ptr(now.Add(time.Hour))
	ti := newTestInbox(t, nil, a)

	_, scheduled := ti.timer.at(expiryKey("a"))
	require.True(t, scheduled)

	require.NoError(t, ti.Remove(ctx, "a"))
	assert.Nil(t, ti.store.get("a"))
	_, scheduled = ti.timer.at(expiryKey("a"))
	assert.False(t, scheduled)
	assert.Equal(t, []string{"n-a"}, ti.rec.removals())

	// removing again succeeds without retracting twice
	require.NoError(t, ti.Remove(ctx, "a"))
	assert.Len(t, ti.rec.removals(), 1)
}

func TestInbox_Clear(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	a := item("a", now)
	a.Expires = ptr(now.Add(time.Hour))
	ti := newTestInbox(t, nil, a, item("b", now))

	require.NoError(t, ti.Clear(ctx))
	assert.Zero(t, ti.store.size())
	assert.Zero(t, ti.timer.count())

	snap, _ := ti.Snapshot()
	assert.Empty(t, snap.Items)
	assert.Equal(t, 0, snap.Badge)
}

func TestInbox_Unlaunch(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	ti := newTestInbox(t, nil, item("a", now), item("b", now))

	require.NoError(t, ti.Unlaunch(ctx))
	assert.False(t, ti.Ready())
	assert.Zero(t, ti.store.size())
	assert.ElementsMatch(t, []string{"n-a", "n-b"}, ti.rec.removals())

	_, err := ti.Snapshot()
	assert.ErrorIs(t, err, domain.ErrNotReady)

	// configure again after unlaunch
	require.NoError(t, ti.Configure(ctx))
	snap, err := ti.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap.Items)
}

func TestInbox_GetAndListAll(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	hidden := item("hidden", now)
	hidden.Visible = false
	ti := newTestInbox(t, nil, item("a", now), hidden)

	got, err := ti.Get(ctx, "hidden")
	require.NoError(t, err)
	assert.Equal(t, "hidden", got.ID)

	_, err = ti.Get(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	all, err := ti.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
