package data

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devricklin/inboxsync/internal/biz/repo"
)

func timerStores(t *testing.T) map[string]repo.TimerStore {
	t.Helper()

	sqliteStore, err := NewTimerRepo(filepath.Join(t.TempDir(), "timers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	redisStore := NewRedisTimerRepo(client, "")
	t.Cleanup(func() { redisStore.Close() })

	return map[string]repo.TimerStore{
		"sqlite": sqliteStore,
		"redis":  redisStore,
	}
}

func TestTimerStore_DueOrdering(t *testing.T) {
	for name, store := range timerStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.UnixMilli(time.Now().UnixMilli())

			require.NoError(t, store.Put(ctx, repo.TimerEntry{Key: "late", FireAt: now.Add(-time.Second)}))
			require.NoError(t, store.Put(ctx, repo.TimerEntry{Key: "early", FireAt: now.Add(-time.Minute)}))
			require.NoError(t, store.Put(ctx, repo.TimerEntry{Key: "future", FireAt: now.Add(time.Hour)}))

			due, err := store.Due(ctx, now)
			require.NoError(t, err)
			require.Len(t, due, 2)
			assert.Equal(t, "early", due[0].Key)
			assert.Equal(t, "late", due[1].Key)
			assert.True(t, due[0].FireAt.Equal(now.Add(-time.Minute)))
		})
	}
}

func TestTimerStore_PutReplaces(t *testing.T) {
	for name, store := range timerStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.UnixMilli(time.Now().UnixMilli())

			require.NoError(t, store.Put(ctx, repo.TimerEntry{Key: "k", FireAt: now}))
			require.NoError(t, store.Put(ctx, repo.TimerEntry{Key: "k", FireAt: now.Add(time.Hour)}))

			got, err := store.Get(ctx, "k")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, got.FireAt.Equal(now.Add(time.Hour)))

			missing, err := store.Get(ctx, "none")
			require.NoError(t, err)
			assert.Nil(t, missing)
		})
	}
}

func TestTimerStore_DeleteIfUnchanged(t *testing.T) {
	for name, store := range timerStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.UnixMilli(time.Now().UnixMilli())

			require.NoError(t, store.Put(ctx, repo.TimerEntry{Key: "k", FireAt: now.Add(time.Minute)}))
			require.NoError(t, store.DeleteIfUnchanged(ctx, "k", now))
			got, err := store.Get(ctx, "k")
			require.NoError(t, err)
			assert.NotNil(t, got, "rescheduled entry must survive")

			require.NoError(t, store.DeleteIfUnchanged(ctx, "k", now.Add(time.Minute)))
			got, err = store.Get(ctx, "k")
			require.NoError(t, err)
			assert.Nil(t, got)

			require.NoError(t, store.DeleteIfUnchanged(ctx, "absent", now))
		})
	}
}

func TestTimerStore_DeleteAndDeleteAll(t *testing.T) {
	for name, store := range timerStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()

			require.NoError(t, store.Put(ctx, repo.TimerEntry{Key: "a", FireAt: now}))
			require.NoError(t, store.Put(ctx, repo.TimerEntry{Key: "b", FireAt: now}))

			require.NoError(t, store.Delete(ctx, "a"))
			require.NoError(t, store.Delete(ctx, "a"))
			due, err := store.Due(ctx, now.Add(time.Second))
			require.NoError(t, err)
			require.Len(t, due, 1)
			assert.Equal(t, "b", due[0].Key)

			require.NoError(t, store.DeleteAll(ctx))
			due, err = store.Due(ctx, now.Add(time.Second))
			require.NoError(t, err)
			assert.Empty(t, due)
		})
	}
}

func TestTimerRepo_SharesInboxDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "inbox.db")

	inbox, err := NewInboxRepo(path)
	require.NoError(t, err)
	defer inbox.Close()
	timers, err := NewTimerRepo(path)
	require.NoError(t, err)
	defer timers.Close()

	require.NoError(t, inbox.Upsert(ctx, testItem("a", time.Now())))
	require.NoError(t, timers.Put(ctx, repo.TimerEntry{Key: "inbox.expire:a", FireAt: time.Now()}))

	got, err := timers.Get(ctx, "inbox.expire:a")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
