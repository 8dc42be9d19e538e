package data

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/devricklin/inboxsync/internal/biz/repo"
	"github.com/redis/go-redis/v9"
)

// deleteIfUnchangedScript removes a member only when its score still matches
var deleteIfUnchangedScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if score and tonumber(score) == tonumber(ARGV[2]) then
	return redis.call('ZREM', KEYS[1], ARGV[1])
end
return 0
`)

// redisTimerRepo persists durable timers in a Redis sorted set scored by fire time (unix ms)
type redisTimerRepo struct {
	client *redis.Client
	key    string
}

// NewRedisTimerRepo creates a Redis-backed timer store under the given sorted-set key
func NewRedisTimerRepo(client *redis.Client, key string) repo.TimerStore {
	if key == "" {
		key = "inboxsync:timers"
	}
	return &redisTimerRepo{client: client, key: key}
}

// Put stores or replaces a timer
func (r *redisTimerRepo) Put(ctx context.Context, entry repo.TimerEntry) error {
	err := r.client.ZAdd(ctx, r.key, redis.Z{
		Score:  float64(entry.FireAt.UnixMilli()),
		Member: entry.Key,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to put timer: %w", err)
	}
	return nil
}

// Delete removes a timer
func (r *redisTimerRepo) Delete(ctx context.Context, key string) error {
	if err := r.client.ZRem(ctx, r.key, key).Err(); err != nil {
		return fmt.Errorf("failed to delete timer: %w", err)
	}
	return nil
}

// DeleteIfUnchanged removes a timer unless it was rescheduled
func (r *redisTimerRepo) DeleteIfUnchanged(ctx context.Context, key string, fireAt time.Time) error {
	err := deleteIfUnchangedScript.Run(ctx, r.client, []string{r.key}, key, fireAt.UnixMilli()).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to delete fired timer: %w", err)
	}
	return nil
}

// DeleteAll removes all timers
func (r *redisTimerRepo) DeleteAll(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to clear timers: %w", err)
	}
	return nil
}

// Due lists timers due at now
func (r *redisTimerRepo) Due(ctx context.Context, now time.Time) ([]repo.TimerEntry, error) {
	zs, err := r.client.ZRangeByScoreWithScores(ctx, r.key, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query due timers: %w", err)
	}

	entries := make([]repo.TimerEntry, 0, len(zs))
	for _, z := range zs {
		key, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, repo.TimerEntry{Key: key, FireAt: time.UnixMilli(int64(z.Score))})
	}
	return entries, nil
}

// Get gets a timer by key
func (r *redisTimerRepo) Get(ctx context.Context, key string) (*repo.TimerEntry, error) {
	score, err := r.client.ZScore(ctx, r.key, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query timer: %w", err)
	}
	return &repo.TimerEntry{Key: key, FireAt: time.UnixMilli(int64(score))}, nil
}

// Close closes the Redis client
func (r *redisTimerRepo) Close() error {
	return r.client.Close()
}
