package service

import (
	"context"
	"sync"
	"time"

	"github.com/devricklin/inboxsync/internal/biz/repo"
	"github.com/devricklin/inboxsync/internal/log"
)

// TimerRunner is a DurableTimer backed by a TimerStore and a polling loop.
// Entries live in the store, so pending schedules survive restarts.
type TimerRunner struct {
	store   repo.TimerStore
	handler repo.TimerFunc
	tick    time.Duration
	now     func() time.Time
	logger  *log.Logger

	wake  chan struct{}
	runMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ repo.DurableTimer = (*TimerRunner)(nil)

// NewTimerRunner creates a timer polling store every tick
func NewTimerRunner(store repo.TimerStore, tick time.Duration, logger *log.Logger) *TimerRunner {
	if tick <= 0 {
		tick = time.Second
	}
	return &TimerRunner{
		store:  store,
		tick:   tick,
		now:    time.Now,
		logger: log.OrNop(logger).Named("timer"),
		wake:   make(chan struct{}, 1),
	}
}

// OnFire sets the callback invoked for due keys. Must be called before Start.
func (r *TimerRunner) OnFire(handler repo.TimerFunc) {
	r.handler = handler
}

// ScheduleOnce arms key to fire at the given time, replacing any pending schedule.
// An entry already armed for the same millisecond is left alone.
func (r *TimerRunner) ScheduleOnce(ctx context.Context, key string, at time.Time) error {
	pending, err := r.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if pending != nil && pending.FireAt.UnixMilli() == at.UnixMilli() {
		return nil
	}
	if err := r.store.Put(ctx, repo.TimerEntry{Key: key, FireAt: at}); err != nil {
		return err
	}
	if !at.After(r.now()) {
		r.poke()
	}
	return nil
}

// Cancel drops the pending schedule for key
func (r *TimerRunner) Cancel(ctx context.Context, key string) error {
	return r.store.Delete(ctx, key)
}

// CancelAll drops every pending schedule
func (r *TimerRunner) CancelAll(ctx context.Context) error {
	return r.store.DeleteAll(ctx)
}

func (r *TimerRunner) poke() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Start starts the polling loop; it runs until Stop or ctx is done
func (r *TimerRunner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go r.loop(loopCtx)
	r.logger.Infow("Timer started", "tick", r.tick)
}

// Stop stops the polling loop and waits for an in-progress pass
func (r *TimerRunner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	r.wg.Wait()
	r.logger.Info("Timer stopped")
}

func (r *TimerRunner) loop(ctx context.Context) {
	defer r.wg.Done()

	r.RunDue(ctx)

	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunDue(ctx)
		case <-r.wake:
			r.RunDue(ctx)
		}
	}
}

// RunDue fires every due entry once and returns how many completed.
// An entry is removed after its callback succeeds, unless it was rescheduled meanwhile.
func (r *TimerRunner) RunDue(ctx context.Context) int {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	due, err := r.store.Due(ctx, r.now())
	if err != nil {
		r.logger.Errorw("Failed to load due timers", "error", err)
		return 0
	}

	fired := 0
	for _, entry := range due {
		if ctx.Err() != nil {
			return fired
		}
		if r.handler != nil {
			if err := r.handler(ctx, entry.Key); err != nil {
				r.logger.Warnw("Timer callback failed, will retry", "key", entry.Key, "error", err)
				continue
			}
		}
		if err := r.store.DeleteIfUnchanged(ctx, entry.Key, entry.FireAt); err != nil {
			r.logger.Errorw("Failed to remove fired timer", "key", entry.Key, "error", err)
			continue
		}
		fired++
	}
	return fired
}
