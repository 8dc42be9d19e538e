package service

import (
	"context"
	"sync"
	"time"

	"github.com/devricklin/inboxsync/internal/log"
)

// Refresher is anything that can resync with the server
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefreshLoop periodically resyncs the inbox
type RefreshLoop struct {
	refresher Refresher
	interval  time.Duration
	logger    *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRefreshLoop creates a refresh loop; a non-positive interval disables it
func NewRefreshLoop(refresher Refresher, interval time.Duration, logger *log.Logger) *RefreshLoop {
	return &RefreshLoop{
		refresher: refresher,
		interval:  interval,
		logger:    log.OrNop(logger).Named("refresh"),
	}
}

// Start starts the loop
func (l *RefreshLoop) Start(ctx context.Context) {
	if l.interval <= 0 {
		l.logger.Info("Periodic refresh disabled")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.wg.Add(1)
	go l.loop(loopCtx)
	l.logger.Infow("Periodic refresh started", "interval", l.interval)
}

// Stop stops the loop
func (l *RefreshLoop) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	l.wg.Wait()
}

func (l *RefreshLoop) loop(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.refresher.Refresh(ctx); err != nil && ctx.Err() == nil {
				l.logger.Warnw("Periodic refresh failed", "error", err)
			}
		}
	}
}
