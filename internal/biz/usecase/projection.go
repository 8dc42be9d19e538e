package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devricklin/inboxsync/internal/biz/domain"
	"github.com/devricklin/inboxsync/internal/biz/repo"
	"github.com/devricklin/inboxsync/internal/log"
	"github.com/devricklin/inboxsync/internal/metrics"
)

// Projection is the live, push-based view of visible items and the badge.
// Published snapshots are shared between subscribers and must be treated as read-only.
type Projection struct {
	store   repo.InboxRepo
	now     func() time.Time
	logger  *log.Logger
	metrics *metrics.InboxMetrics

	// recomputeMu orders store reads with publication so an older read never overwrites a newer one
	recomputeMu sync.Mutex

	mu      sync.RWMutex
	current domain.Snapshot
	subs    map[uint64]*Subscription
	nextID  uint64
}

// NewProjection creates a projection over store
func NewProjection(store repo.InboxRepo, now func() time.Time, logger *log.Logger, m *metrics.InboxMetrics) *Projection {
	if now == nil {
		now = time.Now
	}
	return &Projection{
		store:   store,
		now:     now,
		logger:  log.OrNop(logger).Named("projection"),
		metrics: m,
		current: domain.Snapshot{Items: []*domain.InboxItem{}},
		subs:    make(map[uint64]*Subscription),
	}
}

// Recompute re-reads the visible set from the store and publishes it
func (p *Projection) Recompute(ctx context.Context) error {
	p.recomputeMu.Lock()
	defer p.recomputeMu.Unlock()

	now := p.now()
	items, err := p.store.ListVisible(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list visible items: %w", err)
	}
	snap := domain.BuildSnapshot(items, now)

	p.mu.Lock()
	p.current = snap
	for _, sub := range p.subs {
		sub.offer(snap)
	}
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.Badge.Set(float64(snap.Badge))
		p.metrics.VisibleItems.Set(float64(len(snap.Items)))
	}
	return nil
}

// recomputeQuietly is the store change hook; failures are logged only
func (p *Projection) recomputeQuietly() {
	if err := p.Recompute(context.Background()); err != nil {
		p.logger.Errorw("Projection recompute failed", "error", err)
	}
}

// Current returns the last published snapshot as seen now; items whose expiry lapsed
// since publication are dropped even before the expiration timer fires.
func (p *Projection) Current() domain.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentAt(p.now())
}

// currentAt re-filters the published snapshot at now. Caller holds p.mu.
func (p *Projection) currentAt(now time.Time) domain.Snapshot {
	for _, item := range p.current.Items {
		if !item.IsSurfaced(now) {
			return domain.BuildSnapshot(p.current.Items, now)
		}
	}
	return p.current
}

// Subscribe registers an observer. The current snapshot is delivered immediately;
// a slow reader only ever sees the latest value. Close must be called to release it.
func (p *Projection) Subscribe() *Subscription {
	ch := make(chan domain.Snapshot, 1)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	sub := &Subscription{
		C:  ch,
		ch: ch,
		id: p.nextID,
		p:  p,
	}
	p.subs[sub.id] = sub
	sub.offer(p.currentAt(p.now()))
	return sub
}

// Subscribers returns the number of open subscriptions
func (p *Projection) Subscribers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}

func (p *Projection) unsubscribe(sub *Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subs[sub.id]; ok {
		delete(p.subs, sub.id)
		close(sub.ch)
	}
}

// Subscription is the handle returned by Subscribe
type Subscription struct {
	// C receives snapshots; it is closed by Close
	C <-chan domain.Snapshot

	ch   chan domain.Snapshot
	id   uint64
	p    *Projection
	once sync.Once
}

// offer replaces any undelivered snapshot with snap. Caller holds p.mu.
func (s *Subscription) offer(snap domain.Snapshot) {
	select {
	case s.ch <- snap:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- snap:
	default:
	}
}

// Close releases the subscription
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.p.unsubscribe(s)
	})
}
