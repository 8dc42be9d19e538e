package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devricklin/inboxsync/internal/biz/domain"
	"github.com/devricklin/inboxsync/internal/biz/repo"
)

var errDisk = errors.New("disk full")

// memStore is an in-memory InboxRepo
type memStore struct {
	mu        sync.Mutex
	items     map[string]*domain.InboxItem
	listeners []func()

	failWrites bool
	failReads  bool
	applyCalls int
}

func newMemStore() *memStore {
	return &memStore{items: make(map[string]*domain.InboxItem)}
}

func (s *memStore) notify() {
	s.mu.Lock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (s *memStore) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *memStore) Upsert(ctx context.Context, item *domain.InboxItem) error {
	s.mu.Lock()
	if s.failWrites {
		s.mu.Unlock()
		return errDisk
	}
	s.items[item.ID] = item.Clone()
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (*domain.InboxItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReads {
		return nil, errDisk
	}
	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return item.Clone(), nil
}

func (s *memStore) list(keep func(*domain.InboxItem) bool) ([]*domain.InboxItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReads {
		return nil, errDisk
	}
	var out []*domain.InboxItem
	for _, item := range s.items {
		if keep(item) {
			out = append(out, item.Clone())
		}
	}
	domain.SortItems(out)
	return out, nil
}

func (s *memStore) ListAll(ctx context.Context) ([]*domain.InboxItem, error) {
	return s.list(func(*domain.InboxItem) bool { return true })
}

func (s *memStore) ListVisible(ctx context.Context, now time.Time) ([]*domain.InboxItem, error) {
	return s.list(func(i *domain.InboxItem) bool { return i.IsSurfaced(now) })
}

func (s *memStore) ListExpiring(ctx context.Context) ([]*domain.InboxItem, error) {
	items, err := s.list(func(i *domain.InboxItem) bool { return i.Expires != nil })
	sort.SliceStable(items, func(a, b int) bool { return items[a].Expires.Before(*items[b].Expires) })
	return items, err
}

func (s *memStore) Update(ctx context.Context, item *domain.InboxItem) error {
	s.mu.Lock()
	if s.failWrites {
		s.mu.Unlock()
		return errDisk
	}
	if _, ok := s.items[item.ID]; !ok {
		s.mu.Unlock()
		return repo.ErrNotFound
	}
	s.items[item.ID] = item.Clone()
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *memStore) DeleteByID(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.failWrites {
		s.mu.Unlock()
		return errDisk
	}
	delete(s.items, id)
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *memStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	if s.failWrites {
		s.mu.Unlock()
		return errDisk
	}
	s.items = make(map[string]*domain.InboxItem)
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *memStore) ApplyChanges(ctx context.Context, upserts []*domain.InboxItem, deleteIDs []string) error {
	if len(upserts) == 0 && len(deleteIDs) == 0 {
		return nil
	}
	s.mu.Lock()
	if s.failWrites {
		s.mu.Unlock()
		return errDisk
	}
	s.applyCalls++
	for _, item := range upserts {
		s.items[item.ID] = item.Clone()
	}
	for _, id := range deleteIDs {
		delete(s.items, id)
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) put(items ...*domain.InboxItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.items[item.ID] = item.Clone()
	}
}

func (s *memStore) get(id string) *domain.InboxItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.items[id]; ok {
		return item.Clone()
	}
	return nil
}

func (s *memStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// fakeRemote serves a fixed listing in pages
type fakeRemote struct {
	mu            sync.Mutex
	items         []*domain.RemoteItem
	unread        int
	notifications map[string]*domain.Notification

	failAtSkip int // -1 disables
	fetchErr   error
	block      chan struct{}
	pageCalls  int
	fetchCalls int
}

func newFakeRemote(items ...*domain.RemoteItem) *fakeRemote {
	return &fakeRemote{
		items:         items,
		notifications: make(map[string]*domain.Notification),
		failAtSkip:    -1,
	}
}

func (r *fakeRemote) FetchInbox(ctx context.Context, skip, limit int) (*domain.RemoteInbox, error) {
	r.mu.Lock()
	r.pageCalls++
	block := r.block
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAtSkip >= 0 && skip >= r.failAtSkip {
		return nil, errors.New("connection reset")
	}
	end := skip + limit
	if end > len(r.items) {
		end = len(r.items)
	}
	page := &domain.RemoteInbox{Count: len(r.items), Unread: r.unread}
	if skip < len(r.items) {
		page.Items = append(page.Items, r.items[skip:end]...)
	}
	return page, nil
}

func (r *fakeRemote) FetchNotification(ctx context.Context, itemID string) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchCalls++
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	n, ok := r.notifications[itemID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	c := *n
	return &c, nil
}

func (r *fakeRemote) calls() (pages, fetches int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pageCalls, r.fetchCalls
}

// fakeTimer records schedules in memory
type fakeTimer struct {
	mu        sync.Mutex
	scheduled map[string]time.Time
	failAll   bool
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{scheduled: make(map[string]time.Time)}
}

func (t *fakeTimer) ScheduleOnce(ctx context.Context, key string, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failAll {
		return errDisk
	}
	t.scheduled[key] = at
	return nil
}

func (t *fakeTimer) Cancel(ctx context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failAll {
		return errDisk
	}
	delete(t.scheduled, key)
	return nil
}

func (t *fakeTimer) CancelAll(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failAll {
		return errDisk
	}
	t.scheduled = make(map[string]time.Time)
	return nil
}

func (t *fakeTimer) at(key string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.scheduled[key]
	return at, ok
}

func (t *fakeTimer) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.scheduled)
}

// recorder collects notification center removals and analytics events
type recorder struct {
	mu      sync.Mutex
	removed []string
	opened  []string
}

func (r *recorder) Remove(ctx context.Context, notificationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, notificationID)
	return nil
}

func (r *recorder) LogNotificationOpen(ctx context.Context, notificationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, notificationID)
	return nil
}

func (r *recorder) removals() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.removed...)
}

func (r *recorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.opened...)
}

// fakeClock is a settable time source
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testInbox struct {
	*InboxUsecase
	store  *memStore
	remote *fakeRemote
	timer  *fakeTimer
	rec    *recorder
	clock  *fakeClock
}

func newTestInbox(t *testing.T, remote *fakeRemote, seed ...*domain.InboxItem) *testInbox {
	t.Helper()
	return buildTestInbox(t, true, remote, seed...)
}

func buildTestInbox(t *testing.T, enabled bool, remote *fakeRemote, seed ...*domain.InboxItem) *testInbox {
	t.Helper()
	if remote == nil {
		remote = newFakeRemote()
	}
	ti := &testInbox{
		store:  newMemStore(),
		remote: remote,
		timer:  newFakeTimer(),
		rec:    &recorder{},
		clock:  &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	ti.store.put(seed...)
	ti.InboxUsecase = NewInboxUsecase(
		ti.store, ti.remote, ti.timer, ti.rec, ti.rec,
		InboxConfig{Enabled: enabled, PageSize: 2},
		WithClock(ti.clock.Now),
	)
	require.NoError(t, ti.Configure(context.Background()))
	return ti
}

func item(id string, at time.Time) *domain.InboxItem {
	return &domain.InboxItem{
		ID:             id,
		NotificationID: "n-" + id,
		Notification:   domain.Notification{ID: "n-" + id, Message: "msg " + id, Time: at, Partial: true},
		Time:           at,
		Visible:        true,
	}
}

func remoteItem(id string, at time.Time) *domain.RemoteItem {
	return &domain.RemoteItem{
		ID:             id,
		NotificationID: "n-" + id,
		Time:           at,
		Message:        "msg " + id,
		Visible:        true,
	}
}

func ids(snap domain.Snapshot) []string {
	out := make([]string, 0, len(snap.Items))
	for _, it := range snap.Items {
		out = append(out, it.ID)
	}
	return out
}

func ptr[T any](v T) *T { return &v }
