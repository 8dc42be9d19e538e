package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/devricklin/inboxsync/internal/biz/usecase"
	"github.com/devricklin/inboxsync/internal/log"
)

// Module is one feature module driven through the application lifecycle
type Module interface {
	Name() string
	Configure(ctx context.Context) error
	ClearStorage(ctx context.Context) error
	Launch(ctx context.Context) error
	Unlaunch(ctx context.Context) error
}

// Registry runs lifecycle hooks over an explicit, ordered module list
type Registry struct {
	modules []Module
	logger  *log.Logger
}

// NewRegistry creates a registry; modules run in the given order
func NewRegistry(logger *log.Logger, modules ...Module) *Registry {
	return &Registry{
		modules: modules,
		logger:  log.OrNop(logger).Named("modules"),
	}
}

// Modules returns the registered modules in order
func (r *Registry) Modules() []Module {
	return append([]Module(nil), r.modules...)
}

// Configure configures every module, stopping at the first failure
func (r *Registry) Configure(ctx context.Context) error {
	for _, m := range r.modules {
		if err := m.Configure(ctx); err != nil {
			return fmt.Errorf("configure %s: %w", m.Name(), err)
		}
		r.logger.Infow("Module configured", "module", m.Name())
	}
	return nil
}

// Launch launches every module, stopping at the first failure
func (r *Registry) Launch(ctx context.Context) error {
	for _, m := range r.modules {
		if err := m.Launch(ctx); err != nil {
			return fmt.Errorf("launch %s: %w", m.Name(), err)
		}
		r.logger.Infow("Module launched", "module", m.Name())
	}
	return nil
}

// ClearStorage clears every module's storage, attempting all of them
func (r *Registry) ClearStorage(ctx context.Context) error {
	var errs []error
	for _, m := range r.modules {
		if err := m.ClearStorage(ctx); err != nil {
			errs = append(errs, fmt.Errorf("clear storage %s: %w", m.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Unlaunch unlaunches every module in reverse order, attempting all of them
func (r *Registry) Unlaunch(ctx context.Context) error {
	var errs []error
	for i := len(r.modules) - 1; i >= 0; i-- {
		m := r.modules[i]
		if err := m.Unlaunch(ctx); err != nil {
			errs = append(errs, fmt.Errorf("unlaunch %s: %w", m.Name(), err))
			continue
		}
		r.logger.Infow("Module unlaunched", "module", m.Name())
	}
	return errors.Join(errs...)
}

// InboxModule binds the inbox engine and its background loops to the lifecycle
type InboxModule struct {
	inbox   *usecase.InboxUsecase
	timer   *TimerRunner
	refresh *RefreshLoop
	logger  *log.Logger
}

var _ Module = (*InboxModule)(nil)

// NewInboxModule creates the inbox module and routes timer firings to the engine
func NewInboxModule(inbox *usecase.InboxUsecase, timer *TimerRunner, refresh *RefreshLoop, logger *log.Logger) *InboxModule {
	timer.OnFire(inbox.HandleExpiration)
	return &InboxModule{
		inbox:   inbox,
		timer:   timer,
		refresh: refresh,
		logger:  log.OrNop(logger).Named("inbox-module"),
	}
}

// Name returns the module name
func (m *InboxModule) Name() string {
	return "inbox"
}

// Configure rehydrates the engine and starts firing expirations
func (m *InboxModule) Configure(ctx context.Context) error {
	if err := m.inbox.Configure(ctx); err != nil {
		return err
	}
	m.timer.Start(context.WithoutCancel(ctx))
	return nil
}

// ClearStorage clears the inbox cache
func (m *InboxModule) ClearStorage(ctx context.Context) error {
	return m.inbox.Clear(ctx)
}

// Launch performs the initial refresh and starts periodic resync.
// A failed initial refresh is logged; the cached inbox stays usable.
func (m *InboxModule) Launch(ctx context.Context) error {
	if err := m.inbox.Refresh(ctx); err != nil {
		m.logger.Warnw("Initial refresh failed", "error", err)
	}
	if m.refresh != nil {
		m.refresh.Start(context.WithoutCancel(ctx))
	}
	return nil
}

// Unlaunch stops background work and clears the cache
func (m *InboxModule) Unlaunch(ctx context.Context) error {
	if m.refresh != nil {
		m.refresh.Stop()
	}
	err := m.inbox.Unlaunch(ctx)
	m.timer.Stop()
	return err
}

// Stop halts background work and keeps the cache for the next start
func (m *InboxModule) Stop() {
	if m.refresh != nil {
		m.refresh.Stop()
	}
	m.timer.Stop()
}
