package data

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/devricklin/inboxsync/internal/biz/repo"
	"github.com/devricklin/inboxsync/internal/conf"
	"github.com/devricklin/inboxsync/internal/log"
)

// Repositories contains all repositories
type Repositories struct {
	Inbox  repo.InboxRepo
	Timers repo.TimerStore
	Remote repo.RemoteInboxRepo
	Center repo.NotificationCenterRepo
	Events repo.EventRepo

	// Presenter is set when Feishu is configured
	Presenter *FeishuPresenter
}

// NewRepositories creates all repositories. messenger may be nil when Feishu is not configured.
func NewRepositories(cfg *conf.Config, messenger Messenger, logger *log.Logger) (*Repositories, error) {
	inboxRepo, err := NewInboxRepo(cfg.Inbox.DBPath)
	if err != nil {
		return nil, err
	}

	repos := &Repositories{
		Inbox: inboxRepo,
		Remote: NewRemoteInboxRepo(
			cfg.Remote.BaseURL,
			cfg.Remote.Token,
			cfg.Inbox.DeviceID,
			&http.Client{Timeout: cfg.Remote.Timeout()},
		),
	}

	switch cfg.Timer.Backend {
	case conf.TimerBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			client.Close()
			repos.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		// The timer store owns the client from here on
		repos.Timers = NewRedisTimerRepo(client, cfg.Redis.Key)
	default:
		// Timer entries share the inbox database file
		timerRepo, err := NewTimerRepo(cfg.Inbox.DBPath)
		if err != nil {
			repos.Close()
			return nil, err
		}
		repos.Timers = timerRepo
	}

	if messenger != nil {
		repos.Presenter = NewFeishuPresenter(messenger, cfg.Feishu.InboxChatID, logger)
		repos.Center = repos.Presenter
		repos.Events = NewEventRepo(messenger, cfg.Feishu.EventChatID, logger)
	} else {
		repos.Center = NewLogNotificationCenter(logger)
		repos.Events = NewEventRepo(nil, "", logger)
	}

	return repos, nil
}

// Close closes every underlying connection
func (r *Repositories) Close() error {
	var errs []error
	if r.Inbox != nil {
		errs = append(errs, r.Inbox.Close())
	}
	if r.Timers != nil {
		errs = append(errs, r.Timers.Close())
	}
	return errors.Join(errs...)
}

// logNotificationCenter records removals when no presentation surface is attached
type logNotificationCenter struct {
	logger *log.Logger
}

// NewLogNotificationCenter creates a notification center that only logs
func NewLogNotificationCenter(logger *log.Logger) repo.NotificationCenterRepo {
	return &logNotificationCenter{logger: log.OrNop(logger).Named("notification-center")}
}

func (c *logNotificationCenter) Remove(ctx context.Context, notificationID string) error {
	c.logger.Debugw("Notification removal requested", "notification_id", notificationID)
	return nil
}
