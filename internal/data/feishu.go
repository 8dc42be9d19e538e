package data

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/devricklin/inboxsync/internal/biz/domain"
	"github.com/devricklin/inboxsync/internal/biz/repo"
	"github.com/devricklin/inboxsync/internal/log"
)

// EventNotificationOpen is the analytics event name for a user-initiated read
const EventNotificationOpen = "re.notification.open"

// Messenger is the subset of the Feishu client used by the presenter
type Messenger interface {
	SendText(ctx context.Context, chatID, text string) (string, error)
	DeleteMessage(ctx context.Context, messageID string) error
}

// FeishuPresenter surfaces notifications as chat messages and retracts them
type FeishuPresenter struct {
	client Messenger
	chatID string
	logger *log.Logger

	mu       sync.Mutex
	messages map[string]string // notificationID -> messageID
}

// NewFeishuPresenter creates a presenter posting into chatID
func NewFeishuPresenter(client Messenger, chatID string, logger *log.Logger) *FeishuPresenter {
	return &FeishuPresenter{
		client:   client,
		chatID:   chatID,
		logger:   log.OrNop(logger).Named("presenter"),
		messages: make(map[string]string),
	}
}

// Present posts a notification and remembers the message for later recall
func (p *FeishuPresenter) Present(ctx context.Context, n *domain.Notification) error {
	if n == nil || n.ID == "" {
		return nil
	}
	msgID, err := p.client.SendText(ctx, p.chatID, FormatNotification(n))
	if err != nil {
		return fmt.Errorf("failed to present notification: %w", err)
	}
	if msgID == "" {
		return nil
	}

	p.mu.Lock()
	p.messages[n.ID] = msgID
	p.mu.Unlock()
	return nil
}

// Remove recalls the message presenting notificationID, if any
func (p *FeishuPresenter) Remove(ctx context.Context, notificationID string) error {
	p.mu.Lock()
	msgID, ok := p.messages[notificationID]
	delete(p.messages, notificationID)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	if err := p.client.DeleteMessage(ctx, msgID); err != nil {
		return fmt.Errorf("failed to recall notification message: %w", err)
	}
	p.logger.Debugw("Recalled notification", "notification_id", notificationID, "msg_id", msgID)
	return nil
}

// Presented reports whether a notification currently has a message on screen
func (p *FeishuPresenter) Presented(notificationID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.messages[notificationID]
	return ok
}

// FormatNotification renders a notification as chat text
func FormatNotification(n *domain.Notification) string {
	var parts []string
	if n.Title != "" {
		parts = append(parts, n.Title)
	}
	if n.Subtitle != "" {
		parts = append(parts, n.Subtitle)
	}
	if n.Message != "" {
		parts = append(parts, n.Message)
	}
	if len(parts) == 0 {
		return "[Notification]"
	}
	return strings.Join(parts, "\n")
}

// eventRepo posts analytics events to a chat, or logs them when no chat is set
type eventRepo struct {
	client Messenger
	chatID string
	logger *log.Logger
}

// NewEventRepo creates the analytics event log
func NewEventRepo(client Messenger, chatID string, logger *log.Logger) repo.EventRepo {
	return &eventRepo{
		client: client,
		chatID: chatID,
		logger: log.OrNop(logger).Named("events"),
	}
}

// LogNotificationOpen records a user-initiated read
func (r *eventRepo) LogNotificationOpen(ctx context.Context, notificationID string) error {
	r.logger.Infow("Analytics event", "event", EventNotificationOpen, "notification_id", notificationID)
	if r.client == nil || r.chatID == "" {
		return nil
	}
	text := fmt.Sprintf("%s notification_id=%s", EventNotificationOpen, notificationID)
	if _, err := r.client.SendText(ctx, r.chatID, text); err != nil {
		return fmt.Errorf("failed to log event: %w", err)
	}
	return nil
}
