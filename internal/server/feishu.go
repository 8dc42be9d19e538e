package server

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/devricklin/inboxsync/internal/biz/domain"
	"github.com/devricklin/inboxsync/internal/infra/feishu"
	"github.com/devricklin/inboxsync/internal/log"
)

// Intake receives out-of-band inbox signals
type Intake interface {
	HandleArrival(ctx context.Context, arrival domain.Arrival)
	HandleExternalRead(ctx context.Context, id string)
}

// Presenter surfaces a newly arrived notification
type Presenter interface {
	Present(ctx context.Context, n *domain.Notification) error
}

// MessageSource delivers chat messages
type MessageSource interface {
	OnMessage(handler feishu.MessageHandler)
	Start(ctx context.Context) error
}

const seenTTL = 10 * time.Minute

// FeishuServer turns messages in the inbox chat into intake signals
type FeishuServer struct {
	source    MessageSource
	intake    Intake
	presenter Presenter
	parser    *SignalParser
	chatID    string
	logger    *log.Logger

	// Message deduplication cache
	seenMsgsMu sync.Mutex
	seenMsgs   map[string]time.Time // msgID -> timestamp
}

// NewFeishuServer creates a new Feishu server. presenter may be nil.
func NewFeishuServer(
	source MessageSource,
	intake Intake,
	presenter Presenter,
	parser *SignalParser,
	chatID string,
	logger *log.Logger,
) *FeishuServer {
	return &FeishuServer{
		source:    source,
		intake:    intake,
		presenter: presenter,
		parser:    parser,
		chatID:    chatID,
		logger:    log.OrNop(logger).Named("feishu-server"),
		seenMsgs:  make(map[string]time.Time),
	}
}

// Start listens for messages until ctx is done
func (s *FeishuServer) Start(ctx context.Context) error {
	s.source.OnMessage(func(msg *feishu.Message) {
		s.handleMessage(ctx, msg)
	})
	return s.source.Start(ctx)
}

func (s *FeishuServer) handleMessage(ctx context.Context, msg *feishu.Message) {
	if s.chatID != "" && msg.ChatID != s.chatID {
		return
	}
	// Presented notifications are posted by the bot itself
	if msg.SenderType == "app" {
		return
	}
	if !LooksLikeSignal(msg.Text) {
		return
	}
	if s.isMessageSeen(msg.MsgID) {
		s.logger.Debugw("Duplicate message ignored", "msg_id", msg.MsgID)
		return
	}
	s.markMessageSeen(msg.MsgID)

	if err := s.HandleSignal(ctx, []byte(strings.TrimSpace(msg.Text))); err != nil {
		s.logger.Warnw("Rejected signal", "msg_id", msg.MsgID, "error", err)
	}
}

// HandleSignal validates a raw signal and routes it to intake
func (s *FeishuServer) HandleSignal(ctx context.Context, data []byte) error {
	sig, err := s.parser.Parse(data)
	if err != nil {
		return err
	}
	return Dispatch(ctx, sig, s.intake, s.presenter, s.logger)
}

// Dispatch routes a parsed signal to intake and, for visible arrivals, the presenter
func Dispatch(ctx context.Context, sig *Signal, intake Intake, presenter Presenter, logger *log.Logger) error {
	switch sig.Type {
	case SignalArrived:
		arrival := sig.Arrival()
		intake.HandleArrival(ctx, arrival)
		if presenter != nil && arrival.Visible {
			if err := presenter.Present(ctx, &arrival.Notification); err != nil {
				log.OrNop(logger).Warnw("Failed to present notification", "notification_id", arrival.Notification.ID, "error", err)
			}
		}
		return nil
	case SignalRead:
		intake.HandleExternalRead(ctx, sig.ID)
		return nil
	default:
		return fmt.Errorf("unknown signal type %q", sig.Type)
	}
}

func (s *FeishuServer) isMessageSeen(msgID string) bool {
	s.seenMsgsMu.Lock()
	defer s.seenMsgsMu.Unlock()
	_, ok := s.seenMsgs[msgID]
	return ok
}

func (s *FeishuServer) markMessageSeen(msgID string) {
	s.seenMsgsMu.Lock()
	defer s.seenMsgsMu.Unlock()

	now := time.Now()
	s.seenMsgs[msgID] = now
	for id, at := range s.seenMsgs {
		if now.Sub(at) > seenTTL {
			delete(s.seenMsgs, id)
		}
	}
}
