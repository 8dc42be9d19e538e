package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"

	"github.com/devricklin/inboxsync/internal/log"
)

// Message represents a received Feishu text message
type Message struct {
	ChatID     string
	MsgID      string
	Text       string
	SenderType string // user, app
	CreateTime int64  // milliseconds Unix timestamp from Feishu
}

// MessageHandler is the callback for received messages
type MessageHandler func(msg *Message)

// Client is the Feishu API client
type Client struct {
	appID     string
	appSecret string
	larkCli   *lark.Client
	wsCli     *larkws.Client
	onMessage MessageHandler
	logger    *log.Logger
}

// NewClient creates a new Feishu client
func NewClient(appID, appSecret string, logger *log.Logger) *Client {
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		larkCli:   lark.NewClient(appID, appSecret),
		logger:    log.OrNop(logger).Named("feishu"),
	}
}

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// Start connects to Feishu via WebSocket and blocks until ctx is done
func (c *Client) Start(ctx context.Context) error {
	// Must return quickly so the SDK can ACK, otherwise Feishu retries the event
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(_ context.Context, event *larkim.P2MessageReceiveV1) error {
			go c.handleMessage(event)
			return nil
		})

	c.wsCli = larkws.NewClient(c.appID, c.appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	c.logger.Info("Starting WebSocket connection")
	return c.wsCli.Start(ctx)
}

func (c *Client) handleMessage(event *larkim.P2MessageReceiveV1) {
	if event.Event == nil || event.Event.Message == nil {
		return
	}
	rawMsg := event.Event.Message

	msg := &Message{}
	if rawMsg.ChatId != nil {
		msg.ChatID = *rawMsg.ChatId
	}
	if rawMsg.MessageId != nil {
		msg.MsgID = *rawMsg.MessageId
	}
	if rawMsg.CreateTime != nil {
		if ts, err := strconv.ParseInt(*rawMsg.CreateTime, 10, 64); err == nil {
			msg.CreateTime = ts
		}
	}
	if event.Event.Sender != nil && event.Event.Sender.SenderType != nil {
		msg.SenderType = *event.Event.Sender.SenderType
	}

	if rawMsg.MessageType == nil || *rawMsg.MessageType != larkim.MsgTypeText || rawMsg.Content == nil {
		c.logger.Debugw("Ignoring non-text message", "msg_id", msg.MsgID)
		return
	}
	text, err := ParseTextContent(*rawMsg.Content)
	if err != nil {
		c.logger.Warnw("Failed to parse text content", "msg_id", msg.MsgID, "error", err)
		return
	}
	msg.Text = text

	c.logger.Debugw("Received message", "chat_id", msg.ChatID, "msg_id", msg.MsgID)

	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

// ParseTextContent extracts the text from a text message content payload
func ParseTextContent(content string) (string, error) {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return "", fmt.Errorf("failed to parse text content: %w", err)
	}
	return parsed.Text, nil
}

// SendText sends a text message to a chat and returns the message ID
func (c *Client) SendText(ctx context.Context, chatID, text string) (string, error) {
	contentJSON, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("failed to marshal content: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(larkim.MsgTypeText).
			Content(string(contentJSON)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("send message failed: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("send message error: %s", resp.Msg)
	}

	msgID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		msgID = *resp.Data.MessageId
	}
	c.logger.Debugw("Message sent", "chat_id", chatID, "msg_id", msgID)
	return msgID, nil
}

// DeleteMessage recalls a message the bot sent
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	req := larkim.NewDeleteMessageReqBuilder().
		MessageId(messageID).
		Build()

	resp, err := c.larkCli.Im.Message.Delete(ctx, req)
	if err != nil {
		return fmt.Errorf("delete message failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("delete message error: %s", resp.Msg)
	}
	return nil
}
