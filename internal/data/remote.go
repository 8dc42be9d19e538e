package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/devricklin/inboxsync/internal/biz/domain"
	"github.com/devricklin/inboxsync/internal/biz/repo"
)

// HTTPError is a non-2xx response from the inbox API
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps 404 to repo.ErrNotFound
func (e *HTTPError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return repo.ErrNotFound
	}
	return nil
}

// remoteAttachment is the wire form of an attachment
type remoteAttachment struct {
	MimeType string `json:"mimeType"`
	URI      string `json:"uri"`
}

// remoteInboxItem is the wire form of one listing entry
type remoteInboxItem struct {
	ID           string            `json:"_id"`
	Notification string            `json:"notification"`
	Type         string            `json:"type"`
	Time         time.Time         `json:"time"`
	Title        string            `json:"title"`
	Subtitle     string            `json:"subtitle"`
	Message      string            `json:"message"`
	Attachment   *remoteAttachment `json:"attachment"`
	Extra        map[string]any    `json:"extra"`
	Opened       bool              `json:"opened"`
	Visible      *bool             `json:"visible"`
	Expires      *time.Time        `json:"expires"`
}

type remoteInboxResponse struct {
	InboxItems []remoteInboxItem `json:"inboxItems"`
	Count      int               `json:"count"`
	Unread     int               `json:"unread"`
}

type remoteNotification struct {
	ID          string             `json:"_id"`
	Type        string             `json:"type"`
	Time        time.Time          `json:"time"`
	Title       string             `json:"title"`
	Subtitle    string             `json:"subtitle"`
	Message     string             `json:"message"`
	Attachments []remoteAttachment `json:"attachments"`
	Extra       map[string]any     `json:"extra"`
}

type remoteNotificationResponse struct {
	Notification remoteNotification `json:"notification"`
}

// remoteInboxRepo fetches the inbox listing over HTTP.
// Transient failures (transport errors, 429, 5xx) are retried with exponential backoff;
// repeated exhausted retries open the breaker so a dead server fails fast.
type remoteInboxRepo struct {
	baseURL    string
	token      string
	deviceID   string
	httpClient *http.Client
	maxTries   uint
	cb         *gobreaker.CircuitBreaker
}

// NewRemoteInboxRepo creates the HTTP remote collaborator
func NewRemoteInboxRepo(baseURL, token, deviceID string, httpClient *http.Client) repo.RemoteInboxRepo {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &remoteInboxRepo{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		deviceID:   deviceID,
		httpClient: httpClient,
		maxTries:   3,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "inbox-remote",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 3
			},
			// A missing item or a cancelled caller says nothing about server health
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, repo.ErrNotFound) || errors.Is(err, context.Canceled)
			},
		}),
	}
}

// FetchInbox fetches one page of the device's inbox
func (r *remoteInboxRepo) FetchInbox(ctx context.Context, skip, limit int) (*domain.RemoteInbox, error) {
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp remoteInboxResponse
	path := fmt.Sprintf("/notification/inbox/fordevice/%s?%s", url.PathEscape(r.deviceID), q.Encode())
	if err := r.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}

	result := &domain.RemoteInbox{
		Items:  make([]*domain.RemoteItem, 0, len(resp.InboxItems)),
		Count:  resp.Count,
		Unread: resp.Unread,
	}
	for _, it := range resp.InboxItems {
		item := &domain.RemoteItem{
			ID:             it.ID,
			NotificationID: it.Notification,
			Type:           it.Type,
			Time:           it.Time,
			Title:          it.Title,
			Subtitle:       it.Subtitle,
			Message:        it.Message,
			Extra:          it.Extra,
			Opened:         it.Opened,
			Visible:        it.Visible == nil || *it.Visible,
			Expires:        it.Expires,
		}
		if it.Attachment != nil {
			item.Attachment = &domain.Attachment{MimeType: it.Attachment.MimeType, URI: it.Attachment.URI}
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

// FetchNotification fetches the full notification of an inbox item
func (r *remoteInboxRepo) FetchNotification(ctx context.Context, itemID string) (*domain.Notification, error) {
	var resp remoteNotificationResponse
	path := fmt.Sprintf("/notification/inbox/item/%s", url.PathEscape(itemID))
	if err := r.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}

	n := resp.Notification
	notification := &domain.Notification{
		ID:       n.ID,
		Type:     n.Type,
		Title:    n.Title,
		Subtitle: n.Subtitle,
		Message:  n.Message,
		Extra:    n.Extra,
		Time:     n.Time,
	}
	for _, a := range n.Attachments {
		notification.Attachments = append(notification.Attachments, domain.Attachment{MimeType: a.MimeType, URI: a.URI})
	}
	return notification, nil
}

func (r *remoteInboxRepo) getJSON(ctx context.Context, path string, out any) error {
	_, err := r.cb.Execute(func() (interface{}, error) {
		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = 100 * time.Millisecond
		policy.MaxInterval = 2 * time.Second

		return backoff.Retry(ctx, func() (struct{}, error) {
			return struct{}{}, r.doGet(ctx, path, out)
		}, backoff.WithBackOff(policy), backoff.WithMaxTries(r.maxTries))
	})
	return err
}

func (r *remoteInboxRepo) doGet(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Correlation-Id", uuid.NewString())

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	payload, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return err
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if err := json.Unmarshal(payload, out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	}

	var errPayload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payload, &errPayload)
	msg := errPayload.Message
	if msg == "" {
		msg = errPayload.Error
	}
	httpErr := &HTTPError{StatusCode: resp.StatusCode, Message: msg}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return httpErr
	}
	return backoff.Permanent(httpErr)
}
