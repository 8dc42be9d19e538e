package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/devricklin/inboxsync/internal/biz/domain"
)

// Client is the HTTP client for the local inbox API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx answer from the inbox API
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("HTTP %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// ============ Inbox Operations ============

// GetInbox gets the current snapshot
func (c *Client) GetInbox(ctx context.Context) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/inbox", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetBadge gets the unread badge
func (c *Client) GetBadge(ctx context.Context) (int, error) {
	var result struct {
		Badge int `json:"badge"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/inbox/badge", nil, &result); err != nil {
		return 0, err
	}
	return result.Badge, nil
}

// Refresh resyncs with the server and returns the new snapshot
func (c *Client) Refresh(ctx context.Context) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := c.do(ctx, http.MethodPost, "/api/inbox/refresh", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Open returns the full notification and marks the item read
func (c *Client) Open(ctx context.Context, id string) (*domain.Notification, error) {
	var n domain.Notification
	path := fmt.Sprintf("/api/inbox/%s/open", url.PathEscape(id))
	if err := c.do(ctx, http.MethodPost, path, nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// MarkAsRead marks one item read
func (c *Client) MarkAsRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/inbox/%s/read", url.PathEscape(id)), nil, nil)
}

// MarkAllAsRead marks every visible item read and returns the new badge
func (c *Client) MarkAllAsRead(ctx context.Context) (int, error) {
	var result struct {
		Badge int `json:"badge"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/inbox/read-all", nil, &result); err != nil {
		return 0, err
	}
	return result.Badge, nil
}

// Remove deletes one item
func (c *Client) Remove(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/inbox/%s", url.PathEscape(id)), nil, nil)
}

// Clear deletes every item
func (c *Client) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/inbox", nil, nil)
}

// ============ HTTP Helpers ============

func (c *Client) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(respBody, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Code = payload.Code
		}
		return apiErr
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
