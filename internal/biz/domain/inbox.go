package domain

import (
	"sort"
	"time"
)

// Attachment is a media reference carried by a notification
type Attachment struct {
	MimeType string `json:"mimeType"`
	URI      string `json:"uri"`
}

// Notification is the payload an inbox item points to.
// Partial notifications only carry the summary fields and must be fetched in full on open.
type Notification struct {
	ID          string         `json:"id"`
	Type        string         `json:"type,omitempty"`
	Title       string         `json:"title,omitempty"`
	Subtitle    string         `json:"subtitle,omitempty"`
	Message     string         `json:"message"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
	Time        time.Time      `json:"time"`
	Partial     bool           `json:"partial"`
}

// InboxItem represents one cached inbox entry
type InboxItem struct {
	ID             string       `json:"id"`
	NotificationID string       `json:"notificationId"`
	Notification   Notification `json:"notification"`
	Time           time.Time    `json:"time"`
	Opened         bool         `json:"opened"`
	Visible        bool         `json:"visible"`
	Expires        *time.Time   `json:"expires,omitempty"`
}

// IsExpired reports whether the item's expiration has lapsed at now
func (i *InboxItem) IsExpired(now time.Time) bool {
	return i.Expires != nil && !i.Expires.After(now)
}

// IsSurfaced reports whether the item belongs to the UI-facing projection at now
func (i *InboxItem) IsSurfaced(now time.Time) bool {
	return i.Visible && !i.IsExpired(now)
}

// Clone returns a deep copy so callers can mutate without touching shared snapshots
func (i *InboxItem) Clone() *InboxItem {
	c := *i
	if i.Expires != nil {
		exp := *i.Expires
		c.Expires = &exp
	}
	if i.Notification.Attachments != nil {
		c.Notification.Attachments = append([]Attachment(nil), i.Notification.Attachments...)
	}
	if i.Notification.Extra != nil {
		c.Notification.Extra = make(map[string]any, len(i.Notification.Extra))
		for k, v := range i.Notification.Extra {
			c.Notification.Extra[k] = v
		}
	}
	return &c
}

// SortItems orders items newest first; ties are broken by ID ascending
func SortItems(items []*InboxItem) {
	sort.SliceStable(items, func(a, b int) bool {
		if !items[a].Time.Equal(items[b].Time) {
			return items[a].Time.After(items[b].Time)
		}
		return items[a].ID < items[b].ID
	})
}

// Snapshot is one published value of the live projection
type Snapshot struct {
	Items []*InboxItem `json:"items"`
	Badge int          `json:"badge"`
	At    time.Time    `json:"at"`
}

// BuildSnapshot filters, sorts and counts items as seen at now
func BuildSnapshot(items []*InboxItem, now time.Time) Snapshot {
	visible := make([]*InboxItem, 0, len(items))
	badge := 0
	for _, item := range items {
		if !item.IsSurfaced(now) {
			continue
		}
		visible = append(visible, item)
		if !item.Opened {
			badge++
		}
	}
	SortItems(visible)
	return Snapshot{Items: visible, Badge: badge, At: now}
}

// RemoteItem is one descriptor of the authoritative server listing
type RemoteItem struct {
	ID             string
	NotificationID string
	Type           string
	Time           time.Time
	Title          string
	Subtitle       string
	Message        string
	Attachment     *Attachment
	Extra          map[string]any
	Opened         bool
	Visible        bool
	Expires        *time.Time
}

// ToInboxItem converts the descriptor into a cache entry carrying a partial notification
func (r *RemoteItem) ToInboxItem() *InboxItem {
	n := Notification{
		ID:       r.NotificationID,
		Type:     r.Type,
		Title:    r.Title,
		Subtitle: r.Subtitle,
		Message:  r.Message,
		Extra:    r.Extra,
		Time:     r.Time,
		Partial:  true,
	}
	if r.Attachment != nil {
		n.Attachments = []Attachment{*r.Attachment}
	}
	item := &InboxItem{
		ID:             r.ID,
		NotificationID: r.NotificationID,
		Notification:   n,
		Time:           r.Time,
		Opened:         r.Opened,
		Visible:        r.Visible,
	}
	if r.Expires != nil {
		exp := *r.Expires
		item.Expires = &exp
	}
	return item
}

// RemoteInbox is one page of the server listing plus the server-reported counters
type RemoteInbox struct {
	Items  []*RemoteItem
	Count  int
	Unread int
}

// Arrival describes an item delivered out-of-band, e.g. from a push payload
type Arrival struct {
	ID           string
	Notification Notification
	Time         time.Time
	Visible      bool
	Expires      *time.Time
}
