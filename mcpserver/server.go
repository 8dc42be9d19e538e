package mcpserver

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/devricklin/inboxsync/internal/biz/domain"
)

// InboxClient is the inbox API used by the tools
type InboxClient interface {
	GetInbox(ctx context.Context) (*domain.Snapshot, error)
	GetBadge(ctx context.Context) (int, error)
	Refresh(ctx context.Context) (*domain.Snapshot, error)
	MarkAsRead(ctx context.Context, id string) error
	MarkAllAsRead(ctx context.Context) (int, error)
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// InboxMCPServer provides MCP tools over the local inbox
type InboxMCPServer struct {
	server *mcp.Server
	client InboxClient
}

// NewServer creates a new inbox MCP server
func NewServer(client InboxClient) *InboxMCPServer {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "inbox-tools",
		Version: "v1.0.0",
	}, nil)

	s := &InboxMCPServer{
		server: server,
		client: client,
	}
	s.registerTools()
	return s
}

// Server returns the underlying MCP server
func (s *InboxMCPServer) Server() *mcp.Server {
	return s.server
}

// Run serves the tools over stdio until ctx is done
func (s *InboxMCPServer) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// registerTools registers all inbox MCP tools
func (s *InboxMCPServer) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "inbox_list",
		Description: "List visible inbox items, newest first, with the unread badge.",
	}, s.handleList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "inbox_badge",
		Description: "Get the number of unread, visible inbox items.",
	}, s.handleBadge)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "inbox_refresh",
		Description: "Resync the inbox with the server and return the updated list.",
	}, s.handleRefresh)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "inbox_mark_read",
		Description: "Mark one inbox item as read.",
	}, s.handleMarkRead)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "inbox_mark_all_read",
		Description: "Mark every visible inbox item as read.",
	}, s.handleMarkAllRead)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "inbox_remove",
		Description: "Remove one item from the inbox.",
	}, s.handleRemove)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "inbox_clear",
		Description: "Remove every item from the local inbox cache.",
	}, s.handleClear)
}

// Item is an inbox row as shown to the agent
type Item struct {
	ID       string    `json:"id"`
	Title    string    `json:"title,omitempty"`
	Subtitle string    `json:"subtitle,omitempty"`
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`
	Opened   bool      `json:"opened"`
}

// ListInput specifies how many items to return
type ListInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of items to return (default 20)"`
}

// ListOutput contains inbox items and the badge
type ListOutput struct {
	Items []Item `json:"items"`
	Badge int    `json:"badge"`
	Error string `json:"error,omitempty"`
}

func (s *InboxMCPServer) handleList(ctx context.Context, req *mcp.CallToolRequest, input ListInput) (*mcp.CallToolResult, ListOutput, error) {
	snap, err := s.client.GetInbox(ctx)
	if err != nil {
		return nil, ListOutput{Items: []Item{}, Error: err.Error()}, nil
	}
	return nil, toListOutput(snap, input.Limit), nil
}

// BadgeInput is empty - no input needed
type BadgeInput struct{}

// BadgeOutput contains the unread badge
type BadgeOutput struct {
	Badge int    `json:"badge"`
	Error string `json:"error,omitempty"`
}

func (s *InboxMCPServer) handleBadge(ctx context.Context, req *mcp.CallToolRequest, input BadgeInput) (*mcp.CallToolResult, BadgeOutput, error) {
	badge, err := s.client.GetBadge(ctx)
	if err != nil {
		return nil, BadgeOutput{Error: err.Error()}, nil
	}
	return nil, BadgeOutput{Badge: badge}, nil
}

// RefreshInput specifies how many items to return after the resync
type RefreshInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of items to return (default 20)"`
}

func (s *InboxMCPServer) handleRefresh(ctx context.Context, req *mcp.CallToolRequest, input RefreshInput) (*mcp.CallToolResult, ListOutput, error) {
	snap, err := s.client.Refresh(ctx)
	if err != nil {
		return nil, ListOutput{Items: []Item{}, Error: err.Error()}, nil
	}
	return nil, toListOutput(snap, input.Limit), nil
}

// ItemInput identifies one inbox item
type ItemInput struct {
	ID string `json:"id" jsonschema:"The inbox item id"`
}

// ResultOutput is the output of mutating tools
type ResultOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *InboxMCPServer) handleMarkRead(ctx context.Context, req *mcp.CallToolRequest, input ItemInput) (*mcp.CallToolResult, ResultOutput, error) {
	if input.ID == "" {
		return nil, ResultOutput{Error: "id is required"}, nil
	}
	return nil, result(s.client.MarkAsRead(ctx, input.ID)), nil
}

// MarkAllReadInput is empty - no input needed
type MarkAllReadInput struct{}

func (s *InboxMCPServer) handleMarkAllRead(ctx context.Context, req *mcp.CallToolRequest, input MarkAllReadInput) (*mcp.CallToolResult, BadgeOutput, error) {
	badge, err := s.client.MarkAllAsRead(ctx)
	if err != nil {
		return nil, BadgeOutput{Error: err.Error()}, nil
	}
	return nil, BadgeOutput{Badge: badge}, nil
}

func (s *InboxMCPServer) handleRemove(ctx context.Context, req *mcp.CallToolRequest, input ItemInput) (*mcp.CallToolResult, ResultOutput, error) {
	if input.ID == "" {
		return nil, ResultOutput{Error: "id is required"}, nil
	}
	return nil, result(s.client.Remove(ctx, input.ID)), nil
}

// ClearInput is empty - no input needed
type ClearInput struct{}

func (s *InboxMCPServer) handleClear(ctx context.Context, req *mcp.CallToolRequest, input ClearInput) (*mcp.CallToolResult, ResultOutput, error) {
	return nil, result(s.client.Clear(ctx)), nil
}

func result(err error) ResultOutput {
	if err != nil {
		return ResultOutput{Error: err.Error()}
	}
	return ResultOutput{Success: true}
}

func toListOutput(snap *domain.Snapshot, limit int) ListOutput {
	if limit <= 0 {
		limit = 20
	}
	items := snap.Items
	if len(items) > limit {
		items = items[:limit]
	}

	out := ListOutput{Items: make([]Item, 0, len(items)), Badge: snap.Badge}
	for _, it := range items {
		out.Items = append(out.Items, Item{
			ID:       it.ID,
			Title:    it.Notification.Title,
			Subtitle: it.Notification.Subtitle,
			Message:  it.Notification.Message,
			Time:     it.Time,
			Opened:   it.Opened,
		})
	}
	return out
}
