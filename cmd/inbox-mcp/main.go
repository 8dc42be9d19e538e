package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/devricklin/inboxsync/internal/log"
	inboxmcp "github.com/devricklin/inboxsync/internal/mcp"
	"github.com/devricklin/inboxsync/mcpserver"
)

const defaultAPIPort = 9877

func main() {
	_ = godotenv.Load()

	// stdout carries the MCP protocol; zap production logs go to stderr
	logger := log.NewLogger(os.Getenv("DEBUG") == "true")
	defer logger.Sync()

	baseURL := os.Getenv("INBOX_API_URL")
	if baseURL == "" {
		port := os.Getenv("INBOX_HTTP_PORT")
		if port == "" {
			port = fmt.Sprint(defaultAPIPort)
		}
		baseURL = "http://127.0.0.1:" + port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := mcpserver.NewServer(inboxmcp.NewClient(baseURL))
	logger.Infow("Inbox MCP server starting", "api", baseURL)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatalw("MCP server error", "error", err)
	}
}
