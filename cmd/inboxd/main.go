package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/devricklin/inboxsync/internal/api"
	"github.com/devricklin/inboxsync/internal/biz/usecase"
	"github.com/devricklin/inboxsync/internal/conf"
	"github.com/devricklin/inboxsync/internal/data"
	"github.com/devricklin/inboxsync/internal/infra/feishu"
	"github.com/devricklin/inboxsync/internal/log"
	"github.com/devricklin/inboxsync/internal/metrics"
	"github.com/devricklin/inboxsync/internal/server"
	"github.com/devricklin/inboxsync/internal/service"
)

func main() {
	// Load .env file
	envErr := godotenv.Load()

	// Load configuration
	cfg, err := conf.LoadFromEnv()
	logger := log.NewLogger(cfg != nil && cfg.Debug)
	defer logger.Sync()

	if errors.Is(envErr, os.ErrNotExist) {
		logger.Info("No .env file found, using environment variables")
	}
	if err != nil {
		logger.Fatalw("Failed to load config", "error", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalw("Invalid config", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics
	registry := prometheus.NewRegistry()
	inboxMetrics := metrics.NewInboxMetrics(registry)
	if cfg.MetricsAddr != "" {
		go metrics.Serve(ctx, cfg.MetricsAddr, registry, logger)
	}

	// Initialize clients
	var feishuClient *feishu.Client
	var messenger data.Messenger
	if cfg.FeishuEnabled() {
		feishuClient = feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, logger)
		messenger = feishuClient
	}

	// Initialize repository layer
	repos, err := data.NewRepositories(cfg, messenger, logger)
	if err != nil {
		logger.Fatalw("Failed to create repositories", "error", err)
	}
	defer repos.Close()
	logger.Infow("Inbox store opened", "path", cfg.Inbox.DBPath, "timer_backend", cfg.Timer.Backend)

	// Initialize usecase and service layers
	timer := service.NewTimerRunner(repos.Timers, cfg.Timer.Tick(), logger)
	inboxUC := usecase.NewInboxUsecase(
		repos.Inbox,
		repos.Remote,
		timer,
		repos.Center,
		repos.Events,
		usecase.InboxConfig{
			Enabled:  cfg.Inbox.Enabled,
			PageSize: cfg.Inbox.PageSize,
		},
		usecase.WithLogger(logger),
		usecase.WithMetrics(inboxMetrics),
	)
	refreshLoop := service.NewRefreshLoop(inboxUC, cfg.Inbox.RefreshInterval(), logger)
	inboxModule := service.NewInboxModule(inboxUC, timer, refreshLoop, logger)
	modules := service.NewRegistry(logger, inboxModule)

	if err := modules.Configure(ctx); err != nil {
		logger.Fatalw("Failed to configure modules", "error", err)
	}
	if err := modules.Launch(ctx); err != nil {
		logger.Fatalw("Failed to launch modules", "error", err)
	}

	parser, err := server.NewSignalParser()
	if err != nil {
		logger.Fatalw("Failed to build signal parser", "error", err)
	}

	var presenter server.Presenter
	if repos.Presenter != nil {
		presenter = repos.Presenter
	}

	// Initialize HTTP API server
	apiServer := api.NewServer(inboxUC, parser, presenter, cfg.HTTPPort, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Errorw("API server error", "error", err)
			stop()
		}
	}()

	// Feishu signal surface
	if feishuClient != nil {
		srv := server.NewFeishuServer(feishuClient, inboxUC, presenter, parser, cfg.Feishu.InboxChatID, logger)
		go func() {
			if err := srv.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Errorw("Feishu server error", "error", err)
			}
		}()
	}

	logger.Info("Inbox daemon started")
	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warnw("API server shutdown failed", "error", err)
	}
	// Unlaunch would wipe the cache; a plain shutdown keeps it for the next start
	inboxModule.Stop()
}
