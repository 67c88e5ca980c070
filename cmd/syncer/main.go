package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"crm_sync/internal/config"
	"crm_sync/internal/hubspot"
	"crm_sync/internal/runner"
	"crm_sync/internal/service"
	"crm_sync/internal/sink"
	"crm_sync/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize the delivery sink
	rabbitMQ, err := sink.NewRabbitMQ(sink.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	// Initialize stores
	accountStore := postgres.NewAccountStore(db)
	syncRunStore := postgres.NewSyncRunStore(db)
	txManager := postgres.NewTransactionManager(db)

	// Initialize the CRM client
	client := hubspot.New(hubspot.Config{
		BaseURL:        cfg.HubSpot.BaseURL,
		ClientID:       cfg.HubSpot.ClientID,
		ClientSecret:   cfg.HubSpot.ClientSecret,
		Timeout:        cfg.HubSpot.Timeout,
		MaxAttempts:    cfg.HubSpot.Retry.MaxAttempts,
		InitialBackoff: cfg.HubSpot.Retry.InitialBackoff,
		MaxBackoff:     cfg.HubSpot.Retry.MaxBackoff,
	}, logger)

	syncService := service.NewSyncService(
		accountStore,
		syncRunStore,
		txManager,
		client,
		rabbitMQ,
		logger,
		cfg.Sync,
	)

	run := runner.New(syncService, cfg.Sync.Interval, cfg.Sync.RunTimeout, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting crm syncer",
		"page_size", cfg.Sync.PageSize,
		"flush_threshold", cfg.Sync.FlushThreshold,
		"interval", cfg.Sync.Interval,
	)

	if err := run.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("runner error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
