package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/mailtrack/internal/config"
	"github.com/ignite/mailtrack/internal/esp"
	"github.com/ignite/mailtrack/internal/pkg/logger"
	"github.com/ignite/mailtrack/internal/repository/postgres"
	"github.com/ignite/mailtrack/internal/service/delivery"
	"github.com/ignite/mailtrack/internal/tracking"
)

func main() {
	cfg, err := config.LoadFromEnv(configPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.ShouldRedact())

	ctx := context.Background()

	var (
		sink tracking.Sink
		db   *sql.DB
	)
	switch cfg.Webhooks.IngestMode {
	case config.IngestSQS:
		if cfg.SQS.QueueURL == "" {
			logger.Error("SQS_TRACKING_QUEUE_URL is required in sqs ingest mode")
			os.Exit(1)
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SQS.Region))
		if err != nil {
			logger.Error("failed to load aws config", "error", err)
			os.Exit(1)
		}
		sink = tracking.NewPublisher(sqs.NewFromConfig(awsCfg), cfg.SQS.QueueURL)
	case config.IngestInline:
		db, err = postgres.Open(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		sink = tracking.NewInlineSink(delivery.NewService(postgres.NewRecipientRepo(db)))
	default:
		logger.Error("unknown webhook ingest mode", "mode", cfg.Webhooks.IngestMode)
		os.Exit(1)
	}

	if table := cfg.Webhooks.ArchiveTable; table != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Webhooks.ArchiveRegion))
		if err != nil {
			logger.Error("failed to load aws config", "error", err)
			os.Exit(1)
		}
		sink = tracking.NewArchiveSink(sink, dynamodb.NewFromConfig(awsCfg), table, cfg.Webhooks.ArchiveRetention())
		logger.Info("webhook archive enabled", "table", table)
	}

	if len(cfg.Webhooks.Secrets) == 0 {
		logger.Warn("webhook endpoints accept unauthenticated requests; set WEBHOOK_SECRET")
	}

	handler := tracking.NewHandler(esp.NewRegistry(cfg.Mail.MetadataKey), sink, cfg.Webhooks, nil)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("tracking service listening", "addr", srv.Addr, "ingest_mode", cfg.Webhooks.IngestMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down tracking service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/config.yaml"
}
