package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"offer-workflow-orchestrator/internal/config"
	"offer-workflow-orchestrator/internal/events"
	"offer-workflow-orchestrator/internal/logging"
	"offer-workflow-orchestrator/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = logger.Sync() }()

	store, err := storage.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer store.Close()

	blob, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.MinioBucket)
	if err != nil {
		logger.Fatal("connect minio", zap.Error(err))
	}

	registrar := &events.Registrar{
		Registry: store,
		MaxBytes: cfg.MaxTemplateBytes,
		Logger:   logger.Named("templates"),
	}
	source := events.NewMinioTemplateEventSource(blob.Client(), blob.Bucket(), storage.TemplatePrefix)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("event-handler listening for template uploads",
		zap.String("bucket", blob.Bucket()),
		zap.String("prefix", storage.TemplatePrefix),
	)
	if err := source.Run(ctx, registrar.Handle); err != nil {
		logger.Error("event-handler stopped with error", zap.Error(err))
		stop()
		_ = store.Close()
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("event-handler stopped")
}
