package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"offer-workflow-orchestrator/internal/adapters"
	"offer-workflow-orchestrator/internal/api"
	"offer-workflow-orchestrator/internal/config"
	"offer-workflow-orchestrator/internal/delivery"
	"offer-workflow-orchestrator/internal/logging"
	"offer-workflow-orchestrator/internal/orchestrator"
	"offer-workflow-orchestrator/internal/storage"
	appTemporal "offer-workflow-orchestrator/internal/temporal"
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		logger.Fatal("postgres ping", zap.Error(err))
	}
	if err := store.Migrate(ctx); err != nil {
		logger.Fatal("migrate postgres", zap.Error(err))
	}

	blob, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.MinioBucket)
	if err != nil {
		logger.Fatal("connect minio", zap.Error(err))
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		logger.Fatal("connect temporal", zap.Error(err))
	}
	defer temporalClient.Close()

	timeout := cfg.AdapterTimeout()
	email := adapters.NewEmailClient(adapters.Config{BaseURL: cfg.EmailURL, APIKey: cfg.EmailAPIKey, Timeout: timeout})
	orch := &orchestrator.Orchestrator{
		Store:            store,
		Directory:        storage.NewPostgresDirectory(store.DB()),
		BackgroundChecks: adapters.NewBackgroundCheckClient(adapters.Config{BaseURL: cfg.BackgroundCheckURL, APIKey: cfg.BackgroundCheckAPIKey, Timeout: timeout}),
		Documents:        adapters.NewDocumentClient(adapters.Config{BaseURL: cfg.DocGenURL, APIKey: cfg.DocGenAPIKey, Timeout: timeout}),
		Mailer:           email,
		Blobs:            blob,
		Logger:           logger.Named("orchestrator"),
		AdapterTimeout:   timeout,
		SenderName:       cfg.OfferSenderName,
	}
	poller := &delivery.Poller{Store: store, Email: email, Logger: logger.Named("delivery"), Timeout: timeout}
	tracker := &appTemporal.Tracker{
		Client:       temporalClient,
		TaskQueue:    cfg.TemporalTaskQueue,
		Prefix:       cfg.TrackingIDPrefix,
		PollInterval: cfg.DeliveryPollInterval(),
		MaxPolls:     cfg.DeliveryMaxPolls,
		Logger:       logger.Named("tracker"),
	}

	h := api.NewHandler(orch, store, poller, api.Options{
		Tracker:          tracker,
		MaxTemplateBytes: cfg.MaxTemplateBytes,
		Logger:           logger.Named("api"),
	})
	router := api.NewRouter(h)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("api stopped")
}
