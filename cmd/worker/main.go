package main

import (
	"context"
	"os"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"offer-workflow-orchestrator/internal/adapters"
	"offer-workflow-orchestrator/internal/config"
	"offer-workflow-orchestrator/internal/delivery"
	"offer-workflow-orchestrator/internal/logging"
	"offer-workflow-orchestrator/internal/storage"
	appTemporal "offer-workflow-orchestrator/internal/temporal"
)

const sweepBatchSize = 100

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

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		logger.Fatal("connect temporal", zap.Error(err))
	}
	defer temporalClient.Close()

	email := adapters.NewEmailClient(adapters.Config{BaseURL: cfg.EmailURL, APIKey: cfg.EmailAPIKey, Timeout: cfg.AdapterTimeout()})
	poller := &delivery.Poller{Store: store, Email: email, Logger: logger.Named("delivery"), Timeout: cfg.AdapterTimeout()}

	activities := &appTemporal.Activities{Poller: poller}

	w := worker.New(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(appTemporal.DeliveryTrackingWorkflow, workflow.RegisterOptions{Name: appTemporal.DeliveryTrackingWorkflowName})
	w.RegisterActivity(activities.PollDeliveryActivity)

	// The sweeper catches offers whose tracking workflow never started or
	// gave up before delivery settled.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper := delivery.NewSweeper(poller, store, logger.Named("sweeper"), sweepBatchSize)
	if err := sweeper.Start(ctx, cfg.SweepSchedule); err != nil {
		logger.Fatal("start delivery sweeper", zap.Error(err))
	}
	defer sweeper.Stop()

	logger.Info("worker running", zap.String("task_queue", cfg.TemporalTaskQueue))
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
		// os.Exit skips deferred calls, so release everything here first.
		sweeper.Stop()
		cancel()
		temporalClient.Close()
		_ = store.Close()
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
