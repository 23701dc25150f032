package main

import (
	"context"
	"errors"
	"os"
	"time"

	"finanzas/internal/amqp"
	"finanzas/internal/backend"
	"finanzas/internal/cli"
	applog "finanzas/internal/log"
	"finanzas/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(applog.ComponentWorker, os.Getenv("LOG_LEVEL"))
	logger.Info("Starting finanzas-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateMirror(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	// The worker only reads the store; it never publishes.
	backendCfg.AMQPURL = ""

	factory := backend.NewFactory(logger.With("component", applog.ComponentBackend))
	res, err := factory.CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer res.Cleanup()

	mirror, err := factory.CreateMirror(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize mirror", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	syncWorker := worker.NewSyncWorker(res.Store, mirror)
	reconciler := worker.NewReconciler(syncWorker, worker.ReconcilerConfig{
		Interval:        cfg.MirrorReconcileInterval,
		Owners:          cfg.RecurringOwners,
		IncludePrevious: true,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := reconciler.Stop(ctx); err != nil {
			logger.Error("Reconciler stop error", "error", err)
		}
	})

	// The reconciler's first pass repairs anything missed while the worker was down.
	if err := reconciler.Start(ctx); err != nil {
		logger.Error("Failed to start reconciler", "error", err)
		os.Exit(1)
	}

	logger.Info("Consuming record messages",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue,
		"reconcile_interval", cfg.MirrorReconcileInterval,
		"owners", cfg.RecurringOwners)
	if err := consumer.ConsumeMessages(ctx, syncWorker.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
