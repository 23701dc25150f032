package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"finanzas/internal/cli"
	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/services"
)

// cronLogger routes cron's own messages through slog.
type cronLogger struct{ logger *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("Cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("Cron: "+msg, append(keysAndValues, "error", err)...)
}

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(applog.ComponentWorker, os.Getenv("LOG_LEVEL"))
	logger.Info("Starting recurring-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	// Copies are published like any other write so the mirror follows them.
	res := cli.InitBackend(context.Background(), logger, cfg)
	processor := services.NewRecurringProcessor(res.Service)

	run := func(ctx context.Context) {
		month := core.MonthKeyOf(time.Now())
		for _, owner := range cfg.RecurringOwners {
			if ctx.Err() != nil {
				return
			}
			if _, err := processor.Process(ctx, owner, month); err != nil {
				logger.Error("Recurring processing failed", "owner", owner, "month", month.String(), "error", err)
			}
		}
	}

	cl := cronLogger{logger: logger}
	scheduler := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		// Stop waits for a running job to finish.
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	if _, err := scheduler.AddFunc(cfg.RecurringSchedule, func() { run(ctx) }); err != nil {
		logger.Error("Invalid recurring schedule", "schedule", cfg.RecurringSchedule, "error", err)
		os.Exit(1)
	}

	logger.Info("Recurring expense processor configured",
		"schedule", cfg.RecurringSchedule,
		"owners", cfg.RecurringOwners,
		"backend", cfg.DataBackend)

	// Run once on startup; copies already made are skipped.
	run(ctx)
	scheduler.Start()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Recurring-worker shutdown complete")
}
