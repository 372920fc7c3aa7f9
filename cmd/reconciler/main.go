// Package main runs the status reconciler: on every tick of
// RECONCILE_SCHEDULE it re-derives the cached status of each piece of
// equipment, which moves equipment into and out of maintenance as windows
// start and end.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"gearledger/internal/config"
	"gearledger/internal/lifecycle"
	"gearledger/internal/metrics"
	"gearledger/internal/platform"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("reconciler exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := platform.NewLogger(cfg, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := platform.Tracing(ctx, cfg, "reconciler", version)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	m := metrics.New()
	st, err := platform.OpenStore(ctx, cfg, logger, m)
	if err != nil {
		return err
	}
	defer st.Close()

	engine, err := lifecycle.NewEngine(st, cfg.Policy(), lifecycle.WithLogger(logger))
	if err != nil {
		return err
	}

	cronLog := cronLogger{logger}
	c := cron.New(cron.WithLogger(cronLog), cron.WithChain(
		cron.Recover(cronLog),
		cron.SkipIfStillRunning(cronLog),
	))
	_, err = c.AddFunc(cfg.ReconcileSchedule, func() {
		passCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()

		start := time.Now()
		fixed, err := engine.ReconcileAll(passCtx)
		m.RecordReconcile(fixed, err)
		if err != nil {
			logger.Error("reconcile pass failed", "fixed", fixed, "error", err, "duration", time.Since(start))
			return
		}
		logger.Info("reconcile pass finished", "fixed", fixed, "duration", time.Since(start))
	})
	if err != nil {
		return err
	}

	logger.Info("reconciler starting", "schedule", cfg.ReconcileSchedule, "store", cfg.StoreDriver, "version", version)
	c.Start()
	<-ctx.Done()

	logger.Info("stopping reconciler")
	// Wait for a pass in progress to finish.
	<-c.Stop().Done()
	return nil
}

// cronLogger sends cron's own log lines to slog.
type cronLogger struct {
	*slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.Logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.Logger.Error(msg, append(keysAndValues, "error", err)...)
}
