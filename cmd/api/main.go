// Package main is the entry point for the gearledger API server.
// Its sole responsibility is wiring dependencies together and starting the server.
// No business logic belongs here.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gearledger/internal/config"
	"gearledger/internal/handler"
	"gearledger/internal/lifecycle"
	"gearledger/internal/metrics"
	"gearledger/internal/platform"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("api exited", "error", err)
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

	shutdownTracing, err := platform.Tracing(ctx, cfg, "api", version)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

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

	router := handler.NewRouter(handler.NewServer(engine, logger), handler.RouterConfig{
		Logger:       logger,
		Metrics:      m,
		CORSOrigins:  cfg.CORSOrigins,
		RateLimitRPS: cfg.RateLimitRPS,
		RateBurst:    cfg.RateLimitBurst,
		TracerName:   cfg.ServiceName + "/http",
		Ready:        st.Ready,
	})

	// Explicit timeouts prevent slowloris and resource exhaustion attacks.
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr, "store", cfg.StoreDriver,
			"claim_mode", cfg.ClaimMode, "release_policy", cfg.ReleasePolicy, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
