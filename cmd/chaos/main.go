// cmd/chaos/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"gearledger/internal/chaos"
	"gearledger/internal/clients"
	"gearledger/internal/config"
	"gearledger/internal/domain"
	"gearledger/internal/platform"
)

func main() {
	concurrency := flag.Int("concurrency", 50, "competing requests per race")
	duration := flag.Duration("duration", 10*time.Second, "observation time per experiment")
	pause := flag.Duration("pause", 5*time.Second, "wait between experiments")
	flag.Parse()

	cfg, err := config.LoadChaos()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}
	logger, err := platform.NewLogger(config.Config{LogLevel: cfg.LogLevel}, os.Stderr)
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := clients.NewClient(cfg.APIURL)
	if err := api.Health(ctx); err != nil {
		logger.Error("api is not reachable", "url", cfg.APIURL, "error", err)
		os.Exit(1)
	}

	operator := domain.Actor{UserID: uuid.New(), Roles: []string{cfg.OperatorRole}}
	engine := chaos.NewEngine(chaos.WithLogger(logger), chaos.WithPause(*pause))
	chaos.NewSuite(api, operator, *concurrency, *duration).Register(engine)

	results, err := engine.ExecuteGameDay(ctx, chaos.GameDay{
		Name:         "Equipment Race Game Day",
		Date:         time.Now(),
		Scenarios:    engine.Experiments(),
		Participants: []string{operator.UserID.String()},
	})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(results)

	if err != nil {
		logger.Error("game day failed", "error", err)
		os.Exit(1)
	}
}
