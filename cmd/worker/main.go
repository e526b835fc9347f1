// Command worker is the long-running ingestion process: it loads
// config, opens the store, and hands off to the coordinator, which owns
// every other component's lifecycle.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/config"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/coordinator"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/logger"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/storage/pg"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig

	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))

	db, err := pg.InitDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	co := coordinator.New(cfg, db, log)
	if err := co.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("worker shut down cleanly")
}
