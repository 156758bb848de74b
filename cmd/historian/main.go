// cmd/historian drains settled rounds from the Redis queue into PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/closemaster/closemaster/internal/cache"
	"github.com/closemaster/closemaster/internal/config"
	"github.com/closemaster/closemaster/internal/database"
	"github.com/closemaster/closemaster/internal/historian"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)
	if cfg.RedisAddr == "" || cfg.DatabaseURL == "" {
		logger.Fatal("historian needs REDIS_ADDR and DATABASE_URL (or DB_HOST)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatal(err)
	}
	defer rdb.Close()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal(err)
	}
	defer pool.Close()

	store := database.NewRoundStore(pool)
	if err := store.Migrate(ctx); err != nil {
		logger.Fatal(err)
	}

	svc := historian.New(rdb, store, logger, cfg.HistorianQueue, cfg.HistorianBatchSize, cfg.HistorianFlush)
	if err := svc.Run(ctx); err != nil {
		logger.WithError(err).Error("historian exited")
	}
}
