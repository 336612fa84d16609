// cmd/historian drains the game action queue from Redis into postgres.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/courts/internal/cache"
	"github.com/jason-s-yu/courts/internal/config"
	"github.com/jason-s-yu/courts/internal/database"
	"github.com/jason-s-yu/courts/internal/historian"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RedisAddr == "" || cfg.DatabaseURL == "" {
		logger.Fatal("historian needs REDIS_ADDR and DATABASE_URL")
	}

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.WithError(err).Fatal("redis")
	}
	defer rdb.Close()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("postgres")
	}
	store := database.NewStore(pool)
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Fatal("schema")
	}

	svc := historian.NewService(
		historian.NewRedisSource(rdb, cfg.HistorianQueueName),
		store,
		historian.Options{
			BatchSize:  cfg.HistorianBatchSize,
			FlushDelay: cfg.HistorianFlushInterval(),
			Logger:     logger,
		},
	)
	svc.Run(ctx)
	logger.Info("historian shutdown complete")
}
