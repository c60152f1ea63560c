package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/wb-deal-scraper/internal/config"
	"github.com/maltedev/wb-deal-scraper/internal/notifier"
	"github.com/maltedev/wb-deal-scraper/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("consumer stopped")
		os.Exit(1)
	}
	log.Info().Msg("consumer stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")

	hostname, _ := os.Hostname()
	consumer := notifier.NewConsumer(rdb, notifier.Config{
		Stream:   cfg.Redis.Stream,
		Group:    cfg.Redis.Group,
		Consumer: hostname,
	}, notifier.LogDeal(log), log)

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
