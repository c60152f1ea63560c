package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/wb-deal-scraper/internal/api"
	"github.com/maltedev/wb-deal-scraper/internal/app"
	"github.com/maltedev/wb-deal-scraper/internal/config"
	"github.com/maltedev/wb-deal-scraper/internal/database"
	"github.com/maltedev/wb-deal-scraper/internal/events"
	"github.com/maltedev/wb-deal-scraper/internal/jobs"
	"github.com/maltedev/wb-deal-scraper/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, database.Config{
		DSN:      cfg.Database.DSN(),
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(log); err != nil {
		return err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return err
	}

	pipeline, err := app.NewPipeline(ctx, cfg, true, log)
	if err != nil {
		return err
	}

	outbox := database.NewOutboxRepository(db)
	relay := database.NewRelay(outbox, redisClient, log, database.RelayConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
	})

	jobRepo := database.NewJobRepository(db)
	publisher := events.NewPublisher(db, cfg.Redis.Stream, log)
	manager := jobs.NewManager(jobRepo, outbox, log)
	worker := jobs.NewWorker(jobRepo, pipeline.Harvester, pipeline.Extractor, publisher, jobs.WorkerOptions{
		PollInterval: cfg.Scraper.JobPollInterval,
	}, log)

	handlers := api.NewHandlers(pipeline.Extractor, manager, log)
	server := &http.Server{
		Addr: net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewRouter(handlers, api.RouterOptions{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: cfg.Server.WriteTimeout,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		worker.Start(ctx)
		return nil
	})

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Str("driver", cfg.Scraper.Driver).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
