// Package notifier reads DEAL_DETECTED events from the deals stream.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maltedev/wb-deal-scraper/internal/database"
	"github.com/maltedev/wb-deal-scraper/internal/events"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// StreamClient is the subset of the redis client the consumer needs.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Handler receives every decoded deal. Returning an error leaves the
// message unacknowledged so it is redelivered to the group.
type Handler func(ctx context.Context, deal *events.DealDetectedPayload) error

type Config struct {
	Stream   string
	Group    string
	Consumer string
	Block    time.Duration
	Count    int64
}

type Consumer struct {
	client  StreamClient
	cfg     Config
	handler Handler
	logger  zerolog.Logger
}

func NewConsumer(client StreamClient, cfg Config, handler Handler, logger zerolog.Logger) *Consumer {
	if cfg.Consumer == "" {
		cfg.Consumer = "consumer-1"
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Count <= 0 {
		cfg.Count = 10
	}
	return &Consumer{
		client:  client,
		cfg:     cfg,
		handler: handler,
		logger:  logger.With().Str("component", "deal_notifier").Logger(),
	}
}

// Run reads the stream until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info().Str("stream", c.cfg.Stream).Str("group", c.cfg.Group).Msg("starting consumer")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := c.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error().Err(err).Msg("failed to read from stream")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

// Poll reads one batch and handles it. An empty read is not an error.
func (c *Consumer) Poll(ctx context.Context) error {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.Count,
		Block:    c.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			if err := c.process(ctx, msg); err != nil {
				c.logger.Error().Err(err).Str("id", msg.ID).Msg("failed to process message")
				continue
			}
			if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
				c.logger.Error().Err(err).Str("id", msg.ID).Msg("failed to acknowledge message")
			}
		}
	}
	return nil
}

// process decodes msg and hands deals to the handler. Other event types
// and malformed entries are acknowledged without handling.
func (c *Consumer) process(ctx context.Context, msg redis.XMessage) error {
	eventType, _ := msg.Values["event_type"].(string)
	if eventType != string(events.EventTypeDealDetected) {
		return nil
	}

	data, ok := msg.Values["data"].(string)
	if !ok {
		c.logger.Warn().Str("id", msg.ID).Msg("message without data field")
		return nil
	}

	var envelope database.StreamMessage
	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		c.logger.Warn().Err(err).Str("id", msg.ID).Msg("malformed stream message")
		return nil
	}

	var deal events.DealDetectedPayload
	if err := json.Unmarshal(envelope.Payload, &deal); err != nil {
		c.logger.Warn().Err(err).Str("id", msg.ID).Msg("malformed deal payload")
		return nil
	}

	return c.handler(ctx, &deal)
}

// LogDeal is the default handler; it writes one log line per deal.
func LogDeal(logger zerolog.Logger) Handler {
	return func(_ context.Context, deal *events.DealDetectedPayload) error {
		logger.Info().
			Str("article", deal.Article).
			Str("name", deal.Name).
			Str("brand", deal.Brand).
			Float64("price", deal.CurrentPrice).
			Float64("feedback_discount", deal.FeedbackDiscount).
			Float64("difference", deal.DiscountDifference).
			Str("url", deal.URL).
			Str("job_id", deal.JobID).
			Msg("deal detected")
		return nil
	}
}
