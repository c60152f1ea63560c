// Package events records domain events through the transactional outbox.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/wb-deal-scraper/internal/database"
	"github.com/maltedev/wb-deal-scraper/internal/models"
	"github.com/rs/zerolog"
)

type EventType string

const EventTypeDealDetected EventType = "DEAL_DETECTED"

// DealDetectedPayload is the body of a DEAL_DETECTED event.
type DealDetectedPayload struct {
	EventID            string    `json:"event_id"`
	EventType          string    `json:"event_type"`
	Timestamp          time.Time `json:"timestamp"`
	JobID              string    `json:"job_id,omitempty"`
	Article            string    `json:"article"`
	URL                string    `json:"url"`
	Name               string    `json:"product_name"`
	Brand              string    `json:"brand,omitempty"`
	CurrentPrice       float64   `json:"current_price"`
	OriginalPrice      float64   `json:"original_price,omitempty"`
	FeedbackDiscount   float64   `json:"feedback_discount"`
	DiscountDifference float64   `json:"discount_difference"`
	Rating             float64   `json:"rating"`
	ReviewCount        int       `json:"reviews"`
	Images             []string  `json:"images,omitempty"`
}

// NewDealDetectedPayload builds the event body for rec.
func NewDealDetectedPayload(rec models.ProductRecord, jobID string) *DealDetectedPayload {
	return &DealDetectedPayload{
		EventID:            uuid.New().String(),
		EventType:          string(EventTypeDealDetected),
		Timestamp:          time.Now().UTC(),
		JobID:              jobID,
		Article:            rec.Article,
		URL:                rec.URL,
		Name:               rec.Name,
		Brand:              rec.Brand,
		CurrentPrice:       rec.CurrentPrice,
		OriginalPrice:      rec.OriginalPrice,
		FeedbackDiscount:   rec.FeedbackDiscount,
		DiscountDifference: rec.DiscountDifference(),
		Rating:             rec.Rating,
		ReviewCount:        rec.ReviewCount,
		Images:             rec.Images,
	}
}

type TxRunner interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
}

type OutboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// ProductWriter stores a product inside a transaction.
type ProductWriter func(ctx context.Context, q database.Querier, rec models.ProductRecord) (bool, error)

// Publisher writes events to the outbox in the same transaction as the
// product they describe.
type Publisher struct {
	tx       TxRunner
	outbox   OutboxWriter
	products ProductWriter
	stream   string
	logger   zerolog.Logger
}

func NewPublisher(db *database.DB, stream string, logger zerolog.Logger) *Publisher {
	return newPublisher(db, database.NewOutboxRepository(db), database.UpsertProduct, stream, logger)
}

func newPublisher(tx TxRunner, outbox OutboxWriter, products ProductWriter, stream string, logger zerolog.Logger) *Publisher {
	if stream == "" {
		stream = database.DealStream
	}
	return &Publisher{
		tx:       tx,
		outbox:   outbox,
		products: products,
		stream:   stream,
		logger:   logger.With().Str("component", "event_publisher").Logger(),
	}
}

// PublishDealDetected upserts the product and queues a DEAL_DETECTED event
// atomically.
func (p *Publisher) PublishDealDetected(ctx context.Context, rec models.ProductRecord, jobID string) error {
	if rec.Article == "" {
		return fmt.Errorf("deal %q has no article", rec.URL)
	}

	payload := NewDealDetectedPayload(rec, jobID)
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	event := &database.OutboxEvent{
		AggregateType: "product",
		AggregateID:   rec.Article,
		EventType:     payload.EventType,
		Payload:       data,
		TargetStream:  p.stream,
	}

	err = p.tx.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := p.products(ctx, tx, rec); err != nil {
			return err
		}
		return p.outbox.InsertWithTx(ctx, tx, event)
	})
	if err != nil {
		return fmt.Errorf("failed to publish deal: %w", err)
	}

	p.logger.Info().
		Str("event_id", payload.EventID).
		Str("article", rec.Article).
		Float64("difference", payload.DiscountDifference).
		Stringer("outbox_id", event.ID).
		Msg("deal queued in outbox")

	return nil
}
