package database

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/wb-deal-scraper/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB connects to TEST_DATABASE_URL and migrates it. Tests that
// need Postgres are skipped when the variable is unset.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database test")
	}

	db, err := New(context.Background(), Config{DSN: dsn, MaxConns: 4})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(zerolog.Nop()))

	_, err = db.pool.Exec(context.Background(),
		`TRUNCATE outbox_event, page_outcomes, job_products, scraper_jobs, products`)
	require.NoError(t, err)

	t.Cleanup(db.Close)
	return db
}

func TestRetryBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, retryBackoff(1))
	assert.Equal(t, 16*time.Second, retryBackoff(4))
	assert.Equal(t, 5*time.Minute, retryBackoff(9))
	assert.Equal(t, 5*time.Minute, retryBackoff(40))
}

func TestFailureStatus(t *testing.T) {
	assert.Equal(t, OutboxStatusFailed, failureStatus(1))
	assert.Equal(t, OutboxStatusFailed, failureStatus(MaxRetryCount-1))
	assert.Equal(t, OutboxStatusDeadLetter, failureStatus(MaxRetryCount))
}

func TestOutboxRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewOutboxRepository(db)

	event := &OutboxEvent{
		AggregateType: "product",
		AggregateID:   "12345",
		EventType:     "DEAL_DETECTED",
		Payload:       json.RawMessage(`{"article":"12345"}`),
	}
	require.NoError(t, db.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.InsertWithTx(ctx, tx, event)
	}))
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, DealStream, event.TargetStream)

	t.Run("rolled back inserts are invisible", func(t *testing.T) {
		rolledBack := &OutboxEvent{AggregateType: "product", AggregateID: "999", EventType: "DEAL_DETECTED", Payload: json.RawMessage(`{}`)}
		err := db.WithTx(ctx, func(tx pgx.Tx) error {
			if err := repo.InsertWithTx(ctx, tx, rolledBack); err != nil {
				return err
			}
			return pgx.ErrTxClosed
		})
		require.Error(t, err)

		pending, err := repo.GetPending(ctx, 10)
		require.NoError(t, err)
		for _, e := range pending {
			assert.NotEqual(t, "999", e.AggregateID)
		}
	})

	t.Run("missing fields are rejected", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, &OutboxEvent{AggregateID: "1", Payload: json.RawMessage(`{}`)})
		})
		assert.Error(t, err)
	})

	t.Run("failures end in dead letter", func(t *testing.T) {
		for i := 0; i < MaxRetryCount; i++ {
			require.NoError(t, repo.MarkFailed(ctx, event.ID, assert.AnError))
		}
		pending, dead, err := repo.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), pending)
		assert.Equal(t, int64(1), dead)
	})
}

func TestJobRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewJobRepository(db)

	job, err := repo.Create(ctx, models.JobSpec{Query: "маска", MaxPages: 2, Filter: models.SearchFilter{MaxPrice: models.Float(500)}})
	require.NoError(t, err)

	claimed, err := repo.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, claimed.ID)
	assert.Equal(t, models.JobRunning, claimed.Status)
	require.NotNil(t, claimed.Spec.Filter.MaxPrice)
	assert.Equal(t, 500.0, *claimed.Spec.Filter.MaxPrice)

	_, err = repo.ClaimNext(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	rec := models.ProductRecord{URL: "https://www.wildberries.ru/catalog/777/detail.aspx", Article: "777", Name: "Маска", CurrentPrice: 90, FeedbackDiscount: 140}
	require.NoError(t, repo.RecordOutcome(ctx, job.ID, models.Success(rec), true))
	require.NoError(t, repo.RecordOutcome(ctx, job.ID, models.CaptchaDetected("https://www.wildberries.ru/catalog/778/detail.aspx"), false))
	require.NoError(t, repo.UpdateProgress(ctx, job.ID, 2, 2, 1))
	require.NoError(t, repo.Finish(ctx, job.ID, nil))

	deals, err := repo.Deals(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, deals, 1)
	assert.Equal(t, "777", deals[0].Article)

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)
	assert.Equal(t, 1, got.DealsFound)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Products)
	assert.Equal(t, 1, stats.Deals)
	assert.Equal(t, 1, stats.Outcomes[models.OutcomeCaptchaDetected])

	_, err = repo.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertProduct(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	rec := models.ProductRecord{URL: "https://www.wildberries.ru/catalog/555/detail.aspx", Name: "Шампунь", CurrentPrice: 300, Images: []string{"https://img/1.webp"}}

	inserted, err := UpsertProduct(ctx, db.pool, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	rec.CurrentPrice = 250
	inserted, err = UpsertProduct(ctx, db.pool, rec)
	require.NoError(t, err)
	assert.False(t, inserted)

	p, err := GetProduct(ctx, db.pool, "555")
	require.NoError(t, err)
	assert.Equal(t, 250.0, p.CurrentPrice)
	assert.Equal(t, []string{"https://img/1.webp"}, p.Images)

	_, err = GetProduct(ctx, db.pool, "556")
	assert.ErrorIs(t, err, ErrNotFound)
}
