package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/wb-deal-scraper/internal/models"
	"github.com/maltedev/wb-deal-scraper/internal/parser"
)

// Product is a stored ProductRecord with its sighting timestamps.
type Product struct {
	models.ProductRecord
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

const productColumns = `article, url, name, brand, current_price, secondary_price,
	original_price, feedback_discount, rating, review_count, images,
	first_seen_at, last_seen_at`

// UpsertProduct stores rec keyed by article, refreshing every field and
// last_seen_at on conflict. It returns true when the row was new.
func UpsertProduct(ctx context.Context, q Querier, rec models.ProductRecord) (bool, error) {
	if rec.Article == "" {
		rec.Article = parser.ArticleFromURL(rec.URL)
	}
	if rec.Article == "" {
		return false, fmt.Errorf("product %q has no article", rec.URL)
	}

	images := rec.Images
	if images == nil {
		images = []string{}
	}
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return false, fmt.Errorf("failed to marshal images: %w", err)
	}

	query := `
		INSERT INTO products (
			article, url, name, brand, current_price, secondary_price,
			original_price, feedback_discount, rating, review_count, images
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (article) DO UPDATE SET
			url = EXCLUDED.url,
			name = EXCLUDED.name,
			brand = EXCLUDED.brand,
			current_price = EXCLUDED.current_price,
			secondary_price = EXCLUDED.secondary_price,
			original_price = EXCLUDED.original_price,
			feedback_discount = EXCLUDED.feedback_discount,
			rating = EXCLUDED.rating,
			review_count = EXCLUDED.review_count,
			images = EXCLUDED.images,
			last_seen_at = NOW()
		RETURNING (xmax = 0)`

	var inserted bool
	err = q.QueryRow(ctx, query,
		rec.Article, rec.URL, rec.Name, rec.Brand, rec.CurrentPrice, rec.SecondaryPrice,
		rec.OriginalPrice, rec.FeedbackDiscount, rec.Rating, rec.ReviewCount, imagesJSON,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert product: %w", err)
	}

	return inserted, nil
}

func GetProduct(ctx context.Context, q Querier, article string) (*Product, error) {
	row := q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE article = $1`, article)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", article, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

func scanProduct(row pgx.Row) (*Product, error) {
	p := &Product{}
	var images []byte
	err := row.Scan(
		&p.Article, &p.URL, &p.Name, &p.Brand, &p.CurrentPrice, &p.SecondaryPrice,
		&p.OriginalPrice, &p.FeedbackDiscount, &p.Rating, &p.ReviewCount, &images,
		&p.FirstSeenAt, &p.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &p.Images); err != nil {
			return nil, fmt.Errorf("failed to decode images: %w", err)
		}
	}
	return p, nil
}

// InsertOutcome records one page outcome. jobID may be empty for ad-hoc
// extractions.
func InsertOutcome(ctx context.Context, q Querier, jobID string, o models.PageOutcome) error {
	var job *string
	if jobID != "" {
		job = &jobID
	}

	_, err := q.Exec(ctx, `
		INSERT INTO page_outcomes (id, job_id, url, article, kind, message)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), job, o.URL, parser.ArticleFromURL(o.URL), string(o.Kind), o.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}
	return nil
}

// OutcomeCounts returns the number of stored outcomes per kind.
func OutcomeCounts(ctx context.Context, q Querier) (map[models.OutcomeKind]int, error) {
	rows, err := q.Query(ctx, `SELECT kind, COUNT(*) FROM page_outcomes GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.OutcomeKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		counts[models.OutcomeKind(kind)] = n
	}
	return counts, rows.Err()
}
