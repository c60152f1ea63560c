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
)

// JobRepository persists scraper jobs and their products.
type JobRepository struct {
	db *DB
}

func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, query, category_url, max_pages, filter, status,
	links_found, processed, deals_found, error, created_at, started_at, completed_at`

func (r *JobRepository) Create(ctx context.Context, spec models.JobSpec) (*models.Job, error) {
	filter, err := json.Marshal(spec.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal filter: %w", err)
	}

	job := &models.Job{
		ID:        uuid.New().String(),
		Spec:      spec,
		Status:    models.JobPending,
		CreatedAt: time.Now().UTC(),
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO scraper_jobs (id, query, category_url, max_pages, filter, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, spec.Query, spec.CategoryURL, spec.MaxPages, filter, string(job.Status), job.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	return job, nil
}

func (r *JobRepository) Get(ctx context.Context, id string) (*models.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}

	job, err := scanJob(r.db.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM scraper_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// List returns the most recent jobs first.
func (r *JobRepository) List(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.pool.Query(ctx, `SELECT `+jobColumns+` FROM scraper_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimNext moves the oldest pending job to running and returns it. It
// returns ErrNotFound when nothing is pending. Concurrent workers never
// claim the same job.
func (r *JobRepository) ClaimNext(ctx context.Context) (*models.Job, error) {
	var job *models.Job
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		job, err = scanJob(tx.QueryRow(ctx, `
			SELECT `+jobColumns+`
			FROM scraper_jobs
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED`))
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		job.Status = models.JobRunning
		job.StartedAt = &now
		_, err = tx.Exec(ctx, `UPDATE scraper_jobs SET status = $1, started_at = $2 WHERE id = $3`,
			string(job.Status), now, job.ID)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

func (r *JobRepository) UpdateProgress(ctx context.Context, id string, linksFound, processed, dealsFound int) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE scraper_jobs
		SET links_found = $1, processed = $2, deals_found = $3
		WHERE id = $4`,
		linksFound, processed, dealsFound, id)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// Finish marks the job completed, or failed when jobErr is non-nil.
func (r *JobRepository) Finish(ctx context.Context, id string, jobErr error) error {
	status, msg := models.JobCompleted, ""
	if jobErr != nil {
		status, msg = models.JobFailed, jobErr.Error()
	}

	_, err := r.db.pool.Exec(ctx, `
		UPDATE scraper_jobs SET status = $1, error = $2, completed_at = $3 WHERE id = $4`,
		string(status), msg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	return nil
}

// RecordOutcome stores the outcome and, for successes, the product and its
// link to the job.
func (r *JobRepository) RecordOutcome(ctx context.Context, jobID string, o models.PageOutcome, isDeal bool) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := InsertOutcome(ctx, tx, jobID, o); err != nil {
			return err
		}
		if !o.IsSuccess() {
			return nil
		}
		if _, err := UpsertProduct(ctx, tx, *o.Record); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO job_products (job_id, article, is_deal)
			VALUES ($1, $2, $3)
			ON CONFLICT (job_id, article) DO UPDATE SET is_deal = EXCLUDED.is_deal`,
			jobID, o.Record.Article, isDeal)
		if err != nil {
			return fmt.Errorf("failed to link product to job: %w", err)
		}
		return nil
	})
}

// Deals returns the deal products found by a job, best first.
func (r *JobRepository) Deals(ctx context.Context, jobID string) ([]models.ProductRecord, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT p.article, p.url, p.name, p.brand, p.current_price, p.secondary_price,
		       p.original_price, p.feedback_discount, p.rating, p.review_count, p.images,
		       p.first_seen_at, p.last_seen_at
		FROM job_products jp
		JOIN products p ON p.article = jp.article
		WHERE jp.job_id = $1 AND jp.is_deal
		ORDER BY p.feedback_discount - p.current_price DESC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job deals: %w", err)
	}
	defer rows.Close()

	deals := []models.ProductRecord{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		deals = append(deals, p.ProductRecord)
	}
	return deals, rows.Err()
}

// Stats aggregates job, product and outcome counts.
func (r *JobRepository) Stats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{Jobs: make(map[models.JobStatus]int)}

	rows, err := r.db.pool.Query(ctx, `SELECT status, COUNT(*) FROM scraper_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		stats.Jobs[models.JobStatus(status)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.db.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(DISTINCT article) FROM job_products WHERE is_deal)`,
	).Scan(&stats.Products, &stats.Deals)
	if err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	if stats.Outcomes, err = OutcomeCounts(ctx, r.db.pool); err != nil {
		return nil, err
	}

	return stats, nil
}

func scanJob(row pgx.Row) (*models.Job, error) {
	job := &models.Job{}
	var (
		status string
		filter []byte
	)
	err := row.Scan(
		&job.ID, &job.Spec.Query, &job.Spec.CategoryURL, &job.Spec.MaxPages, &filter, &status,
		&job.LinksFound, &job.Processed, &job.DealsFound, &job.Error,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	if len(filter) > 0 {
		if err := json.Unmarshal(filter, &job.Spec.Filter); err != nil {
			return nil, fmt.Errorf("failed to decode filter: %w", err)
		}
	}
	return job, nil
}
