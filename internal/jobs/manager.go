// Package jobs schedules harvest-and-extract runs stored in Postgres.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/maltedev/wb-deal-scraper/internal/models"
	"github.com/maltedev/wb-deal-scraper/internal/scraper"
	"github.com/rs/zerolog"
)

var ErrInvalidSpec = errors.New("invalid job spec")

// Repository is the job persistence used by Manager and Worker.
type Repository interface {
	Create(ctx context.Context, spec models.JobSpec) (*models.Job, error)
	Get(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, limit int) ([]*models.Job, error)
	Deals(ctx context.Context, jobID string) ([]models.ProductRecord, error)
	Stats(ctx context.Context) (*models.Stats, error)

	ClaimNext(ctx context.Context) (*models.Job, error)
	UpdateProgress(ctx context.Context, id string, linksFound, processed, dealsFound int) error
	Finish(ctx context.Context, id string, jobErr error) error
	RecordOutcome(ctx context.Context, jobID string, o models.PageOutcome, isDeal bool) error
}

type OutboxStatter interface {
	Stats(ctx context.Context) (pending, deadLetter int64, err error)
}

type Manager struct {
	repo   Repository
	outbox OutboxStatter
	logger zerolog.Logger
}

func NewManager(repo Repository, outbox OutboxStatter, logger zerolog.Logger) *Manager {
	return &Manager{
		repo:   repo,
		outbox: outbox,
		logger: logger.With().Str("component", "job_manager").Logger(),
	}
}

// CreateJob validates spec and queues it for a worker.
func (m *Manager) CreateJob(ctx context.Context, spec models.JobSpec) (*models.Job, error) {
	if err := searchSpec(spec).Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSpec, err)
	}
	if spec.MaxPages < 0 {
		return nil, fmt.Errorf("%w: max_pages cannot be negative", ErrInvalidSpec)
	}

	job, err := m.repo.Create(ctx, spec)
	if err != nil {
		return nil, err
	}

	m.logger.Info().Str("id", job.ID).Str("query", spec.Query).Str("category", spec.CategoryURL).Msg("job created")
	return job, nil
}

func (m *Manager) GetJob(ctx context.Context, id string) (*models.Job, error) {
	return m.repo.Get(ctx, id)
}

func (m *Manager) ListJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	return m.repo.List(ctx, limit)
}

func (m *Manager) JobDeals(ctx context.Context, id string) ([]models.ProductRecord, error) {
	if _, err := m.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return m.repo.Deals(ctx, id)
}

// Stats adds outbox backlog figures to the repository statistics.
func (m *Manager) Stats(ctx context.Context) (*models.Stats, error) {
	stats, err := m.repo.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if m.outbox != nil {
		pending, dead, err := m.outbox.Stats(ctx)
		if err != nil {
			m.logger.Warn().Err(err).Msg("failed to read outbox stats")
		} else {
			stats.Outbox = models.OutboxStats{Pending: pending, DeadLetter: dead}
		}
	}
	return stats, nil
}

func searchSpec(spec models.JobSpec) scraper.SearchSpec {
	return scraper.SearchSpec{
		Query:       spec.Query,
		CategoryURL: spec.CategoryURL,
		MinPrice:    spec.Filter.MinPrice,
		MaxPrice:    spec.Filter.MaxPrice,
	}
}
