package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maltedev/wb-deal-scraper/internal/browser"
	"github.com/maltedev/wb-deal-scraper/internal/database"
	"github.com/maltedev/wb-deal-scraper/internal/deals"
	"github.com/maltedev/wb-deal-scraper/internal/models"
	"github.com/maltedev/wb-deal-scraper/internal/scraper"
	"github.com/rs/zerolog"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultChunkSize    = 50
)

type Harvester interface {
	Harvest(ctx context.Context, spec scraper.SearchSpec, maxPages int) ([]string, error)
}

type Extractor interface {
	RunParallel(ctx context.Context, urls []string, onResult func(models.PageOutcome)) []models.PageOutcome
}

type DealPublisher interface {
	PublishDealDetected(ctx context.Context, rec models.ProductRecord, jobID string) error
}

type WorkerOptions struct {
	PollInterval time.Duration
	// ChunkSize is the number of URLs processed between progress updates.
	ChunkSize int
}

// Worker claims pending jobs and runs them one at a time.
type Worker struct {
	repo      Repository
	harvester Harvester
	extractor Extractor
	publisher DealPublisher
	interval  time.Duration
	chunk     int
	logger    zerolog.Logger
}

func NewWorker(repo Repository, h Harvester, e Extractor, p DealPublisher, opts WorkerOptions, logger zerolog.Logger) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Worker{
		repo:      repo,
		harvester: h,
		extractor: e,
		publisher: p,
		interval:  opts.PollInterval,
		chunk:     opts.ChunkSize,
		logger:    logger.With().Str("component", "job_worker").Logger(),
	}
}

// Start polls for jobs until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info().Dur("interval", w.interval).Msg("job worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("job worker stopping")
			return
		case <-ticker.C:
			for {
				ran, err := w.ProcessNext(ctx)
				if err != nil {
					w.logger.Error().Err(err).Msg("failed to process job")
				}
				if !ran || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// ProcessNext claims and runs one pending job. It reports false when there
// was nothing to do.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.repo.ClaimNext(ctx)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	w.logger.Info().Str("id", job.ID).Str("query", job.Spec.Query).Str("category", job.Spec.CategoryURL).Msg("processing job")

	runErr := w.run(ctx, job)
	if runErr != nil {
		w.logger.Error().Err(runErr).Str("id", job.ID).Msg("job failed")
	} else {
		w.logger.Info().Str("id", job.ID).Int("processed", job.Processed).Int("deals", job.DealsFound).Msg("job completed")
	}

	if err := w.repo.Finish(context.WithoutCancel(ctx), job.ID, runErr); err != nil {
		return true, err
	}
	return true, nil
}

func (w *Worker) run(ctx context.Context, job *models.Job) error {
	pages := job.Spec.MaxPages
	if pages == 0 {
		pages = scraper.UntilExhausted
	}

	links, err := w.harvester.Harvest(ctx, searchSpec(job.Spec), pages)
	if errors.Is(err, browser.ErrSessionInit) {
		return fmt.Errorf("%s: %w", models.OutcomeDriverInitError, err)
	}
	if err != nil && len(links) == 0 {
		return fmt.Errorf("harvest failed: %w", err)
	}

	job.LinksFound = len(links)
	w.saveProgress(ctx, job)

	for start := 0; start < len(links); start += w.chunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+w.chunk, len(links))
		w.extractor.RunParallel(ctx, links[start:end], func(o models.PageOutcome) {
			w.handle(ctx, job, o)
		})
		w.saveProgress(ctx, job)
	}

	return nil
}

// handle is called serially by the extractor.
func (w *Worker) handle(ctx context.Context, job *models.Job, o models.PageOutcome) {
	ctx = context.WithoutCancel(ctx)
	job.Processed++

	isDeal := o.IsSuccess() && o.Record.HasName() && deals.Matches(*o.Record, job.Spec.Filter)
	if err := w.repo.RecordOutcome(ctx, job.ID, o, isDeal); err != nil {
		w.logger.Error().Err(err).Str("url", o.URL).Msg("failed to store outcome")
	}
	if !isDeal {
		return
	}

	job.DealsFound++
	if err := w.publisher.PublishDealDetected(ctx, *o.Record, job.ID); err != nil {
		w.logger.Error().Err(err).Str("url", o.URL).Msg("failed to publish deal")
	}
}

func (w *Worker) saveProgress(ctx context.Context, job *models.Job) {
	err := w.repo.UpdateProgress(context.WithoutCancel(ctx), job.ID, job.LinksFound, job.Processed, job.DealsFound)
	if err != nil {
		w.logger.Error().Err(err).Str("id", job.ID).Msg("failed to update job progress")
	}
}
