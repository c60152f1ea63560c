// Package batch drives a complete extraction run: collect URLs, process them
// in batches, filter deals, persist progress and export the matches.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/maltedev/wb-deal-scraper/internal/browser"
	"github.com/maltedev/wb-deal-scraper/internal/deals"
	"github.com/maltedev/wb-deal-scraper/internal/export"
	"github.com/maltedev/wb-deal-scraper/internal/models"
	"github.com/maltedev/wb-deal-scraper/internal/parser"
	"github.com/maltedev/wb-deal-scraper/internal/queue"
	"github.com/maltedev/wb-deal-scraper/internal/storage"
	"github.com/rs/zerolog"
)

const (
	DefaultBatchSize = 1000
	TopDeals         = 5
)

// Extractor runs detail page cycles over a list of URLs.
type Extractor interface {
	RunParallel(ctx context.Context, urls []string, onResult func(models.PageOutcome)) []models.PageOutcome
	RunSequential(ctx context.Context, urls []string, onResult func(models.PageOutcome)) ([]models.PageOutcome, error)
}

type Options struct {
	BatchSize  int
	Sequential bool
	Filter     models.SearchFilter

	// Empty paths disable the corresponding output.
	ErrorLog     string
	ProgressFile string
	OutputJSON   string
	OutputCSV    string

	// Links, when set, tracks the status of every article.
	Links *storage.LinkStorage
}

// Summary describes a finished (or cancelled) run.
type Summary struct {
	Links      int
	Processed  int
	Errors     int
	NoFeedback int
	Deals      []models.ProductRecord
	Top        []models.ProductRecord
	LinkTime   time.Duration
	ParseTime  time.Duration
	TotalTime  time.Duration
	Cancelled  bool
}

type Runner struct {
	extractor Extractor
	opts      Options
	logger    zerolog.Logger
}

func NewRunner(extractor Extractor, opts Options, logger zerolog.Logger) *Runner {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Runner{
		extractor: extractor,
		opts:      opts,
		logger:    logger.With().Str("component", "batch_runner").Logger(),
	}
}

// Run collects URLs from src and processes them batch by batch. Cancelling
// ctx stops the run at the next batch boundary (or between items in
// sequential mode); what was collected up to then is exported and reported
// with Cancelled set.
func (r *Runner) Run(ctx context.Context, src Source) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}

	urls, err := src(ctx)
	if err != nil && len(urls) == 0 {
		return nil, fmt.Errorf("failed to collect product links: %w", err)
	}
	if err != nil {
		r.logger.Warn().Err(err).Int("links", len(urls)).Msg("link collection stopped early")
	}
	urls = dedupe(urls)
	summary.Links = len(urls)
	summary.LinkTime = time.Since(start)
	r.logger.Info().Int("links", len(urls)).Dur("elapsed", summary.LinkTime).Msg("unique product links collected")

	errLog, err := r.openErrorLog()
	if err != nil {
		return nil, err
	}
	defer errLog.Close()

	batches, err := r.enqueue(urls)
	if err != nil {
		return nil, err
	}
	totalBatches := batches.Batches(len(urls))

	parseStart := time.Now()
	for n := 0; ; n++ {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}
		tasks, err := batches.PopBatch(ctx)
		if errors.Is(err, queue.ErrQueueEmpty) {
			break
		}
		if err != nil {
			summary.Cancelled = true
			break
		}

		if r.runBatch(ctx, tasks, summary, errLog) {
			summary.Cancelled = true
		}

		r.afterBatch(n+1, totalBatches, summary, start)
		if summary.Cancelled {
			break
		}
	}
	summary.ParseTime = time.Since(parseStart)

	if summary.Cancelled {
		r.logger.Warn().Int("processed", summary.Processed).Int("total", len(urls)).Msg("run cancelled, keeping collected results")
	}

	if err := r.export(summary.Deals); err != nil {
		return summary, err
	}

	summary.Top = deals.Top(summary.Deals, TopDeals)
	summary.TotalTime = time.Since(start)
	r.logSummary(summary)

	return summary, nil
}

func (r *Runner) enqueue(urls []string) (*queue.BatchQueue, error) {
	q := queue.NewInMemoryQueue()
	batches := queue.NewBatchQueue(q, r.opts.BatchSize)

	tasks := make([]*queue.Task, 0, len(urls))
	links := make([]*storage.ArticleLink, 0, len(urls))
	for _, u := range urls {
		article := parser.ArticleFromURL(u)
		tasks = append(tasks, queue.NewTask(u, article))
		if article != "" {
			links = append(links, &storage.ArticleLink{Article: article, URL: u, Status: storage.StatusPending})
		}
	}
	if err := batches.PushBatch(tasks); err != nil {
		return nil, fmt.Errorf("failed to enqueue urls: %w", err)
	}
	_ = q.Close()

	if r.opts.Links != nil && len(links) > 0 {
		if err := r.opts.Links.AddBatch(links); err != nil {
			return nil, fmt.Errorf("failed to record links: %w", err)
		}
	}
	return batches, nil
}

// runBatch processes one batch and reports whether the run was cancelled
// while it was in progress.
func (r *Runner) runBatch(ctx context.Context, tasks []*queue.Task, summary *Summary, errLog io.Writer) bool {
	urls := make([]string, len(tasks))
	for i, t := range tasks {
		urls[i] = t.URL
	}

	var mu sync.Mutex
	handle := func(o models.PageOutcome) {
		mu.Lock()
		defer mu.Unlock()
		r.record(o, summary, errLog)
	}

	if !r.opts.Sequential {
		r.extractor.RunParallel(ctx, urls, handle)
		return false
	}

	outcomes, err := r.extractor.RunSequential(ctx, urls, handle)
	if errors.Is(err, browser.ErrSessionInit) {
		var msg string
		if len(outcomes) > 0 {
			msg = outcomes[0].Message
		}
		for _, u := range urls {
			handle(models.PageOutcome{Kind: models.OutcomeDriverInitError, URL: u, Message: msg})
		}
		return false
	}
	return err != nil && ctx.Err() != nil
}

func (r *Runner) record(o models.PageOutcome, summary *Summary, errLog io.Writer) {
	summary.Processed++
	article := parser.ArticleFromURL(o.URL)

	if !o.IsSuccess() {
		summary.Errors++
		fmt.Fprintf(errLog, "ERROR: %s | %s: %s\n", o.URL, o.Kind, o.Message)
		r.setStatus(article, storage.StatusFailed, o)
		return
	}

	rec := *o.Record
	switch {
	case !rec.HasName():
		// A nameless record still has prices but cannot be reported.
		fmt.Fprintf(errLog, "NO_PRODUCT_NAME: %s\n", o.URL)
	case deals.Matches(rec, r.opts.Filter):
		summary.Deals = append(summary.Deals, rec)
		r.logger.Info().Str("name", rec.Name).Str("url", rec.URL).Float64("difference", rec.DiscountDifference()).Msg("deal found")
	case rec.FeedbackDiscount == 0:
		summary.NoFeedback++
		fmt.Fprintf(errLog, "NO_FEEDBACK_DISCOUNT: %s\n", o.URL)
	}
	r.setStatus(article, storage.StatusCompleted, o)
}

func (r *Runner) setStatus(article, status string, o models.PageOutcome) {
	if r.opts.Links == nil || article == "" {
		return
	}
	var msg string
	if !o.IsSuccess() {
		msg = o.Message
	}
	if err := r.opts.Links.UpdateStatus(article, status, string(o.Kind), msg); err != nil {
		r.logger.Debug().Err(err).Str("article", article).Msg("failed to update link status")
	}
}

func (r *Runner) afterBatch(batchNum, totalBatches int, summary *Summary, start time.Time) {
	workTime := time.Since(start).Minutes()
	r.logger.Info().
		Int("batch", batchNum).
		Int("batches", totalBatches).
		Int("processed", summary.Processed).
		Int("total", summary.Links).
		Int("found", len(summary.Deals)).
		Float64("minutes", workTime).
		Msg("batch finished")

	if r.opts.Links != nil {
		if err := r.opts.Links.Flush(); err != nil {
			r.logger.Error().Err(err).Msg("failed to save link statuses")
		}
	}

	if r.opts.ProgressFile == "" {
		return
	}
	err := storage.SaveProgress(r.opts.ProgressFile, storage.Progress{
		BatchNum:     batchNum,
		TotalBatches: totalBatches,
		Total:        summary.Processed,
		Found:        len(summary.Deals),
		WorkTime:     workTime,
	})
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to save progress")
	}
}

func (r *Runner) export(records []models.ProductRecord) error {
	if r.opts.OutputJSON != "" {
		if err := export.WriteJSON(r.opts.OutputJSON, records); err != nil {
			return err
		}
	}
	if r.opts.OutputCSV != "" {
		if err := export.WriteCSV(r.opts.OutputCSV, records); err != nil {
			return err
		}
	}
	r.logger.Info().Int("deals", len(records)).Str("json", r.opts.OutputJSON).Str("csv", r.opts.OutputCSV).Msg("results saved")
	return nil
}

func (r *Runner) openErrorLog() (io.WriteCloser, error) {
	if r.opts.ErrorLog == "" {
		return nopWriteCloser{io.Discard}, nil
	}
	f, err := os.OpenFile(r.opts.ErrorLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log: %w", err)
	}
	return f, nil
}

func (r *Runner) logSummary(s *Summary) {
	r.logger.Info().
		Int("links", s.Links).
		Int("processed", s.Processed).
		Int("deals", len(s.Deals)).
		Int("errors", s.Errors).
		Int("no_feedback_discount", s.NoFeedback).
		Dur("link_time", s.LinkTime).
		Dur("parse_time", s.ParseTime).
		Dur("total_time", s.TotalTime).
		Bool("cancelled", s.Cancelled).
		Msg("run summary")

	if len(s.Top) == 0 {
		r.logger.Info().Msg("no deals found")
		return
	}
	for i, rec := range s.Top {
		r.logger.Info().
			Int("rank", i+1).
			Str("name", rec.Name).
			Str("url", rec.URL).
			Float64("difference", rec.DiscountDifference()).
			Msg("top deal")
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
