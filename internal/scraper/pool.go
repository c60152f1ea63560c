package scraper

import (
	"context"
	"sync"

	"github.com/maltedev/wb-deal-scraper/internal/models"
	"golang.org/x/sync/errgroup"
)

// RunParallel processes urls with at most Concurrency cycles in flight, one
// session per cycle. Outcomes are returned in completion order. onResult,
// when set, sees each outcome as it lands; calls are serialised.
//
// The batch always runs to completion: cancelling ctx does not interrupt
// dispatch or in-flight fetches. Callers cancel between batches.
func (e *Extractor) RunParallel(ctx context.Context, urls []string, onResult func(models.PageOutcome)) []models.PageOutcome {
	ctx = context.WithoutCancel(ctx)

	var (
		mu      sync.Mutex
		results = make([]models.PageOutcome, 0, len(urls))
	)

	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for _, u := range urls {
		if e.pacer != nil {
			_ = e.pacer.Wait(ctx)
		}
		g.Go(func() error {
			outcome := e.Extract(ctx, u)

			mu.Lock()
			defer mu.Unlock()
			results = append(results, outcome)
			if onResult != nil {
				onResult(outcome)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
