package scraper

import (
	"context"
	"errors"

	"github.com/maltedev/wb-deal-scraper/internal/browser"
	"github.com/maltedev/wb-deal-scraper/internal/models"
)

// RunSequential processes urls in order on one long-lived session. A failing
// item does not end the loop. Cancellation is checked between items: the
// item in flight completes and everything collected so far is returned
// together with ctx.Err().
//
// When the session cannot be created the result is a single
// driver_init_error outcome and the wrapped factory error.
func (e *Extractor) RunSequential(ctx context.Context, urls []string, onResult func(models.PageOutcome)) ([]models.PageOutcome, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	proxyAddr, _ := e.proxies.NextAvailable()
	results := make([]models.PageOutcome, 0, len(urls))

	err := browser.Use(ctx, e.factory, proxyAddr, e.logger, func(s browser.Session) error {
		fetchCtx := context.WithoutCancel(ctx)
		for i, u := range urls {
			if err := ctx.Err(); err != nil {
				e.logger.Info().Int("processed", i).Int("total", len(urls)).Msg("sequential run cancelled")
				return err
			}
			if i > 0 && e.pacer != nil {
				if err := e.pacer.Wait(ctx); err != nil {
					return err
				}
			}

			outcome := e.extractWith(fetchCtx, s, u, proxyAddr)
			results = append(results, outcome)
			if onResult != nil {
				onResult(outcome)
			}
		}
		return nil
	})

	if errors.Is(err, browser.ErrSessionInit) {
		e.proxies.MarkFailed(proxyAddr)
		e.logger.Error().Err(err).Msg("failed to create session for sequential run")
		return []models.PageOutcome{models.DriverInitError("", err)}, err
	}

	return results, err
}
