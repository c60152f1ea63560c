package scraper

import (
	"context"
	"fmt"

	"github.com/maltedev/wb-deal-scraper/internal/browser"
	"github.com/maltedev/wb-deal-scraper/internal/models"
)

// Extract runs one cycle for url on a session of its own.
func (e *Extractor) Extract(ctx context.Context, url string) (outcome models.PageOutcome) {
	defer e.recoverCycle(url, &outcome)

	proxyAddr, _ := e.proxies.NextAvailable()
	err := browser.Use(ctx, e.factory, proxyAddr, e.logger, func(s browser.Session) error {
		outcome = e.extractWith(ctx, s, url, proxyAddr)
		return nil
	})
	if err != nil {
		e.proxies.MarkFailed(proxyAddr)
		e.logger.Error().Err(err).Str("url", url).Msg("failed to create session")
		return models.DriverInitError(url, err)
	}

	return outcome
}

// extractWith fetches url on an already acquired session. Fetch failures and
// panics become tagged outcomes.
func (e *Extractor) extractWith(ctx context.Context, s browser.Session, url, proxyAddr string) (outcome models.PageOutcome) {
	defer e.recoverCycle(url, &outcome)

	html, err := s.Fetch(ctx, url, browser.FetchOptions{})
	if err != nil {
		e.proxies.MarkFailed(proxyAddr)
		e.logger.Error().Err(err).Str("url", url).Msg("failed to load product page")
		return models.WorkerCriticalError(url, fmt.Sprintf("failed to load page: %v", err))
	}

	outcome = e.parser.ParseProductPage(html, url)
	e.observe(outcome)

	return outcome
}

func (e *Extractor) observe(outcome models.PageOutcome) {
	event := e.logger.Debug()
	switch outcome.Kind {
	case models.OutcomeSuccess:
		if e.pacer != nil {
			e.pacer.RecordSuccess()
		}
	case models.OutcomeCaptchaDetected:
		event = e.logger.Warn()
		if e.pacer != nil {
			e.pacer.RecordError()
		}
	default:
		event = e.logger.Info()
	}

	event.Str("url", outcome.URL).Str("status", string(outcome.Kind)).Str("message", outcome.Message).Msg("page processed")
}

func (e *Extractor) recoverCycle(url string, outcome *models.PageOutcome) {
	if r := recover(); r != nil {
		e.logger.Error().Str("url", url).Interface("panic", r).Msg("fetch cycle panic recovered")
		*outcome = models.WorkerCriticalError(url, fmt.Sprintf("panic: %v", r))
	}
}
