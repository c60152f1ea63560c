// Package app assembles the scraping components from configuration. Both
// the server and the CLI build their pipelines through it.
package app

import (
	"context"
	"fmt"

	"github.com/maltedev/wb-deal-scraper/internal/browser"
	"github.com/maltedev/wb-deal-scraper/internal/cache"
	"github.com/maltedev/wb-deal-scraper/internal/config"
	"github.com/maltedev/wb-deal-scraper/internal/models"
	"github.com/maltedev/wb-deal-scraper/internal/parser"
	"github.com/maltedev/wb-deal-scraper/internal/proxy"
	"github.com/maltedev/wb-deal-scraper/internal/ratelimit"
	"github.com/maltedev/wb-deal-scraper/internal/scraper"
	"github.com/rs/zerolog"
)

// Pipeline holds the shared scraping components.
type Pipeline struct {
	Factory   browser.Factory
	Proxies   *proxy.Pool
	Extractor *scraper.Extractor
	Harvester *scraper.Harvester
}

func BrowserOptions(cfg *config.Config) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Browser.Timeout
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.AcceptLanguage = cfg.Browser.AcceptLanguage
	opts.TimezoneID = cfg.Browser.TimezoneID
	opts.Locale = cfg.Browser.Locale
	opts.BlockImages = cfg.Browser.BlockImages
	if len(cfg.Scraper.UserAgents) > 0 {
		opts.UserAgents = cfg.Scraper.UserAgents
	}
	return opts
}

// NewFactory returns the configured driver's session factory, wrapped in
// the memcached page cache when MEMCACHE_ADDR is set.
func NewFactory(cfg *config.Config, logger zerolog.Logger) (browser.Factory, error) {
	factory, err := browser.NewFactory(cfg.Scraper.Driver, BrowserOptions(cfg), logger)
	if err != nil {
		return nil, err
	}

	if !cfg.Memcache.Enabled() {
		return factory, nil
	}

	store := cache.NewMemcacheStore(cfg.Memcache.Addr)
	if err := store.Ping(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Memcache.Addr).Msg("memcached unreachable, page cache disabled")
		return factory, nil
	}
	logger.Info().Str("addr", cfg.Memcache.Addr).Dur("ttl", cfg.Memcache.TTL).Msg("page cache enabled")
	return cache.WrapFactory(factory, store, cfg.Memcache.TTL, logger), nil
}

// NewProxyPool builds the pool from SCRAPER_PROXIES. With check set, the
// proxies are probed first and the failing ones are skipped.
func NewProxyPool(ctx context.Context, cfg *config.Config, check bool, logger zerolog.Logger) *proxy.Pool {
	pool := proxy.NewPool(cfg.Scraper.Proxies, logger)
	pool.SetCheck(cfg.Scraper.ProxyCheckURL, cfg.Scraper.ProxyCheckTimeout)
	if check && pool.Len() > 0 {
		pool.FilterWorking(ctx, cfg.Scraper.Concurrency)
	}
	return pool
}

// NewPipeline wires factory, proxies, extractor and harvester together.
func NewPipeline(ctx context.Context, cfg *config.Config, checkProxies bool, logger zerolog.Logger) (*Pipeline, error) {
	factory, err := NewFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create session factory: %w", err)
	}

	proxies := NewProxyPool(ctx, cfg, checkProxies, logger)
	wb := parser.NewWildberriesParser()

	extractor := scraper.NewExtractor(factory, wb, scraper.Options{
		Concurrency: cfg.Scraper.Concurrency,
		Proxies:     proxies,
		Pacer:       ratelimit.NewAdaptiveRateLimiter(cfg.Scraper.DispatchDelayMin, cfg.Scraper.DispatchDelayMax),
	}, logger)

	harvester := scraper.NewHarvester(factory, wb, scraper.HarvesterOptions{
		Proxies:     proxies,
		MinDelay:    cfg.Scraper.HarvestDelayMin,
		MaxDelay:    cfg.Scraper.HarvestDelayMax,
		WaitTimeout: cfg.Scraper.WaitTimeout,
	}, logger)

	return &Pipeline{
		Factory:   factory,
		Proxies:   proxies,
		Extractor: extractor,
		Harvester: harvester,
	}, nil
}

// DefaultFilter turns the FILTER_* settings into a SearchFilter. Zero
// bounds mean no constraint.
func DefaultFilter(cfg *config.Config) models.SearchFilter {
	var f models.SearchFilter
	if cfg.Filter.MinPrice > 0 {
		f.MinPrice = models.Float(cfg.Filter.MinPrice)
	}
	if cfg.Filter.MaxPrice > 0 {
		f.MaxPrice = models.Float(cfg.Filter.MaxPrice)
	}
	if cfg.Filter.MinRating > 0 {
		f.MinRating = models.Float(cfg.Filter.MinRating)
	}
	if cfg.Filter.MinReviews > 0 {
		n := cfg.Filter.MinReviews
		f.MinReviews = &n
	}
	return f
}
