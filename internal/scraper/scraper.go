package scraper

import (
	"errors"

	"github.com/maltedev/wb-deal-scraper/internal/browser"
	"github.com/maltedev/wb-deal-scraper/internal/parser"
	"github.com/maltedev/wb-deal-scraper/internal/proxy"
	"github.com/maltedev/wb-deal-scraper/internal/ratelimit"
	"github.com/rs/zerolog"
)

const DefaultConcurrency = 4

var (
	ErrNoSearchTarget = errors.New("search spec needs a query or a category URL")
	ErrBothTargets    = errors.New("search spec takes either a query or a category URL, not both")
)

type Options struct {
	// Concurrency caps the cycles in flight in RunParallel.
	Concurrency int
	// Proxies is optional; sessions connect directly when it is nil or empty.
	Proxies *proxy.Pool
	// Pacer, when set, spaces dispatches and backs off on captcha pages.
	Pacer *ratelimit.AdaptiveRateLimiter
}

// Extractor runs fetch, classify and extract cycles against detail pages.
type Extractor struct {
	factory     browser.Factory
	parser      parser.Parser
	proxies     *proxy.Pool
	pacer       *ratelimit.AdaptiveRateLimiter
	concurrency int
	logger      zerolog.Logger
}

func NewExtractor(factory browser.Factory, p parser.Parser, opts Options, logger zerolog.Logger) *Extractor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Extractor{
		factory:     factory,
		parser:      p,
		proxies:     opts.Proxies,
		pacer:       opts.Pacer,
		concurrency: opts.Concurrency,
		logger:      logger.With().Str("component", "extractor").Logger(),
	}
}

func (e *Extractor) Concurrency() int {
	return e.concurrency
}
