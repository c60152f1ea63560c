package main

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"os"
	"regexp"
	"strings"

	"github.com/maltedev/wb-deal-scraper/internal/app"
	"github.com/maltedev/wb-deal-scraper/internal/batch"
	"github.com/maltedev/wb-deal-scraper/internal/models"
	"github.com/maltedev/wb-deal-scraper/internal/parser"
	"github.com/maltedev/wb-deal-scraper/internal/scraper"
	"github.com/maltedev/wb-deal-scraper/internal/storage"
)

var articleID = regexp.MustCompile(`^\d+$`)

// FilterFlags narrow the matched records. Zero values fall back to the
// FILTER_* settings.
type FilterFlags struct {
	MinPrice   float64 `help:"Minimum current price." name:"min-price"`
	MaxPrice   float64 `help:"Maximum current price." name:"max-price"`
	MinRating  float64 `help:"Minimum rating (0-5)." name:"min-rating"`
	MinReviews int     `help:"Minimum review count." name:"min-reviews"`
	Brand      string  `help:"Brand substring, case insensitive."`
}

func (f FilterFlags) filter(rc *runContext) models.SearchFilter {
	out := app.DefaultFilter(rc.cfg)
	if f.MinPrice > 0 {
		out.MinPrice = models.Float(f.MinPrice)
	}
	if f.MaxPrice > 0 {
		out.MaxPrice = models.Float(f.MaxPrice)
	}
	if f.MinRating > 0 {
		out.MinRating = models.Float(f.MinRating)
	}
	if f.MinReviews > 0 {
		n := f.MinReviews
		out.MinReviews = &n
	}
	out.Brand = f.Brand
	return out
}

// PageFlags bound how many listing pages are harvested.
type PageFlags struct {
	Pages    int  `help:"Listing pages to harvest." short:"p" default:"1"`
	AllPages bool `help:"Harvest until a page yields no new product." name:"all-pages"`
}

func (p PageFlags) maxPages() (int, error) {
	if p.AllPages {
		return scraper.UntilExhausted, nil
	}
	if p.Pages < 1 {
		return 0, errors.New("--pages must be at least 1")
	}
	return p.Pages, nil
}

// RunFlags control the batch run and its outputs. Empty values fall back
// to the BATCH_* settings.
type RunFlags struct {
	Threads      int    `help:"Parallel extraction cycles." short:"t"`
	Sequential   bool   `help:"Use one browser session for every page, one page at a time."`
	BatchSize    int    `help:"Links per batch." name:"batch-size"`
	Output       string `help:"JSON results file." short:"o" type:"path"`
	CSV          string `help:"CSV results file." name:"csv" type:"path"`
	ErrorLog     string `help:"Error log file." name:"error-log" type:"path"`
	ProgressFile string `help:"Progress file rewritten after every batch." name:"progress-file" type:"path"`
	LinksFile    string `help:"Article status file." name:"links-file" type:"path"`
	CheckProxies bool   `help:"Probe proxies before the run and skip failing ones." name:"check-proxies"`
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func (f RunFlags) run(rc *runContext, filter models.SearchFilter, source func(*app.Pipeline) batch.Source) error {
	cfg := rc.cfg
	if f.Threads > 0 {
		cfg.Scraper.Concurrency = f.Threads
	}
	if f.BatchSize > 0 {
		cfg.Batch.Size = f.BatchSize
	}

	pipeline, err := app.NewPipeline(rc.ctx, cfg, f.CheckProxies, rc.logger)
	if err != nil {
		return err
	}

	links, err := storage.NewLinkStorage(orDefault(f.LinksFile, cfg.Batch.LinksFile))
	if err != nil {
		return err
	}

	runner := batch.NewRunner(pipeline.Extractor, batch.Options{
		BatchSize:    cfg.Batch.Size,
		Sequential:   f.Sequential,
		Filter:       filter,
		ErrorLog:     orDefault(f.ErrorLog, cfg.Batch.ErrorLog),
		ProgressFile: orDefault(f.ProgressFile, cfg.Batch.ProgressFile),
		OutputJSON:   orDefault(f.Output, cfg.Batch.OutputJSON),
		OutputCSV:    orDefault(f.CSV, cfg.Batch.OutputCSV),
		Links:        links,
	}, rc.logger)

	summary, err := runner.Run(rc.ctx, source(pipeline))
	if err != nil {
		return err
	}
	if summary.Cancelled {
		rc.logger.Warn().Int("processed", summary.Processed).Msg("run interrupted, partial results saved")
	}
	return nil
}

type SearchCmd struct {
	Query string `arg:"" help:"Search phrase."`

	PageFlags   `embed:""`
	FilterFlags `embed:""`
	RunFlags    `embed:""`
}

func (c *SearchCmd) Run(rc *runContext) error {
	pages, err := c.maxPages()
	if err != nil {
		return err
	}
	filter := c.filter(rc)
	spec := scraper.SearchSpec{
		Query:    strings.TrimSpace(c.Query),
		MinPrice: filter.MinPrice,
		MaxPrice: filter.MaxPrice,
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	return c.run(rc, filter, func(p *app.Pipeline) batch.Source {
		return batch.HarvestSource(p.Harvester, spec, pages)
	})
}

type CategoryCmd struct {
	URL string `arg:"" help:"Category listing URL."`

	PageFlags   `embed:""`
	FilterFlags `embed:""`
	RunFlags    `embed:""`
}

func (c *CategoryCmd) Run(rc *runContext) error {
	pages, err := c.maxPages()
	if err != nil {
		return err
	}
	filter := c.filter(rc)
	spec := scraper.SearchSpec{
		CategoryURL: strings.TrimSpace(c.URL),
		MinPrice:    filter.MinPrice,
		MaxPrice:    filter.MaxPrice,
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	return c.run(rc, filter, func(p *app.Pipeline) batch.Source {
		return batch.HarvestSource(p.Harvester, spec, pages)
	})
}

type ArticlesCmd struct {
	File string `arg:"" help:"File with one article id per line." type:"existingfile"`

	FilterFlags `embed:""`
	RunFlags    `embed:""`
}

func (c *ArticlesCmd) Run(rc *runContext) error {
	return c.run(rc, c.filter(rc), func(*app.Pipeline) batch.Source {
		return batch.ArticleFileSource(c.File)
	})
}

type RandomCmd struct {
	Count int `help:"Number of random articles; defaults to BATCH_RANDOM_COUNT." short:"n"`

	FilterFlags `embed:""`
	RunFlags    `embed:""`
}

func (c *RandomCmd) Run(rc *runContext) error {
	n := c.Count
	if n <= 0 {
		n = rc.cfg.Batch.RandomCount
	}
	return c.run(rc, c.filter(rc), func(*app.Pipeline) batch.Source {
		return batch.RandomSource(n, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
	})
}

type ExtractCmd struct {
	Target string `arg:"" help:"Product URL or article id."`
}

func (c *ExtractCmd) Run(rc *runContext) error {
	url := strings.TrimSpace(c.Target)
	if articleID.MatchString(url) {
		url = parser.ProductURL(url)
	}
	if !parser.IsProductURL(url) {
		return errors.New("target is neither a product URL nor an article id")
	}

	pipeline, err := app.NewPipeline(rc.ctx, rc.cfg, false, rc.logger)
	if err != nil {
		return err
	}

	outcome := pipeline.Extractor.Extract(rc.ctx, url)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(outcome)
}

type ProxiesCmd struct{}

func (c *ProxiesCmd) Run(rc *runContext) error {
	pool := app.NewProxyPool(rc.ctx, rc.cfg, true, rc.logger)
	if pool.Len() == 0 {
		return errors.New("no proxies configured, set SCRAPER_PROXIES")
	}
	for _, p := range pool.Working() {
		rc.logger.Info().Str("proxy", p).Msg("working")
	}
	for _, p := range pool.Failed() {
		rc.logger.Warn().Str("proxy", p).Msg("failed")
	}
	return nil
}
