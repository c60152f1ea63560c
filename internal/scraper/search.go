package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/maltedev/wb-deal-scraper/internal/browser"
	"github.com/maltedev/wb-deal-scraper/internal/parser"
	"github.com/maltedev/wb-deal-scraper/internal/proxy"
	"github.com/maltedev/wb-deal-scraper/internal/ratelimit"
	"github.com/rs/zerolog"
)

// UntilExhausted makes Harvest keep paging until a page adds nothing new.
const UntilExhausted = -1

const (
	searchURLTemplate  = "https://www.wildberries.ru/catalog/0/search.aspx?page=%d&sort=popular&search=%s"
	feedbackPointsFlag = "&ffeedbackpoints=1"
	defaultMaxKopecks  = 2000000000
)

// ListingMarkers signal that a listing page has rendered its product cards.
var ListingMarkers = []string{
	".product-card__wrapper",
	".product-card",
	".j-card-item",
	".search-product-card",
}

// SearchSpec selects a listing: either a search query or a category URL,
// optionally narrowed to a price range in rubles.
type SearchSpec struct {
	Query       string   `json:"query,omitempty"`
	CategoryURL string   `json:"category_url,omitempty"`
	MinPrice    *float64 `json:"min_price,omitempty"`
	MaxPrice    *float64 `json:"max_price,omitempty"`
}

func (s SearchSpec) Validate() error {
	switch {
	case s.Query == "" && s.CategoryURL == "":
		return ErrNoSearchTarget
	case s.Query != "" && s.CategoryURL != "":
		return ErrBothTargets
	}
	return nil
}

// PageURL builds the listing URL for a 1-based page number.
func (s SearchSpec) PageURL(page int) string {
	var base string
	if s.CategoryURL != "" {
		sep := "?"
		if strings.Contains(s.CategoryURL, "?") {
			sep = "&"
		}
		base = fmt.Sprintf("%s%spage=%d", s.CategoryURL, sep, page)
	} else {
		base = fmt.Sprintf(searchURLTemplate, page, url.QueryEscape(s.Query))
	}
	return base + s.priceParam() + feedbackPointsFlag
}

// priceParam encodes the bounds in kopecks. It is empty when neither bound
// is set.
func (s SearchSpec) priceParam() string {
	if s.MinPrice == nil && s.MaxPrice == nil {
		return ""
	}

	minKop := int64(0)
	if s.MinPrice != nil && *s.MinPrice >= 0 {
		minKop = int64(*s.MinPrice * 100)
	}
	maxKop := int64(defaultMaxKopecks)
	if s.MaxPrice != nil && *s.MaxPrice > 0 {
		maxKop = int64(*s.MaxPrice * 100)
	}
	if minKop > maxKop {
		maxKop = minKop + 10000
	}

	return fmt.Sprintf("&priceU=%d%%3B%d", minKop, maxKop)
}

type HarvesterOptions struct {
	Proxies *proxy.Pool
	// MinDelay and MaxDelay bound the random pause between pages.
	MinDelay time.Duration
	MaxDelay time.Duration
	// WaitTimeout bounds the wait for ListingMarkers on each page.
	WaitTimeout time.Duration
	// PageCap stops exhaustion runs after this many pages; 0 means no cap.
	PageCap int
}

func DefaultHarvesterOptions() HarvesterOptions {
	return HarvesterOptions{
		MinDelay:    200 * time.Millisecond,
		MaxDelay:    500 * time.Millisecond,
		WaitTimeout: browser.DefaultWaitTimeout,
	}
}

// Harvester collects product detail URLs from listing pages.
type Harvester struct {
	factory     browser.Factory
	links       parser.LinkExtractor
	proxies     *proxy.Pool
	delay       ratelimit.RateLimiter
	waitTimeout time.Duration
	pageCap     int
	logger      zerolog.Logger
}

func NewHarvester(factory browser.Factory, links parser.LinkExtractor, opts HarvesterOptions, logger zerolog.Logger) *Harvester {
	return &Harvester{
		factory:     factory,
		links:       links,
		proxies:     opts.Proxies,
		delay:       ratelimit.NewSimpleRateLimiter(opts.MinDelay, opts.MaxDelay),
		waitTimeout: opts.WaitTimeout,
		pageCap:     opts.PageCap,
		logger:      logger.With().Str("component", "harvester").Logger(),
	}
}

// Harvest walks pages 1..maxPages of spec on one session and returns the
// distinct detail URLs in first-seen order. With maxPages == UntilExhausted
// it stops at the first page that adds no new URL. Pages that fail to load
// contribute nothing. A session that cannot be created fails the whole
// harvest with an error wrapping browser.ErrSessionInit.
func (h *Harvester) Harvest(ctx context.Context, spec SearchSpec, maxPages int) ([]string, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if maxPages == 0 {
		return nil, nil
	}

	proxyAddr, _ := h.proxies.NextAvailable()
	var links []string
	err := browser.Use(ctx, h.factory, proxyAddr, h.logger, func(s browser.Session) error {
		var err error
		links, err = h.collect(ctx, s, spec, maxPages)
		return err
	})
	if errors.Is(err, browser.ErrSessionInit) {
		h.proxies.MarkFailed(proxyAddr)
		h.logger.Error().Err(err).Msg("failed to create session for harvest")
	}

	return links, err
}

func (h *Harvester) collect(ctx context.Context, s browser.Session, spec SearchSpec, maxPages int) ([]string, error) {
	exhaust := maxPages == UntilExhausted
	seen := make(map[string]struct{})
	var links []string

	for page := 1; exhaust || page <= maxPages; page++ {
		if err := h.delay.Wait(ctx); err != nil {
			return links, err
		}

		pageURL := spec.PageURL(page)
		h.logger.Info().Int("page", page).Str("url", pageURL).Msg("loading listing page")

		html, err := s.Fetch(ctx, pageURL, browser.FetchOptions{
			WaitSelectors: ListingMarkers,
			WaitTimeout:   h.waitTimeout,
		})

		added := 0
		switch {
		case err == nil:
			found, perr := h.links.ExtractProductLinks(html)
			if perr != nil {
				h.logger.Warn().Err(perr).Str("url", pageURL).Msg("failed to parse listing page")
			}
			for _, link := range found {
				if _, ok := seen[link]; ok {
					continue
				}
				seen[link] = struct{}{}
				links = append(links, link)
				added++
			}
		case ctx.Err() != nil:
			return links, ctx.Err()
		case errors.Is(err, browser.ErrContentTimeout):
			h.logger.Warn().Str("url", pageURL).Msg("timed out waiting for listing content")
		default:
			h.logger.Error().Err(err).Str("url", pageURL).Msg("failed to load listing page")
		}

		h.logger.Debug().Int("page", page).Int("new", added).Int("total", len(links)).Msg("listing page done")

		if exhaust && added == 0 {
			break
		}
		if exhaust && h.pageCap > 0 && page >= h.pageCap {
			h.logger.Warn().Int("cap", h.pageCap).Msg("page cap reached before listing was exhausted")
			break
		}
	}

	h.logger.Info().Int("links", len(links)).Msg("harvest finished")
	return links, nil
}
