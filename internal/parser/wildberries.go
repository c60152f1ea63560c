package parser

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/wb-deal-scraper/internal/models"
)

// WildberriesParser extracts product records from Wildberries detail pages.
// Each field is resolved by an ordered chain of strategies.
type WildberriesParser struct {
	name     []strategy[string]
	wallet   []strategy[float64]
	standard []strategy[float64]
	original []strategy[float64]
	feedback []strategy[float64]
	brand    []strategy[string]
}

var (
	_ Parser        = (*WildberriesParser)(nil)
	_ LinkExtractor = (*WildberriesParser)(nil)
)

func NewWildberriesParser() *WildberriesParser {
	return &WildberriesParser{
		name:     nameStrategies(),
		wallet:   walletStrategies(),
		standard: standardStrategies(),
		original: originalStrategies(),
		feedback: feedbackStrategies(),
		brand:    brandStrategies(),
	}
}

// ParseProductPage classifies the page and, when it is a regular product
// page, builds a record from it. It never panics on malformed input and the
// result depends only on its arguments.
func (w *WildberriesParser) ParseProductPage(rawHTML string, pageURL string) models.PageOutcome {
	base, err := url.Parse(pageURL)
	if err != nil {
		return models.ParseError(pageURL, fmt.Sprintf("invalid page URL: %v", err))
	}
	canonicalURL := canonical(base)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return models.ParseError(canonicalURL, fmt.Sprintf("failed to parse HTML: %v", err))
	}

	if outcome, done := classify(doc, rawHTML, canonicalURL); done {
		return outcome
	}

	p := &page{doc: doc, base: base}
	current, secondary, original := w.resolvePrices(p)
	rating, reviews := ratingAndReviews(p)

	record := models.ProductRecord{
		URL:              canonicalURL,
		Article:          ArticleFromURL(canonicalURL),
		Name:             firstValid(p, w.name),
		CurrentPrice:     current,
		SecondaryPrice:   secondary,
		OriginalPrice:    original,
		FeedbackDiscount: firstValid(p, w.feedback),
		Rating:           rating,
		ReviewCount:      reviews,
		Brand:            firstValid(p, w.brand),
		Images:           images(p),
	}

	if record.Name == "" && record.CurrentPrice == 0 {
		return models.EssentialDataMissing(canonicalURL, "Product name and price not found")
	}

	return models.Success(record)
}

// resolvePrices picks the current, secondary and original prices. The
// wallet price wins when present and the standard price becomes secondary.
func (w *WildberriesParser) resolvePrices(p *page) (current, secondary, original float64) {
	wallet := firstValid(p, w.wallet)
	p.wallet = wallet
	standard := firstValid(p, w.standard)
	original = firstValid(p, w.original)

	if wallet > 0 {
		current = wallet
		if standard > 0 && math.Abs(standard-wallet) > models.PriceTolerance {
			secondary = standard
		}
	} else {
		current = standard
	}

	if current > 0 {
		if original > 0 && original <= current {
			original = 0
		}
		if secondary > 0 && secondary <= current {
			secondary = 0
		}
	}

	return current, secondary, original
}
