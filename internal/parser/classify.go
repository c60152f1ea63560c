package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/wb-deal-scraper/internal/models"
)

var (
	captchaMarkers  = []string{"captcha", "капча"}
	captchaSelector = "div.captcha__container"

	unavailableSelectors = []string{
		".product-page__title--not-found",
		".product-page__title-status--sold-out",
		"div.soldout-title > h1",
		".empty-state-page__title",
		".error-page__title",
	}
)

// IsCaptchaPage reports whether raw markup is an anti-bot challenge.
func IsCaptchaPage(rawHTML string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return containsAny(strings.ToLower(rawHTML), captchaMarkers)
	}
	return isCaptcha(doc, rawHTML)
}

func isCaptcha(doc *goquery.Document, rawHTML string) bool {
	lower := strings.ToLower(rawHTML)
	return containsAny(lower, captchaMarkers) || doc.Find(captchaSelector).Length() > 0
}

// classify returns a terminal outcome for challenge and unavailable pages.
// Unavailable markers are only consulted when the page has no product name.
func classify(doc *goquery.Document, rawHTML, pageURL string) (models.PageOutcome, bool) {
	if isCaptcha(doc, rawHTML) {
		return models.CaptchaDetected(pageURL), true
	}

	if productName(doc) != "" {
		return models.PageOutcome{}, false
	}

	for _, sel := range unavailableSelectors {
		if el := doc.Find(sel).First(); el.Length() > 0 {
			return models.ProductUnavailable(pageURL, strings.TrimSpace(el.Text())), true
		}
	}

	return models.PageOutcome{}, false
}
