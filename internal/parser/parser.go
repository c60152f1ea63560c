package parser

import (
	"github.com/maltedev/wb-deal-scraper/internal/models"
)

// Parser turns a rendered detail page into a tagged outcome.
type Parser interface {
	ParseProductPage(html string, pageURL string) models.PageOutcome
}

// LinkExtractor pulls product detail URLs out of a listing page.
type LinkExtractor interface {
	ExtractProductLinks(html string) ([]string, error)
}
