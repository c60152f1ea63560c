package batch

import (
	"bufio"
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"github.com/maltedev/wb-deal-scraper/internal/parser"
	"github.com/maltedev/wb-deal-scraper/internal/scraper"
)

// Bounds of generated article ids.
const (
	MinRandomArticle = 1000000
	MaxRandomArticle = 999999999
)

// Source produces the product URLs for one run.
type Source func(ctx context.Context) ([]string, error)

// HarvestSource collects URLs from search or category listings. pages may be
// scraper.UntilExhausted.
func HarvestSource(h *scraper.Harvester, spec scraper.SearchSpec, pages int) Source {
	return func(ctx context.Context) ([]string, error) {
		return h.Harvest(ctx, spec, pages)
	}
}

// ArticleFileSource reads one article id per line. Blank lines are skipped.
func ArticleFileSource(path string) Source {
	return func(context.Context) ([]string, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open article file: %w", err)
		}
		defer f.Close()

		var urls []string
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			if article := strings.TrimSpace(sc.Text()); article != "" {
				urls = append(urls, parser.ProductURL(article))
			}
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("failed to read article file: %w", err)
		}
		return urls, nil
	}
}

// RandomSource draws n article ids uniformly from the random article range.
func RandomSource(n int, rng *rand.Rand) Source {
	return func(context.Context) ([]string, error) {
		urls := make([]string, 0, n)
		for i := 0; i < n; i++ {
			id := MinRandomArticle + rng.IntN(MaxRandomArticle-MinRandomArticle+1)
			urls = append(urls, parser.ProductURL(strconv.Itoa(id)))
		}
		return urls, nil
	}
}

// URLSource returns urls as given.
func URLSource(urls ...string) Source {
	return func(context.Context) ([]string, error) {
		return urls, nil
	}
}

// dedupe drops repeated URLs, comparing canonical forms, and keeps the
// first occurrence.
func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		c := parser.CanonicalURL(u)
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
