package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/maltedev/wb-deal-scraper/internal/browser"
	"github.com/maltedev/wb-deal-scraper/internal/models"
	"github.com/maltedev/wb-deal-scraper/internal/parser"
	"github.com/maltedev/wb-deal-scraper/internal/proxy"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listing(ids ...int) string {
	var b strings.Builder
	b.WriteString(`<div class="product-card__wrapper">`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<a href="/catalog/%d/detail.aspx?size=%d">x</a>`, id, id)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func pageNumber(raw string) int {
	u, _ := url.Parse(raw)
	var n int
	fmt.Sscanf(u.Query().Get("page"), "%d", &n)
	return n
}

func detail(id int) string {
	return fmt.Sprintf("https://www.wildberries.ru/catalog/%d/detail.aspx", id)
}

func newTestHarvester(env *fakeEnv, opts HarvesterOptions) *Harvester {
	return NewHarvester(env.factory(), parser.NewWildberriesParser(), opts, zerolog.Nop())
}

func TestSearchSpecPageURL(t *testing.T) {
	tests := []struct {
		name     string
		spec     SearchSpec
		page     int
		expected string
	}{
		{
			name:     "search without bounds",
			spec:     SearchSpec{Query: "маска для волос"},
			page:     1,
			expected: "https://www.wildberries.ru/catalog/0/search.aspx?page=1&sort=popular&search=%D0%BC%D0%B0%D1%81%D0%BA%D0%B0+%D0%B4%D0%BB%D1%8F+%D0%B2%D0%BE%D0%BB%D0%BE%D1%81&ffeedbackpoints=1",
		},
		{
			name:     "search with both bounds",
			spec:     SearchSpec{Query: "shampoo", MinPrice: models.Float(100), MaxPrice: models.Float(500)},
			page:     2,
			expected: "https://www.wildberries.ru/catalog/0/search.aspx?page=2&sort=popular&search=shampoo&priceU=10000%3B50000&ffeedbackpoints=1",
		},
		{
			name:     "min only uses default max",
			spec:     SearchSpec{Query: "x", MinPrice: models.Float(10)},
			page:     1,
			expected: "https://www.wildberries.ru/catalog/0/search.aspx?page=1&sort=popular&search=x&priceU=1000%3B2000000000&ffeedbackpoints=1",
		},
		{
			name:     "min above max",
			spec:     SearchSpec{Query: "x", MinPrice: models.Float(600), MaxPrice: models.Float(500)},
			page:     1,
			expected: "https://www.wildberries.ru/catalog/0/search.aspx?page=1&sort=popular&search=x&priceU=60000%3B70000&ffeedbackpoints=1",
		},
		{
			name:     "category with query string",
			spec:     SearchSpec{CategoryURL: "https://www.wildberries.ru/catalog/krasota?sort=popular"},
			page:     3,
			expected: "https://www.wildberries.ru/catalog/krasota?sort=popular&page=3&ffeedbackpoints=1",
		},
		{
			name:     "category without query string",
			spec:     SearchSpec{CategoryURL: "https://www.wildberries.ru/catalog/krasota"},
			page:     1,
			expected: "https://www.wildberries.ru/catalog/krasota?page=1&ffeedbackpoints=1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.spec.PageURL(tt.page))
		})
	}
}

func TestSearchSpecValidate(t *testing.T) {
	assert.ErrorIs(t, SearchSpec{}.Validate(), ErrNoSearchTarget)
	assert.ErrorIs(t, SearchSpec{Query: "a", CategoryURL: "b"}.Validate(), ErrBothTargets)
	assert.NoError(t, SearchSpec{Query: "a"}.Validate())
}

func TestHarvestDeduplicatesAcrossPages(t *testing.T) {
	pages := map[int]string{1: listing(1, 2), 2: listing(2, 3), 3: listing(3, 1)}
	env := &fakeEnv{fetch: func(u string) (string, error) { return pages[pageNumber(u)], nil }}

	links, err := newTestHarvester(env, HarvesterOptions{}).Harvest(context.Background(), SearchSpec{Query: "x"}, 3)

	require.NoError(t, err)
	assert.Equal(t, []string{detail(1), detail(2), detail(3)}, links)
	assert.Len(t, env.fetchedURLs(), 3)
	assert.EqualValues(t, 1, env.created.Load(), "harvest uses one session")
	assert.EqualValues(t, 1, env.closed.Load())
}

func TestHarvestUntilExhausted(t *testing.T) {
	pages := map[int]string{1: listing(1, 2), 2: listing(2, 3), 3: listing(1, 3), 4: listing(4)}
	env := &fakeEnv{fetch: func(u string) (string, error) { return pages[pageNumber(u)], nil }}

	links, err := newTestHarvester(env, HarvesterOptions{}).Harvest(context.Background(), SearchSpec{Query: "x"}, UntilExhausted)

	require.NoError(t, err)
	assert.Equal(t, []string{detail(1), detail(2), detail(3)}, links)
	assert.Len(t, env.fetchedURLs(), 3, "page 4 must not be requested")
}

func TestHarvestPageCap(t *testing.T) {
	env := &fakeEnv{fetch: func(u string) (string, error) { return listing(pageNumber(u)), nil }}

	links, err := newTestHarvester(env, HarvesterOptions{PageCap: 5}).Harvest(context.Background(), SearchSpec{Query: "x"}, UntilExhausted)

	require.NoError(t, err)
	assert.Len(t, links, 5)
}

func TestHarvestSkipsTimedOutPages(t *testing.T) {
	env := &fakeEnv{fetch: func(u string) (string, error) {
		if pageNumber(u) == 2 {
			return "", browser.ErrContentTimeout
		}
		return listing(pageNumber(u)), nil
	}}

	links, err := newTestHarvester(env, HarvesterOptions{}).Harvest(context.Background(), SearchSpec{Query: "x"}, 3)

	require.NoError(t, err)
	assert.Equal(t, []string{detail(1), detail(3)}, links)
}

func TestHarvestSessionInitFailure(t *testing.T) {
	env := &fakeEnv{initErr: errNoChrome}
	pool := proxy.NewPool([]string{"http://p:1"}, zerolog.Nop())

	links, err := newTestHarvester(env, HarvesterOptions{Proxies: pool}).Harvest(context.Background(), SearchSpec{Query: "x"}, 2)

	assert.ErrorIs(t, err, browser.ErrSessionInit)
	assert.ErrorIs(t, err, errNoChrome)
	assert.Empty(t, links)
	assert.Equal(t, []string{"http://p:1"}, pool.Failed())
}

func TestHarvestInvalidSpec(t *testing.T) {
	env := &fakeEnv{}

	_, err := newTestHarvester(env, HarvesterOptions{}).Harvest(context.Background(), SearchSpec{}, 1)

	assert.ErrorIs(t, err, ErrNoSearchTarget)
	assert.Zero(t, env.created.Load())
}
