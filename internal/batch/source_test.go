package batch

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/maltedev/wb-deal-scraper/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArticleFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles.txt")
	require.NoError(t, os.WriteFile(path, []byte("123456\n\n  789012 \n"), 0o644))

	urls, err := ArticleFileSource(path)(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.wildberries.ru/catalog/123456/detail.aspx",
		"https://www.wildberries.ru/catalog/789012/detail.aspx",
	}, urls)
}

func TestArticleFileSourceMissingFile(t *testing.T) {
	_, err := ArticleFileSource(filepath.Join(t.TempDir(), "nope.txt"))(context.Background())

	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRandomSource(t *testing.T) {
	urls, err := RandomSource(50, rand.New(rand.NewPCG(1, 2)))(context.Background())

	require.NoError(t, err)
	require.Len(t, urls, 50)
	for _, u := range urls {
		id, err := strconv.Atoi(parser.ArticleFromURL(u))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, id, MinRandomArticle)
		assert.LessOrEqual(t, id, MaxRandomArticle)
	}
}

func TestDedupe(t *testing.T) {
	in := []string{
		"https://www.wildberries.ru/catalog/1/detail.aspx?size=2",
		"https://www.wildberries.ru/catalog/2/detail.aspx",
		"https://www.wildberries.ru/catalog/1/detail.aspx#reviews",
	}

	assert.Equal(t, []string{
		"https://www.wildberries.ru/catalog/1/detail.aspx",
		"https://www.wildberries.ru/catalog/2/detail.aspx",
	}, dedupe(in))
}
