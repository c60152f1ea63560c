package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractProductLinks(t *testing.T) {
	html := `<div class="product-card__wrapper">
	<a href="/catalog/111/detail.aspx?size=1">one</a>
	<a href="https://www.wildberries.ru/catalog/222/detail.aspx">two</a>
	<a href="/catalog/111/detail.aspx?size=2">one again</a>
	<a href="/catalog/0/search.aspx?search=x">search</a>
	<a href="/brands/estel">brand</a>
	<a href="//www.wildberries.ru/catalog/333/detail.aspx#reviews">three</a>
</div>`

	links, err := NewWildberriesParser().ExtractProductLinks(html)

	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.wildberries.ru/catalog/111/detail.aspx",
		"https://www.wildberries.ru/catalog/222/detail.aspx",
		"https://www.wildberries.ru/catalog/333/detail.aspx",
	}, links)
}

func TestExtractProductLinksEmpty(t *testing.T) {
	links, err := NewWildberriesParser().ExtractProductLinks(`<html><body>nothing</body></html>`)

	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestArticleFromURL(t *testing.T) {
	assert.Equal(t, "146972802", ArticleFromURL("https://www.wildberries.ru/catalog/146972802/detail.aspx?targetUrl=GP"))
	assert.Equal(t, "", ArticleFromURL("https://www.wildberries.ru/catalog/0/search.aspx"))
}

func TestProductURL(t *testing.T) {
	assert.Equal(t, "https://www.wildberries.ru/catalog/42/detail.aspx", ProductURL("42"))
}

func TestCanonicalURL(t *testing.T) {
	assert.Equal(t, "https://www.wildberries.ru/catalog/1/detail.aspx",
		CanonicalURL("https://www.wildberries.ru/catalog/1/detail.aspx?targetUrl=XS#photo"))
}
