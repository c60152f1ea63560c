package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// BaseURL is the storefront root used to resolve relative links.
const BaseURL = "https://www.wildberries.ru/"

var articlePattern = regexp.MustCompile(`/catalog/(\d+)/detail\.aspx`)

var baseURL, _ = url.Parse(BaseURL)

// ArticleFromURL returns the numeric article id embedded in a detail URL,
// or "" when there is none.
func ArticleFromURL(u string) string {
	m := articlePattern.FindStringSubmatch(u)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// ProductURL builds the canonical detail URL for an article id.
func ProductURL(article string) string {
	return fmt.Sprintf("%scatalog/%s/detail.aspx", BaseURL, article)
}

// IsProductURL reports whether href points at a product detail page.
func IsProductURL(href string) bool {
	return strings.Contains(href, "/catalog/") && strings.Contains(href, "/detail.aspx")
}

// CanonicalURL drops the query string and fragment.
func CanonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	return canonical(u)
}

func canonical(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	c.ForceQuery = false
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

// ExtractProductLinks returns the distinct absolute detail URLs of a
// listing page in order of first appearance.
func (w *WildberriesParser) ExtractProductLinks(rawHTML string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing HTML: %w", err)
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !IsProductURL(href) {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := canonical(baseURL.ResolveReference(ref))
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})

	return links, nil
}
