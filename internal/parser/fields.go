package parser

import (
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/wb-deal-scraper/internal/models"
	"golang.org/x/net/html"
)

// page is the per-parse state shared by the strategies of one document.
type page struct {
	doc    *goquery.Document
	base   *url.URL
	wallet float64
}

// strategy is one entry of an ordered fallback chain. A zero value means
// "not found here, try the next entry".
type strategy[T comparable] struct {
	name string
	run  func(p *page) T
}

func firstValid[T comparable](p *page, chain []strategy[T]) T {
	var zero T
	for _, s := range chain {
		if v := s.run(p); v != zero {
			return v
		}
	}
	return zero
}

const walletPhrase = "с wb кошельком"

var (
	walletPriceSelectors = []string{
		"span.price-block__wallet-price",
		".price-block__price-with-discount .price__value",
		"div[class*='wallet-price'] span[class*='price__value']",
		"div[class*='wallet-price'] .price__active",
		"div[class*='wallet-price'] .price__lower-price",
	}

	priceBlockSelector = ".product-page__price-block .price-block__content-bottom, .price-block__content-bottom"

	standardPriceSelectors = []string{
		"ins.price-block__final-price",
		"span.price-block__final-price",
		".price-block__price:not([class*='old']):not([class*='wallet']) .price__active",
		".price-block__price:not([class*='old']):not([class*='wallet']) .price__lower-price",
		"div.price-block__price > span.price-block__price-value:not(:has(del))",
	}

	originalPriceSelectors = []string{
		"del.price-block__old-price",
		"s.price-block__old-price",
		"del.price__old-price",
		"del.price--old",
	}

	mainImageSelector     = "img.photo-zoom__preview, img.j-zoom-image"
	galleryImageSelectors = []string{
		".swiper-slide img[src]",
		".img-plug img[src]",
		".pv__img img[src]",
	}

	reviewMarkers = []string{"оценок", "оценка", "отзывов"}

	digitPattern       = regexp.MustCompile(`\d+`)
	rublePattern       = regexp.MustCompile(`\d+[\s\p{Zs}]*₽`)
	feedbackPattern    = regexp.MustCompile(`(?i)(\d+)[\s\p{Zs}]*(₽|руб).*?(за|на)[\s\p{Zs}]+отзыв`)
	feedbackAmount     = regexp.MustCompile(`(?i)(\d[\d\s\p{Zs}]*)[\s\p{Zs}]*(?:₽|руб)`)
	feedbackSuffixes   = []string{"₽ за отзыв", "руб. за отзыв"}
	feedbackRubleOnly  = regexp.MustCompile(`(?i)(\d[\d\s\p{Zs}]*)[\s\p{Zs}]*₽`)
	feedbackRubleShort = regexp.MustCompile(`(?i)(\d[\d\s\p{Zs}]*)[\s\p{Zs}]*руб`)
)

func nameStrategies() []strategy[string] {
	return []strategy[string]{
		{name: "h1", run: func(p *page) string { return productName(p.doc) }},
	}
}

func productName(doc *goquery.Document) string {
	h1 := doc.Find("h1").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return !s.HasClass("popup__title")
	}).First()
	return strings.TrimSpace(h1.Text())
}

func walletStrategies() []strategy[float64] {
	chain := make([]strategy[float64], 0, len(walletPriceSelectors)+1)
	for _, sel := range walletPriceSelectors {
		chain = append(chain, selectorPrice(sel, nil, false))
	}
	return append(chain, strategy[float64]{name: "wallet phrase", run: walletNearPhrase})
}

func standardStrategies() []strategy[float64] {
	chain := make([]strategy[float64], 0, len(standardPriceSelectors)+1)
	for _, sel := range standardPriceSelectors {
		chain = append(chain, selectorPrice(sel, priceScope, true))
	}
	return append(chain, strategy[float64]{name: "ruble text", run: standardPriceText})
}

func originalStrategies() []strategy[float64] {
	chain := make([]strategy[float64], 0, len(originalPriceSelectors))
	for _, sel := range originalPriceSelectors {
		sel := sel
		chain = append(chain, strategy[float64]{name: sel, run: func(p *page) float64 {
			return NormalizePrice(strings.TrimSpace(p.doc.Find(sel).First().Text()))
		}})
	}
	return chain
}

func feedbackStrategies() []strategy[float64] {
	return []strategy[float64]{
		{name: "span.feedbacks-points-sum", run: func(p *page) float64 {
			return NormalizePrice(strings.TrimSpace(p.doc.Find("span.feedbacks-points-sum").First().Text()))
		}},
		{name: "for review phrase", run: feedbackFromPhrase},
		{name: "review reward suffix", run: feedbackFromSuffix},
	}
}

func brandStrategies() []strategy[string] {
	return []strategy[string]{
		{name: "data-wba-brand-name", run: func(p *page) string {
			v, _ := p.doc.Find("a[data-wba-brand-name]").First().Attr("data-wba-brand-name")
			return strings.TrimSpace(v)
		}},
		{name: "brand link", run: func(p *page) string {
			link := p.doc.Find("a").FilterFunction(func(_ int, s *goquery.Selection) bool {
				class, _ := s.Attr("class")
				return strings.Contains(class, "brand")
			}).First()
			return strings.TrimSpace(link.Text())
		}},
		{name: "original marker", run: func(p *page) string {
			spans := p.doc.Find("span")
			idx := -1
			spans.EachWithBreak(func(i int, s *goquery.Selection) bool {
				if strings.TrimSpace(s.Text()) == "Оригинал" {
					idx = i
					return false
				}
				return true
			})
			if idx <= 0 {
				return ""
			}
			return strings.TrimSpace(spans.Eq(idx - 1).Text())
		}},
	}
}

// selectorPrice reads the first match of sel. Matches inside strikethrough
// markup are ignored. With skipWallet set, a value equal to the wallet price
// does not count.
func selectorPrice(sel string, scope func(p *page) *goquery.Selection, skipWallet bool) strategy[float64] {
	return strategy[float64]{name: sel, run: func(p *page) float64 {
		root := p.doc.Selection
		if scope != nil {
			root = scope(p)
		}
		el := root.Find(sel).First()
		if el.Length() == 0 || struckThrough(el.Nodes[0]) {
			return 0
		}
		v := NormalizePrice(strings.TrimSpace(el.Text()))
		if skipWallet && sameAsWallet(p, v) {
			return 0
		}
		return v
	}}
}

func priceScope(p *page) *goquery.Selection {
	if block := p.doc.Find(priceBlockSelector).First(); block.Length() > 0 {
		return block
	}
	return p.doc.Selection
}

func sameAsWallet(p *page, v float64) bool {
	return p.wallet > 0 && math.Abs(v-p.wallet) < models.PriceTolerance
}

func walletNearPhrase(p *page) float64 {
	for _, n := range textNodes(p.doc.Nodes...) {
		if !strings.Contains(strings.ToLower(n.Data), walletPhrase) {
			continue
		}
		container := priceContainer(n, 3)
		if container == nil {
			return 0
		}
		for _, t := range textNodes(container) {
			if !digitPattern.MatchString(t.Data) || !strings.Contains(t.Data, "₽") || struckThrough(t) {
				continue
			}
			if v := NormalizePrice(t.Data); v > 0 {
				return v
			}
		}
		return 0
	}
	return 0
}

// priceContainer walks up to limit ancestors looking for a div or span whose
// text holds both a digit and a ruble sign.
func priceContainer(n *html.Node, limit int) *html.Node {
	p := n.Parent
	for i := 0; p != nil && i < limit; p, i = p.Parent, i+1 {
		if p.Type != html.ElementNode || (p.Data != "div" && p.Data != "span") {
			continue
		}
		text := nodeText(p)
		if strings.ContainsFunc(text, unicode.IsDigit) && strings.Contains(text, "₽") {
			return p
		}
	}
	return nil
}

func standardPriceText(p *page) float64 {
	for _, n := range textNodes(priceScope(p).Nodes...) {
		if !rublePattern.MatchString(n.Data) {
			continue
		}
		if struckThrough(n) || hasAncestorClass(n, nonStandardPriceClass) {
			continue
		}
		v := NormalizePrice(n.Data)
		if sameAsWallet(p, v) {
			continue
		}
		if v > 0 {
			return v
		}
	}
	return 0
}

func nonStandardPriceClass(class string) bool {
	return strings.Contains(class, "wallet") ||
		class == "price-block__price-with-discount" ||
		class == "price-block__old-price"
}

func feedbackFromPhrase(p *page) float64 {
	for _, n := range textNodes(p.doc.Nodes...) {
		if !feedbackPattern.MatchString(n.Data) {
			continue
		}
		if v := leadingAmount(feedbackAmount, n.Data); v > 0 {
			return v
		}
	}
	return 0
}

func feedbackFromSuffix(p *page) float64 {
	for _, n := range textNodes(p.doc.Nodes...) {
		lower := strings.ToLower(n.Data)
		matched := false
		for _, s := range feedbackSuffixes {
			if strings.Contains(lower, s) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		v := leadingAmount(feedbackRubleOnly, n.Data)
		if v == 0 {
			v = leadingAmount(feedbackRubleShort, n.Data)
		}
		if v > 0 {
			return v
		}
	}
	return 0
}

func leadingAmount(re *regexp.Regexp, text string) float64 {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return 0
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, m[1])
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0
	}
	return v
}

// ratingAndReviews finds the review-count label and reads the rating that
// precedes it. Parse failures yield zero values.
func ratingAndReviews(p *page) (float64, int) {
	spans := p.doc.Find("span")
	idx := -1
	spans.EachWithBreak(func(i int, s *goquery.Selection) bool {
		if s.Children().Length() == 0 && containsAny(s.Text(), reviewMarkers) {
			idx = i
			return false
		}
		return true
	})
	if idx < 0 {
		return 0, 0
	}

	label := spans.Eq(idx)
	var rating float64
	star := label.PrevAllFiltered("span").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		return strings.Contains(class, "star")
	}).First()
	if star.Length() > 0 {
		rating = parseRating(star.Text())
	} else if idx > 0 {
		rating = parseRating(spans.Eq(idx - 1).Text())
	}

	return rating, parseReviewCount(label.Text())
}

func parseRating(text string) float64 {
	v, ok := parseFloat(text)
	if !ok || v < 0 || v > 5 {
		return 0
	}
	return v
}

func parseReviewCount(text string) int {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, fields[0])
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

type imageCollector struct {
	base *url.URL
	max  int
	seen map[string]struct{}
	list []string
}

func newImageCollector(base *url.URL, max int) *imageCollector {
	return &imageCollector{base: base, max: max, seen: make(map[string]struct{})}
}

func (c *imageCollector) add(src string) {
	src = strings.TrimSpace(src)
	if src == "" || c.full() {
		return
	}
	ref, err := url.Parse(src)
	if err != nil {
		return
	}
	abs := c.base.ResolveReference(ref).String()
	if _, ok := c.seen[abs]; ok {
		return
	}
	c.seen[abs] = struct{}{}
	c.list = append(c.list, abs)
}

func (c *imageCollector) full() bool {
	return len(c.list) >= c.max
}

func images(p *page) []string {
	c := newImageCollector(p.base, models.MaxImages)

	if src, ok := p.doc.Find(mainImageSelector).First().Attr("src"); ok {
		c.add(src)
	}

	for _, sel := range galleryImageSelectors {
		if c.full() {
			break
		}
		p.doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			src, _ := s.Attr("src")
			c.add(src)
			return !c.full()
		})
	}

	if !c.full() {
		for _, src := range jsonLDImages(p.doc) {
			c.add(src)
		}
	}

	return c.list
}
