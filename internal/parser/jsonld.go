package parser

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// jsonLDImages returns image URLs from every Product object embedded as
// JSON-LD. Blocks that fail to decode are skipped.
func jsonLDImages(doc *goquery.Document) []string {
	var out []string
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var data any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &data); err != nil {
			return
		}
		for _, obj := range jsonLDObjects(data) {
			if !isProductType(obj["@type"]) {
				continue
			}
			out = append(out, stringValues(obj["image"])...)
		}
	})
	return out
}

func jsonLDObjects(data any) []map[string]any {
	switch v := data.(type) {
	case map[string]any:
		objs := []map[string]any{v}
		if graph, ok := v["@graph"]; ok {
			objs = append(objs, jsonLDObjects(graph)...)
		}
		return objs
	case []any:
		var objs []map[string]any
		for _, item := range v {
			objs = append(objs, jsonLDObjects(item)...)
		}
		return objs
	}
	return nil
}

func isProductType(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "Product"
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "Product" {
				return true
			}
		}
	}
	return false
}

func stringValues(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []any:
		var out []string
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
