// Package deals decides which product records are worth reporting.
package deals

import (
	"sort"
	"strings"

	"github.com/maltedev/wb-deal-scraper/internal/models"
)

// IsDeal reports whether the review reward exceeds a positive current price
// and the price sits inside the filter's bounds.
func IsDeal(r models.ProductRecord, f models.SearchFilter) bool {
	if !(r.FeedbackDiscount > r.CurrentPrice && r.CurrentPrice > 0) {
		return false
	}
	if f.MinPrice != nil && r.CurrentPrice < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && r.CurrentPrice > *f.MaxPrice {
		return false
	}
	return true
}

// Matches is IsDeal plus the rating, review count and brand constraints.
func Matches(r models.ProductRecord, f models.SearchFilter) bool {
	if !IsDeal(r, f) {
		return false
	}
	if f.MinRating != nil && r.Rating < *f.MinRating {
		return false
	}
	if f.MinReviews != nil && r.ReviewCount < *f.MinReviews {
		return false
	}
	if f.Brand != "" && !strings.Contains(strings.ToLower(r.Brand), strings.ToLower(f.Brand)) {
		return false
	}
	return true
}

// Filter keeps the records that match f, preserving order.
func Filter(records []models.ProductRecord, f models.SearchFilter) []models.ProductRecord {
	var out []models.ProductRecord
	for _, r := range records {
		if Matches(r, f) {
			out = append(out, r)
		}
	}
	return out
}

// Top returns up to n records ordered by discount difference, largest first.
func Top(records []models.ProductRecord, n int) []models.ProductRecord {
	sorted := make([]models.ProductRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DiscountDifference() > sorted[j].DiscountDifference()
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
