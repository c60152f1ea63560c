package models

import (
	"math"
	"strings"
)

// PriceTolerance is the smallest difference treated as two distinct prices.
const PriceTolerance = 0.01

// MaxImages caps ProductRecord.Images.
const MaxImages = 5

// ProductRecord is the result of one successful detail page extraction.
// Records are built once and passed by value.
type ProductRecord struct {
	URL              string   `json:"url"`
	Article          string   `json:"article"`
	Name             string   `json:"product_name"`
	CurrentPrice     float64  `json:"current_price"`
	SecondaryPrice   float64  `json:"second_price"`
	OriginalPrice    float64  `json:"original_price"`
	FeedbackDiscount float64  `json:"feedback_discount"`
	Rating           float64  `json:"rating"`
	ReviewCount      int      `json:"reviews"`
	Brand            string   `json:"brand"`
	Images           []string `json:"images"`
}

// DiscountDifference is how much the review reward exceeds the price.
func (r ProductRecord) DiscountDifference() float64 {
	return math.Round((r.FeedbackDiscount-r.CurrentPrice)*100) / 100
}

// HasName reports whether the record is usable for notifications.
func (r ProductRecord) HasName() bool {
	return strings.TrimSpace(r.Name) != ""
}

// Validate returns the invariant violations of r.
func (r ProductRecord) Validate() []string {
	var errors []string

	if r.OriginalPrice > 0 && r.OriginalPrice <= r.CurrentPrice {
		errors = append(errors, "original price must exceed current price")
	}

	if r.SecondaryPrice > 0 && math.Abs(r.SecondaryPrice-r.CurrentPrice) <= PriceTolerance {
		errors = append(errors, "secondary price must differ from current price")
	}

	if r.Rating < 0 || r.Rating > 5 {
		errors = append(errors, "rating out of range")
	}

	if r.ReviewCount < 0 {
		errors = append(errors, "negative review count")
	}

	if len(r.Images) > MaxImages {
		errors = append(errors, "too many images")
	}

	return errors
}

// SearchFilter narrows records. Nil fields mean no constraint.
type SearchFilter struct {
	MinPrice   *float64 `json:"min_price,omitempty"`
	MaxPrice   *float64 `json:"max_price,omitempty"`
	MinRating  *float64 `json:"min_rating,omitempty"`
	MinReviews *int     `json:"min_reviews,omitempty"`
	Brand      string   `json:"brand,omitempty"`
}

func Float(v float64) *float64 { return &v }

func Int(v int) *int { return &v }
