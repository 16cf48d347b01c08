// Package policy holds the pure pricing, ranking and bin capacity rules.
package policy

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/smartdustbin/ecorewards/internal/apperr"
)

// Category is the closed set of waste categories a bin accepts.
type Category string

const (
	CategoryOrganic Category = "organic"
	CategoryPlastic Category = "plastic"
	CategoryPaper   Category = "paper"
	CategoryMetal   Category = "metal"
)

// Categories lists every accepted category in display order.
var Categories = []Category{CategoryOrganic, CategoryPlastic, CategoryPaper, CategoryMetal}

var pointsPerKg = map[Category]int64{
	CategoryOrganic: 5,
	CategoryPlastic: 10,
	CategoryPaper:   8,
	CategoryMetal:   15,
}

// scanner payloads carry the "recyclable_" prefix for the dry streams
var categoryAliases = map[string]Category{
	"organic":            CategoryOrganic,
	"plastic":            CategoryPlastic,
	"paper":              CategoryPaper,
	"metal":              CategoryMetal,
	"recyclable_plastic": CategoryPlastic,
	"recyclable_paper":   CategoryPaper,
	"recyclable_metal":   CategoryMetal,
}

// ParseCategory maps a raw category string onto the closed enum. Unknown
// values are rejected.
func ParseCategory(raw string) (Category, error) {
	c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", apperr.Invalid("unknown waste category %q", raw)
	}
	return c, nil
}

// Recyclable reports whether the category belongs to the dry recyclable streams.
func (c Category) Recyclable() bool {
	return c == CategoryPlastic || c == CategoryPaper || c == CategoryMetal
}

// RatePerKg returns the points awarded per kilogram for the category.
func RatePerKg(c Category) (int64, error) {
	rate, ok := pointsPerKg[c]
	if !ok {
		return 0, apperr.Invalid("unknown waste category %q", string(c))
	}
	return rate, nil
}

// ValidateWeight rejects non-positive and non-finite weights.
func ValidateWeight(weightKg float64) error {
	if math.IsNaN(weightKg) || math.IsInf(weightKg, 0) || weightKg <= 0 {
		return apperr.Invalid("weight must be a positive number of kilograms, got %v", weightKg)
	}
	return nil
}

// Price converts a deposit into points: rate per kg times weight, rounded
// half-up to the nearest integer.
func Price(c Category, weightKg float64) (int64, error) {
	if err := ValidateWeight(weightKg); err != nil {
		return 0, err
	}
	rate, err := RatePerKg(c)
	if err != nil {
		return 0, err
	}
	points := decimal.NewFromFloat(weightKg).Mul(decimal.NewFromInt(rate)).Round(0)
	return points.IntPart(), nil
}
