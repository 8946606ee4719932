// Package domain holds the shared types that flow through the registry,
// source cache, scan pipeline, ledger, and router: markets, source data,
// opportunities, and prediction records.
package domain

import (
	"fmt"
	"time"
)

// Category is the closed set of market categories.
type Category string

const (
	CategorySports        Category = "sports"
	CategoryWeather       Category = "weather"
	CategoryMacro         Category = "macro"
	CategoryPolitics      Category = "politics"
	CategoryGeopolitics   Category = "geopolitics"
	CategoryCrypto        Category = "crypto"
	CategoryEntertainment Category = "entertainment"
	CategoryTech          Category = "tech"
	CategoryHealth        Category = "health"
	CategoryOther         Category = "other"
)

var validCategories = map[Category]bool{
	CategorySports: true, CategoryWeather: true, CategoryMacro: true,
	CategoryPolitics: true, CategoryGeopolitics: true, CategoryCrypto: true,
	CategoryEntertainment: true, CategoryTech: true, CategoryHealth: true,
	CategoryOther: true,
}

// IsValid reports whether c belongs to the closed category set.
func (c Category) IsValid() bool {
	return validCategories[c]
}

// Market is an immutable per-scan snapshot of one binary contract.
type Market struct {
	Platform   string
	ID         string
	Ticker     string
	Title      string
	Subtitle   string
	Category   Category
	Price      float64
	Volume     *float64
	Liquidity  *float64
	URL        string
	CloseTime  *time.Time
}

// Key returns the platform+id identity used for scan-scoped uniqueness.
func (m Market) Key() string {
	return m.Platform + ":" + m.ID
}

// Validate checks the invariants spec.md §3 places on a Market.
func (m Market) Validate() error {
	if m.Platform == "" || m.ID == "" {
		return fmt.Errorf("market: platform and id are required")
	}
	if m.Price <= 0 || m.Price >= 1 {
		return fmt.Errorf("market %s: price %.4f out of (0,1)", m.Key(), m.Price)
	}
	return nil
}

// SourceData is the per-scan mapping from source name to its latest payload.
// Payload shapes are source-specific and opaque to the pipeline.
type SourceData map[string]any

// Markets extracts the primary source's market list, if present and of the
// expected shape. Per spec.md §4.6 Phase C, the primary source's payload IS
// the market list for the scan.
func (sd SourceData) Markets(primaryName string) []Market {
	raw, ok := sd[primaryName]
	if !ok {
		return nil
	}
	markets, ok := raw.([]Market)
	if !ok {
		return nil
	}
	return markets
}
