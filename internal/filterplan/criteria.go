// Package filterplan compiles validated filter criteria into a typed
// predicate plan and renders it to a parameterized store query.
package filterplan

import (
	"fmt"
	"strings"
)

// Tier is a seller-motivation score bucket.
type Tier string

// Motivation tiers, highest first.
const (
	TierHigh       Tier = "High"
	TierModerate   Tier = "Moderate"
	TierUndetected Tier = "Undetected"
)

// Valid reports whether the tier is one of the enumerated values.
func (t Tier) Valid() bool {
	switch t {
	case TierHigh, TierModerate, TierUndetected:
		return true
	}
	return false
}

// Cadence is how often a saved alert is evaluated.
type Cadence string

// Alert cadences.
const (
	CadenceInstant Cadence = "instant"
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
)

// Valid reports whether the cadence is one of the enumerated values.
func (c Cadence) Valid() bool {
	switch c {
	case CadenceInstant, CadenceDaily, CadenceWeekly:
		return true
	}
	return false
}

// Criteria is a saved alert filter. Every field is optional; a criteria
// with nothing populated matches every active listing.
type Criteria struct {
	MinPrice        *float64 `json:"min_price"`
	MaxPrice        *float64 `json:"max_price"`
	MinSqFt         *int     `json:"min_sq_ft"`
	MaxSqFt         *int     `json:"max_sq_ft"`
	MinBeds         *int     `json:"min_beds"`
	MaxBeds         *int     `json:"max_beds"`
	MinBaths        *int     `json:"min_baths"`
	MaxBaths        *int     `json:"max_baths"`
	MinYearBuilt    *int     `json:"min_year_built"`
	MaxYearBuilt    *int     `json:"max_year_built"`
	MinDaysOnMarket *int     `json:"min_days_on_market"`
	MaxDaysOnMarket *int     `json:"max_days_on_market"`
	MinPricePerSqFt *float64 `json:"min_price_per_sq_ft"`
	MaxPricePerSqFt *float64 `json:"max_price_per_sq_ft"`

	// PriceReduction is a post-aggregation threshold: it can only be
	// evaluated once biggest_price_drop has been computed.
	PriceReduction *float64 `json:"price_reduction"`

	Cities        []string `json:"cities"`
	ZipCodes      []string `json:"zip_codes"`
	Counties      []string `json:"counties"`
	EntireState   bool     `json:"entire_state"`
	PropertyTypes []string `json:"property_types"`

	// Keywords is a comma-separated list OR-matched case-insensitively
	// against descriptions.
	Keywords string `json:"keywords"`

	// MotivationTier is a display threshold carried on the alert; scores
	// are computed per listing by the reducer, not filtered in the store.
	MotivationTier Tier    `json:"seller_motivation_score,omitempty"`
	Cadence        Cadence `json:"cadence,omitempty"`
}

// Validate rejects malformed input at the boundary: unknown enumerated
// literals and inverted ranges.
func (c Criteria) Validate() error {
	if c.MotivationTier != "" && !c.MotivationTier.Valid() {
		return fmt.Errorf("unknown motivation tier %q", c.MotivationTier)
	}
	if c.Cadence != "" && !c.Cadence.Valid() {
		return fmt.Errorf("unknown cadence %q", c.Cadence)
	}
	ranges := []struct {
		name     string
		min, max *float64
	}{
		{"price", c.MinPrice, c.MaxPrice},
		{"sq_ft", intToFloat(c.MinSqFt), intToFloat(c.MaxSqFt)},
		{"beds", intToFloat(c.MinBeds), intToFloat(c.MaxBeds)},
		{"baths", intToFloat(c.MinBaths), intToFloat(c.MaxBaths)},
		{"year_built", intToFloat(c.MinYearBuilt), intToFloat(c.MaxYearBuilt)},
		{"days_on_market", intToFloat(c.MinDaysOnMarket), intToFloat(c.MaxDaysOnMarket)},
		{"price_per_sq_ft", c.MinPricePerSqFt, c.MaxPricePerSqFt},
	}
	for _, r := range ranges {
		if r.min != nil && r.max != nil && *r.min > *r.max {
			return fmt.Errorf("%s range inverted: min %v > max %v", r.name, *r.min, *r.max)
		}
	}
	if c.PriceReduction != nil && *c.PriceReduction < 0 {
		return fmt.Errorf("price_reduction must be >= 0")
	}
	return nil
}

// KeywordTerms splits, trims, and lowercases the comma-separated keyword
// list, dropping empties.
func (c Criteria) KeywordTerms() []string {
	if strings.TrimSpace(c.Keywords) == "" {
		return nil
	}
	parts := strings.Split(c.Keywords, ",")
	terms := make([]string, 0, len(parts))
	for _, p := range parts {
		if term := strings.ToLower(strings.TrimSpace(p)); term != "" {
			terms = append(terms, term)
		}
	}
	return terms
}

func intToFloat(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}
