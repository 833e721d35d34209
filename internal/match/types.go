// Package match executes compiled filter plans and reduces ranked rows to
// one record per listing.
package match

import (
	"time"
)

// Row is one (listing, distinct-price-event) pair returned by the windowed
// match query. rn ranks a listing's rows by event time descending; rn=1 is
// the latest snapshot. NewPrice looks forward to the next chronological
// event and is nil on the latest one.
type Row struct {
	MLSNumber           string     `json:"mls_number"`
	URL                 string     `json:"url"`
	StreetAddress       *string    `json:"street_address"`
	City                *string    `json:"city"`
	State               *string    `json:"state"`
	ZipCode             *string    `json:"zip_code"`
	Images              []string   `json:"images"`
	PropertyType        *string    `json:"property_type"`
	PropertyStyle       *string    `json:"property_style"`
	Description         *string    `json:"description"`
	SellerMotivation    *bool      `json:"seller_motivation"`
	Active              bool       `json:"active"`
	DateListed          time.Time  `json:"date_listed"`
	Price               float64    `json:"price"`
	EventDate           time.Time  `json:"event_date"`
	Beds                *int       `json:"beds"`
	Baths               *int       `json:"baths"`
	SqFt                *int       `json:"sq_ft"`
	YearBuilt           int        `json:"year_built"`
	PricePerSqFt        *float64   `json:"price_per_sq_ft"`
	Status              string     `json:"status"`
	DaysOnMarket        int        `json:"days_on_market"`
	CurrentDaysOnMarket int        `json:"current_days_on_market"`
	Rn                  int64      `json:"rn"`
	NewPrice            *float64   `json:"new_price"`
	PriceDiff           *float64   `json:"price_diff"`
	BiggestPriceDrop    *float64   `json:"biggest_price_drop"`
}

// PriceChange is one derived price-change event in a listing's history.
type PriceChange struct {
	MLSNumber string    `json:"mls_number"`
	EventDate time.Time `json:"event_date"`
	NewPrice  float64   `json:"new_price"`
	OldPrice  float64   `json:"old_price"`
	PriceDiff float64   `json:"price_diff"`
}
