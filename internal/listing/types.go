// Package listing defines core types shared across subsystems.
package listing

import (
	"time"
)

// Listing holds the near-immutable descriptive facts for a property,
// keyed by its MLS number. A row is written once during ingestion and
// never overwritten by later runs for the same identifier.
type Listing struct {
	MLSNumber        string            `json:"mls_number"`
	URL              string            `json:"url"`
	StreetAddress    *string           `json:"street_address"`
	City             *string           `json:"city"`
	State            *string           `json:"state"`
	ZipCode          *string           `json:"zip_code"`
	Images           []string          `json:"images"`
	PropertyType     *string           `json:"property_type"`
	PropertyStyle    *string           `json:"property_style"`
	Description      *string           `json:"description"`
	Attributes       map[string]string `json:"attributes"`
	Features         map[string]string `json:"features"`
	DateListed       time.Time         `json:"date_listed"`
	SellerMotivation *bool             `json:"seller_motivation"`
	Active           bool              `json:"active"`
}

// Event is an append-only snapshot of a listing's mutable attributes at
// one ingestion observation. Ordered by (MLSNumber, EventDate).
type Event struct {
	MLSNumber    string    `json:"mls_number"`
	Price        float64   `json:"price"`
	SqFt         *int      `json:"sq_ft"`
	PricePerSqFt *float64  `json:"price_per_sq_ft"`
	Beds         *int      `json:"beds"`
	Baths        *int      `json:"baths"`
	YearBuilt    int       `json:"year_built"`
	DaysOnMarket int       `json:"days_on_market"`
	Status       string    `json:"status"`
	EventDate    time.Time `json:"event_date"`
}

// Snapshot pairs a Listing with the Event observed in the same fetch.
// Both are created together during ingestion.
type Snapshot struct {
	Meta  Listing
	Event Event
}

// Document is one fetched listing page, ready for field extraction.
type Document struct {
	MLSNumber  string
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// DescriptionPair is the unit sent to the motivation classifier.
type DescriptionPair struct {
	MLSNumber   string `json:"mls_number"`
	Description string `json:"description"`
}
