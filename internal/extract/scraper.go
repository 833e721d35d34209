package extract

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/wasatchdata/listingradar/internal/listing"
)

// ScraperConfig controls how listing URLs are built and fetched.
type ScraperConfig struct {
	// BaseURL is the source site root; the MLS number is appended as the path.
	BaseURL   string
	UserAgent string
}

// Scraper composes a page fetcher with the field extractor to turn one
// identifier into a snapshot.
type Scraper struct {
	fetcher   listing.Fetcher
	extractor *Extractor
	cfg       ScraperConfig
}

// NewScraper builds a Scraper.
func NewScraper(fetcher listing.Fetcher, extractor *Extractor, cfg ScraperConfig) *Scraper {
	return &Scraper{
		fetcher:   fetcher,
		extractor: extractor,
		cfg:       cfg,
	}
}

// Scrape fetches the listing page for mlsNumber and extracts its snapshot.
func (s *Scraper) Scrape(ctx context.Context, mlsNumber string) (*listing.Snapshot, error) {
	url := fmt.Sprintf("%s/%s", strings.TrimRight(s.cfg.BaseURL, "/"), mlsNumber)
	headers := http.Header{}
	if s.cfg.UserAgent != "" {
		headers.Set("User-Agent", s.cfg.UserAgent)
	}
	doc, err := s.fetcher.Fetch(ctx, listing.FetchRequest{
		MLSNumber: mlsNumber,
		URL:       url,
		Headers:   headers,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", mlsNumber, err)
	}
	doc.MLSNumber = mlsNumber
	snapshot, err := s.extractor.Extract(doc)
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}
