// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wasatchdata/listingradar/internal/filterplan"
	"github.com/wasatchdata/listingradar/internal/listing"
	"github.com/wasatchdata/listingradar/internal/match"
)

// ListingStoreConfig controls the Postgres connection pool.
type ListingStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ListingStore reads and writes listing rows in Postgres.
type ListingStore struct {
	pool querier
}

// NewListingStore creates a Postgres-backed ListingStore using the provided config.
func NewListingStore(ctx context.Context, cfg ListingStoreConfig) (*ListingStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ListingStore{pool: pool}, nil
}

// NewListingStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewListingStoreWithPool(pool querier) (*ListingStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ListingStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *ListingStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// ExistingMLSNumbers returns the subset of the given ids already present in
// listing_meta.
func (s *ListingStore) ExistingMLSNumbers(ctx context.Context, mlsNumbers []string) ([]string, error) {
	if len(mlsNumbers) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT mls_number FROM listing_meta WHERE mls_number = ANY($1)`,
		mlsNumbers)
	if err != nil {
		return nil, fmt.Errorf("query existing mls numbers: %w", err)
	}
	defer rows.Close()

	var known []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan mls number: %w", err)
		}
		known = append(known, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read existing mls numbers: %w", err)
	}
	return known, nil
}

var listingColumns = []string{
	"mls_number", "url", "street_address", "city", "state", "zip_code",
	"images", "property_type", "property_style", "description",
	"attributes", "features", "date_listed", "seller_motivation", "active",
}

// InsertListings appends meta rows in one multi-row statement so a batch
// commits or fails as a unit.
func (s *ListingStore) InsertListings(ctx context.Context, listings []listing.Listing) (int64, error) {
	if len(listings) == 0 {
		return 0, nil
	}
	var args []any
	valueRows := make([]string, 0, len(listings))
	for _, l := range listings {
		images, err := json.Marshal(l.Images)
		if err != nil {
			return 0, fmt.Errorf("marshal images for %s: %w", l.MLSNumber, err)
		}
		attributes, err := json.Marshal(l.Attributes)
		if err != nil {
			return 0, fmt.Errorf("marshal attributes for %s: %w", l.MLSNumber, err)
		}
		features, err := json.Marshal(l.Features)
		if err != nil {
			return 0, fmt.Errorf("marshal features for %s: %w", l.MLSNumber, err)
		}
		valueRows = append(valueRows, placeholders(len(args)+1, len(listingColumns)))
		args = append(args,
			l.MLSNumber, l.URL, l.StreetAddress, l.City, l.State, l.ZipCode,
			images, l.PropertyType, l.PropertyStyle, l.Description,
			attributes, features, l.DateListed, l.SellerMotivation, l.Active,
		)
	}
	query := fmt.Sprintf("INSERT INTO listing_meta (%s) VALUES %s",
		strings.Join(listingColumns, ", "), strings.Join(valueRows, ", "))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert listing meta: %w", err)
	}
	return tag.RowsAffected(), nil
}

var eventColumns = []string{
	"mls_number", "price", "sq_ft", "price_per_sq_ft", "beds", "baths",
	"year_built", "days_on_market", "status", "event_date",
}

// InsertEvents appends event rows in one multi-row statement. Meta rows must
// already be committed; events carry a foreign key on mls_number.
func (s *ListingStore) InsertEvents(ctx context.Context, events []listing.Event) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}
	var args []any
	valueRows := make([]string, 0, len(events))
	for _, e := range events {
		valueRows = append(valueRows, placeholders(len(args)+1, len(eventColumns)))
		args = append(args,
			e.MLSNumber, e.Price, e.SqFt, e.PricePerSqFt, e.Beds, e.Baths,
			e.YearBuilt, e.DaysOnMarket, e.Status, e.EventDate,
		)
	}
	query := fmt.Sprintf("INSERT INTO listing_events (%s) VALUES %s",
		strings.Join(eventColumns, ", "), strings.Join(valueRows, ", "))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert listing events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MatchRows runs a rendered match query and scans results in the order of
// filterplan.MatchColumns.
func (s *ListingStore) MatchRows(ctx context.Context, q filterplan.Query) ([]match.Row, error) {
	rows, err := s.pool.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("query match rows: %w", err)
	}
	defer rows.Close()

	var out []match.Row
	for rows.Next() {
		var (
			r      match.Row
			images []byte
		)
		err := rows.Scan(
			&r.MLSNumber, &r.URL, &r.StreetAddress, &r.City, &r.State, &r.ZipCode,
			&images, &r.PropertyType, &r.PropertyStyle, &r.Description,
			&r.SellerMotivation, &r.Active, &r.DateListed, &r.Price, &r.EventDate,
			&r.Beds, &r.Baths, &r.SqFt, &r.YearBuilt, &r.PricePerSqFt, &r.Status,
			&r.DaysOnMarket, &r.CurrentDaysOnMarket, &r.Rn, &r.NewPrice,
			&r.PriceDiff, &r.BiggestPriceDrop,
		)
		if err != nil {
			return nil, fmt.Errorf("scan match row: %w", err)
		}
		if len(images) > 0 {
			if err := json.Unmarshal(images, &r.Images); err != nil {
				return nil, fmt.Errorf("unmarshal images for %s: %w", r.MLSNumber, err)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read match rows: %w", err)
	}
	return out, nil
}

const getAlertQuery = `
SELECT
	id, owner_id, owner_email, recipient_email, nickname,
	min_price, max_price, min_sq_ft, max_sq_ft, min_beds, max_beds,
	min_baths, max_baths, min_year_built, max_year_built,
	min_days_on_market, max_days_on_market, min_price_per_sq_ft,
	max_price_per_sq_ft, price_reduction, cities, zip_codes, counties,
	entire_state, property_types, keywords, seller_motivation_score, cadence
FROM report_recipients
WHERE id = $1 AND (owner_id = $2 OR recipient_email = $3)`

// GetAlert loads a saved alert by id, scoped to the requesting owner or
// recipient. Returns listing.ErrAlertNotFound when no row matches.
func (s *ListingStore) GetAlert(ctx context.Context, alertID, userID, email string) (*listing.Alert, error) {
	var (
		a         listing.Alert
		cities    []byte
		zipCodes  []byte
		counties  []byte
		propTypes []byte
		tier      *string
		cadence   *string
		keywords  *string
	)
	err := s.pool.QueryRow(ctx, getAlertQuery, alertID, userID, email).Scan(
		&a.ID, &a.OwnerID, &a.OwnerEmail, &a.RecipientEmail, &a.Nickname,
		&a.Criteria.MinPrice, &a.Criteria.MaxPrice,
		&a.Criteria.MinSqFt, &a.Criteria.MaxSqFt,
		&a.Criteria.MinBeds, &a.Criteria.MaxBeds,
		&a.Criteria.MinBaths, &a.Criteria.MaxBaths,
		&a.Criteria.MinYearBuilt, &a.Criteria.MaxYearBuilt,
		&a.Criteria.MinDaysOnMarket, &a.Criteria.MaxDaysOnMarket,
		&a.Criteria.MinPricePerSqFt, &a.Criteria.MaxPricePerSqFt,
		&a.Criteria.PriceReduction,
		&cities, &zipCodes, &counties,
		&a.Criteria.EntireState, &propTypes, &keywords, &tier, &cadence,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, listing.ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query alert %s: %w", alertID, err)
	}

	for _, col := range []struct {
		data []byte
		dst  *[]string
	}{
		{cities, &a.Criteria.Cities},
		{zipCodes, &a.Criteria.ZipCodes},
		{counties, &a.Criteria.Counties},
		{propTypes, &a.Criteria.PropertyTypes},
	} {
		if len(col.data) == 0 {
			continue
		}
		if err := json.Unmarshal(col.data, col.dst); err != nil {
			return nil, fmt.Errorf("unmarshal alert %s list field: %w", alertID, err)
		}
	}
	if keywords != nil {
		a.Criteria.Keywords = *keywords
	}
	if tier != nil {
		a.Criteria.MotivationTier = filterplan.Tier(*tier)
	}
	if cadence != nil {
		a.Criteria.Cadence = filterplan.Cadence(*cadence)
	}
	return &a, nil
}

// placeholders renders "($n, $n+1, ...)" for one multi-row VALUES group.
func placeholders(start, count int) string {
	parts := make([]string, count)
	for i := 0; i < count; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
