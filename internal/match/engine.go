package match

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wasatchdata/listingradar/internal/filterplan"
	"github.com/wasatchdata/listingradar/internal/listing"
	"github.com/wasatchdata/listingradar/internal/metrics"
)

// DefaultPageSize is the fixed page width over distinct listings.
const DefaultPageSize = 500

// Store executes a rendered match query against the event store.
type Store interface {
	MatchRows(ctx context.Context, q filterplan.Query) ([]Row, error)
}

// Engine compiles criteria, queries ranked rows, and reduces them. It holds
// no state between invocations and is safe for concurrent requests.
type Engine struct {
	store    Store
	clock    listing.Clock
	pageSize int
	logger   *zap.Logger
}

// NewEngine builds an Engine.
func NewEngine(store Store, clock listing.Clock, pageSize int, logger *zap.Logger) *Engine {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    store,
		clock:    clock,
		pageSize: pageSize,
		logger:   logger,
	}
}

// Match runs one page of the criteria against the store and reduces the
// ranked rows to per-listing records.
func (e *Engine) Match(ctx context.Context, criteria filterplan.Criteria, page int) ([]Record, error) {
	plan, err := filterplan.Compile(criteria)
	if err != nil {
		metrics.ObserveMatchQuery("invalid")
		return nil, fmt.Errorf("compile filter: %w", err)
	}
	query := filterplan.Render(plan, page, e.pageSize)

	rows, err := e.store.MatchRows(ctx, query)
	if err != nil {
		metrics.ObserveMatchQuery("error")
		return nil, fmt.Errorf("query matches: %w", err)
	}

	records := Reduce(rows, criteria.MinDaysOnMarket, e.clock.Now())
	metrics.ObserveMatchQuery("ok")
	e.logger.Debug("match page reduced",
		zap.Int("page", page),
		zap.Int("rows", len(rows)),
		zap.Int("records", len(records)),
	)
	return records, nil
}
