// Package ingest runs the fetch, extract, classify, persist pipeline for a
// batch of MLS numbers.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wasatchdata/listingradar/internal/extract"
	"github.com/wasatchdata/listingradar/internal/listing"
	"github.com/wasatchdata/listingradar/internal/metrics"
	"github.com/wasatchdata/listingradar/internal/runlog"
)

// DefaultParallelism bounds concurrent page fetches per run.
const DefaultParallelism = 20

// Scraper produces one snapshot per MLS number.
type Scraper interface {
	Scrape(ctx context.Context, mlsNumber string) (*listing.Snapshot, error)
}

// Config controls one orchestrator instance.
type Config struct {
	Parallelism  int
	SummaryTopic string
}

// Orchestrator coordinates a run across the scraper, classifier, store,
// log sink, and publisher.
type Orchestrator struct {
	cfg        Config
	scraper    Scraper
	store      listing.Store
	classifier listing.Classifier
	runLog     *runlog.Writer
	publisher  listing.Publisher
	clock      listing.Clock
	ids        listing.IDGenerator
	logger     *zap.Logger
}

// New builds an Orchestrator. The classifier and publisher may be nil; runs
// then proceed without motivation flags or summary notifications.
func New(
	cfg Config,
	scraper Scraper,
	store listing.Store,
	classifier listing.Classifier,
	runLog *runlog.Writer,
	publisher listing.Publisher,
	clock listing.Clock,
	ids listing.IDGenerator,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	return &Orchestrator{
		cfg:        cfg,
		scraper:    scraper,
		store:      store,
		classifier: classifier,
		runLog:     runLog,
		publisher:  publisher,
		clock:      clock,
		ids:        ids,
		logger:     logger,
	}
}

// Result summarizes one finished run.
type Result struct {
	RunID         string        `json:"run_id"`
	MetaWritten   int64         `json:"num_listing_meta_written"`
	EventsWritten int64         `json:"num_listing_events_written"`
	SkippedKnown  int           `json:"num_known_skipped"`
	Skipped       int           `json:"num_skipped"`
	Failed        int           `json:"num_failed"`
	Duration      time.Duration `json:"-"`
}

type unit struct {
	mls   string
	snap  *listing.Snapshot
	err   error
	trace string
}

// Run ingests the given MLS numbers. Per-listing failures are recorded and
// absorbed; only run-level problems (known-id lookup, batch writes) return
// an error.
func (o *Orchestrator) Run(ctx context.Context, mlsNumbers []string) (Result, error) {
	start := o.clock.Now()
	runID, err := o.ids.NewID()
	if err != nil {
		runID = "unknown"
	}
	logger := o.logger.With(zap.String("run_id", runID), zap.Int("received", len(mlsNumbers)))
	logger.Info("ingestion run starting")

	result := Result{RunID: runID}

	known, err := o.store.ExistingMLSNumbers(ctx, mlsNumbers)
	if err != nil {
		err = fmt.Errorf("look up known mls numbers: %w", err)
		o.finishFailed(ctx, mlsNumbers, result, start, "KnownLookupFailed", err)
		return result, err
	}
	knownSet := make(map[string]struct{}, len(known))
	for _, id := range known {
		knownSet[id] = struct{}{}
	}
	pending := make([]string, 0, len(mlsNumbers))
	for _, id := range mlsNumbers {
		if _, ok := knownSet[id]; ok {
			result.SkippedKnown++
			metrics.ObserveListing("known")
			continue
		}
		pending = append(pending, id)
	}

	snapshots, failures := o.scrapeAll(ctx, pending, &result)
	if o.runLog != nil && len(failures) > 0 {
		o.runLog.WriteFailures(ctx, failures)
	}

	if len(snapshots) == 0 {
		o.finishSucceeded(ctx, mlsNumbers, &result, start)
		return result, nil
	}

	o.applyMotivationFlags(ctx, snapshots, logger)

	listings := make([]listing.Listing, 0, len(snapshots))
	events := make([]listing.Event, 0, len(snapshots))
	for _, s := range snapshots {
		listings = append(listings, s.Meta)
		events = append(events, s.Event)
	}

	// Meta rows first; events reference them by mls_number.
	metaWritten, err := o.store.InsertListings(ctx, listings)
	if err != nil {
		err = fmt.Errorf("write listing meta: %w", err)
		o.finishFailed(ctx, mlsNumbers, result, start, "StoreWriteFailed", err)
		return result, err
	}
	result.MetaWritten = metaWritten

	eventsWritten, err := o.store.InsertEvents(ctx, events)
	if err != nil {
		err = fmt.Errorf("write listing events: %w", err)
		o.finishFailed(ctx, mlsNumbers, result, start, "StoreWriteFailed", err)
		return result, err
	}
	result.EventsWritten = eventsWritten

	o.finishSucceeded(ctx, mlsNumbers, &result, start)
	logger.Info("ingestion run finished",
		zap.Int64("meta_written", result.MetaWritten),
		zap.Int64("events_written", result.EventsWritten),
		zap.Int("known_skipped", result.SkippedKnown),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// scrapeAll fans the pending ids out over a bounded worker pool. A single
// collector partitions outcomes so no other goroutine touches the result.
func (o *Orchestrator) scrapeAll(ctx context.Context, pending []string, result *Result) ([]*listing.Snapshot, []runlog.UnitFailure) {
	if len(pending) == 0 {
		return nil, nil
	}
	workers := o.cfg.Parallelism
	if workers > len(pending) {
		workers = len(pending)
	}

	jobs := make(chan string)
	results := make(chan unit)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for mls := range jobs {
				results <- o.scrapeOne(ctx, mls)
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, mls := range pending {
			select {
			case jobs <- mls:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	var (
		snapshots []*listing.Snapshot
		failures  []runlog.UnitFailure
	)
	for u := range results {
		if u.err == nil {
			snapshots = append(snapshots, u.snap)
			metrics.ObserveListing("ok")
			continue
		}
		errorType := classifyError(u.err)
		failures = append(failures, runlog.UnitFailure{
			MLSNumber: u.mls,
			ErrorType: errorType,
			ErrorMsg:  u.err.Error(),
			Trace:     u.trace,
			At:        o.clock.Now().UTC(),
		})
		if errors.Is(u.err, extract.ErrEmptyListing) || errors.Is(u.err, extract.ErrOutOfMarket) {
			result.Skipped++
			metrics.ObserveListing("skipped")
			o.logger.Info("listing skipped",
				zap.String("mls_number", u.mls), zap.String("reason", errorType))
			continue
		}
		result.Failed++
		metrics.ObserveListing("failed")
		o.logger.Warn("listing failed",
			zap.String("mls_number", u.mls),
			zap.String("error_type", errorType),
			zap.Error(u.err))
	}
	return snapshots, failures
}

func (o *Orchestrator) scrapeOne(ctx context.Context, mls string) (u unit) {
	u.mls = mls
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	defer func() {
		if r := recover(); r != nil {
			u.snap = nil
			u.err = fmt.Errorf("panic: %v", r)
			u.trace = string(debug.Stack())
		}
	}()
	u.snap, u.err = o.scraper.Scrape(ctx, mls)
	return u
}

// applyMotivationFlags sends descriptions to the classifier and merges the
// returned flags. Ids the classifier did not answer for keep a nil flag;
// unknown is distinct from false.
func (o *Orchestrator) applyMotivationFlags(ctx context.Context, snapshots []*listing.Snapshot, logger *zap.Logger) {
	if o.classifier == nil {
		return
	}
	var pairs []listing.DescriptionPair
	for _, s := range snapshots {
		if s.Meta.Description == nil || *s.Meta.Description == "" {
			continue
		}
		pairs = append(pairs, listing.DescriptionPair{
			MLSNumber:   s.Meta.MLSNumber,
			Description: *s.Meta.Description,
		})
	}
	if len(pairs) == 0 {
		return
	}
	flags, err := o.classifier.Classify(ctx, pairs)
	if err != nil {
		logger.Warn("classifier unavailable, leaving motivation flags unset", zap.Error(err))
		return
	}
	for _, s := range snapshots {
		if flag, ok := flags[s.Meta.MLSNumber]; ok {
			v := flag
			s.Meta.SellerMotivation = &v
		}
	}
}

func (o *Orchestrator) finishSucceeded(ctx context.Context, received []string, result *Result, start time.Time) {
	result.Duration = o.clock.Now().Sub(start)
	summary := runlog.RunSummary{
		MLSNumbers:       received,
		Success:          true,
		Duration:         result.Duration.String(),
		NumReceived:      len(received),
		NumEventsWritten: result.EventsWritten,
		NumMetaWritten:   result.MetaWritten,
		NumKnownSkipped:  result.SkippedKnown,
	}
	if o.runLog != nil {
		o.runLog.WriteSummary(ctx, summary)
	}
	o.publishSummary(ctx, summary)
	metrics.ObserveRun("success", result.Duration)
}

func (o *Orchestrator) finishFailed(ctx context.Context, received []string, result Result, start time.Time, errorType string, runErr error) {
	duration := o.clock.Now().Sub(start)
	summary := runlog.RunSummary{
		MLSNumbers:       received,
		Success:          false,
		Duration:         duration.String(),
		NumReceived:      len(received),
		NumEventsWritten: result.EventsWritten,
		NumMetaWritten:   result.MetaWritten,
		NumKnownSkipped:  result.SkippedKnown,
		ErrorType:        errorType,
		ErrorMsg:         runErr.Error(),
		StackTrace:       string(debug.Stack()),
	}
	if o.runLog != nil {
		o.runLog.WriteSummary(ctx, summary)
	}
	o.publishSummary(ctx, summary)
	metrics.ObserveRun("fail", duration)
}

func (o *Orchestrator) publishSummary(ctx context.Context, summary runlog.RunSummary) {
	if o.publisher == nil || o.cfg.SummaryTopic == "" {
		return
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.SummaryTopic, summary); err != nil {
		o.logger.Warn("publishing run summary", zap.Error(err))
	}
}

func classifyError(err error) string {
	switch {
	case errors.Is(err, extract.ErrEmptyListing):
		return "EmptyListing"
	case errors.Is(err, extract.ErrOutOfMarket):
		return "OutOfMarket"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "FetchCanceled"
	default:
		return "ScrapeFailed"
	}
}
