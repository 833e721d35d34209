package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wasatchdata/listingradar/internal/extract"
	"github.com/wasatchdata/listingradar/internal/listing"
	"github.com/wasatchdata/listingradar/internal/publisher/memory"
	"github.com/wasatchdata/listingradar/internal/runlog"
	storagemem "github.com/wasatchdata/listingradar/internal/storage/memory"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeIDs struct{}

func (fakeIDs) NewID() (string, error) { return "run-1", nil }

type fakeScraper struct {
	mu    sync.Mutex
	calls []string
	fn    func(mls string) (*listing.Snapshot, error)
}

func (s *fakeScraper) Scrape(_ context.Context, mls string) (*listing.Snapshot, error) {
	s.mu.Lock()
	s.calls = append(s.calls, mls)
	s.mu.Unlock()
	return s.fn(mls)
}

func (s *fakeScraper) scraped() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type fakeStore struct {
	known      []string
	knownErr   error
	listings   []listing.Listing
	events     []listing.Event
	listingErr error
	eventErr   error
}

func (s *fakeStore) ExistingMLSNumbers(_ context.Context, _ []string) ([]string, error) {
	return s.known, s.knownErr
}

func (s *fakeStore) InsertListings(_ context.Context, l []listing.Listing) (int64, error) {
	if s.listingErr != nil {
		return 0, s.listingErr
	}
	s.listings = append(s.listings, l...)
	return int64(len(l)), nil
}

func (s *fakeStore) InsertEvents(_ context.Context, e []listing.Event) (int64, error) {
	if s.eventErr != nil {
		return 0, s.eventErr
	}
	s.events = append(s.events, e...)
	return int64(len(e)), nil
}

type fakeClassifier struct {
	flags map[string]bool
	err   error
}

func (c *fakeClassifier) Classify(_ context.Context, _ []listing.DescriptionPair) (map[string]bool, error) {
	return c.flags, c.err
}

func snapshotFor(mls string) *listing.Snapshot {
	desc := "Sellers are motivated, bring all offers"
	return &listing.Snapshot{
		Meta: listing.Listing{
			MLSNumber:   mls,
			URL:         "https://listings.example.com/" + mls,
			Description: &desc,
			Active:      true,
		},
		Event: listing.Event{MLSNumber: mls, Price: 450000, Status: "active"},
	}
}

func newTestOrchestrator(scraper Scraper, store listing.Store, classifier listing.Classifier) (*Orchestrator, *storagemem.LogSink, *memory.Publisher) {
	clock := &fakeClock{now: time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC)}
	sink := storagemem.NewLogSink()
	pub := memory.New()
	o := New(
		Config{Parallelism: 4, SummaryTopic: "listing-runs"},
		scraper, store, classifier,
		runlog.NewWriter(sink, clock, zap.NewNop()),
		pub, clock, fakeIDs{}, zap.NewNop(),
	)
	return o, sink, pub
}

func TestRunIngestsNewListings(t *testing.T) {
	t.Parallel()

	scraper := &fakeScraper{fn: func(mls string) (*listing.Snapshot, error) {
		return snapshotFor(mls), nil
	}}
	store := &fakeStore{}
	classifier := &fakeClassifier{flags: map[string]bool{"111": true}}
	o, _, pub := newTestOrchestrator(scraper, store, classifier)

	result, err := o.Run(context.Background(), []string{"111", "222"})
	require.NoError(t, err)
	require.Equal(t, int64(2), result.MetaWritten)
	require.Equal(t, int64(2), result.EventsWritten)
	require.Zero(t, result.Failed)
	require.Len(t, store.listings, 2)
	require.Len(t, store.events, 2)

	flagged := map[string]*bool{}
	for _, l := range store.listings {
		flagged[l.MLSNumber] = l.SellerMotivation
	}
	require.NotNil(t, flagged["111"])
	require.True(t, *flagged["111"])
	// The classifier did not answer for 222: unknown, not false.
	require.Nil(t, flagged["222"])

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "listing-runs", msgs[0].Topic)
	summary, ok := msgs[0].Payload.(runlog.RunSummary)
	require.True(t, ok)
	require.True(t, summary.Success)
	require.Equal(t, int64(2), summary.NumMetaWritten)
}

func TestRunSkipsKnownIDsBeforeFetch(t *testing.T) {
	t.Parallel()

	scraper := &fakeScraper{fn: func(mls string) (*listing.Snapshot, error) {
		return snapshotFor(mls), nil
	}}
	store := &fakeStore{known: []string{"111", "333"}}
	o, _, _ := newTestOrchestrator(scraper, store, nil)

	result, err := o.Run(context.Background(), []string{"111", "222", "333"})
	require.NoError(t, err)
	require.Equal(t, 2, result.SkippedKnown)
	require.Equal(t, []string{"222"}, scraper.scraped())
	require.Equal(t, int64(1), result.MetaWritten)
}

func TestRunAbsorbsBenignSkipsAndRecordsFailures(t *testing.T) {
	t.Parallel()

	scraper := &fakeScraper{fn: func(mls string) (*listing.Snapshot, error) {
		switch mls {
		case "111":
			return snapshotFor(mls), nil
		case "222":
			return nil, fmt.Errorf("extract: %w", extract.ErrEmptyListing)
		case "333":
			return nil, fmt.Errorf("ID in UT: %w", extract.ErrOutOfMarket)
		default:
			return nil, errors.New("connection reset")
		}
	}}
	store := &fakeStore{}
	o, sink, _ := newTestOrchestrator(scraper, store, nil)

	result, err := o.Run(context.Background(), []string{"111", "222", "333", "444"})
	require.NoError(t, err)
	require.Equal(t, 2, result.Skipped)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, int64(1), result.MetaWritten)

	var failurePath string
	var failureLogs, summaryLogs int
	for _, p := range sink.Paths() {
		switch {
		case strings.HasPrefix(p, "listing_logs/"):
			failurePath = p
			failureLogs++
		case strings.HasPrefix(p, "chunk_logs/"):
			summaryLogs++
		}
	}
	// The run writes one failure batch and one summary.
	require.Equal(t, 1, failureLogs)
	require.Equal(t, 1, summaryLogs)

	// Skips and the hard failure each get a record in the batch.
	data, ok := sink.Get(failurePath)
	require.True(t, ok)
	var failures []runlog.UnitFailure
	require.NoError(t, json.Unmarshal(data, &failures))
	require.Len(t, failures, 3)
	types := map[string]string{}
	for _, f := range failures {
		types[f.MLSNumber] = f.ErrorType
	}
	require.Equal(t, "EmptyListing", types["222"])
	require.Equal(t, "OutOfMarket", types["333"])
	require.Equal(t, "ScrapeFailed", types["444"])
}

func TestRunWorkerPanicBecomesFailure(t *testing.T) {
	t.Parallel()

	scraper := &fakeScraper{fn: func(mls string) (*listing.Snapshot, error) {
		if mls == "222" {
			panic("selector exploded")
		}
		return snapshotFor(mls), nil
	}}
	store := &fakeStore{}
	o, _, _ := newTestOrchestrator(scraper, store, nil)

	result, err := o.Run(context.Background(), []string{"111", "222"})
	require.NoError(t, err)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, int64(1), result.MetaWritten)
}

func TestRunKnownLookupFailureIsFatal(t *testing.T) {
	t.Parallel()

	scraper := &fakeScraper{fn: func(mls string) (*listing.Snapshot, error) {
		return snapshotFor(mls), nil
	}}
	store := &fakeStore{knownErr: errors.New("connection refused")}
	o, _, pub := newTestOrchestrator(scraper, store, nil)

	_, err := o.Run(context.Background(), []string{"111"})
	require.ErrorContains(t, err, "look up known mls numbers")
	require.Empty(t, scraper.scraped())

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	summary := msgs[0].Payload.(runlog.RunSummary)
	require.False(t, summary.Success)
	require.Equal(t, "KnownLookupFailed", summary.ErrorType)
	require.NotEmpty(t, summary.StackTrace)
}

func TestRunStoreWriteFailureIsFatal(t *testing.T) {
	t.Parallel()

	scraper := &fakeScraper{fn: func(mls string) (*listing.Snapshot, error) {
		return snapshotFor(mls), nil
	}}
	store := &fakeStore{eventErr: errors.New("deadlock detected")}
	o, _, pub := newTestOrchestrator(scraper, store, nil)

	_, err := o.Run(context.Background(), []string{"111"})
	require.ErrorContains(t, err, "write listing events")

	summary := pub.Messages()[0].Payload.(runlog.RunSummary)
	require.False(t, summary.Success)
	require.Equal(t, "StoreWriteFailed", summary.ErrorType)
	require.Contains(t, summary.ErrorMsg, "deadlock detected")
	require.NotEmpty(t, summary.StackTrace)
}

func TestRunClassifierErrorLeavesFlagsUnset(t *testing.T) {
	t.Parallel()

	scraper := &fakeScraper{fn: func(mls string) (*listing.Snapshot, error) {
		return snapshotFor(mls), nil
	}}
	store := &fakeStore{}
	classifier := &fakeClassifier{err: errors.New("api quota exceeded")}
	o, _, _ := newTestOrchestrator(scraper, store, classifier)

	result, err := o.Run(context.Background(), []string{"111"})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.MetaWritten)
	require.Nil(t, store.listings[0].SellerMotivation)
}
