package listing

import (
	"context"
	"net/http"
	"time"
)

// Store persists listing meta and event rows.
type Store interface {
	// ExistingMLSNumbers returns the subset of ids already present in
	// listing_meta. Used to skip known listings before fetch work.
	ExistingMLSNumbers(ctx context.Context, mlsNumbers []string) ([]string, error)
	// InsertListings appends meta rows in a single atomic batch.
	InsertListings(ctx context.Context, listings []Listing) (int64, error)
	// InsertEvents appends event rows in a single atomic batch. Meta rows
	// must be committed first; events carry a foreign key on mls_number.
	InsertEvents(ctx context.Context, events []Event) (int64, error)
}

// Fetcher retrieves a listing page for one identifier.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (Document, error)
}

// FetchRequest captures everything needed to fetch a listing page.
type FetchRequest struct {
	MLSNumber string
	URL       string
	Headers   http.Header
}

// Classifier flags seller motivation from description text. A batch whose
// response cannot be parsed yields no flags for its ids; the caller treats a
// missing flag as unknown, not false.
type Classifier interface {
	Classify(ctx context.Context, pairs []DescriptionPair) (map[string]bool, error)
}

// LogSink accepts structured JSON keyed by a path and returns a URI.
// Fire-and-forget from the core's perspective.
type LogSink interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
