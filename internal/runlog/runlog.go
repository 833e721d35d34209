// Package runlog writes durable records of ingestion outcomes to a blob sink.
//
// A run's failed listings land as one object under listing_logs/, and every
// run produces a summary object under chunk_logs/. Sink errors never fail the
// calling run; they are logged and dropped.
package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wasatchdata/listingradar/internal/listing"
)

const (
	dayLayout       = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05.000000"
)

// UnitFailure records a single listing that could not be ingested.
type UnitFailure struct {
	MLSNumber string    `json:"mls_number"`
	ErrorType string    `json:"error_type"`
	ErrorMsg  string    `json:"error_msg"`
	Trace     string    `json:"stack_trace,omitempty"`
	At        time.Time `json:"at"`
}

// RunSummary records the outcome of a whole ingestion run.
type RunSummary struct {
	MLSNumbers        []string `json:"mls_numbers"`
	Success           bool     `json:"success"`
	Duration          string   `json:"chunk_duration"`
	NumReceived       int      `json:"num_mls_numbers_received"`
	NumEventsWritten  int64    `json:"num_listing_events_written"`
	NumMetaWritten    int64    `json:"num_listing_meta_written"`
	NumKnownSkipped   int      `json:"num_known_skipped"`
	ErrorType         string   `json:"error_type,omitempty"`
	ErrorMsg          string   `json:"error_msg,omitempty"`
	StackTrace        string   `json:"stack_trace,omitempty"`
}

// Writer persists failure and summary records through a LogSink.
type Writer struct {
	sink   listing.LogSink
	clock  listing.Clock
	logger *zap.Logger
}

// NewWriter returns a Writer backed by the given sink.
func NewWriter(sink listing.LogSink, clock listing.Clock, logger *zap.Logger) *Writer {
	return &Writer{sink: sink, clock: clock, logger: logger}
}

// WriteFailures stores the run's whole failure list as a single object, so
// one run maps to one inspectable batch. Sink errors are logged and swallowed.
func (w *Writer) WriteFailures(ctx context.Context, failures []UnitFailure) {
	if len(failures) == 0 {
		return
	}
	now := w.clock.Now().UTC()
	path := fmt.Sprintf("listing_logs/%s/fail/%s.json",
		now.Format(dayLayout), now.Format(timestampLayout))

	data, err := json.Marshal(failures)
	if err != nil {
		w.logger.Warn("marshaling failure records", zap.Error(err))
		return
	}
	if _, err := w.sink.PutObject(ctx, path, "application/json", data); err != nil {
		w.logger.Warn("writing failure records",
			zap.Int("count", len(failures)),
			zap.String("path", path), zap.Error(err))
	}
}

// WriteSummary stores the run summary under a success or fail prefix
// depending on the outcome. Sink errors are logged and swallowed.
func (w *Writer) WriteSummary(ctx context.Context, summary RunSummary) {
	status := "success"
	if !summary.Success {
		status = "fail"
	}
	now := w.clock.Now().UTC()
	path := fmt.Sprintf("chunk_logs/%s/%s/%s.json",
		now.Format(dayLayout), status, now.Format(timestampLayout))

	data, err := json.Marshal(summary)
	if err != nil {
		w.logger.Warn("marshaling run summary", zap.Error(err))
		return
	}
	if _, err := w.sink.PutObject(ctx, path, "application/json", data); err != nil {
		w.logger.Warn("writing run summary",
			zap.String("path", path), zap.Error(err))
	}
}
