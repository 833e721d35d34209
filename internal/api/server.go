// Package api exposes the HTTP interface for the listing service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wasatchdata/listingradar/internal/filterplan"
	"github.com/wasatchdata/listingradar/internal/ingest"
	"github.com/wasatchdata/listingradar/internal/listing"
	"github.com/wasatchdata/listingradar/internal/match"
	"github.com/wasatchdata/listingradar/internal/metrics"
)

// Ingestor runs one ingestion batch.
type Ingestor interface {
	Run(ctx context.Context, mlsNumbers []string) (ingest.Result, error)
}

// AlertStore loads saved alerts scoped to a requesting user.
type AlertStore interface {
	GetAlert(ctx context.Context, alertID, userID, email string) (*listing.Alert, error)
}

// Matcher evaluates alert criteria against stored listings.
type Matcher interface {
	Match(ctx context.Context, criteria filterplan.Criteria, page int) ([]match.Record, error)
}

// Config controls server behavior.
type Config struct {
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the ingestion pipeline and the matcher.
type Server struct {
	router   chi.Router
	ingestor Ingestor
	alerts   AlertStore
	matcher  Matcher
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(ingestor Ingestor, alerts AlertStore, matcher Matcher, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		ingestor: ingestor,
		alerts:   alerts,
		matcher:  matcher,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/listings/ingest", s.ingestListings)
		r.Get("/alerts/{alert_id}/listings", s.alertListings)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type ingestRequest struct {
	MLSNumbers []string `json:"mls_numbers"`
}

func (s *Server) ingestListings(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.MLSNumbers) == 0 {
		writeError(w, http.StatusBadRequest, "mls_numbers is required")
		return
	}

	result, err := s.ingestor.Run(r.Context(), req.MLSNumbers)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// alertResponse is the alert-lookup envelope: the alert's filter fields plus
// the matched listings.
type alertResponse struct {
	ID             string              `json:"id"`
	Nickname       string              `json:"nickname"`
	OwnerEmail     string              `json:"owner_email,omitempty"`
	RecipientEmail string              `json:"recipient_email,omitempty"`
	Filters        filterplan.Criteria `json:"filters"`
	Page           int                 `json:"page"`
	NumResults     int                 `json:"num_results"`
	Results        []match.Record      `json:"results"`
}

func (s *Server) alertListings(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alert_id")
	userID := r.URL.Query().Get("user_id")
	email := r.URL.Query().Get("email")
	if userID == "" && email == "" {
		writeError(w, http.StatusBadRequest, "user_id or email is required")
		return
	}
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		page = parsed
	}

	alert, err := s.alerts.GetAlert(r.Context(), alertID, userID, email)
	if errors.Is(err, listing.ErrAlertNotFound) {
		writeError(w, http.StatusNotFound, "No alert found with given id")
		return
	}
	if err != nil {
		s.logger.Error("alert lookup failed", zap.String("alert_id", alertID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	records, err := s.matcher.Match(r.Context(), alert.Criteria, page)
	if err != nil {
		s.logger.Error("alert match failed", zap.String("alert_id", alertID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []match.Record{}
	}
	writeJSON(w, http.StatusOK, alertResponse{
		ID:             alert.ID,
		Nickname:       alert.Nickname,
		OwnerEmail:     alert.OwnerEmail,
		RecipientEmail: alert.RecipientEmail,
		Filters:        alert.Criteria,
		Page:           page,
		NumResults:     len(records),
		Results:        records,
	})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unknown"
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError uses the legacy error envelope consumed by existing clients.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"err": msg})
}
