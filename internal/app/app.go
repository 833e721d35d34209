// Package app wires configuration into the running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/wasatchdata/listingradar/internal/api"
	"github.com/wasatchdata/listingradar/internal/classify"
	"github.com/wasatchdata/listingradar/internal/clock/system"
	"github.com/wasatchdata/listingradar/internal/config"
	"github.com/wasatchdata/listingradar/internal/extract"
	collyfetcher "github.com/wasatchdata/listingradar/internal/fetch/colly"
	"github.com/wasatchdata/listingradar/internal/fetch/headless"
	"github.com/wasatchdata/listingradar/internal/id/uuid"
	"github.com/wasatchdata/listingradar/internal/ingest"
	"github.com/wasatchdata/listingradar/internal/listing"
	"github.com/wasatchdata/listingradar/internal/match"
	"github.com/wasatchdata/listingradar/internal/metrics"
	memorypublisher "github.com/wasatchdata/listingradar/internal/publisher/memory"
	gcppublisher "github.com/wasatchdata/listingradar/internal/publisher/pubsub"
	"github.com/wasatchdata/listingradar/internal/runlog"
	gcssink "github.com/wasatchdata/listingradar/internal/storage/gcs"
	localsink "github.com/wasatchdata/listingradar/internal/storage/local"
	memorysink "github.com/wasatchdata/listingradar/internal/storage/memory"
	pgstore "github.com/wasatchdata/listingradar/internal/storage/postgres"
)

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store         *pgstore.ListingStore
	orchestrator  *ingest.Orchestrator
	engine        *match.Engine
	apiServer     *api.Server
	storageClient *storage.Client
	pubsubClient  *pubsub.Client
	gcpPublisher  *gcppublisher.Publisher
	headlessFetch *headless.Fetcher
}

// New builds the full dependency graph from configuration.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}

	store, err := pgstore.NewListingStore(ctx, pgstore.ListingStoreConfig{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.DB.MaxConnLifetime(),
	})
	if err != nil {
		return nil, fmt.Errorf("build listing store: %w", err)
	}
	a.store = store

	sink, err := a.buildLogSink(ctx)
	if err != nil {
		a.store.Close()
		return nil, err
	}
	publisher, err := a.buildPublisher(ctx)
	if err != nil {
		a.store.Close()
		return nil, err
	}
	fetcher, err := a.buildFetcher()
	if err != nil {
		a.store.Close()
		return nil, err
	}

	clock := system.New()
	extractor, err := extract.New(extract.Config{
		MarketTimezone:   cfg.Market.Timezone,
		DisallowedStates: cfg.Market.DisallowedStates,
	}, clock)
	if err != nil {
		a.store.Close()
		return nil, fmt.Errorf("build extractor: %w", err)
	}
	scraper := extract.NewScraper(fetcher, extractor, extract.ScraperConfig{
		BaseURL:   cfg.Market.BaseURL,
		UserAgent: cfg.Market.UserAgent,
	})

	var classifier listing.Classifier
	if cfg.Classifier.APIKey != "" {
		classifier = classify.New(classify.Config{
			APIKey:    cfg.Classifier.APIKey,
			Model:     cfg.Classifier.Model,
			BaseURL:   cfg.Classifier.BaseURL,
			BatchSize: cfg.Classifier.BatchSize,
			Timeout:   time.Duration(cfg.Classifier.TimeoutSeconds) * time.Second,
		}, logger)
	} else {
		logger.Warn("classifier api key not set, motivation flags will stay unknown")
	}

	a.orchestrator = ingest.New(
		ingest.Config{
			Parallelism:  cfg.Ingest.Parallelism,
			SummaryTopic: cfg.Ingest.SummaryTopic,
		},
		scraper, store, classifier,
		runlog.NewWriter(sink, clock, logger),
		publisher, clock, uuid.New(), logger,
	)
	a.engine = match.NewEngine(store, clock, cfg.Match.PageSize, logger)
	a.apiServer = api.NewServer(a.orchestrator, store, a.engine, api.Config{
		RequestTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}, logger)

	return a, nil
}

// Orchestrator exposes the ingestion pipeline for CLI runs.
func (a *App) Orchestrator() *ingest.Orchestrator {
	return a.orchestrator
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return a.Close()
}

// Close releases all held resources.
func (a *App) Close() error {
	if a.gcpPublisher != nil {
		a.gcpPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("storage client close failed", zap.Error(err))
		}
	}
	if a.headlessFetch != nil {
		a.headlessFetch.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) buildLogSink(ctx context.Context) (listing.LogSink, error) {
	switch a.cfg.LogSink.Provider {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("build storage client: %w", err)
		}
		a.storageClient = client
		sink, err := gcssink.New(client, gcssink.Config{Bucket: a.cfg.LogSink.Bucket})
		if err != nil {
			return nil, fmt.Errorf("build gcs log sink: %w", err)
		}
		return sink, nil
	case "local":
		sink, err := localsink.New(localsink.Config{BaseDir: a.cfg.LogSink.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("build local log sink: %w", err)
		}
		return sink, nil
	default:
		return memorysink.NewLogSink(), nil
	}
}

func (a *App) buildPublisher(ctx context.Context) (listing.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("pubsub project not set, run summaries stay in-process")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("build pubsub client: %w", err)
	}
	a.pubsubClient = client
	a.gcpPublisher = gcppublisher.New(client)
	return a.gcpPublisher, nil
}

func (a *App) buildFetcher() (listing.Fetcher, error) {
	switch a.cfg.Fetch.Provider {
	case "headless":
		f, err := headless.NewChromedp(headless.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         a.cfg.Market.UserAgent,
			NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("build headless fetcher: %w", err)
		}
		a.headlessFetch = f
		return f, nil
	default:
		return collyfetcher.New(collyfetcher.Config{
			UserAgent:     a.cfg.Market.UserAgent,
			Timeout:       a.cfg.Fetch.Timeout(),
			RespectRobots: a.cfg.Fetch.RespectRobots,
		}), nil
	}
}
