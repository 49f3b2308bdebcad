package handlers

import (
	"context"
	"fmt"
	"time"

	"commentpulse/internal/config"
	"commentpulse/internal/core"
	"commentpulse/internal/filter"
	"commentpulse/internal/jobs"
	"commentpulse/internal/llm"
	"commentpulse/internal/logger"
	"commentpulse/internal/persistence"
	"commentpulse/internal/pipeline"
	"commentpulse/internal/queue"
	"commentpulse/internal/sentiment"
	"commentpulse/internal/store"
	"commentpulse/internal/summary"
	"commentpulse/internal/themes"
)

// analysisStore is the storage surface the CLI needs, satisfied by both the
// sqlite store and the postgres persistence layer.
type analysisStore interface {
	pipeline.ResultStore
	jobs.Store
	GetAnalysisResult(ctx context.Context, id string) (*core.AnalysisResult, error)
	Close() error
}

// app bundles the wired components behind the CLI commands.
type app struct {
	cfg          *config.Config
	store        analysisStore
	lifecycle    *jobs.Lifecycle
	orchestrator *pipeline.Orchestrator
	dispatcher   *queue.Dispatcher
	service      *queue.Service
}

// openStore opens the configured persistence backend.
func openStore(cfg *config.Config) (analysisStore, error) {
	if cfg.Store.Backend == "postgres" {
		return persistence.NewPostgresDB(cfg.Store.PostgresURL)
	}
	return store.New(cfg.App.DataDir)
}

// buildStoreApp wires only the storage and job lifecycle, for commands that
// never run the pipeline.
func buildStoreApp() (*app, error) {
	cfg := config.Get()

	st, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	return &app{
		cfg:       cfg,
		store:     st,
		lifecycle: jobs.NewLifecycle(st),
	}, nil
}

// buildApp wires the full analysis stack: stages, orchestrator, dispatcher
// and enqueue service.
func buildApp(model string) (*app, error) {
	a, err := buildStoreApp()
	if err != nil {
		return nil, err
	}

	client, err := llm.NewClient(model)
	if err != nil {
		a.Close()
		return nil, err
	}

	sentOpts := sentiment.DefaultOptions()
	if a.cfg.Sentiment.BatchSize > 0 {
		sentOpts.BatchSize = a.cfg.Sentiment.BatchSize
	}
	if a.cfg.Sentiment.MaxRetries > 0 {
		sentOpts.MaxRetries = a.cfg.Sentiment.MaxRetries
	}
	sentOpts.RetryConfidenceThreshold = a.cfg.Sentiment.RetryConfidenceThreshold

	pipeCfg := pipeline.DefaultConfig()
	pipeCfg.CacheTTL = a.cfg.Pipeline.CacheTTLDuration()
	if a.cfg.Pipeline.MinFilteredComments > 0 {
		pipeCfg.MinFilteredComments = a.cfg.Pipeline.MinFilteredComments
	}

	a.orchestrator = pipeline.New(
		filter.NewWithDefaults(),
		sentiment.New(client, sentOpts),
		themes.NewWithDefaults(),
		summary.NewWithDefaults(client),
		a.store,
		a.lifecycle,
		nil,
		nil,
		pipeCfg,
	)

	a.dispatcher = queue.NewDispatcher(a.cfg.Pipeline.Workers, a.cfg.Pipeline.QueueSize)
	a.service = queue.NewService(a.dispatcher, a.lifecycle, a.orchestrator)

	return a, nil
}

// Close drains the dispatcher and closes the store.
func (a *app) Close() {
	if a.dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.dispatcher.Shutdown(ctx); err != nil {
			logger.Error("Dispatcher shutdown incomplete", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Error("Failed to close store", err)
		}
	}
}
