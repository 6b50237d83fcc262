package services

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility/internal/config"
	"github.com/AI-Template-SDK/senso-visibility/internal/database"
	"github.com/AI-Template-SDK/senso-visibility/internal/metrics"
	"github.com/AI-Template-SDK/senso-visibility/internal/providers"
	"github.com/AI-Template-SDK/senso-visibility/internal/sentiment"
	"github.com/AI-Template-SDK/senso-visibility/internal/serp"
)

// Engine is the wired analysis stack shared by the HTTP server and the
// command-line entrypoints.
type Engine struct {
	DB       *database.Client
	Repos    *RepositoryManager
	Metrics  *metrics.Metrics
	Registry *providers.Registry
	Adapters *providers.Adapters

	Projects     ProjectService
	Models       ModelRegistryService
	Orchestrator Orchestrator

	closers []io.Closer
}

// NewEngine connects to Postgres (and Redis when configured), loads the model
// registry and builds every service.
func NewEngine(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*Engine, error) {
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	e := &Engine{DB: db, closers: []io.Closer{db}}
	log.Info().
		Str("host", cfg.Database.Host).
		Str("database", cfg.Database.Name).
		Msg("[NewEngine] connected to database")

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(); err != nil {
			e.Close()
			return nil, err
		}
	}

	e.Repos = NewRepositoryManager(db)
	e.Metrics = metrics.New(reg)
	e.Models = NewModelRegistryService(e.Repos)
	e.Registry, err = LoadRegistry(ctx, e.Models)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to load model registry: %w", err)
	}
	e.Adapters = providers.NewAdapters(cfg, e.Registry, e.Metrics)

	cache := e.serpCache(cfg)
	if cfg.SerpAPIKey == "" {
		log.Warn().Msg("[NewEngine] SERPAPI_KEY not set, serp keywords will fail")
	} else {
		log.Info().Str("api_key", config.MaskAPIKey(cfg.SerpAPIKey)).Msg("[NewEngine] serp client configured")
	}
	serpClient := serp.NewClient(serp.ClientOptions{
		APIKey:  cfg.SerpAPIKey,
		BaseURL: cfg.Serp.BaseURL,
		Metrics: e.Metrics,
	})

	snapshots := NewSnapshotAggregator(e.Repos)
	quota := NewQuotaGate(e.Repos, cfg.EnforceQuotas, e.Metrics)
	probes := NewProbeRunner(cfg, e.Repos, e.Adapters, sentiment.NewClassifier(e.Adapters.Sentiment),
		snapshots, NewQueryProvisioner(e.Repos), e.Metrics)
	serps := NewSerpRunner(cfg, e.Repos, serpClient, cache, quota, snapshots, e.Metrics)

	e.Projects = NewProjectService(cfg, e.Repos)
	e.Orchestrator = NewOrchestrator(cfg, e.Repos, probes, serps, e.Metrics)
	return e, nil
}

// serpCache prefers Redis and falls back to process memory.
func (e *Engine) serpCache(cfg *config.Config) serp.Cache {
	if cfg.Redis.URL == "" {
		log.Info().Msg("[NewEngine] REDIS_URL not set, using in-memory serp cache")
		return serp.NewMemoryCache()
	}
	client, err := serp.NewRedisClient(cfg.Redis.URL)
	if err != nil {
		log.Warn().Err(err).Msg("[NewEngine] redis unavailable, using in-memory serp cache")
		return serp.NewMemoryCache()
	}
	e.closers = append(e.closers, client)
	return serp.NewRedisCache(client)
}

func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			log.Warn().Err(err).Msg("[Engine.Close] failed to close resource")
		}
	}
}
