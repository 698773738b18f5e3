package container

import (
	"fmt"
	"net/http"

	"github.com/anime-shed/microscan-go/internal/assessor"
	"github.com/anime-shed/microscan-go/internal/config"
	"github.com/anime-shed/microscan-go/internal/embedding"
	"github.com/anime-shed/microscan-go/internal/factory"
	"github.com/anime-shed/microscan-go/internal/fusion"
	"github.com/anime-shed/microscan-go/internal/logger"
	"github.com/anime-shed/microscan-go/internal/observer"
	"github.com/anime-shed/microscan-go/internal/optics"
	"github.com/anime-shed/microscan-go/internal/service"
	"github.com/anime-shed/microscan-go/internal/transport"
)

// Container holds all application dependencies
type Container struct {
	config      *config.Config
	features    optics.FeatureExtractor
	embeddings  *embedding.Handle
	assessor    assessor.Assessor
	scorer      *fusion.Scorer
	events      *observer.EventPublisher
	metrics     *observer.MetricsObserver
	scanService *service.ScanService
	handler     http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	components := factory.NewComponentFactory()

	// Build dependency graph
	loader, err := components.EmbeddingFactory.CreateLoader(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to configure embeddings: %w", err)
	}
	expert, err := components.AssessorFactory.CreateAssessor(cfg.Assessor)
	if err != nil {
		return nil, fmt.Errorf("failed to configure assessor: %w", err)
	}

	features := optics.NewExtractor()
	embeddings := embedding.NewHandle(loader)
	scorer := fusion.NewScorer(cfg.Weights)

	metrics := observer.NewMetricsObserver()
	events := observer.NewEventPublisher()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	events.Subscribe(metrics)

	opts := service.DefaultOptions()
	opts.AssessorTimeout = cfg.Assessor.Timeout
	scanService := service.NewScanService(features, embedding.NewExtractor(embeddings), expert, scorer, events, opts)

	c := &Container{
		config:      cfg,
		features:    features,
		embeddings:  embeddings,
		assessor:    expert,
		scorer:      scorer,
		events:      events,
		metrics:     metrics,
		scanService: scanService,
	}
	c.handler = transport.NewHandler(scanService, cfg, c.healthChecks()...)
	observer.SetPoolStatsSource(func() observer.PoolCounters {
		stats := features.Stats()
		return observer.PoolCounters{
			TotalJobs:     stats.TotalJobs,
			CompletedJobs: stats.CompletedJobs,
			ActiveWorkers: stats.ActiveWorkers,
		}
	})
	return c, nil
}

func (c *Container) healthChecks() []transport.HealthCheck {
	checks := []transport.HealthCheck{
		{Name: "embedding_model", State: func() string { return string(c.embeddings.State()) }},
		{Name: "assessor", State: func() string { return c.assessor.Name() }},
	}
	if guarded, ok := c.assessor.(*assessor.Guarded); ok {
		checks = append(checks, transport.HealthCheck{
			Name:  "assessor_breaker",
			State: func() string { return guarded.Breaker().State().String() },
		})
	}
	return checks
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Scanner returns the scoring pipeline, used directly by the CLI
func (c *Container) Scanner() service.Scanner {
	return c.scanService
}

// Features returns the optical feature extractor
func (c *Container) Features() optics.FeatureExtractor {
	return c.features
}

// Metrics returns the in-process scan counters
func (c *Container) Metrics() *observer.MetricsObserver {
	return c.metrics
}

// Close drains pending events and stops the extractor's workers
func (c *Container) Close() error {
	c.events.Flush()
	return c.features.Close()
}
