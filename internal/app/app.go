// -----------------------------------------------------------------------
// App - dependency wiring in order: storage, services, worker,
// scheduler. Close() unwinds in reverse.
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speculor/internal/common"
	"github.com/ternarybob/speculor/internal/httpclient"
	"github.com/ternarybob/speculor/internal/interfaces"
	"github.com/ternarybob/speculor/internal/models"
	"github.com/ternarybob/speculor/internal/services/collector"
	"github.com/ternarybob/speculor/internal/services/llm"
	"github.com/ternarybob/speculor/internal/services/mailer"
	"github.com/ternarybob/speculor/internal/services/markets"
	"github.com/ternarybob/speculor/internal/services/scheduler"
	"github.com/ternarybob/speculor/internal/services/synthesizer"
	"github.com/ternarybob/speculor/internal/storage/badger"
	"github.com/ternarybob/speculor/internal/worker"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	DB        *badger.BadgerDB
	TaskQueue interfaces.TaskQueue

	LLMService  interfaces.LLMService
	Collector   interfaces.CorpusCollector
	Aggregator  *markets.Aggregator
	Synthesizer interfaces.ReportSynthesizer
	Mailer      interfaces.NotificationService

	Worker    *worker.Worker
	Scheduler *scheduler.Service

	cancelWorker context.CancelFunc
	workerDone   sync.WaitGroup
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.closeStorage()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.Worker = worker.New(
		cfg.Worker,
		app.TaskQueue,
		app.Collector,
		app.Aggregator,
		app.Synthesizer,
		app.Mailer,
		logger,
	)

	app.Scheduler = scheduler.NewService(cfg, app.TaskQueue, app.Aggregator, app.Mailer, logger)

	logger.Info().
		Str("provider", string(cfg.LLM.DefaultProvider)).
		Int("sources", len(cfg.Sources)).
		Msg("Application initialization complete")

	return app, nil
}

// Start launches the worker loop and the scheduler.
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancelWorker = cancel

	a.workerDone.Add(1)
	go func() {
		defer a.workerDone.Done()
		a.Worker.Run(ctx)
	}()

	if err := a.Scheduler.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	return nil
}

// initStorage opens the Badger store and the task queue on top of it.
func (a *App) initStorage() error {
	db, err := badger.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.DB = db
	a.TaskQueue = badger.NewTaskStorage(db, a.Logger)

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes the pipeline services in dependency order.
func (a *App) initServices() error {
	var err error

	// LLM provider behind the unified factory
	a.LLMService, err = llm.NewLLMService(a.Config, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM service: %w", err)
	}

	// Corpus collector over the configured sources
	sources := make([]models.Source, 0, len(a.Config.Sources))
	for _, entry := range a.Config.Sources {
		source := models.Source{
			Name:            entry.Name,
			Domain:          entry.Domain,
			FeedURLs:        entry.FeedURLs,
			StartPages:      entry.StartPages,
			ArticlePatterns: entry.ArticlePatterns,
			ExcludePatterns: entry.ExcludePatterns,
		}
		if err := source.Validate(); err != nil {
			return fmt.Errorf("invalid source config: %w", err)
		}
		sources = append(sources, source)
	}
	a.Collector = collector.NewService(a.Config.Collector, sources, a.Logger)
	a.Logger.Debug().Int("sources", len(sources)).Msg("Collector initialized")

	// Market data aggregator
	a.Aggregator = a.buildAggregator()

	// Synthesizer on top of the LLM provider
	a.Synthesizer = synthesizer.NewService(a.LLMService, a.Config.Synthesizer, a.Logger)

	// Notification sink; fine to run unconfigured, delivery is skipped
	a.Mailer = mailer.NewService(a.Config.Mail, a.Logger)
	if !a.Mailer.IsConfigured() {
		a.Logger.Info().Msg("Mailer not configured, report notifications disabled")
	}

	return nil
}

// buildAggregator assembles the provider clients, cache and pacing
// limiter from config.
func (a *App) buildAggregator() *markets.Aggregator {
	mcfg := a.Config.Markets
	httpClient := httpclient.NewDefaultHTTPClient(mcfg.RequestTimeout)

	pricingOpts := []markets.PricingOption{
		markets.WithPricingHTTPClient(httpClient),
		markets.WithPricingLogger(a.Logger),
	}
	if mcfg.PricingBaseURL != "" {
		pricingOpts = append(pricingOpts, markets.WithPricingBaseURL(mcfg.PricingBaseURL))
	}
	pricing := markets.NewPricingClient(pricingOpts...)

	yieldsOpts := []markets.YieldsOption{
		markets.WithYieldsHTTPClient(httpClient),
		markets.WithYieldsLogger(a.Logger),
	}
	if mcfg.YieldsBaseURL != "" {
		yieldsOpts = append(yieldsOpts, markets.WithYieldsBaseURL(mcfg.YieldsBaseURL))
	}
	yields := markets.NewYieldsClient(mcfg.YieldsAPIKey, yieldsOpts...)

	sentimentOpts := []markets.SentimentOption{
		markets.WithSentimentHTTPClient(httpClient),
		markets.WithSentimentLogger(a.Logger),
	}
	if mcfg.FearGreedURL != "" {
		sentimentOpts = append(sentimentOpts, markets.WithFearGreedURL(mcfg.FearGreedURL))
	}
	if mcfg.DominanceURL != "" {
		sentimentOpts = append(sentimentOpts, markets.WithDominanceURL(mcfg.DominanceURL))
	}
	if mcfg.SentimentRetry > 0 {
		sentimentOpts = append(sentimentOpts, markets.WithSentimentRetry(mcfg.SentimentRetry, 0))
	}
	sentiment := markets.NewSentimentClient(sentimentOpts...)

	cache := markets.NewQuoteCache(mcfg.CacheTTL)
	limiter := markets.NewPacingLimiter(mcfg.ProviderDelay)

	var aggOpts []markets.AggregatorOption
	if mcfg.SnapshotMaxAgeH > 0 {
		aggOpts = append(aggOpts, markets.WithSnapshotMaxAge(time.Duration(mcfg.SnapshotMaxAgeH)*time.Hour))
	}

	return markets.NewAggregator(pricing, yields, sentiment, cache, limiter, a.Logger, aggOpts...)
}

// Close shuts down components in reverse initialization order.
func (a *App) Close() error {
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler")
		}
	}

	if a.cancelWorker != nil {
		a.cancelWorker()
		a.workerDone.Wait()
	}

	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM service")
		}
	}

	return a.closeStorage()
}

func (a *App) closeStorage() error {
	if a.DB == nil {
		return nil
	}
	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	a.Logger.Info().Msg("Storage closed")
	return nil
}
