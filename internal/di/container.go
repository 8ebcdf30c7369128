package di

import (
	"context"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/inbox-assistant/internal/adapters/store"
	"github.com/mikey/inbox-assistant/internal/config"
	"github.com/mikey/inbox-assistant/internal/core"
	"github.com/mikey/inbox-assistant/internal/factory"
	"github.com/mikey/inbox-assistant/internal/logging"
	"github.com/mikey/inbox-assistant/internal/scheduler"
	"github.com/mikey/inbox-assistant/internal/utils"
)

// BuildContainer creates a container for the long-running service. An empty
// configFile searches the default config paths.
func BuildContainer(configFile string) (*dig.Container, error) {
	return BuildServiceContainer(&CLIFlags{ConfigFile: configFile})
}

// BuildServiceContainer creates a service container whose configuration is
// overridden by the flags that are set. Logging follows the logging.* keys.
func BuildServiceContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(func() (*config.Config, error) {
		cfg, err := config.Load(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		applyFlagOverrides(cfg, flags)
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideServices(container); err != nil {
		return nil, err
	}

	return container, nil
}

// provideServices registers everything downstream of config and logger
func provideServices(container *dig.Container) error {
	// Register text processor
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return err
	}

	// Register factories
	for _, ctor := range []interface{}{
		factory.NewStoreFactory,
		factory.NewLLMFactory,
		factory.NewGoogleFactory,
		factory.NewFetcherFactory,
		factory.NewNotifierFactory,
	} {
		if err := container.Provide(ctor); err != nil {
			return err
		}
	}

	// Register typed settings
	if err := container.Provide(func(cfg *config.Config) (config.PipelineConfig, error) {
		return cfg.GetPipeline()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(cfg *config.Config) (core.Backoff, error) {
		b, err := cfg.GetBackoff()
		if err != nil {
			return core.Backoff{}, err
		}
		return core.Backoff{Base: b.Base, Cap: b.Cap}, nil
	}); err != nil {
		return err
	}

	// Register repository
	if err := container.Provide(func(f *factory.StoreFactory) (store.Repository, error) {
		return f.CreateRepository()
	}); err != nil {
		return err
	}

	// Register ports
	if err := container.Provide(func(f *factory.LLMFactory) (*core.ExtractorSet, error) {
		return f.CreateExtractors(context.Background())
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.FetcherFactory) (core.EmailFetcher, error) {
		return f.CreateFetcher()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.GoogleFactory) core.CalendarClient {
		return f.CreateCalendarClient()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.NotifierFactory) (core.FailureNotifier, error) {
		return f.CreateNotifier()
	}); err != nil {
		return err
	}

	// Register core services
	if err := container.Provide(core.NewDeduplicator); err != nil {
		return err
	}
	if err := container.Provide(func(repo store.Repository, logger *zap.Logger, pc config.PipelineConfig) *core.Sweeper {
		return core.NewSweeper(repo, repo, logger, pc.SweepThreshold, pc.MaxRetries)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(
		repo store.Repository,
		sweeper *core.Sweeper,
		calendar core.CalendarClient,
		dedup *core.Deduplicator,
		notifier core.FailureNotifier,
		logger *zap.Logger,
		backoff core.Backoff,
		pc config.PipelineConfig,
	) *core.DeliveryEngine {
		return core.NewDeliveryEngine(repo, sweeper, calendar, dedup, notifier, logger, backoff, pc.ClaimTimeout)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(
		fetcher core.EmailFetcher,
		extractors *core.ExtractorSet,
		repo store.Repository,
		sweeper *core.Sweeper,
		delivery *core.DeliveryEngine,
		logger *zap.Logger,
		pc config.PipelineConfig,
	) *core.Orchestrator {
		return core.NewOrchestrator(fetcher, extractors, repo, repo, repo, sweeper, delivery, repo, logger, core.PipelineSettings{
			MaxResults: pc.MaxResults,
			MaxRetries: pc.MaxRetries,
			Lookback:   pc.Lookback,
		})
	}); err != nil {
		return err
	}

	// Register scheduler
	if err := container.Provide(func(
		cfg *config.Config,
		repo store.Repository,
		orchestrator *core.Orchestrator,
		delivery *core.DeliveryEngine,
		logger *zap.Logger,
		pc config.PipelineConfig,
	) *scheduler.Scheduler {
		schedule := cfg.GetSchedule()
		return scheduler.New(repo, repo, repo, orchestrator, delivery, logger, scheduler.Config{
			ProcessSpec: schedule.Process,
			RetrySpec:   schedule.Retry,
			Concurrency: pc.Concurrency,
			MaxRetries:  pc.MaxRetries,
		})
	}); err != nil {
		return err
	}

	return nil
}
