package factory

import (
	"fmt"

	"github.com/mikey/inbox-assistant/internal/adapters/mailfile"
	"github.com/mikey/inbox-assistant/internal/config"
	"github.com/mikey/inbox-assistant/internal/core"
	"github.com/mikey/inbox-assistant/internal/senderfilter"
	"go.uber.org/zap"
)

// FetcherFactory creates the email source based on configuration
type FetcherFactory struct {
	cfg    *config.Config
	logger *zap.Logger
	google *GoogleFactory
}

// NewFetcherFactory creates a new fetcher factory
func NewFetcherFactory(cfg *config.Config, logger *zap.Logger, google *GoogleFactory) *FetcherFactory {
	return &FetcherFactory{
		cfg:    cfg,
		logger: logger,
		google: google,
	}
}

// CreateFetcher creates the configured fetcher with the sender ignore list applied
func (f *FetcherFactory) CreateFetcher() (core.EmailFetcher, error) {
	fetcherCfg := f.cfg.GetFetcher()
	filter := senderfilter.New(f.cfg.GetGoogle().IgnoreSenders, f.logger)

	switch fetcherCfg.Type {
	case "gmail":
		return f.google.CreateFetcher(filter), nil
	case "dir":
		if fetcherCfg.Dir == "" {
			return nil, fmt.Errorf("fetcher.dir is required for the dir fetcher")
		}
		return mailfile.NewDirFetcher(fetcherCfg.Dir, filter, f.logger.With(zap.String("adapter", "mailfile"))), nil
	default:
		return nil, fmt.Errorf("unsupported fetcher type: %s", fetcherCfg.Type)
	}
}
