package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/inbox-assistant/internal/adapters/store"
	"github.com/mikey/inbox-assistant/internal/config"
	"go.uber.org/zap"
)

// StoreFactory creates repositories based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateRepository creates a repository based on the configuration
func (f *StoreFactory) CreateRepository() (store.Repository, error) {
	storeCfg := f.cfg.GetStore()

	var (
		repo *store.SQLStore
		err  error
	)
	switch storeCfg.Type {
	case "memory":
		return store.NewMemoryStore(f.logger), nil
	case "sqlite":
		if storeCfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(storeCfg.SQLitePath), 0755); err != nil {
				return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
			}
		}
		repo, err = store.NewSQLiteStore(storeCfg.SQLitePath, f.logger)
	case "mysql":
		repo, err = store.NewMySQLStore(storeCfg.MySQLDSN, f.logger)
	case "postgres":
		repo, err = store.NewPostgresStore(storeCfg.PostgresDSN, f.logger)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeCfg.Type)
	}
	if err != nil {
		return nil, err
	}

	f.logger.Info("Opened store", zap.String("type", storeCfg.Type))
	return repo, nil
}
