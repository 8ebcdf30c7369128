package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/inbox-assistant/internal/config"
	"github.com/mikey/inbox-assistant/internal/logging"
)

// CLIFlags contains the persistent flags shared by the CLI subcommands
type CLIFlags struct {
	ConfigFile string
	Provider   string
	StoreType  string
	Verbose    bool
	JSONLog    bool
}

// BuildCLIContainer creates a container for one-shot CLI commands. Flags that are
// set override the loaded configuration.
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		cfg, err := config.Load(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		if used := cfg.GetViper().ConfigFileUsed(); used != "" {
			logger.Debug("Loaded configuration from file", zap.String("file", used))
		}
		applyFlagOverrides(cfg, flags)
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	if err := provideServices(container); err != nil {
		return nil, err
	}

	return container, nil
}

func applyFlagOverrides(cfg *config.Config, flags *CLIFlags) {
	if flags.Provider != "" {
		cfg.Set("llm.provider", flags.Provider)
		enabled := cfg.GetStringSlice("llm.enabled_providers")
		found := false
		for _, p := range enabled {
			if p == flags.Provider {
				found = true
				break
			}
		}
		if len(enabled) > 0 && !found {
			cfg.Set("llm.enabled_providers", append(enabled, flags.Provider))
		}
	}
	if flags.StoreType != "" {
		cfg.Set("store.type", flags.StoreType)
	}
	if flags.Verbose {
		cfg.Set("logging.level", "debug")
	}
	if flags.JSONLog {
		cfg.Set("logging.format", "json")
	}
}
