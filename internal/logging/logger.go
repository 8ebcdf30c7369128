package logging

import (
	"fmt"

	"github.com/mikey/inbox-assistant/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "inbox-assistant"

// Options control how a logger is built
type Options struct {
	Level       zapcore.Level
	JSON        bool
	OutputPaths []string
	Component   string
}

// InitLogger initializes the service logger from the logging.* configuration
func InitLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.GetString("logging.level"))
	if err != nil {
		level = zapcore.InfoLevel
	}
	return New(Options{
		Level:       level,
		JSON:        cfg.GetString("logging.format") == "json",
		OutputPaths: cfg.GetStringSlice("logging.output_paths"),
		Component:   "server",
	})
}

// InitConsoleLogger initializes a console-friendly logger for CLI commands
func InitConsoleLogger(verbose bool, jsonFormat bool) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	return New(Options{
		Level:       level,
		JSON:        jsonFormat,
		OutputPaths: []string{"stderr"},
		Component:   "cli",
	})
}

// New builds a logger. JSON output uses the production encoder, anything else
// the colored development one.
func New(opts Options) (*zap.Logger, error) {
	var logConfig zap.Config
	if opts.JSON {
		logConfig = zap.NewProductionConfig()
	} else {
		logConfig = zap.NewDevelopmentConfig()
		logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	logConfig.Level = zap.NewAtomicLevelAt(opts.Level)
	if len(opts.OutputPaths) > 0 {
		logConfig.OutputPaths = opts.OutputPaths
	}
	logConfig.InitialFields = map[string]interface{}{"service": serviceName}
	if opts.Component != "" {
		logConfig.InitialFields["component"] = opts.Component
	}

	logger, err := logConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
