package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mikey/inbox-assistant/internal/config"
	"go.uber.org/zap/zapcore"
)

func TestInitLoggerWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")
	cfg := config.NewFromViper(config.NewEmptyViper())
	cfg.Set("logging.level", "warn")
	cfg.Set("logging.output_paths", []string{path})

	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one entry above the level, got %d: %s", len(lines), data)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["msg"] != "shown" || entry["service"] != serviceName || entry["component"] != "server" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestInitLoggerUnknownLevel(t *testing.T) {
	cfg := config.NewFromViper(config.NewEmptyViper())
	cfg.Set("logging.level", "chatty")
	cfg.Set("logging.format", "console")
	cfg.Set("logging.output_paths", []string{filepath.Join(t.TempDir(), "x.log")})

	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !logger.Core().Enabled(zapcore.InfoLevel) || logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("unknown levels should fall back to info")
	}
}

func TestInitConsoleLogger(t *testing.T) {
	logger, err := InitConsoleLogger(true, false)
	if err != nil {
		t.Fatal(err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("verbose logger should enable debug")
	}
}
