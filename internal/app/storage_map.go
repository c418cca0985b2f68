package app

import (
	"fmt"
	"strings"
	"time"

	"eventcat/internal/config"
	"eventcat/internal/journal"
	logx "eventcat/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (journal.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		return journal.Config{}, fmt.Errorf("storage.path is required")
	}
	switch driver {
	case "file", "pebble":
		return journal.Config{Driver: driver, Path: path, CacheBytes: sc.CacheBytes}, nil
	case "sqlite", "sqlite3":
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
		if err != nil {
			return journal.Config{}, err
		}
		return journal.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return journal.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}
