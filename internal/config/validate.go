package config

import (
	"fmt"
	"strings"
)

// Validate checks cross-field constraints that strict decoding cannot express.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "file", "sqlite", "sqlite3", "pebble":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q (use file, sqlite or pebble)", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("fetch.timeout", c.Fetch.Timeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("derive.progress_every", c.Derive.ProgressEvery); err != nil {
		return err
	}
	if c.Derive.MaxFailureRatio < 0 || c.Derive.MaxFailureRatio > 1 {
		return fmt.Errorf("derive.max_failure_ratio must be within [0, 1], got %v", c.Derive.MaxFailureRatio)
	}
	if c.Run.QueryLimit < 0 {
		return fmt.Errorf("run.query_limit must be >= 0")
	}
	if c.Fetch.RatePerSec < 0 {
		return fmt.Errorf("fetch.rate_per_sec must be >= 0")
	}
	return nil
}
