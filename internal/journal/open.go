package journal

import (
	"errors"
	"strings"

	logx "eventcat/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("journal path is required")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "pebble":
		return openPebble(cfg, log)
	default:
		return nil, errors.New("unknown journal driver: " + cfg.Driver)
	}
}
