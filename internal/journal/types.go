package journal

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("journal store closed")

// Store is the persistence API behind a Journal.
//
// Put must be durable when it returns: a crash afterwards loses nothing that
// was written.
type Store interface {
	Put(ctx context.Context, name string, aliases []string, data []byte) error
	Get(ctx context.Context, name string) (data []byte, ok bool, err error)
	Delete(ctx context.Context, name string) error
	ResolveAlias(ctx context.Context, alias string) (name string, ok bool, err error)
	// Names returns every stored canonical name, sorted.
	Names(ctx context.Context) ([]string, error)
	// Reset deletes every record.
	Reset(ctx context.Context) error
	Close() error
}

// Config configures the journal store.
//
// Driver values:
//   - "file": directory of JSON documents (Path is the directory)
//   - "sqlite": SQLite database file
//   - "pebble": Pebble database directory
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	CacheBytes  int64         // pebble only; 0 means pebble default
}

// Stats summarizes one flush.
type Stats struct {
	Written int
	Skipped int
	Deleted int
}
