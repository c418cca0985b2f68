package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/pebble"

	logx "eventcat/pkg/logx"
)

const (
	eventPrefix     = "event|"
	aliasPrefix     = "alias|"
	aliasesOfPrefix = "aliasesof|"
)

type pebbleStore struct {
	db    *pebble.DB
	cache *pebble.Cache
	log   logx.Logger
}

func openPebble(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("pebble path is required")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	opts := &pebble.Options{}
	if cfg.CacheBytes > 0 {
		opts.Cache = pebble.NewCache(cfg.CacheBytes)
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		if opts.Cache != nil {
			opts.Cache.Unref()
		}
		return nil, fmt.Errorf("journal: open pebble: %w", err)
	}
	return &pebbleStore{db: db, cache: opts.Cache, log: log}, nil
}

func (s *pebbleStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if s.cache != nil {
		s.cache.Unref()
		s.cache = nil
	}
	return err
}

func (s *pebbleStore) Put(ctx context.Context, name string, aliases []string, data []byte) error {
	_ = ctx
	if s == nil || s.db == nil {
		return ErrClosed
	}
	batch := s.db.NewBatch()
	defer batch.Close()

	prev, err := s.aliasesOf(name)
	if err != nil {
		return err
	}
	if err := s.dropOwnedAliases(batch, name, prev); err != nil {
		return err
	}
	all := append([]string{name}, aliases...)
	for _, a := range all {
		if err := batch.Set([]byte(aliasPrefix+a), []byte(name), nil); err != nil {
			return err
		}
	}
	list, err := codec.Marshal(all)
	if err != nil {
		return err
	}
	if err := batch.Set([]byte(aliasesOfPrefix+name), list, nil); err != nil {
		return err
	}
	if err := batch.Set([]byte(eventPrefix+name), data, nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (s *pebbleStore) aliasesOf(name string) ([]string, error) {
	value, closer, err := s.db.Get([]byte(aliasesOfPrefix + name))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer closer.Close()
	var out []string
	if err := codec.Unmarshal(value, &out); err != nil {
		return nil, fmt.Errorf("journal: decode aliases of %s: %w", name, err)
	}
	return out, nil
}

// dropOwnedAliases deletes alias keys that still point at name. An alias
// taken over by another event is left alone.
func (s *pebbleStore) dropOwnedAliases(batch *pebble.Batch, name string, aliases []string) error {
	for _, a := range aliases {
		owner, ok, err := s.ResolveAlias(context.Background(), a)
		if err != nil {
			return err
		}
		if !ok || owner != name {
			continue
		}
		if err := batch.Delete([]byte(aliasPrefix+a), nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *pebbleStore) Get(ctx context.Context, name string) ([]byte, bool, error) {
	_ = ctx
	if s == nil || s.db == nil {
		return nil, false, ErrClosed
	}
	value, closer, err := s.db.Get([]byte(eventPrefix + name))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("journal: get %s: %w", name, err)
	}
	defer closer.Close()
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

func (s *pebbleStore) Delete(ctx context.Context, name string) error {
	_ = ctx
	if s == nil || s.db == nil {
		return ErrClosed
	}
	prev, err := s.aliasesOf(name)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := s.dropOwnedAliases(batch, name, prev); err != nil {
		return err
	}
	if err := batch.Delete([]byte(aliasesOfPrefix+name), nil); err != nil {
		return err
	}
	if err := batch.Delete([]byte(eventPrefix+name), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (s *pebbleStore) ResolveAlias(ctx context.Context, alias string) (string, bool, error) {
	_ = ctx
	if s == nil || s.db == nil {
		return "", false, ErrClosed
	}
	value, closer, err := s.db.Get([]byte(aliasPrefix + alias))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	defer closer.Close()
	return string(value), true, nil
}

func (s *pebbleStore) Names(ctx context.Context) ([]string, error) {
	_ = ctx
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	iter, err := s.db.NewIter(iterOptionsForPrefix(eventPrefix))
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	for iter.First(); iter.Valid(); iter.Next() {
		out = append(out, strings.TrimPrefix(string(iter.Key()), eventPrefix))
	}
	return out, iter.Error()
}

func (s *pebbleStore) Reset(ctx context.Context) error {
	_ = ctx
	if s == nil || s.db == nil {
		return ErrClosed
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	for _, p := range []string{eventPrefix, aliasPrefix, aliasesOfPrefix} {
		lower := []byte(p)
		if err := batch.DeleteRange(lower, prefixUpperBound(lower), nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

func iterOptionsForPrefix(prefix string) *pebble.IterOptions {
	lower := []byte(prefix)
	return &pebble.IterOptions{LowerBound: lower, UpperBound: prefixUpperBound(lower)}
}

func prefixUpperBound(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xFF {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}
