package journal

import (
	"context"
	"fmt"
	"sync"

	"eventcat/internal/catalog"
	logx "eventcat/pkg/logx"
)

// Journal writes catalog events to a Store and loads them back.
//
// It remembers the fingerprint of every record it wrote or loaded, so
// flushing an unchanged event is a no-op.
type Journal struct {
	store Store
	log   logx.Logger

	mu  sync.Mutex
	fps map[string]uint64
}

func New(store Store, log logx.Logger) *Journal {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Journal{store: store, log: log, fps: map[string]uint64{}}
}

// Store returns the underlying store.
func (j *Journal) Store() Store { return j.store }

// Flush persists every loaded event of cat, deletes the records of events
// merged away since the last flush, and then collapses the loaded events so
// only their identities stay in memory.
//
// An event whose record is byte-identical to what the store already holds is
// not rewritten.
func (j *Journal) Flush(ctx context.Context, cat *catalog.Catalog) (Stats, error) {
	var st Stats
	var loaded []string
	for _, name := range cat.Names() {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		ev, ok := cat.Event(name)
		if !ok || ev.Collapsed() {
			continue
		}
		wrote, err := j.write(ctx, cat, name)
		if err != nil {
			return st, err
		}
		if wrote {
			st.Written++
		} else {
			st.Skipped++
		}
		loaded = append(loaded, name)
	}

	for _, name := range cat.TakeRemoved() {
		if err := j.store.Delete(ctx, name); err != nil {
			return st, fmt.Errorf("journal: delete %s: %w", name, err)
		}
		j.mu.Lock()
		delete(j.fps, name)
		j.mu.Unlock()
		st.Deleted++
	}

	for _, name := range loaded {
		cat.Collapse(name)
	}
	j.log.Debug("journal flushed",
		logx.Int("written", st.Written),
		logx.Int("skipped", st.Skipped),
		logx.Int("deleted", st.Deleted),
	)
	return st, nil
}

// FlushEvent persists one event and collapses it. It reports whether the
// record was rewritten.
func (j *Journal) FlushEvent(ctx context.Context, cat *catalog.Catalog, name string) (bool, error) {
	canon, ok := cat.Resolve(name)
	if !ok {
		return false, fmt.Errorf("journal: %w: %s", catalog.ErrUnknownEvent, name)
	}
	wrote, err := j.write(ctx, cat, canon)
	if err != nil {
		return false, err
	}
	for _, gone := range cat.TakeRemoved() {
		if err := j.store.Delete(ctx, gone); err != nil {
			return wrote, fmt.Errorf("journal: delete %s: %w", gone, err)
		}
		j.mu.Lock()
		delete(j.fps, gone)
		j.mu.Unlock()
	}
	if canon, ok = cat.Resolve(name); ok {
		cat.Collapse(canon)
	}
	return wrote, nil
}

func (j *Journal) write(ctx context.Context, cat *catalog.Catalog, name string) (bool, error) {
	rec, err := cat.Snapshot(name)
	if err != nil {
		return false, err
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return false, fmt.Errorf("journal: encode %s: %w", rec.Name, err)
	}
	fp := fingerprint(data)

	j.mu.Lock()
	prev, seen := j.fps[rec.Name]
	j.mu.Unlock()
	if seen && prev == fp {
		cat.MarkClean(rec.Name)
		return false, nil
	}

	if err := j.store.Put(ctx, rec.Name, aliasNames(rec)[1:], data); err != nil {
		return false, fmt.Errorf("journal: put %s: %w", rec.Name, err)
	}
	j.mu.Lock()
	j.fps[rec.Name] = fp
	j.mu.Unlock()
	cat.MarkClean(rec.Name)
	return true, nil
}

// Load reads one journaled record.
func (j *Journal) Load(ctx context.Context, name string) (catalog.Record, bool, error) {
	data, ok, err := j.store.Get(ctx, name)
	if err != nil || !ok {
		return catalog.Record{}, ok, err
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return catalog.Record{}, false, fmt.Errorf("journal: decode %s: %w", name, err)
	}
	j.mu.Lock()
	j.fps[name] = fingerprint(data)
	j.mu.Unlock()
	return rec, true, nil
}

// Names returns every journaled canonical name, sorted.
func (j *Journal) Names(ctx context.Context) ([]string, error) { return j.store.Names(ctx) }

// Reset deletes every journaled record.
func (j *Journal) Reset(ctx context.Context) error {
	if err := j.store.Reset(ctx); err != nil {
		return err
	}
	j.mu.Lock()
	j.fps = map[string]uint64{}
	j.mu.Unlock()
	return nil
}

func (j *Journal) Close() error { return j.store.Close() }

// Loader adapts the journal to catalog.Loader. ctx bounds every load made
// through it.
func (j *Journal) Loader(ctx context.Context) catalog.Loader {
	return loader{ctx: ctx, j: j}
}

type loader struct {
	ctx context.Context
	j   *Journal
}

func (l loader) LoadEvent(name string) (catalog.Record, bool, error) {
	return l.j.Load(l.ctx, name)
}

func (l loader) ResolveAlias(alias string) (string, bool, error) {
	return l.j.store.ResolveAlias(l.ctx, alias)
}
