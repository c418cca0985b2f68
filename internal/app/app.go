package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"eventcat/internal/catalog"
	"eventcat/internal/config"
	"eventcat/internal/derive"
	"eventcat/internal/eventbus"
	"eventcat/internal/fetch"
	"eventcat/internal/importers"
	"eventcat/internal/journal"
	"eventcat/internal/task"
	"eventcat/internal/task/registry"
	"eventcat/internal/task/scheduler"
	logx "eventcat/pkg/logx"
)

// Options are the command-line overrides applied on top of the config file.
// Nil pointers keep the file value.
type Options struct {
	ConfigPath string
	Selection  registry.Selection

	DeleteOld *bool
	Travis    *bool
	Archived  *bool
	Refresh   []string
}

type App struct {
	cfgm *config.Manager
	opts Options

	logs *logx.Service
	log  logx.Logger
	bus  eventbus.Bus

	journal *journal.Journal

	// mu guards the fields a config reload swaps. Each import works from
	// the values current when it starts.
	mu      sync.RWMutex
	cfg     *config.Config
	fetcher *fetch.Fetcher
	entries map[string]registry.Entry
}

func New(opts Options) (*App, error) {
	cfgm := config.NewManager(opts.ConfigPath)
	loaded, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	cfg := withOverrides(loaded, opts)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	ok := false
	defer func() {
		if !ok {
			_ = logSvc.Close()
		}
	}()

	entries, err := loadRegistry(cfg)
	if err != nil {
		return nil, err
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := journal.Open(sc, log.With(logx.String("comp", "journal")))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	fetcher, err := newFetcher(cfg, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	ok = true
	return &App{
		cfgm:    cfgm,
		opts:    opts,
		cfg:     cfg,
		logs:    logSvc,
		log:     log.With(logx.String("comp", "app")),
		bus:     eventbus.New(),
		journal: journal.New(store, log),
		fetcher: fetcher,
		entries: entries,
	}, nil
}

// withOverrides returns a copy of cfg with the command-line overrides applied.
// The manager's copy stays as parsed so reloads diff against the file.
func withOverrides(cfg *config.Config, opts Options) *config.Config {
	out := *cfg
	if opts.DeleteOld != nil {
		out.Run.DeleteOld = *opts.DeleteOld
	}
	if opts.Travis != nil {
		out.Run.Travis = *opts.Travis
	}
	if opts.Archived != nil {
		out.Run.Archived = *opts.Archived
	}
	if len(opts.Refresh) > 0 {
		out.Run.Refresh = opts.Refresh
	}
	return &out
}

func newFetcher(cfg *config.Config, log logx.Logger) (*fetch.Fetcher, error) {
	timeout, err := config.ParseDurationOrDefault("fetch.timeout", cfg.Fetch.Timeout, 60*time.Second)
	if err != nil {
		return nil, err
	}
	return fetch.New(fetch.Config{
		CacheDir:   cfg.Paths.Cache,
		RatePerSec: float64(cfg.Fetch.RatePerSec),
		Timeout:    timeout,
		UserAgent:  cfg.Fetch.UserAgent,
	}, log), nil
}

// Config returns the config the next import will use.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// applyConfig makes next, with the command-line overrides on top, the config
// of every later import. Storage is bound to the open journal and the
// schedule to the running timer, so changes there are returned as pending
// until restart.
func (a *App) applyConfig(next *config.Config) (pending []string, err error) {
	cfg := withOverrides(next, a.opts)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	prev, fetcher, entries := a.cfg, a.fetcher, a.entries
	a.mu.RUnlock()

	if cfg.Fetch != prev.Fetch || cfg.Paths.Cache != prev.Paths.Cache {
		if fetcher, err = newFetcher(cfg, a.log); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(cfg.TasksFile) != strings.TrimSpace(prev.TasksFile) {
		if entries, err = loadRegistry(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.Storage != prev.Storage {
		pending = append(pending, "storage")
		cfg.Storage = prev.Storage
	}
	if cfg.Schedule != prev.Schedule {
		pending = append(pending, "schedule")
		cfg.Schedule = prev.Schedule
	}

	a.mu.Lock()
	a.cfg, a.fetcher, a.entries = cfg, fetcher, entries
	a.mu.Unlock()
	if cfg.Logging != prev.Logging {
		a.logs.Apply(mapLogConfig(cfg))
	}
	return pending, nil
}

func loadRegistry(cfg *config.Config) (map[string]registry.Entry, error) {
	if path := strings.TrimSpace(cfg.TasksFile); path != "" {
		return registry.ParseFile(path)
	}
	return importers.DefaultRegistry()
}

// Bus exposes run lifecycle events.
func (a *App) Bus() eventbus.Bus { return a.bus }

// Tasks returns the resolved task order, inactive tasks included.
func (a *App) Tasks() ([]task.Descriptor, error) {
	a.mu.RLock()
	entries := a.entries
	a.mu.RUnlock()
	return registry.Load(entries, a.opts.Selection)
}

// Report summarizes one import run. Events and Stubs are counted by the
// derivation pass, which loads every journaled event.
type Report struct {
	RunID   string
	Events  int
	Stubs   int
	Derive  derive.Summary
	Took    time.Duration
	PeakRSS uint64
}

func (r Report) String() string {
	rss := "unknown"
	if r.PeakRSS > 0 {
		rss = humanize.IBytes(r.PeakRSS)
	}
	return fmt.Sprintf("run %s: %s events, %s stubs in %s, peak memory %s",
		r.RunID, humanize.Comma(int64(r.Events)), humanize.Comma(int64(r.Stubs)),
		r.Took.Round(time.Millisecond), rss)
}

// Import runs the selected tasks in order, then the derivation pass, and
// writes the side tables.
func (a *App) Import(ctx context.Context) (Report, error) {
	start := time.Now()
	rep := Report{RunID: uuid.NewString()}
	log := a.log.With(logx.String("run", rep.RunID))

	a.mu.RLock()
	cfg, fetcher, entries := a.cfg, a.fetcher, a.entries
	a.mu.RUnlock()

	ds, err := registry.Load(entries, a.opts.Selection)
	if err != nil {
		return rep, err
	}
	registry.LogSelection(log, ds)

	if cfg.Run.DeleteOld {
		if err := a.journal.Reset(ctx); err != nil {
			return rep, fmt.Errorf("delete old journal: %w", err)
		}
		log.Info("journal cleared")
	}

	cat := catalog.New()
	cat.SetLoader(a.journal.Loader(ctx))

	sched := scheduler.New(scheduler.Config{
		Table: importers.Table(importers.Deps{
			Source:    fetcher,
			InputDir:  cfg.Paths.Input,
			Journaled: a.journal.Names,
		}),
		Catalog: cat,
		Journal: a.journal,
		Log:     log,
		Bus:     a.bus,
		Handle:  handleFactory(cfg, rep.RunID, log),
	})
	if err := sched.Run(ctx, ds); err != nil {
		return a.finish(ctx, rep, start), err
	}

	every, err := config.ParseDurationOrDefault("derive.progress_every", cfg.Derive.ProgressEvery, 5*time.Second)
	if err != nil {
		return a.finish(ctx, rep, start), err
	}
	pass := derive.New(a.journal, derive.Config{
		MaxFailureRatio: cfg.Derive.MaxFailureRatio,
		ProgressEvery:   every,
		QueryLimit:      cfg.Run.Limit(),
	}, log)
	tables, derr := pass.Run(ctx, cat)
	rep.Derive = pass.Summary()

	var budget *derive.FailureBudgetError
	if derr != nil && !errors.As(derr, &budget) {
		return a.finish(ctx, rep, start), derr
	}
	if err := derive.WriteTables(cfg.Paths.Output, tables); err != nil {
		return a.finish(ctx, rep, start), fmt.Errorf("write tables: %w", err)
	}
	rep = a.finish(ctx, rep, start)
	log.Info("import finished",
		logx.Int("events", rep.Events),
		logx.Int("stubs", rep.Stubs),
		logx.Int("derive_failed", rep.Derive.Failed),
		logx.Duration("took", rep.Took),
	)
	return rep, derr
}

func (a *App) finish(ctx context.Context, rep Report, start time.Time) Report {
	rep.Events, rep.Stubs = rep.Derive.Events, rep.Derive.Stubs
	if rep.Derive.Visited == 0 {
		// The pass did not run; the journal still knows how many events exist.
		if names, err := a.journal.Names(ctx); err == nil {
			rep.Events = len(names)
		}
	}
	rep.Took = time.Since(start)
	rep.PeakRSS = peakRSS()
	return rep
}

func handleFactory(cfg *config.Config, runID string, log logx.Logger) func(d task.Descriptor) *task.Handle {
	return func(d task.Descriptor) *task.Handle {
		return &task.Handle{
			RunID:       runID,
			Task:        d,
			LoadArchive: cfg.Run.LoadArchive(d.Name),
			QueryLimit:  cfg.Run.Limit(),
			CacheDir:    cfg.Paths.Cache,
			InputDir:    cfg.Paths.Input,
			Log:         log.With(logx.String("task", d.Name)),
		}
	}
}

// Close releases the journal and log sinks.
func (a *App) Close() error {
	err := a.journal.Close()
	if cerr := a.logs.Close(); err == nil {
		err = cerr
	}
	return err
}
