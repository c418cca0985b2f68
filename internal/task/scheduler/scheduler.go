package scheduler

import (
	"context"
	"fmt"
	"time"

	"eventcat/internal/catalog"
	"eventcat/internal/eventbus"
	"eventcat/internal/journal"
	"eventcat/internal/task"
	logx "eventcat/pkg/logx"
)

// Bus event types published by Run.
const (
	EventTaskStarted  = "task.started"
	EventTaskFinished = "task.finished"
	EventRunFinished  = "run.finished"
)

// TaskFinished is the Data of an EventTaskFinished event.
type TaskFinished struct {
	Task   string
	Events int
	Stubs  int
	Took   time.Duration
	Flush  journal.Stats
}

type Config struct {
	Table   task.Table
	Catalog *catalog.Catalog
	// Journal is flushed after every task. Nil disables journaling.
	Journal *journal.Journal
	Log     logx.Logger
	Bus     eventbus.Bus
	// Handle builds the handle passed to a task. Nil yields a bare handle.
	Handle func(d task.Descriptor) *task.Handle
}

type Scheduler struct {
	cfg Config
	log logx.Logger
}

func New(cfg Config) *Scheduler {
	log := cfg.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{cfg: cfg, log: log.With(logx.String("comp", "scheduler"))}
}

type resolved struct {
	d  task.Descriptor
	fn task.Func
}

// Run dispatches the active tasks of ds in order. Every active task is
// resolved before the first one runs. Any task error aborts the run.
func (s *Scheduler) Run(ctx context.Context, ds []task.Descriptor) error {
	plan := make([]resolved, 0, len(ds))
	for _, d := range ds {
		if !d.Active {
			continue
		}
		fn, err := s.cfg.Table.Resolve(d)
		if err != nil {
			s.log.Debug("known callables", logx.Strings("refs", s.cfg.Table.Refs()))
			return &ConfigurationError{Task: d.Name, Ref: d.Ref(), Err: err}
		}
		plan = append(plan, resolved{d: d, fn: fn})
	}

	var prev *task.Descriptor
	for i := range plan {
		if err := ctx.Err(); err != nil {
			return err
		}
		d := plan[i].d
		if prev != nil && d.Key().Compare(prev.Key()) < 0 {
			return &OrderingViolation{
				Task:         d.Name,
				Priority:     d.Priority,
				PrevTask:     prev.Name,
				PrevPriority: prev.Priority,
			}
		}
		if err := s.dispatch(ctx, d, plan[i].fn); err != nil {
			return err
		}
		prev = &plan[i].d
	}

	events, stubs := s.cfg.Catalog.Count()
	s.publish(EventRunFinished, map[string]int{"tasks": len(plan), "events": events, "stubs": stubs})
	return nil
}

func (s *Scheduler) dispatch(ctx context.Context, d task.Descriptor, fn task.Func) error {
	log := s.log.With(logx.String("task", d.Name))
	h := &task.Handle{Task: d, Log: log}
	if s.cfg.Handle != nil {
		h = s.cfg.Handle(d)
		h.Task = d
		if h.Log.IsZero() {
			h.Log = log
		}
	}
	if s.cfg.Journal != nil {
		h.CheckpointFunc(func(ctx context.Context) error {
			_, err := s.cfg.Journal.Flush(ctx, s.cfg.Catalog)
			return err
		})
	}

	log.Info("task starting", logx.String("label", d.Label()), logx.Int("priority", d.Priority))
	s.publish(EventTaskStarted, d.Name)
	start := time.Now()

	view := s.cfg.Catalog.Grant(d.Name)
	err := fn(ctx, view, h)
	view.Revoke()
	if err != nil {
		log.Error("task failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		return &TaskError{Task: d.Name, Err: err}
	}

	events, stubs := s.cfg.Catalog.Count()
	log.Info("task finished",
		logx.Int("events", events),
		logx.Int("stubs", stubs),
		logx.Duration("took", time.Since(start)),
	)

	var st journal.Stats
	if s.cfg.Journal != nil {
		if st, err = s.cfg.Journal.Flush(ctx, s.cfg.Catalog); err != nil {
			return fmt.Errorf("journal after %s: %w", d.Name, err)
		}
		events, stubs = s.cfg.Catalog.Count()
		log.Info("journal written",
			logx.Int("events", events),
			logx.Int("stubs", stubs),
			logx.Int("written", st.Written),
			logx.Int("deleted", st.Deleted),
		)
	}
	s.publish(EventTaskFinished, TaskFinished{
		Task:   d.Name,
		Events: events,
		Stubs:  stubs,
		Took:   time.Since(start),
		Flush:  st,
	})
	return nil
}

func (s *Scheduler) publish(typ string, data any) {
	if s.cfg.Bus == nil {
		return
	}
	s.cfg.Bus.Publish(eventbus.Event{Type: typ, Data: data})
}
