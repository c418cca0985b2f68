package scheduler

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "eventcat/pkg/logx"
)

// RunFunc performs one complete import.
type RunFunc func(ctx context.Context) error

// Periodic triggers a RunFunc on a schedule. A trigger that fires while the
// previous run is still in flight is skipped.
type Periodic struct {
	sched Schedule
	loc   *time.Location
	run   RunFunc
	log   logx.Logger

	running  atomic.Bool
	inflight sync.WaitGroup // runs started by Start
	runs     atomic.Uint64
	skipped atomic.Uint64

	mu      sync.Mutex
	lastErr error
}

// NewPeriodic parses spec and validates it against the cron parser. tz is an
// IANA zone name; empty means local time.
func NewPeriodic(spec, tz string, run RunFunc, log logx.Logger) (*Periodic, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	sched, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	loc := time.Local
	if tz = strings.TrimSpace(tz); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, err
		}
	}
	p := &Periodic{sched: sched, loc: loc, run: run, log: log.With(logx.String("comp", "periodic"))}
	if _, err := p.cronSchedule(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Periodic) Schedule() Schedule { return p.sched }

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func (p *Periodic) cronSchedule() (cron.Schedule, error) {
	if p.sched.Kind == KindInterval {
		return cron.Every(p.sched.Every), nil
	}
	return cronParser.Parse(p.sched.Cron)
}

// Next returns the first trigger time after t.
func (p *Periodic) Next(t time.Time) time.Time {
	cs, err := p.cronSchedule()
	if err != nil {
		return time.Time{}
	}
	return cs.Next(t.In(p.loc))
}

// Start runs the schedule until ctx is cancelled. With immediate set the
// first run starts right away. Start returns only after every run it started
// has finished.
func (p *Periodic) Start(ctx context.Context, immediate bool) error {
	cs, err := p.cronSchedule()
	if err != nil {
		return err
	}
	trigger := func() {
		defer p.inflight.Done()
		p.Trigger(ctx)
	}
	c := cron.New(cron.WithParser(cronParser), cron.WithLocation(p.loc))
	c.Schedule(cs, cron.FuncJob(func() {
		p.inflight.Add(1)
		trigger()
	}))
	c.Start()
	p.log.Info("periodic import started",
		logx.String("schedule", p.sched.String()),
		logx.String("tz", p.loc.String()),
	)
	if immediate {
		p.inflight.Add(1)
		go trigger()
	}

	<-ctx.Done()
	// Stop returns once no cron job is running, so no Add can race the Wait.
	<-c.Stop().Done()
	if p.running.Load() {
		p.log.Info("waiting for the running import to stop")
	}
	p.inflight.Wait()
	p.log.Info("periodic import stopped",
		logx.Uint64("runs", p.runs.Load()),
		logx.Uint64("skipped", p.skipped.Load()),
	)
	return nil
}

// Trigger starts one run unless another is in flight. It reports whether a
// run happened.
func (p *Periodic) Trigger(ctx context.Context) bool {
	if !p.running.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		p.log.Warn("previous import still running; trigger skipped")
		return false
	}
	defer p.running.Store(false)
	if ctx.Err() != nil {
		return false
	}

	start := time.Now()
	err := p.run(ctx)
	p.runs.Add(1)
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
	if err != nil {
		p.log.Error("periodic import failed", logx.Err(err), logx.Duration("took", time.Since(start)))
	} else {
		p.log.Info("periodic import finished", logx.Duration("took", time.Since(start)))
	}
	return true
}

// LastErr returns the error of the most recent run.
func (p *Periodic) LastErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Runs returns how many runs completed and how many triggers were skipped.
func (p *Periodic) Runs() (runs, skipped uint64) {
	return p.runs.Load(), p.skipped.Load()
}
