package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"eventcat/internal/config"
	"eventcat/internal/runtime/supervisor"
	"eventcat/internal/task/scheduler"
	logx "eventcat/pkg/logx"
)

// Schedule runs Import on the given schedule until ctx is cancelled. An
// empty every falls back to schedule.every from the config. The config file
// is watched and each accepted edit applies from the next import on; storage
// and schedule changes wait for a restart.
func (a *App) Schedule(ctx context.Context, every string) error {
	cfg := a.Config()
	if strings.TrimSpace(every) == "" {
		every = cfg.Schedule.Every
	}
	sup := supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	p, err := scheduler.NewPeriodic(every, cfg.Schedule.Timezone, func(ctx context.Context) error {
		rep, err := a.Import(ctx)
		notify(a.log, "STATUS="+rep.String())
		return err
	}, a.log)
	if err != nil {
		return err
	}

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return cfg.Validate() })

	sup.GoRestart("config.watch", 250*time.Millisecond, 30*time.Second, a.cfgm.Watch)
	sup.Go0("config.reload", a.reloadLoop)
	sup.Go0("eventbus.log", a.busLoop)
	sup.Go("periodic", func(ctx context.Context) error { return p.Start(ctx, true) })

	notify(a.log, daemon.SdNotifyReady)
	a.log.Info("schedule mode started",
		logx.String("schedule", p.Schedule().String()),
		logx.String("next", p.Next(time.Now()).Format(time.RFC3339)),
	)

	<-sup.Context().Done()
	notify(a.log, daemon.SdNotifyStopping)
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = sup.Stop(stopCtx)

	runs, skipped := p.Runs()
	fields := []logx.Field{
		logx.Uint64("runs", runs),
		logx.Uint64("skipped", skipped),
		logx.Uint64("bus_dropped", a.bus.Dropped()),
	}
	if last := p.LastErr(); last != nil {
		fields = append(fields, logx.String("last_err", last.Error()))
	}
	a.log.Info("schedule mode stopped", fields...)
	for _, st := range sup.Snapshot() {
		a.log.Debug("goroutine stats",
			logx.String("name", st.Name),
			logx.Uint64("restarts", st.Restarts),
			logx.Uint64("panics", st.Panics),
			logx.Duration("runtime", st.Runtime),
		)
	}
	return err
}

func notify(log logx.Logger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Debug("sd_notify failed", logx.Err(err))
	}
}

func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			sections, attrs := config.SummarizeConfigChange(last, next)
			last = next
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}
			pending, err := a.applyConfig(next)
			if err != nil {
				a.log.Warn("config reload not applied", logx.Err(err))
				continue
			}
			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config applied", fields...)
			for _, s := range pending {
				a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
			}
		}
	}
}

func (a *App) busLoop(ctx context.Context) {
	events, unsub := a.bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.String("time", e.Time.Format(time.RFC3339)))
			switch e.Type {
			case scheduler.EventTaskStarted:
				if name, ok := e.Data.(string); ok {
					notify(a.log, "STATUS=running "+name)
				}
			case scheduler.EventTaskFinished:
				if tf, ok := e.Data.(scheduler.TaskFinished); ok {
					notify(a.log, fmt.Sprintf("STATUS=finished %s (%d events)", tf.Task, tf.Events))
				}
			}
		}
	}
}
