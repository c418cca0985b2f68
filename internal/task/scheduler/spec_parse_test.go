package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "eventcat/pkg/logx"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     ScheduleKind
		source   string
		duration time.Duration
	}{
		{name: "cron", raw: "0 3 * * *", kind: KindCron, source: "cron"},
		{name: "descriptor", raw: "@daily", kind: KindCron, source: "cron"},
		{name: "prefixed cron", raw: "CRON:*/15 * * * *", kind: KindCron, source: "cron"},
		{name: "duration", raw: "6h", kind: KindInterval, source: "duration", duration: 6 * time.Hour},
		{name: "every prefix", raw: "every:90m", kind: KindInterval, source: "duration", duration: 90 * time.Minute},
		{name: "hhmm", raw: "06:30", kind: KindInterval, source: "hhmm", duration: 6*time.Hour + 30*time.Minute},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q): %v", tt.raw, err)
			}
			if got.Kind != tt.kind || got.Source != tt.source {
				t.Fatalf("got %+v", got)
			}
			if tt.kind == KindInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "soon", "00:00", "01:75", "-5m", "cron:"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q) should fail", raw)
		}
	}
}

func TestNewPeriodicRejectsBadCron(t *testing.T) {
	t.Parallel()
	if _, err := NewPeriodic("cron:not a cron", "", func(context.Context) error { return nil }, logx.Nop()); err == nil {
		t.Fatal("invalid cron should fail")
	}
	if _, err := NewPeriodic("6h", "Nowhere/Void", func(context.Context) error { return nil }, logx.Nop()); err == nil {
		t.Fatal("invalid timezone should fail")
	}
}

func TestPeriodicNext(t *testing.T) {
	t.Parallel()
	p, err := NewPeriodic("0 3 * * *", "UTC", func(context.Context) error { return nil }, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	from := time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC)
	if got, want := p.Next(from), time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestPeriodicSkipsOverlappingTrigger(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	started := make(chan struct{})
	p, err := NewPeriodic("1h", "", func(context.Context) error {
		close(started)
		<-release
		return nil
	}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Trigger(context.Background())
	}()
	<-started
	if p.Trigger(context.Background()) {
		t.Fatal("overlapping trigger should be skipped")
	}
	close(release)
	wg.Wait()

	runs, skipped := p.Runs()
	if runs != 1 || skipped != 1 {
		t.Fatalf("Runs = (%d,%d), want (1,1)", runs, skipped)
	}
}

func TestPeriodicStartWaitsForRunningImport(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	release := make(chan struct{})
	p, err := NewPeriodic("1h", "", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		<-release
		return ctx.Err()
	}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Start(ctx, true) }()
	<-started
	cancel()

	select {
	case err := <-done:
		t.Fatalf("Start returned %v while the import was still running", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after the import finished")
	}
	if runs, _ := p.Runs(); runs != 1 {
		t.Fatalf("runs = %d, want the in-flight import counted", runs)
	}
	if !errors.Is(p.LastErr(), context.Canceled) {
		t.Fatalf("LastErr = %v", p.LastErr())
	}
}
