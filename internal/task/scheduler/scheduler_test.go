package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"

	"eventcat/internal/catalog"
	"eventcat/internal/eventbus"
	"eventcat/internal/journal"
	"eventcat/internal/task"
	logx "eventcat/pkg/logx"
)

type harness struct {
	cat   *catalog.Catalog
	j     *journal.Journal
	table task.Table
	ran   []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := journal.Open(journal.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	h := &harness{cat: catalog.New(), j: journal.New(st, logx.Nop()), table: task.Table{}}
	h.cat.SetLoader(h.j.Loader(context.Background()))
	return h
}

// add registers a task that records its name and adds one event.
func (h *harness) add(name string) {
	h.table.Register("test", name, func(ctx context.Context, cat *catalog.Catalog, _ *task.Handle) error {
		h.ran = append(h.ran, name)
		ev, err := cat.AddEvent("SN-" + name)
		if err != nil {
			return err
		}
		return cat.AddQuantity(ev, "claimedtype", "Ia", nil)
	})
}

func desc(name string, prio int) task.Descriptor {
	return task.Descriptor{Name: name, Module: "test", Function: name, Priority: prio, Active: true}
}

func (h *harness) scheduler(bus eventbus.Bus) *Scheduler {
	return New(Config{Table: h.table, Catalog: h.cat, Journal: h.j, Log: logx.Nop(), Bus: bus})
}

func TestRunOrderAcrossPartitions(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	for _, n := range []string{"A", "B", "C"} {
		h.add(n)
	}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	err := h.scheduler(bus).Run(context.Background(), []task.Descriptor{desc("A", 0), desc("B", 5), desc("C", -1)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.Join(h.ran, ","); got != "A,B,C" {
		t.Fatalf("ran = %s, want A,B,C", got)
	}
	events, stubs := h.cat.Count()
	if events != 3 || stubs != 3 {
		t.Fatalf("Count = (%d,%d), want every event journaled and collapsed", events, stubs)
	}
	names, _ := h.j.Names(context.Background())
	if len(names) != 3 {
		t.Fatalf("journaled = %v", names)
	}

	finished := 0
	for len(ch) > 0 {
		if ev := <-ch; ev.Type == EventTaskFinished {
			finished++
		}
	}
	if finished != 3 {
		t.Fatalf("task.finished events = %d", finished)
	}
}

func TestRunSkipsInactive(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.add("A")
	h.add("C")
	a := desc("A", 0)
	a.Active = false
	// B has no callable; it is inactive so it never needs one.
	b := desc("B", 5)
	b.Active = false
	if err := h.scheduler(nil).Run(context.Background(), []task.Descriptor{a, b, desc("C", -1)}); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(h.ran, ","); got != "C" {
		t.Fatalf("ran = %s, want C", got)
	}
}

func TestRunOrderingViolationBeforeDispatch(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	for _, n := range []string{"A", "B", "C"} {
		h.add(n)
	}
	tests := []struct {
		name string
		ds   []task.Descriptor
		ran  string
		bad  string
	}{
		{name: "descending", ds: []task.Descriptor{desc("A", 0), desc("B", 5), desc("C", 3)}, ran: "A,B", bad: "C"},
		{name: "negative first", ds: []task.Descriptor{desc("C", -1), desc("A", 0)}, ran: "C", bad: "A"},
		{name: "negative descending", ds: []task.Descriptor{desc("A", -1), desc("B", -5)}, ran: "A", bad: "B"},
	}
	for _, tt := range tests {
		h.ran = nil
		err := h.scheduler(nil).Run(context.Background(), tt.ds)
		var ov *OrderingViolation
		if !errors.As(err, &ov) {
			t.Fatalf("%s: err = %v, want *OrderingViolation", tt.name, err)
		}
		if ov.Task != tt.bad {
			t.Fatalf("%s: violation names %s, want %s", tt.name, ov.Task, tt.bad)
		}
		if got := strings.Join(h.ran, ","); got != tt.ran {
			t.Fatalf("%s: ran = %s, want %s", tt.name, got, tt.ran)
		}
	}
}

func TestRunResolvesEverythingFirst(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.add("A")
	err := h.scheduler(nil).Run(context.Background(), []task.Descriptor{desc("A", 0), desc("missing", 1)})
	var ce *ConfigurationError
	if !errors.As(err, &ce) || ce.Task != "missing" {
		t.Fatalf("err = %v, want *ConfigurationError for missing", err)
	}
	if len(h.ran) != 0 {
		t.Fatalf("ran = %v before resolution failed", h.ran)
	}
}

func TestRunTaskErrorAborts(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	boom := errors.New("fetch failed")
	h.table.Register("test", "bad", func(context.Context, *catalog.Catalog, *task.Handle) error { return boom })
	h.add("after")
	err := h.scheduler(nil).Run(context.Background(), []task.Descriptor{desc("bad", 0), desc("after", 1)})
	var te *TaskError
	if !errors.As(err, &te) || te.Task != "bad" || !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if len(h.ran) != 0 {
		t.Fatalf("ran = %v after failure", h.ran)
	}
}

func TestRetainedCatalogIsRevoked(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	var kept *catalog.Catalog
	h.table.Register("test", "leak", func(_ context.Context, cat *catalog.Catalog, _ *task.Handle) error {
		kept = cat
		return nil
	})
	h.table.Register("test", "later", func(context.Context, *catalog.Catalog, *task.Handle) error {
		_, err := kept.AddEvent("SN-late")
		if !errors.Is(err, catalog.ErrRevoked) {
			t.Errorf("retained catalog mutation err = %v, want ErrRevoked", err)
		}
		return nil
	})
	if err := h.scheduler(nil).Run(context.Background(), []task.Descriptor{desc("leak", 0), desc("later", 1)}); err != nil {
		t.Fatal(err)
	}
}

func TestCheckpointFlushesMidTask(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.table.Register("test", "ckpt", func(ctx context.Context, cat *catalog.Catalog, th *task.Handle) error {
		if _, err := cat.AddEvent("SN2011fe"); err != nil {
			return err
		}
		if err := th.Checkpoint(ctx); err != nil {
			return err
		}
		names, _ := h.j.Names(ctx)
		if len(names) != 1 {
			t.Errorf("journaled mid-task = %v", names)
		}
		return nil
	})
	if err := h.scheduler(nil).Run(context.Background(), []task.Descriptor{desc("ckpt", 0)}); err != nil {
		t.Fatal(err)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.add("A")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.scheduler(nil).Run(ctx, []task.Descriptor{desc("A", 0)}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
