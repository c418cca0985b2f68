package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"eventcat/internal/catalog"
	logx "eventcat/pkg/logx"
)

func openAll(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for _, cfg := range []Config{
		{Driver: "file", Path: filepath.Join(dir, "file")},
		{Driver: "sqlite", Path: filepath.Join(dir, "sqlite", "journal.db")},
		{Driver: "pebble", Path: filepath.Join(dir, "pebble")},
	} {
		st, err := Open(cfg, logx.Nop())
		if err != nil {
			t.Fatalf("open %s: %v", cfg.Driver, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		out[cfg.Driver] = st
	}
	return out
}

func seed(t *testing.T, c *catalog.Catalog, name, host string) {
	t.Helper()
	canon, err := c.AddEvent(name)
	if err != nil {
		t.Fatal(err)
	}
	src, err := c.AddSource(canon, catalog.SourceSpec{Name: "Test Survey", Bibcode: "2012MNRAS.425.1789S"})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.AddQuantity(canon, "host", host, []string{src}); err != nil {
		t.Fatal(err)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for driver, st := range openAll(t) {
		if err := st.Put(ctx, "SN2011fe", []string{"PTF11kly"}, []byte(`{"name":"SN2011fe"}`)); err != nil {
			t.Fatalf("%s put: %v", driver, err)
		}
		b, ok, err := st.Get(ctx, "SN2011fe")
		if err != nil || !ok || string(b) != `{"name":"SN2011fe"}` {
			t.Fatalf("%s get = (%q,%v,%v)", driver, b, ok, err)
		}
		for _, alias := range []string{"SN2011fe", "PTF11kly"} {
			name, ok, err := st.ResolveAlias(ctx, alias)
			if err != nil || !ok || name != "SN2011fe" {
				t.Fatalf("%s resolve %s = (%q,%v,%v)", driver, alias, name, ok, err)
			}
		}
		if _, ok, _ := st.ResolveAlias(ctx, "SN1987A"); ok {
			t.Fatalf("%s: unknown alias resolved", driver)
		}

		// Rewriting without the alias drops it.
		if err := st.Put(ctx, "SN2011fe", nil, []byte(`{}`)); err != nil {
			t.Fatal(err)
		}
		if _, ok, _ := st.ResolveAlias(ctx, "PTF11kly"); ok {
			t.Fatalf("%s: stale alias survived rewrite", driver)
		}

		if err := st.Put(ctx, "AT2017gfo", nil, []byte(`{}`)); err != nil {
			t.Fatal(err)
		}
		names, err := st.Names(ctx)
		if err != nil || len(names) != 2 || names[0] != "AT2017gfo" || names[1] != "SN2011fe" {
			t.Fatalf("%s names = %v, %v", driver, names, err)
		}

		if err := st.Delete(ctx, "SN2011fe"); err != nil {
			t.Fatal(err)
		}
		if _, ok, _ := st.Get(ctx, "SN2011fe"); ok {
			t.Fatalf("%s: deleted record still readable", driver)
		}
		if _, ok, _ := st.ResolveAlias(ctx, "SN2011fe"); ok {
			t.Fatalf("%s: deleted name still resolves", driver)
		}

		if err := st.Reset(ctx); err != nil {
			t.Fatal(err)
		}
		if names, _ := st.Names(ctx); len(names) != 0 {
			t.Fatalf("%s: names after reset = %v", driver, names)
		}
	}
}

func TestFileStoreReopenKeepsAliases(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := Config{Driver: "file", Path: t.TempDir()}
	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Put(ctx, "SN 2011fe", []string{"PTF11kly"}, []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	_ = st.Close()

	st, err = Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	name, ok, err := st.ResolveAlias(ctx, "PTF11kly")
	if err != nil || !ok || name != "SN 2011fe" {
		t.Fatalf("resolve after reopen = (%q,%v,%v)", name, ok, err)
	}
	names, _ := st.Names(ctx)
	if len(names) != 1 || names[0] != "SN 2011fe" {
		t.Fatalf("names after reopen = %v", names)
	}
}

func TestFlushCollapsesAndSkipsUnchanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for driver, st := range openAll(t) {
		j := New(st, logx.Nop())
		c := catalog.New()
		c.SetLoader(j.Loader(ctx))
		seed(t, c, "SN2011fe", "M101")
		seed(t, c, "SN1987A", "LMC")

		stats, err := j.Flush(ctx, c)
		if err != nil {
			t.Fatalf("%s flush: %v", driver, err)
		}
		if stats.Written != 2 || stats.Skipped != 0 {
			t.Fatalf("%s first flush = %+v", driver, stats)
		}
		events, stubs := c.Count()
		if events != 2 || stubs != 2 {
			t.Fatalf("%s count after flush = (%d,%d), want (2,2)", driver, events, stubs)
		}

		// Touching an event rehydrates it without changing it.
		if _, err := c.AddEvent("SN2011fe"); err != nil {
			t.Fatal(err)
		}
		stats, err = j.Flush(ctx, c)
		if err != nil {
			t.Fatal(err)
		}
		if stats.Written != 0 || stats.Skipped != 1 {
			t.Fatalf("%s second flush = %+v, want one skip", driver, stats)
		}

		seed(t, c, "SN2011fe", "NGC 5457")
		stats, err = j.Flush(ctx, c)
		if err != nil {
			t.Fatal(err)
		}
		if stats.Written != 1 {
			t.Fatalf("%s third flush = %+v, want one write", driver, stats)
		}
		rec, ok, err := j.Load(ctx, "SN2011fe")
		if err != nil || !ok {
			t.Fatalf("%s load: %v %v", driver, ok, err)
		}
		if got := len(rec.Quantities["host"]); got != 2 {
			t.Fatalf("%s host values = %d, want 2", driver, got)
		}
	}
}

func TestFlushDeletesMergedAway(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for driver, st := range openAll(t) {
		j := New(st, logx.Nop())
		c := catalog.New()
		c.SetLoader(j.Loader(ctx))
		seed(t, c, "SN2011fe", "M101")
		seed(t, c, "PTF11kly", "M101")
		if _, err := j.Flush(ctx, c); err != nil {
			t.Fatal(err)
		}

		winner, err := c.Merge("SN2011fe", "PTF11kly")
		if err != nil {
			t.Fatal(err)
		}
		if winner != "SN2011fe" {
			t.Fatalf("%s winner = %q", driver, winner)
		}
		stats, err := j.Flush(ctx, c)
		if err != nil {
			t.Fatal(err)
		}
		if stats.Deleted != 1 {
			t.Fatalf("%s stats = %+v, want one delete", driver, stats)
		}
		if _, ok, _ := st.Get(ctx, "PTF11kly"); ok {
			t.Fatalf("%s: merged-away record survived", driver)
		}
		name, ok, err := st.ResolveAlias(ctx, "PTF11kly")
		if err != nil || !ok || name != "SN2011fe" {
			t.Fatalf("%s resolve merged alias = (%q,%v,%v)", driver, name, ok, err)
		}

		// A fresh catalog finds the event through its old name.
		fresh := catalog.New()
		fresh.SetLoader(j.Loader(ctx))
		got, err := fresh.AddEvent("PTF11kly")
		if err != nil || got != "SN2011fe" {
			t.Fatalf("%s restore by alias = (%q,%v)", driver, got, err)
		}
	}
}

func TestFlushReloadRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for driver, st := range openAll(t) {
		j := New(st, logx.Nop())
		c := catalog.New()
		c.SetLoader(j.Loader(ctx))
		canon, err := c.AddEvent("SN2011fe")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := c.AddAlias(canon, "PTF11kly", nil); err != nil {
			t.Fatal(err)
		}
		s1, err := c.AddSource(canon, catalog.SourceSpec{Name: "Nugent et al.", Bibcode: "2011Natur.480..344N"})
		if err != nil {
			t.Fatal(err)
		}
		s2, err := c.AddSource(canon, catalog.SourceSpec{Name: "CfA Supernova Archive", URL: "https://www.cfa.harvard.edu/supernova/"})
		if err != nil {
			t.Fatal(err)
		}
		for _, src := range []string{s1, s2} {
			if err := c.AddQuantity(canon, "host", "M101", []string{src}); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := j.Flush(ctx, c); err != nil {
			t.Fatal(err)
		}

		fresh := catalog.New()
		fresh.SetLoader(j.Loader(ctx))
		got, err := fresh.AddEvent("PTF11kly")
		if err != nil || got != "SN2011fe" {
			t.Fatalf("%s restore = (%q,%v)", driver, got, err)
		}
		ev, ok := fresh.Event(got)
		if !ok {
			t.Fatalf("%s: restored event missing", driver)
		}
		if aliases := ev.Aliases(); len(aliases) != 2 || aliases[0] != "SN2011fe" || aliases[1] != "PTF11kly" {
			t.Fatalf("%s aliases = %v", driver, aliases)
		}
		srcs := ev.Sources()
		if len(srcs) != 2 || srcs[0].Bibcode != "2011Natur.480..344N" || srcs[1].Name != "CfA Supernova Archive" || srcs[1].URL == "" {
			t.Fatalf("%s sources = %+v", driver, srcs)
		}
		host := ev.Quantity("host")
		if len(host) != 1 || host[0].Value != "M101" {
			t.Fatalf("%s host = %+v", driver, host)
		}
		if ids := host[0].Sources; len(ids) != 2 || ids[0] != s1 || ids[1] != s2 {
			t.Fatalf("%s host sources = %v, want [%s %s]", driver, ids, s1, s2)
		}
	}
}

func TestJournaledNameSurvivesLaterAlias(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for driver, st := range openAll(t) {
		j := New(st, logx.Nop())
		first := catalog.New()
		first.SetLoader(j.Loader(ctx))
		seed(t, first, "SN2011fe", "M101")
		if _, err := first.AddAlias("SN2011fe", "PTF11kly", nil); err != nil {
			t.Fatal(err)
		}
		if _, err := j.Flush(ctx, first); err != nil {
			t.Fatal(err)
		}

		// A later run creates Foo before learning it is PTF11kly.
		next := catalog.New()
		next.SetLoader(j.Loader(ctx))
		foo, err := next.AddEvent("Foo")
		if err != nil {
			t.Fatal(err)
		}
		got, err := next.AddAlias(foo, "PTF11kly", nil)
		if err != nil || got != "SN2011fe" {
			t.Fatalf("%s AddAlias = (%q,%v)", driver, got, err)
		}
		if _, err := j.Flush(ctx, next); err != nil {
			t.Fatal(err)
		}
		names, err := j.Names(ctx)
		if err != nil || len(names) != 1 || names[0] != "SN2011fe" {
			t.Fatalf("%s names = %v, %v", driver, names, err)
		}
		name, ok, err := st.ResolveAlias(ctx, "Foo")
		if err != nil || !ok || name != "SN2011fe" {
			t.Fatalf("%s resolve Foo = (%q,%v,%v)", driver, name, ok, err)
		}
	}
}

func TestFileStoreRebuildsCorruptAliasIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	cfg := Config{Driver: "file", Path: dir}
	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	data, err := encodeRecord(catalog.Record{
		Name:    "SN 2011fe",
		Aliases: []catalog.QuantityValue{{Value: "SN 2011fe"}, {Value: "PTF11kly"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Put(ctx, "SN 2011fe", []string{"PTF11kly"}, data); err != nil {
		t.Fatal(err)
	}
	_ = st.Close()

	fst := st.(*fileStore)
	if err := os.WriteFile(fst.aliasSnapshotPath, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(fst.aliasJournalPath, []byte("{\"alias\":\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	st, err = Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	name, ok, err := st.ResolveAlias(ctx, "PTF11kly")
	if err != nil || !ok || name != "SN 2011fe" {
		t.Fatalf("resolve after rebuild = (%q,%v,%v)", name, ok, err)
	}
}

func TestFlushEvent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := Open(Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	j := New(st, logx.Nop())
	c := catalog.New()
	c.SetLoader(j.Loader(ctx))
	seed(t, c, "SN2011fe", "M101")

	wrote, err := j.FlushEvent(ctx, c, "SN2011fe")
	if err != nil || !wrote {
		t.Fatalf("FlushEvent = (%v,%v)", wrote, err)
	}
	ev, _ := c.Event("SN2011fe")
	if !ev.Collapsed() {
		t.Fatal("event should be collapsed after FlushEvent")
	}
	if _, err := j.FlushEvent(ctx, c, "SN1987A"); err == nil {
		t.Fatal("FlushEvent on unknown event should fail")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "redis", Path: t.TempDir()}, logx.Nop()); err == nil {
		t.Fatal("unknown driver should fail")
	}
}
