package general

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"eventcat/internal/catalog"
	"eventcat/internal/task"
	logx "eventcat/pkg/logx"
)

func TestDuplicateKey(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"SN2011fe":    "2011fe",
		"SN 2011fe":   "2011fe",
		"sn_2011FE":   "2011fe",
		"AT2017gfo":   "2017gfo",
		"ASASSN-14lp": "asassn14lp",
		"SNLS-04D3":   "snls04d3",
	}
	for in, want := range tests {
		if got := DuplicateKey(in); got != want {
			t.Fatalf("DuplicateKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMergeDuplicates(t *testing.T) {
	t.Parallel()
	cat := catalog.New()
	for _, n := range []string{"SN2011fe", "SN1987A", "SN 2011fe"} {
		canon, err := cat.AddEvent(n)
		if err != nil {
			t.Fatal(err)
		}
		if err := cat.AddQuantity(canon, "host", "host of "+n, nil); err != nil {
			t.Fatal(err)
		}
	}
	lister := func(context.Context) ([]string, error) { return []string{"SN2011fe"}, nil }
	h := &task.Handle{Log: logx.Nop()}
	if err := MergeDuplicates(lister)(context.Background(), cat, h); err != nil {
		t.Fatal(err)
	}

	if got, _ := cat.Resolve("SN 2011fe"); got != "SN2011fe" {
		t.Fatalf("SN 2011fe resolves to %q", got)
	}
	ev, _ := cat.Event("SN2011fe")
	if n := len(ev.Quantity("host")); n != 2 {
		t.Fatalf("host values = %d, want both merged", n)
	}
	if events, _ := cat.Count(); events != 2 {
		t.Fatalf("events = %d, want 2", events)
	}
}

func TestInternal(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	files := map[string]string{
		"SN2011fe.json": `{"aliases": [{"value": "PTF11kly"}], "sources": [{"id": "1", "name": "Curated"}],
			"quantities": {"host": [{"value": "M101", "sources": ["1"]}]}}`,
		"b.json":    `{"name": "SN1987A", "quantities": {"claimedtype": [{"value": "II"}]}}`,
		"notes.txt": "ignored",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	cat := catalog.New()
	if err := Internal(dir)(context.Background(), cat, &task.Handle{Log: logx.Nop()}); err != nil {
		t.Fatal(err)
	}
	if got, ok := cat.Resolve("PTF11kly"); !ok || got != "SN2011fe" {
		t.Fatalf("PTF11kly resolves to %q", got)
	}
	ev, _ := cat.Event("SN1987A")
	if ev == nil || len(ev.Quantity("claimedtype")) != 1 {
		t.Fatal("SN1987A not imported")
	}
	// Missing directory is not an error.
	if err := Internal(filepath.Join(dir, "nope"))(context.Background(), catalog.New(), &task.Handle{Log: logx.Nop()}); err != nil {
		t.Fatal(err)
	}
}
