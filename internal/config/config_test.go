package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestParseMissingFileYieldsDefaults(t *testing.T) {
	t.Parallel()
	m := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "file" {
		t.Fatalf("Storage.Driver = %q, want file", cfg.Storage.Driver)
	}
	if m.Get() != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestParseFormats(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		body string
	}{
		{
			name: "json",
			file: "cfg.json",
			body: `{"storage":{"driver":"sqlite","path":"./j.db"},"run":{"archived":true,"refresh":["ucb_spectra"]}}`,
		},
		{
			name: "yaml",
			file: "cfg.yaml",
			body: "storage:\n  driver: sqlite\n  path: ./j.db\nrun:\n  archived: true\n  refresh: [ucb_spectra]\n",
		},
		{
			name: "toml",
			file: "cfg.toml",
			body: "[storage]\ndriver = \"sqlite\"\npath = \"./j.db\"\n\n[run]\narchived = true\nrefresh = [\"ucb_spectra\"]\n",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := writeFile(t, t.TempDir(), tt.file, tt.body)
			cfg, err := NewManager(p).Parse()
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "./j.db" {
				t.Fatalf("storage = %+v", cfg.Storage)
			}
			if !cfg.Run.LoadArchive("ucb_photometry") {
				t.Fatal("ucb_photometry should load from archive")
			}
			if cfg.Run.LoadArchive("ucb_spectra") {
				t.Fatal("ucb_spectra is in the refresh list and must re-fetch")
			}
			// Untouched sections keep their defaults.
			if cfg.Paths.Cache != "./cache" {
				t.Fatalf("Paths.Cache = %q, want default", cfg.Paths.Cache)
			}
		})
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "cfg.json", `{"storage":{"driver":"file","path":"x","bogus":1}}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "cfg.json", `{} {}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Storage.Driver = "redis"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown driver error")
	}

	cfg = Default()
	cfg.Derive.MaxFailureRatio = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected ratio error")
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestRunLimit(t *testing.T) {
	t.Parallel()
	if got := (RunConfig{QueryLimit: 5}).Limit(); got != 0 {
		t.Fatalf("Limit without travis = %d, want 0", got)
	}
	if got := (RunConfig{Travis: true, QueryLimit: 5}).Limit(); got != 5 {
		t.Fatalf("Limit = %d, want 5", got)
	}
	if got := (RunConfig{Travis: true}).Limit(); got != defaultQueryLimit {
		t.Fatalf("Limit = %d, want default %d", got, defaultQueryLimit)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	a := Default()
	b := Default()
	b.Logging.Level = "debug"
	b.Run.Refresh = []string{"ucb_photometry"}

	changed, attrs := SummarizeConfigChange(a, b)
	if len(changed) != 2 || changed[0] != "logging" || changed[1] != "run" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}

	changed, _ = SummarizeConfigChange(a, Default())
	if len(changed) != 0 {
		t.Fatalf("identical configs reported changes: %v", changed)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: " 90s ", want: 90 * time.Second},
		{raw: "1m30s", want: 90 * time.Second},
		{raw: "90", want: 90 * time.Second},
		{raw: "-5s", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDurationField("fetch.timeout", tt.raw)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("ParseDurationField(%q) = (%v, %v)", tt.raw, got, err)
		}
	}
	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("default = (%v, %v)", d, err)
	}
}

func TestReload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := writeFile(t, t.TempDir(), "config.json", `{"run":{"archived":false}}`)
	m := NewManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	if ok, err := m.Reload(ctx); ok || err != nil {
		t.Fatalf("unchanged file: Reload = (%v, %v)", ok, err)
	}

	writeFile(t, filepath.Dir(p), "config.json", `{"run":{"archived":true}}`)
	if ok, err := m.Reload(ctx); !ok || err != nil {
		t.Fatalf("changed file: Reload = (%v, %v)", ok, err)
	}
	if got := <-sub; !got.Run.Archived || m.Get() != got {
		t.Fatalf("published = %+v", got.Run)
	}

	writeFile(t, filepath.Dir(p), "config.json", `{"run":{"archived":`)
	if ok, err := m.Reload(ctx); ok || err == nil {
		t.Fatalf("broken file: Reload = (%v, %v)", ok, err)
	}
	if !m.Get().Run.Archived {
		t.Fatal("broken file replaced the active config")
	}

	veto := errors.New("veto")
	m.SetValidator(func(context.Context, *Config) error { return veto })
	writeFile(t, filepath.Dir(p), "config.json", `{"run":{"travis":true}}`)
	if _, err := m.Reload(ctx); !errors.Is(err, veto) {
		t.Fatalf("vetoed Reload err = %v", err)
	}
	if m.Get().Run.Travis {
		t.Fatal("vetoed config was committed")
	}

	if err := os.Remove(p); err != nil {
		t.Fatal(err)
	}
	if ok, err := m.Reload(ctx); ok || err != nil {
		t.Fatalf("missing file: Reload = (%v, %v)", ok, err)
	}
	if !m.Get().Run.Archived {
		t.Fatal("missing file replaced the active config")
	}
}

func TestWatchPublishesEdits(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", `{"logging":{"level":"info"}}`)
	m := NewManager(p)
	m.settle = 10 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	// The watcher registers asynchronously; keep rewriting until it notices.
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(5 * time.Second)
	for published := false; !published; {
		select {
		case got := <-sub:
			if got.Logging.Level != "debug" {
				t.Fatalf("published level = %q", got.Logging.Level)
			}
			published = true
		case <-tick.C:
			writeFile(t, dir, "config.json", `{"logging":{"level":"debug"}}`)
		case <-deadline:
			t.Fatal("no config published after editing the file")
		}
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatalf("active level = %q", m.Get().Logging.Level)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch = %v", err)
	}
}
