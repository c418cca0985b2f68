package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	logx "eventcat/pkg/logx"
)

func TestCachedDownloadsAndStores(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("User-Agent") != "eventcat-test" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	f := New(Config{CacheDir: t.TempDir(), UserAgent: "eventcat-test"}, logx.Nop())
	ctx := context.Background()

	res, err := f.Cached(ctx, srv.URL, "UCB/allpub.json", false)
	if err != nil || string(res.Data) != "payload" || res.FromCache || res.Unchanged {
		t.Fatalf("first = %+v, %v", res, err)
	}
	if b, _ := os.ReadFile(f.CachePath("UCB/allpub.json")); string(b) != "payload" {
		t.Fatalf("cache file = %q", b)
	}

	res, err = f.Cached(ctx, srv.URL, "UCB/allpub.json", false)
	if err != nil || !res.Unchanged {
		t.Fatalf("second = %+v, %v", res, err)
	}

	res, err = f.Cached(ctx, srv.URL, "UCB/allpub.json", true)
	if err != nil || !res.FromCache {
		t.Fatalf("archived = %+v, %v", res, err)
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("hits = %d, want archive mode to skip the network", got)
	}
}

func TestCachedFallsBackOnFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New(Config{CacheDir: t.TempDir()}, logx.Nop())
	ctx := context.Background()

	_, err := f.Cached(ctx, srv.URL, "x.txt", false)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusServiceUnavailable {
		t.Fatalf("err = %v, want *StatusError 503", err)
	}

	if err := os.WriteFile(f.CachePath("x.txt"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := f.Cached(ctx, srv.URL, "x.txt", false)
	if err != nil || string(res.Data) != "old" || !res.FromCache {
		t.Fatalf("fallback = %+v, %v", res, err)
	}
}
