// Package fetch downloads importer inputs through a per-process rate limit
// and keeps a copy of every body on disk so archived runs can skip the
// network.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
	"golang.org/x/time/rate"

	logx "eventcat/pkg/logx"
)

const maxBody = 256 << 20

type Config struct {
	CacheDir   string
	RatePerSec float64 // 0 disables limiting
	Timeout    time.Duration
	UserAgent  string
}

// Result is one fetched body.
type Result struct {
	Data []byte
	// FromCache is set when no network request succeeded.
	FromCache bool
	// Unchanged is set when a fresh download equals the cached copy.
	Unchanged bool
}

type Fetcher struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Fetcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 4,
			},
		},
		limiter: lim,
		log:     log.With(logx.String("comp", "fetch")),
	}
}

// CachePath returns where rel is stored under the cache directory.
func (f *Fetcher) CachePath(rel string) string {
	return filepath.Join(f.cfg.CacheDir, filepath.FromSlash(rel))
}

// Cached returns the body of url, stored at rel under the cache directory.
//
// With archive set and a cached copy present, the copy is returned without
// any network I/O. A failed download falls back to the cached copy when one
// exists.
func (f *Fetcher) Cached(ctx context.Context, url, rel string, archive bool) (Result, error) {
	path := f.CachePath(rel)
	cached, cacheErr := os.ReadFile(path)
	haveCache := cacheErr == nil
	if haveCache && archive {
		return Result{Data: cached, FromCache: true}, nil
	}

	body, err := f.Get(ctx, url)
	if err != nil {
		if haveCache && ctx.Err() == nil {
			f.log.Warn("download failed; using cached copy",
				logx.String("url", url), logx.String("path", path), logx.Err(err))
			return Result{Data: cached, FromCache: true}, nil
		}
		return Result{}, err
	}
	if haveCache && xxh3.Hash(body) == xxh3.Hash(cached) {
		return Result{Data: body, Unchanged: true}, nil
	}
	if err := writeFile(path, body); err != nil {
		return Result{}, fmt.Errorf("fetch: cache %s: %w", path, err)
	}
	return Result{Data: body}, nil
}

// Get downloads url, waiting for the rate limiter first.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if ua := strings.TrimSpace(f.cfg.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if len(body) > maxBody {
		return nil, fmt.Errorf("fetch %s: body exceeds %d bytes", url, maxBody)
	}
	f.log.Debug("downloaded",
		logx.String("url", url),
		logx.Int("bytes", len(body)),
		logx.Duration("took", time.Since(start)),
	)
	return body, nil
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Code)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
