package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zeebo/xxh3"

	logx "eventcat/pkg/logx"
)

const defaultSettle = 250 * time.Millisecond

// Manager holds the active config. In schedule mode it follows the file on
// disk and publishes every accepted change to its subscribers.
type Manager struct {
	path string
	// settle is how long the file must stay quiet before it is re-read.
	settle time.Duration

	mu  sync.RWMutex
	cfg *Config
	sum uint64 // xxh3 of the file bytes behind cfg; 0 for defaults

	subsMu sync.Mutex
	subs   []chan *Config

	log      logx.Logger
	validate func(ctx context.Context, cfg *Config) error
}

func NewManager(path string) *Manager {
	return &Manager{path: path, settle: defaultSettle, log: logx.Nop()}
}

func (m *Manager) Path() string { return m.path }

func (m *Manager) SetLogger(log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	m.log = log
}

// SetValidator installs a hook that can veto a reloaded config before it is
// committed.
func (m *Manager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validate = fn
}

// Parse reads and strictly decodes the config file on top of Default().
// A missing file yields the defaults.
func (m *Manager) Parse() (*Config, error) {
	cfg, _, err := m.read()
	return cfg, err
}

func (m *Manager) read() (*Config, uint64, error) {
	cfg := Default()
	if strings.TrimSpace(m.path) == "" {
		return cfg, 0, nil
	}
	b, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	if err := DecodeStrict(m.path, b, cfg); err != nil {
		return nil, 0, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, 0, err
	}
	return cfg, xxh3.Hash(b), nil
}

// Load parses the file and makes the result the active config.
func (m *Manager) Load() (*Config, error) {
	cfg, sum, err := m.read()
	if err != nil {
		return nil, err
	}
	m.commit(cfg, sum)
	return cfg, nil
}

func (m *Manager) commit(cfg *Config, sum uint64) {
	m.mu.Lock()
	m.cfg, m.sum = cfg, sum
	m.mu.Unlock()
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Reload re-reads the file and, when its bytes changed and the validator
// accepts the result, commits and publishes it. A file that disappeared
// keeps the active config. It reports whether a new config was published.
func (m *Manager) Reload(ctx context.Context) (bool, error) {
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		m.log.Debug("config file missing; keeping active config", logx.String("path", m.path))
		return false, nil
	}
	cfg, sum, err := m.read()
	if err != nil {
		return false, err
	}
	m.mu.RLock()
	same := sum == m.sum
	m.mu.RUnlock()
	if same {
		return false, nil
	}
	if m.validate != nil {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := m.validate(vctx, cfg)
		cancel()
		if err != nil {
			return false, fmt.Errorf("config rejected: %w", err)
		}
	}
	m.commit(cfg, sum)
	m.publish(cfg)
	m.log.Debug("config published", logx.String("path", m.path), logx.String("sum", fmt.Sprintf("%016x", sum)))
	return true, nil
}

// Subscribe returns a channel receiving every published config. Only the
// newest configs are kept when the reader falls behind.
func (m *Manager) Subscribe(buffer int) chan *Config {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s != ch {
			continue
		}
		m.subs = append(m.subs[:i], m.subs[i+1:]...)
		close(ch)
		return
	}
}

func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		for {
			select {
			case ch <- cfg:
			default:
				// Full: evict the oldest pending config and retry.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Watch reloads the config once the file has been quiet for the settle
// period after a change. It returns nil when ctx ends and an error when the
// watcher breaks; callers restart it.
func (m *Manager) Watch(ctx context.Context) error {
	dir, file := filepath.Split(m.path)
	if dir == "" {
		dir = "."
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config watch %s: %w", dir, err)
	}
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	arm := func() {
		if timer == nil {
			timer = time.NewTimer(m.settle)
		} else {
			timer.Reset(m.settle)
		}
		pending = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("config watch: event stream closed")
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) {
				arm()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("config watch: error stream closed")
			}
			if !errors.Is(err, fsnotify.ErrEventOverflow) {
				return fmt.Errorf("config watch: %w", err)
			}
			m.log.Warn("config watch overflow; re-reading", logx.String("path", m.path))
			arm()

		case <-pending:
			pending = nil
			if _, err := m.Reload(ctx); err != nil {
				m.log.Warn("config reload failed; keeping active config", logx.String("path", m.path), logx.Err(err))
			}
		}
	}
}
