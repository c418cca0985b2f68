package config

import "strings"

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Storage selects the journal backend that holds one record per event.
	Storage StorageConfig `json:"storage"`

	Paths PathsConfig `json:"paths"`
	Run   RunConfig   `json:"run"`
	Fetch FetchConfig `json:"fetch"`

	Derive   DeriveConfig   `json:"derive"`
	Schedule ScheduleConfig `json:"schedule,omitempty"`

	// TasksFile overrides the embedded task registry (json, yaml or toml).
	TasksFile string `json:"tasks_file,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the journal store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./journal/events.db" }
//
// Driver values: "file" (one JSON document per event under path), "sqlite", "pebble".
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	CacheBytes  int64  `json:"cache_bytes,omitempty"`  // pebble block cache; 0 = pebble default
}

type PathsConfig struct {
	// Input holds curated local data (e.g. input/internal/*.json).
	Input string `json:"input"`
	// Cache holds archived copies of fetched external data.
	Cache string `json:"cache"`
	// Output receives bibauthors.json and extinctions.json.
	Output string `json:"output"`
}

// RunConfig mirrors the run-selection flags; CLI flags override these.
type RunConfig struct {
	// Archived reuses cached copies of external data instead of re-fetching.
	Archived bool `json:"archived"`
	// Refresh lists tasks that always re-fetch, even when Archived is set.
	Refresh []string `json:"refresh,omitempty"`
	// DeleteOld wipes the journal before the first task runs.
	DeleteOld bool `json:"delete_old"`
	// Travis bounds per-task iteration to QueryLimit for constrained CI runs.
	Travis     bool `json:"travis"`
	QueryLimit int  `json:"query_limit,omitempty"`
}

type FetchConfig struct {
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
}

// DeriveConfig controls the final derivation pass.
//
// MaxFailureRatio escalates the pass to an error when the share of events whose
// derivation failed exceeds it. 0 disables escalation.
type DeriveConfig struct {
	MaxFailureRatio float64 `json:"max_failure_ratio,omitempty"`
	// ProgressEvery is a Go duration string throttling progress lines (default "5s").
	ProgressEvery string `json:"progress_every,omitempty"`
}

// ScheduleConfig is used by `eventcat schedule`.
type ScheduleConfig struct {
	Every    string `json:"every,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

const defaultQueryLimit = 10

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Storage: StorageConfig{Driver: "file", Path: "./journal"},
		Paths: PathsConfig{
			Input:  "./input",
			Cache:  "./cache",
			Output: ".",
		},
		Run:   RunConfig{QueryLimit: defaultQueryLimit},
		Fetch: FetchConfig{RatePerSec: 2, Timeout: "60s", UserAgent: "eventcat"},
		Derive: DeriveConfig{
			ProgressEvery: "5s",
		},
	}
}

// LoadArchive reports whether a task should reuse archived copies of its inputs.
func (r RunConfig) LoadArchive(task string) bool {
	if !r.Archived {
		return false
	}
	for _, name := range r.Refresh {
		if strings.EqualFold(strings.TrimSpace(name), task) {
			return false
		}
	}
	return true
}

// Limit returns the per-task iteration bound, 0 when unbounded.
func (r RunConfig) Limit() int {
	if !r.Travis {
		return 0
	}
	if r.QueryLimit <= 0 {
		return defaultQueryLimit
	}
	return r.QueryLimit
}
