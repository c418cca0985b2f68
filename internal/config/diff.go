package config

import (
	"reflect"
	"strings"

	logx "eventcat/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) structured attrs for logging the new values.
//
// Storage and paths are reported but only take effect on the next run; the
// logging section is applied live.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.String("storage.path", strings.TrimSpace(newCfg.Storage.Path)),
		)
	}

	if oldCfg.Paths != newCfg.Paths {
		changed = append(changed, "paths")
	}

	if !reflect.DeepEqual(oldCfg.Run, newCfg.Run) {
		changed = append(changed, "run")
		attrs = append(attrs,
			logx.Bool("run.archived", newCfg.Run.Archived),
			logx.Bool("run.travis", newCfg.Run.Travis),
			logx.Int("run.refresh_count", len(newCfg.Run.Refresh)),
		)
	}

	if oldCfg.Fetch != newCfg.Fetch {
		changed = append(changed, "fetch")
		attrs = append(attrs, logx.Int("fetch.rate_per_sec", newCfg.Fetch.RatePerSec))
	}

	if oldCfg.Derive != newCfg.Derive {
		changed = append(changed, "derive")
		attrs = append(attrs, logx.Float64("derive.max_failure_ratio", newCfg.Derive.MaxFailureRatio))
	}

	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
		attrs = append(attrs, logx.String("schedule.every", newCfg.Schedule.Every))
	}

	if strings.TrimSpace(oldCfg.TasksFile) != strings.TrimSpace(newCfg.TasksFile) {
		changed = append(changed, "tasks_file")
	}

	return changed, attrs
}
