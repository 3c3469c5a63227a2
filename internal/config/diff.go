package config

import (
	"reflect"
	"sort"
	"strings"

	logx "cronsched/pkg/logx"
)

// JobDiff lists job ids by what a reload does to them. Each list is sorted.
type JobDiff struct {
	Added   []string
	Removed []string
	Changed []string
}

func (d JobDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffJobs compares job definitions by id. A job whose definition differs in
// any field is reported as changed.
func DiffJobs(oldJobs, newJobs []JobConfig) JobDiff {
	oldM := indexJobs(oldJobs)
	newM := indexJobs(newJobs)

	var d JobDiff
	for id, nj := range newM {
		oj, ok := oldM[id]
		switch {
		case !ok:
			d.Added = append(d.Added, id)
		case !reflect.DeepEqual(oj, nj):
			d.Changed = append(d.Changed, id)
		}
	}
	for id := range oldM {
		if _, ok := newM[id]; !ok {
			d.Removed = append(d.Removed, id)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Changed)
	return d
}

func indexJobs(jobs []JobConfig) map[string]JobConfig {
	m := make(map[string]JobConfig, len(jobs))
	for _, j := range jobs {
		m[strings.TrimSpace(j.ID)] = j
	}
	return m
}

// SummarizeConfigChange returns the changed sections plus safe structured
// attrs for logging. Header values and tokens are never logged.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		changed = append(changed, "timezone")
		attrs = append(attrs, logx.String("timezone", strings.TrimSpace(newCfg.Timezone)))
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		if newCfg.Storage != nil {
			attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
		}
	}

	if strings.TrimSpace(oldCfg.ShutdownTimeout) != strings.TrimSpace(newCfg.ShutdownTimeout) ||
		oldCfg.Watchdog != newCfg.Watchdog {
		changed = append(changed, "daemon")
		attrs = append(attrs,
			logx.String("shutdown_timeout", strings.TrimSpace(newCfg.ShutdownTimeout)),
			logx.Bool("watchdog", newCfg.Watchdog),
		)
	}

	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		changed = append(changed, "http")
		if newCfg.HTTP != nil {
			attrs = append(attrs,
				logx.Bool("http.enabled", newCfg.HTTP.Enabled),
				logx.String("http.addr", newCfg.HTTP.Addr),
				logx.Bool("http.token_set", newCfg.HTTP.Token != ""),
			)
		}
	}

	if d := DiffJobs(oldCfg.Jobs, newCfg.Jobs); !d.Empty() {
		changed = append(changed, "jobs")
		attrs = append(attrs,
			logx.Int("jobs.added", len(d.Added)),
			logx.Int("jobs.removed", len(d.Removed)),
			logx.Int("jobs.changed", len(d.Changed)),
		)
	}
	return changed, attrs
}
