package config

import (
	"sort"
	"strings"

	logx "pewsched/pkg/logx"
)

// JobChanges lists job ids by how a reload affects them.
type JobChanges struct {
	Added   []string
	Removed []string
	Changed []string
}

func (c JobChanges) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Changed) == 0
}

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) structured attrs for logging, and (3) the job set changes.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, JobChanges) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.default_timeout", strings.TrimSpace(newCfg.Scheduler.DefaultTimeout)),
			logx.Int("scheduler.max_in_flight", newCfg.Scheduler.MaxInFlight),
			logx.Float64("scheduler.failure_log_rate", newCfg.Scheduler.FailureLogRate),
		)
	}

	// Nil means disabled.
	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.Int("storage.history_size", nS.HistorySize),
		)
	}

	jc := SummarizeJobChanges(oldCfg.Jobs, newCfg.Jobs)
	if !jc.Empty() {
		changed = append(changed, "jobs")
		attrs = append(attrs,
			logx.Int("jobs.added", len(jc.Added)),
			logx.Int("jobs.removed", len(jc.Removed)),
			logx.Int("jobs.changed", len(jc.Changed)),
			logx.Int("jobs.total", len(newCfg.Jobs)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, jc
}

// SummarizeJobChanges diffs two job lists by id and fingerprint.
func SummarizeJobChanges(oldJobs, newJobs []JobConfig) JobChanges {
	index := func(jobs []JobConfig) map[string]uint64 {
		m := make(map[string]uint64, len(jobs))
		for _, j := range jobs {
			m[strings.TrimSpace(j.ID)] = j.Fingerprint()
		}
		return m
	}
	oldM, newM := index(oldJobs), index(newJobs)

	var out JobChanges
	for id, nh := range newM {
		oh, ok := oldM[id]
		switch {
		case !ok:
			out.Added = append(out.Added, id)
		case oh != nh:
			out.Changed = append(out.Changed, id)
		}
	}
	for id := range oldM {
		if _, ok := newM[id]; !ok {
			out.Removed = append(out.Removed, id)
		}
	}
	sort.Strings(out.Added)
	sort.Strings(out.Removed)
	sort.Strings(out.Changed)
	return out
}
