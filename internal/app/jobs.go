package app

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"pewsched/internal/action"
	"pewsched/internal/config"
	"pewsched/internal/task/job"
	"pewsched/internal/task/scheduler"
	"pewsched/internal/task/trigger"
	logx "pewsched/pkg/logx"
)

// location resolves the registry zone of cfg, UTC when unset.
func location(cfg *config.Config) (*time.Location, error) {
	tz := ""
	if cfg != nil {
		tz = strings.TrimSpace(cfg.Scheduler.Timezone)
	}
	if tz == "" {
		return time.UTC, nil
	}
	return trigger.LoadLocation(tz)
}

// JobTrigger builds the trigger a job declaration describes, without a
// running registry. Interval schedules are anchored at now.
func JobTrigger(jc config.JobConfig, loc *time.Location, now time.Time) (trigger.Trigger, error) {
	if tz := strings.TrimSpace(jc.Timezone); tz != "" {
		l, err := trigger.LoadLocation(tz)
		if err != nil {
			return nil, errors.Wrapf(err, "job %q", jc.ID)
		}
		loc = l
	}
	ps, err := scheduler.ParseScheduleIn(jc.Schedule, now, loc)
	if err != nil {
		return nil, errors.Wrapf(err, "job %q", jc.ID)
	}
	var start time.Time
	if ps.Kind == scheduler.SpecInterval {
		start = now
	}
	tr, err := scheduler.NewTrigger(ps, jc.MaxRuns, loc.String(), start)
	if err != nil {
		return nil, errors.Wrapf(err, "job %q", jc.ID)
	}
	return tr, nil
}

// ValidateJobs checks what config.Validate cannot: schedule strings and
// command lines. It is the config manager's reload validator.
func ValidateJobs(cfg *config.Config) error {
	loc, err := location(cfg)
	if err != nil {
		return errors.Wrap(err, "scheduler.timezone")
	}
	now := time.Now()
	for _, jc := range cfg.Jobs {
		if _, err := JobTrigger(jc, loc, now); err != nil {
			return err
		}
		if _, err := workItem(jc, logx.Nop()); err != nil {
			return err
		}
	}
	return nil
}

func workItem(jc config.JobConfig, log logx.Logger) (job.Func, error) {
	if cmd := strings.TrimSpace(jc.Command); cmd != "" {
		fn, err := action.Command(cmd, log)
		if err != nil {
			return nil, errors.Wrapf(err, "job %q", jc.ID)
		}
		return fn, nil
	}
	return action.Log(jc.Message, log), nil
}

func jobOptions(jc config.JobConfig) ([]job.Option, error) {
	var opts []job.Option
	if strings.TrimSpace(jc.Timeout) != "" {
		d, err := config.ParseDurationField("jobs."+jc.ID+".timeout", jc.Timeout)
		if err != nil {
			return nil, err
		}
		opts = append(opts, job.WithTimeout(d))
	}
	if jc.MaxInFlight != nil {
		opts = append(opts, job.WithMaxInFlight(*jc.MaxInFlight))
	}
	if jc.Paused {
		opts = append(opts, job.WithStartPaused())
	}
	if jc.CircuitTrip > 0 {
		cooldown, err := config.ParseDurationField("jobs."+jc.ID+".circuit_cooldown", jc.CircuitCooldown)
		if err != nil {
			return nil, err
		}
		opts = append(opts, job.WithCircuitBreaker(jc.CircuitTrip, cooldown, 0))
	}
	return opts, nil
}

// addJob registers one declared job with the registry.
func (a *App) addJob(jc config.JobConfig) error {
	id := strings.TrimSpace(jc.ID)
	jc.ID = id
	fn, err := workItem(jc, a.log.With(logx.String("comp", "action"), logx.String("job", id)))
	if err != nil {
		return err
	}
	opts, err := jobOptions(jc)
	if err != nil {
		return err
	}
	tr, err := a.sched.BuildTrigger(id, jc.Schedule, jc.MaxRuns, jc.Timezone)
	if err != nil {
		return err
	}
	return a.sched.Add(id, tr, fn, opts...)
}

// reconcile moves the registry from the jobs of oldCfg to those of newCfg.
// Unchanged jobs keep running untouched; changed jobs are replaced, which
// restarts their schedule. A job that fails to build is logged and left out.
func (a *App) reconcile(oldCfg, newCfg *config.Config) config.JobChanges {
	var oldJobs []config.JobConfig
	if oldCfg != nil {
		oldJobs = oldCfg.Jobs
	}
	jc := config.SummarizeJobChanges(oldJobs, newCfg.Jobs)

	// A new registry zone rebuilds every job that relies on it.
	if oldCfg != nil && strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) {
		seen := map[string]bool{}
		for _, id := range append(jc.Added, jc.Changed...) {
			seen[id] = true
		}
		for _, j := range newCfg.Jobs {
			id := strings.TrimSpace(j.ID)
			if !seen[id] && strings.TrimSpace(j.Timezone) == "" {
				if _, existed := oldCfg.Job(id); existed {
					jc.Changed = append(jc.Changed, id)
				}
			}
		}
	}

	for _, id := range jc.Removed {
		a.sched.Remove(id)
		a.log.Info("job removed by config", logx.String("job", id))
	}
	for _, id := range jc.Changed {
		a.sched.Remove(id)
		decl, _ := newCfg.Job(id)
		if err := a.addJob(decl); err != nil {
			a.log.Error("job update failed", logx.String("job", id), logx.Err(err))
			continue
		}
		a.log.Info("job replaced by config", logx.String("job", id))
	}
	for _, id := range jc.Added {
		decl, _ := newCfg.Job(id)
		if err := a.addJob(decl); err != nil {
			a.log.Error("job add failed", logx.String("job", id), logx.Err(err))
		}
	}
	return jc
}
