package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Config is the daemon configuration. JSON, YAML and TOML files share this
// schema; unknown keys are rejected.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Jobs      []JobConfig     `json:"jobs"`
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

// SchedulerConfig holds registry-wide job defaults.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type SchedulerConfig struct {
	// Timezone is the IANA zone for cron expressions and zone-less instants.
	Timezone string `json:"timezone,omitempty"`
	// DefaultTimeout bounds every run. Use "0s" to disable.
	DefaultTimeout string `json:"default_timeout,omitempty"`
	// MaxInFlight bounds concurrent runs per job. 0 is unbounded.
	MaxInFlight int `json:"max_in_flight,omitempty"`
	// FailureLogRate caps "run failed" warnings per second and job.
	FailureLogRate float64 `json:"failure_log_rate,omitempty"`
	// StartupSpread replaces the first period of interval jobs with a
	// random delay below min(spread, period) to avoid lockstep firing.
	StartupSpread string `json:"startup_spread,omitempty"`
}

// StorageConfig controls the optional run history.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./pewsched.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	HistorySize int    `json:"history_size,omitempty"`
}

// JobConfig declares one job. Exactly one of Command or Message is set.
type JobConfig struct {
	ID       string `json:"id"`
	Schedule string `json:"schedule"`
	MaxRuns  int    `json:"max_runs,omitempty"`
	Timezone string `json:"timezone,omitempty"`

	// Command is a shell-quoted argv, executed without a shell.
	Command string `json:"command,omitempty"`
	// Message is logged on every run.
	Message string `json:"message,omitempty"`

	Timeout     string `json:"timeout,omitempty"`
	MaxInFlight *int   `json:"max_in_flight,omitempty"`
	Paused      bool   `json:"paused,omitempty"`

	// CircuitTrip skips runs after this many consecutive failures, for
	// CircuitCooldown (doubling per further failure). 0 disables it.
	CircuitTrip     int    `json:"circuit_trip,omitempty"`
	CircuitCooldown string `json:"circuit_cooldown,omitempty"`
}

var storageDrivers = map[string]bool{"": true, "none": true, "memory": true, "mem": true, "file": true, "sqlite": true, "sqlite3": true}

// Validate checks the parts of the config that do not need the scheduler.
// Schedule strings are checked by the daemon's validator.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return errors.Wrapf(err, "scheduler.timezone")
		}
	}
	if _, err := ParseDurationField("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.startup_spread", cfg.Scheduler.StartupSpread); err != nil {
		return err
	}
	if cfg.Scheduler.MaxInFlight < 0 {
		return errors.New("scheduler.max_in_flight must be >= 0")
	}
	if cfg.Scheduler.FailureLogRate < 0 {
		return errors.New("scheduler.failure_log_rate must be >= 0")
	}

	if st := cfg.Storage; st != nil {
		d := strings.ToLower(strings.TrimSpace(st.Driver))
		if !storageDrivers[d] {
			return errors.WithHint(errors.Newf("storage.driver: unknown driver %q", st.Driver), `use "none", "memory", "file" or "sqlite"`)
		}
		if (d == "file" || d == "sqlite" || d == "sqlite3") && strings.TrimSpace(st.Path) == "" {
			return errors.Newf("storage.path is required for driver %q", d)
		}
		if _, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
			return err
		}
		if st.HistorySize < 0 {
			return errors.New("storage.history_size must be >= 0")
		}
	}

	seen := make(map[string]bool, len(cfg.Jobs))
	for i, j := range cfg.Jobs {
		id := strings.TrimSpace(j.ID)
		if id == "" {
			return errors.Newf("jobs[%d].id is required", i)
		}
		if seen[id] {
			return errors.Newf("jobs[%d]: duplicate id %q", i, id)
		}
		seen[id] = true
		if strings.TrimSpace(j.Schedule) == "" {
			return errors.Newf("jobs.%s.schedule is required", id)
		}
		if j.MaxRuns < 0 {
			return errors.Newf("jobs.%s.max_runs must be >= 0", id)
		}
		hasCmd := strings.TrimSpace(j.Command) != ""
		hasMsg := strings.TrimSpace(j.Message) != ""
		if hasCmd == hasMsg {
			return errors.WithHint(errors.Newf("jobs.%s: exactly one of command or message is required", id), "set command to run a program or message to log a line")
		}
		if _, err := ParseDurationField("jobs."+id+".timeout", j.Timeout); err != nil {
			return err
		}
		if j.CircuitTrip < 0 {
			return errors.Newf("jobs.%s.circuit_trip must be >= 0", id)
		}
		if _, err := ParseDurationField("jobs."+id+".circuit_cooldown", j.CircuitCooldown); err != nil {
			return err
		}
		if j.MaxInFlight != nil && *j.MaxInFlight < 0 {
			return errors.Newf("jobs.%s.max_in_flight must be >= 0", id)
		}
		if tz := strings.TrimSpace(j.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return errors.Wrapf(err, "jobs.%s.timezone", id)
			}
		}
	}
	return nil
}

// Job returns the job with the given id.
func (c *Config) Job(id string) (JobConfig, bool) {
	if c == nil {
		return JobConfig{}, false
	}
	for _, j := range c.Jobs {
		if strings.TrimSpace(j.ID) == id {
			return j, true
		}
	}
	return JobConfig{}, false
}
