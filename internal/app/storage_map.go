package app

import (
	"strings"
	"time"

	"pewsched/internal/config"
	"pewsched/internal/storage"
	"pewsched/internal/task/scheduler"
	logx "pewsched/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
		HistorySize: sc.HistorySize,
	}, true, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	if cfg == nil {
		return scheduler.Config{}, nil
	}
	sc := cfg.Scheduler
	timeout, err := config.ParseDurationField("scheduler.default_timeout", sc.DefaultTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	spread, err := config.ParseDurationField("scheduler.startup_spread", sc.StartupSpread)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Timezone:       strings.TrimSpace(sc.Timezone),
		DefaultTimeout: timeout,
		MaxInFlight:    sc.MaxInFlight,
		FailureLogRate: sc.FailureLogRate,
		StartupSpread:  spread,
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	if cfg == nil {
		return logx.Config{Level: "info", Console: true}
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}
