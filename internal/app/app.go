// Package app wires the daemon: config, logging, run history, the event bus
// and the job registry, plus hot reload and systemd integration.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"pewsched/internal/config"
	"pewsched/internal/eventbus"
	"pewsched/internal/runtime/supervisor"
	"pewsched/internal/storage"
	"pewsched/internal/task/job"
	"pewsched/internal/task/scheduler"
	logx "pewsched/pkg/logx"
	"pewsched/pkg/systemd"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	sched *scheduler.Service

	// schedCancel stops job loops and in-flight runs after Shutdown.
	schedCancel context.CancelFunc
}

// New loads the config at cfgPath and builds every component. Nothing runs
// until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return ValidateJobs(cfg) })
	cfg, err := cfgm.Load(context.Background())
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	return &App{
		cfgm:  cfgm,
		log:   log.With(logx.String("comp", "app")),
		logs:  logSvc,
		bus:   eventbus.New(),
		store: store,
	}, nil
}

func (a *App) Scheduler() *scheduler.Service { return a.sched }

func (a *App) Store() storage.Store { return a.store }

func (a *App) Bus() eventbus.Bus { return a.bus }

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	cfg := a.cfgm.Get()
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	scfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return err
	}
	// Job loops get their own context so Stop can drain them before the
	// supervised loops (and run contexts) are torn down.
	schedCtx, schedCancel := context.WithCancel(context.WithoutCancel(ctx))
	a.schedCancel = schedCancel
	var rec job.Recorder
	if a.store != nil {
		rec = a.store
	}
	a.sched = scheduler.New(schedCtx, scfg, a.log.With(logx.String("comp", "scheduler")), a.bus, rec)

	a.startEventLog()

	jc := a.reconcile(nil, cfg)
	a.log.Info("jobs loaded", logx.Int("jobs", len(a.sched.List())), logx.Int("added", len(jc.Added)))

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := cfg
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		systemd.Watchdog(c, a.log.With(logx.String("comp", "systemd")), func() bool { return a.sup.Err() == nil })
	})

	systemd.Ready(a.log)
	a.notifyStatus()
	a.log.Info("app started", logx.String("config", a.cfgm.Path()))
	return nil
}

// applyConfig hot-applies a validated config.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	systemd.Reloading(a.log)
	defer systemd.Ready(a.log)

	sections, attrs, _ := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	a.logs.Apply(mapLogConfig(newCfg))

	if scfg, err := mapSchedulerConfig(newCfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(scfg)
	}

	for _, s := range sections {
		if s == "storage" {
			a.log.Warn("storage config changed; restart required for changes to take effect")
			break
		}
	}

	jc := a.reconcile(oldCfg, newCfg)
	a.notifyStatus()
	a.log.Info("config reloaded",
		logx.String("changed", strings.Join(sections, ",")),
		logx.Int("jobs.added", len(jc.Added)),
		logx.Int("jobs.removed", len(jc.Removed)),
		logx.Int("jobs.changed", len(jc.Changed)),
	)
}

func (a *App) notifyStatus() {
	snap := a.sched.Snapshot()
	systemd.Status(a.log, fmt.Sprintf("%d jobs, %d running, %d paused",
		snap.Jobs, snap.ByStatus[job.StatusRunning], snap.ByStatus[job.StatusPaused]))
}

// Stop shuts the daemon down: job loops first, then history, then the
// supervised background loops. Each step is bounded so one component cannot
// stall the whole stop.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		if a.store != nil {
			_ = a.store.Close()
		}
		return a.logs.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	systemd.Stopping(a.log)

	a.sup.Cancel()

	a.step(ctx, "scheduler", 5*time.Second, func(c context.Context) error { return a.sched.Shutdown(c) })
	a.schedCancel()
	a.step(ctx, "storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs fn with an upper bound that never extends the caller's deadline.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		limit = min(limit, time.Until(dl))
	}
	if limit <= 0 {
		a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- errors.Newf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name), logx.Err(stepCtx.Err()), logx.Duration("elapsed", time.Since(start)))
	}
}
