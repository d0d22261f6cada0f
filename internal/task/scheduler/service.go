package scheduler

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"pewsched/internal/eventbus"
	"pewsched/internal/task/job"
	"pewsched/internal/task/trigger"
	logx "pewsched/pkg/logx"
)

// New creates a registry. Jobs inherit ctx for their runs; cancelling it
// stops every loop. bus and rec may be nil.
func New(ctx context.Context, cfg Config, log logx.Logger, bus eventbus.Bus, rec job.Recorder) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Service{
		log:    log,
		bus:    bus,
		rec:    rec,
		ctx:    ctx,
		cancel: cancel,
		jobs:   map[string]*job.Job{},
	}
	s.cfg = cfg
	s.loc = s.loadLocation(cfg.Timezone)
	return s
}

// Apply swaps the registry defaults. Jobs that already exist keep theirs.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	if oldTZ != strings.TrimSpace(cfg.Timezone) {
		s.loc = s.loadLocation(cfg.Timezone)
		s.log.Info("default timezone changed", logx.String("tz", s.loc.String()))
	}
}

// Location is the default zone for cron and wall-clock schedules.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// Add registers and starts a job. The registry defaults are applied first,
// so opts override them.
func (s *Service) Add(id string, tr trigger.Trigger, fn job.Func, opts ...job.Option) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNameRequired
	}
	if fn == nil {
		return errors.Wrapf(ErrFuncRequired, "job %q", id)
	}
	if tr == nil {
		return errors.Mark(errors.Newf("job %q: trigger required", id), trigger.ErrInvalidTrigger)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if _, ok := s.jobs[id]; ok {
		s.mu.Unlock()
		return errors.Wrapf(ErrDuplicateID, "job %q", id)
	}
	all := append(s.defaultOptionsLocked(), opts...)
	j := job.New(id, tr, fn, all...)
	s.jobs[id] = j
	ctx := s.ctx
	s.mu.Unlock()

	j.Start(ctx)

	fields := []logx.Field{logx.String("job", id), logx.String("trigger", string(tr.Kind()))}
	if st := j.Status(); st.HasNext {
		fields = append(fields, logx.Time("next", st.NextRun))
	}
	s.log.Info("job added", fields...)
	return nil
}

func (s *Service) defaultOptionsLocked() []job.Option {
	opts := []job.Option{
		job.WithLogger(s.log),
		job.WithMaxInFlight(s.cfg.MaxInFlight),
		job.WithTimeout(s.cfg.DefaultTimeout),
	}
	if s.bus != nil {
		opts = append(opts, job.WithBus(s.bus))
	}
	if s.rec != nil {
		opts = append(opts, job.WithRecorder(s.rec))
	}
	if s.cfg.FailureLogRate > 0 {
		opts = append(opts, job.WithFailureLogRate(rate.Limit(s.cfg.FailureLogRate), 1))
	}
	return opts
}

func (s *Service) get(id string) (*job.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[strings.TrimSpace(id)]
	return j, ok
}

func (s *Service) Pause(id string) bool {
	j, ok := s.get(id)
	if !ok {
		return false
	}
	return j.Pause()
}

func (s *Service) Resume(id string) bool {
	j, ok := s.get(id)
	if !ok {
		return false
	}
	return j.Resume()
}

// Remove cancels the job and forgets it. In-flight runs finish on their own.
func (s *Service) Remove(id string) bool {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	j, ok := s.jobs[id]
	delete(s.jobs, id)
	s.mu.Unlock()
	if !ok {
		return false
	}
	j.Cancel()
	s.log.Info("job removed", logx.String("job", id))
	return true
}

func (s *Service) Status(id string) (job.Snapshot, bool) {
	j, ok := s.get(id)
	if !ok {
		return job.Snapshot{}, false
	}
	return j.Status(), true
}

// List returns registered job ids in sorted order.
func (s *Service) List() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	slices.Sort(ids)
	return ids
}

func (s *Service) Statuses() map[string]job.Snapshot {
	jobs := s.snapshotJobs()
	out := make(map[string]job.Snapshot, len(jobs))
	for _, j := range jobs {
		out[j.ID()] = j.Status()
	}
	return out
}

func (s *Service) snapshotJobs() []*job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]*job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	return jobs
}

// Shutdown cancels every job, waits for their loops to exit and then cancels
// the context of runs still in flight. Add fails with ErrStopped afterwards.
func (s *Service) Shutdown(ctx context.Context) error {
	start := time.Now()
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	jobs := s.snapshotJobs()
	s.log.Info("shutdown requested", logx.Int("jobs", len(jobs)))
	for _, j := range jobs {
		j.Cancel()
	}
	defer s.cancel()
	for _, j := range jobs {
		if err := j.Wait(ctx); err != nil {
			s.log.Warn("shutdown timed out", logx.String("job", j.ID()), logx.Err(err))
			return errors.Wrap(err, "wait for job loops")
		}
	}
	s.log.Info("shutdown complete", logx.Duration("took", time.Since(start)))
	return nil
}

func (s *Service) loadLocation(tz string) *time.Location {
	loc, err := trigger.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to UTC", logx.String("tz", tz), logx.Err(err))
		return time.UTC
	}
	return loc
}
