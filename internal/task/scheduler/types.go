package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"pewsched/internal/eventbus"
	"pewsched/internal/task/job"
	logx "pewsched/pkg/logx"
)

var (
	ErrDuplicateID  = errors.New("job id already registered")
	ErrNameRequired = errors.New("job id required")
	ErrFuncRequired = errors.New("job func required")
	ErrStopped      = errors.New("scheduler stopped")
)

// Config holds registry-wide defaults. Per-job options override them.
type Config struct {
	Timezone       string        // IANA TZ for cron and wall-clock schedules; "" means UTC
	DefaultTimeout time.Duration // per-run timeout, 0 disables
	MaxInFlight    int           // per-job concurrent runs, 0 is unbounded
	FailureLogRate float64       // "run failed" warnings per second, 0 keeps the job default
	StartupSpread  time.Duration // max random delay added to interval start times, 0 disables
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus
	rec job.Recorder

	ctx     context.Context
	cancel  context.CancelFunc
	jobs    map[string]*job.Job
	stopped bool
}

// Snapshot is an aggregate view of the registry.
type Snapshot struct {
	Timezone      string
	Jobs          int
	ByStatus      map[job.Status]int
	InFlight      int
	Executions    uint64
	Failures      uint64
	EventsDropped uint64
	Items         []job.Snapshot // sorted by ID
}
