package job

import (
	"time"

	"golang.org/x/time/rate"

	"pewsched/internal/eventbus"
	logx "pewsched/pkg/logx"
)

// Option configures a Job.
type Option func(*Job)

func WithLogger(log logx.Logger) Option {
	return func(j *Job) {
		if !log.IsZero() {
			j.log = log
		}
	}
}

// WithBus publishes lifecycle and run events to bus.
func WithBus(bus eventbus.Bus) Option {
	return func(j *Job) { j.bus = bus }
}

// WithRecorder stores every finished run.
func WithRecorder(rec Recorder) Option {
	return func(j *Job) { j.rec = rec }
}

// WithMaxInFlight bounds concurrent runs of the work item. When the bound is
// reached the occurrence is consumed and counted as skipped. 0 is unbounded.
func WithMaxInFlight(n int) Option {
	return func(j *Job) {
		if n >= 0 {
			j.maxInFlight = n
		}
	}
}

// WithTimeout bounds every run of the work item. 0 disables it.
func WithTimeout(d time.Duration) Option {
	return func(j *Job) {
		if d >= 0 {
			j.timeout = d
		}
	}
}

// WithFailureLogRate limits "run failed" warnings. Suppressed failures are
// still counted and logged at debug level.
func WithFailureLogRate(r rate.Limit, burst int) Option {
	return func(j *Job) {
		if burst <= 0 {
			burst = 1
		}
		j.failLog = rate.NewLimiter(r, burst)
	}
}

// WithStartPaused makes the loop enter PAUSED before its first run.
func WithStartPaused() Option {
	return func(j *Job) { j.pauseReq = true }
}

// WithCircuitBreaker skips occurrences after trip consecutive failures, for
// a cooldown starting at base and doubling per further failure up to
// maxDelay. trip <= 0 disables it.
func WithCircuitBreaker(trip int, base, maxDelay time.Duration) Option {
	return func(j *Job) { j.breaker = newBreaker(trip, base, maxDelay) }
}
