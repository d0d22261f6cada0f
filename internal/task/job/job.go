// Package job runs one Trigger-driven work item on its own loop goroutine.
//
// A Job owns its Trigger exclusively. The loop asks the trigger for the next
// run time, waits for it, and dispatches the work item on a fresh goroutine
// without waiting for it to return. Pause, resume and cancel are signalled
// through a broadcast channel, so the loop reacts as soon as they happen.
//
// Lifecycle:
//
//	RUNNING <-> PAUSED
//	RUNNING/PAUSED -> COMPLETED  (trigger exhausted)
//	any            -> REMOVED    (Cancel, terminal, wins over everything)
//	RUNNING/PAUSED -> FAILED     (the loop itself panicked)
package job

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"pewsched/internal/eventbus"
	"pewsched/internal/task/trigger"
	logx "pewsched/pkg/logx"
)

const defaultFailureLogEvery = 5 * time.Second

type Job struct {
	id   string
	trig trigger.Trigger
	fn   Func

	log         logx.Logger
	bus         eventbus.Bus
	rec         Recorder
	maxInFlight int
	timeout     time.Duration
	failLog     *rate.Limiter
	breaker     *breaker

	mu          sync.Mutex
	status      Status
	started     bool
	startedAt   time.Time
	endedAt     time.Time
	pauseStart  time.Time
	pausedTotal time.Duration
	pauseReq    bool
	cancelReq   bool
	wake        chan struct{} // closed and replaced on every signal change

	executions uint64
	inFlight   int
	skipped    uint64
	failures   uint64
	lastRun    time.Time
	lastErr    string

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a job in RUNNING state. Its loop does not run until Start.
func New(id string, trig trigger.Trigger, fn Func, opts ...Option) *Job {
	j := &Job{
		id:      id,
		trig:    trig,
		fn:      fn,
		log:     logx.Nop(),
		status:  StatusRunning,
		wake:    make(chan struct{}),
		done:    make(chan struct{}),
		failLog: rate.NewLimiter(rate.Every(defaultFailureLogEvery), 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(j)
		}
	}
	j.log = j.log.With(logx.String("job", id), logx.String("trigger", string(trig.Kind())))
	return j
}

func (j *Job) ID() string { return j.id }

// Trigger returns the job's trigger. Callers must not mutate it.
func (j *Job) Trigger() trigger.Trigger { return j.trig }

// Start launches the loop. Runs inherit ctx, so cancelling it stops the loop
// and cancels in-flight runs. It returns false if the loop was already
// started or the job is terminal.
func (j *Job) Start(ctx context.Context) bool {
	j.mu.Lock()
	if j.started || j.status.Terminal() {
		j.mu.Unlock()
		return false
	}
	j.started = true
	j.startedAt = time.Now()
	startPaused := j.pauseReq && j.status == StatusRunning
	if startPaused {
		j.status = StatusPaused
		j.pauseStart = j.startedAt
	}
	j.mu.Unlock()

	j.log.Debug("job started")
	j.publish(EventJobStarted, nil)
	if startPaused {
		j.log.Debug("job paused")
		j.publish(EventJobPaused, nil)
	}
	go j.loop(ctx)
	return true
}

// Pause requests a pause. It succeeds only while the job is RUNNING; the loop
// moves to PAUSED as soon as it observes the request.
func (j *Job) Pause() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusRunning {
		return false
	}
	j.pauseReq = true
	j.broadcastLocked()
	return true
}

// Resume clears a pause that is active or still pending.
func (j *Job) Resume() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusPaused && !j.pauseReq {
		return false
	}
	j.pauseReq = false
	j.broadcastLocked()
	return true
}

// Cancel marks the job REMOVED and stops its loop. Runs already dispatched
// are not interrupted.
func (j *Job) Cancel() {
	j.mu.Lock()
	first := !j.cancelReq
	j.cancelReq = true
	j.pauseReq = false
	if j.status != StatusRemoved {
		j.status = StatusRemoved
		j.endedAt = time.Now()
	}
	started := j.started
	j.broadcastLocked()
	j.mu.Unlock()

	if !started {
		j.closeDone()
	}
	if first {
		j.log.Debug("job removed")
		j.publish(EventJobRemoved, nil)
	}
}

// Status returns a snapshot. The next run time is computed without moving
// any trigger cursor.
func (j *Job) Status() Snapshot {
	now := time.Now()
	j.mu.Lock()
	s := Snapshot{
		ID:         j.id,
		Status:     j.status,
		Trigger:    j.trig.Kind(),
		Executions: j.executions,
		InFlight:   j.inFlight,
		Skipped:    j.skipped,
		Failures:   j.failures,
		LastRun:    j.lastRun,
		LastError:  j.lastErr,
	}
	s.Elapsed = j.elapsedLocked(now)
	if j.breaker.openLocked(now) {
		s.CircuitOpenUntil = j.breaker.openUntil
	}
	paused := j.pausedLocked(now)
	terminal := j.status.Terminal()
	j.mu.Unlock()

	s.ElapsedMS = s.Elapsed.Milliseconds()
	s.Finished = j.trig.IsFinished()
	if !terminal {
		off := j.trig.PauseOffset(paused)
		if next, ok := j.trig.Peek(now.Add(-off)); ok {
			s.NextRun = next.Add(off)
			s.HasNext = true
		}
	}
	return s
}

// Done is closed when the loop has exited.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the loop exits or ctx is done.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Job) closeDone() { j.doneOnce.Do(func() { close(j.done) }) }

func (j *Job) broadcastLocked() {
	close(j.wake)
	j.wake = make(chan struct{})
}

// pausedLocked is the cumulative paused time including a pause in progress.
func (j *Job) pausedLocked(now time.Time) time.Duration {
	p := j.pausedTotal
	if !j.pauseStart.IsZero() {
		end := now
		if !j.endedAt.IsZero() {
			end = j.endedAt
		}
		p += end.Sub(j.pauseStart)
	}
	return p
}

func (j *Job) elapsedLocked(now time.Time) time.Duration {
	if j.startedAt.IsZero() {
		return 0
	}
	end := now
	if !j.endedAt.IsZero() {
		end = j.endedAt
	}
	d := end.Sub(j.startedAt) - j.pausedLocked(now)
	if d < 0 {
		return 0
	}
	return d
}

func (j *Job) publish(typ string, data any) {
	if j.bus == nil {
		return
	}
	if data == nil {
		data = j.Status()
	}
	j.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
}
