package job

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"pewsched/internal/storage"
	logx "pewsched/pkg/logx"
)

const recordTimeout = 2 * time.Second

// dispatch consumes the current occurrence and starts the work item without
// waiting for it. A skipped occurrence is consumed but does not count as an
// execution.
func (j *Job) dispatch(ctx context.Context, scheduled time.Time) {
	runID := uuid.NewString()

	j.mu.Lock()
	reason := ""
	switch {
	case j.breaker.openLocked(time.Now()):
		reason = "circuit_open"
	case j.maxInFlight > 0 && j.inFlight >= j.maxInFlight:
		reason = "max_in_flight"
	}
	if reason != "" {
		j.skipped++
		inFlight := j.inFlight
		j.mu.Unlock()

		j.trig.Advance()
		j.log.Debug("run skipped", logx.String("run", runID), logx.String("reason", reason), logx.Int("in_flight", inFlight))
		j.publish(EventRunSkipped, RunEvent{JobID: j.id, RunID: runID, Scheduled: scheduled, Reason: reason})
		return
	}
	j.inFlight++
	j.executions++
	j.lastRun = time.Now()
	j.mu.Unlock()

	j.trig.MarkExecuted()
	j.trig.Advance()

	go j.execute(ctx, runID, scheduled)
}

func (j *Job) execute(ctx context.Context, runID string, scheduled time.Time) {
	start := time.Now()
	j.publish(EventRunStarted, RunEvent{JobID: j.id, RunID: runID, Scheduled: scheduled})

	runCtx := ctx
	var cancel context.CancelFunc
	if j.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, j.timeout)
	}

	var err error
	panicked := false
	// A panicking work item must not take the process down.
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				err = errors.Newf("panic: %v", r)
				j.log.Error("run panic", logx.String("run", runID), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			}
		}()
		err = j.fn(runCtx)
	}()
	if cancel != nil {
		cancel()
	}
	dur := time.Since(start)

	j.mu.Lock()
	j.inFlight--
	if err != nil {
		j.failures++
		j.lastErr = err.Error()
	}
	var tripFields []logx.Field
	if j.breaker.recordLocked(time.Now(), err != nil) {
		tripFields = []logx.Field{logx.Time("until", j.breaker.openUntil), logx.Int("failures", j.breaker.fails)}
	}
	j.mu.Unlock()

	if tripFields != nil {
		j.log.Warn("circuit open; skipping runs", tripFields...)
	}

	run := storage.Run{
		ID:        runID,
		JobID:     j.id,
		Trigger:   string(j.trig.Kind()),
		Scheduled: scheduled,
		Started:   start,
		Duration:  dur,
		Panicked:  panicked,
	}
	if err != nil {
		run.Error = err.Error()
		if j.failLog.Allow() {
			j.log.Warn("run failed", logx.String("run", runID), logx.Duration("dur", dur), logx.Err(err))
		} else {
			j.log.Debug("run failed", logx.String("run", runID), logx.Duration("dur", dur), logx.Err(err))
		}
		j.publish(EventRunFailed, RunEvent{JobID: j.id, RunID: runID, Scheduled: scheduled, Run: run})
	} else {
		if dur >= 750*time.Millisecond {
			j.log.Info("run finished", logx.String("run", runID), logx.Duration("dur", dur))
		} else {
			j.log.Debug("run finished", logx.String("run", runID), logx.Duration("dur", dur))
		}
		j.publish(EventRunFinished, RunEvent{JobID: j.id, RunID: runID, Scheduled: scheduled, Run: run})
	}

	if j.rec != nil {
		rctx, rcancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := j.rec.AppendRun(rctx, run); err != nil {
			j.log.Debug("run history append failed", logx.String("run", runID), logx.Err(err))
		}
		rcancel()
	}
}
