package job

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/cockroachdb/errors"

	logx "pewsched/pkg/logx"
)

func (j *Job) loop(ctx context.Context) {
	defer j.closeDone()
	defer func() {
		if r := recover(); r != nil {
			j.log.Error("job loop panic", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			j.fail(errors.Newf("loop panic: %v", r))
		}
	}()

	for {
		if j.cancelled() {
			return
		}
		if !j.holdWhilePaused(ctx) {
			return
		}
		if j.cancelled() {
			return
		}

		// Triggers that compensate pauses see a clock shifted back by the
		// paused time; the due instant is shifted forward by the same amount.
		off := j.trig.PauseOffset(j.pausedSoFar())
		next, ok := j.trig.NextRunTime(time.Now().Add(-off))
		if !ok {
			j.complete()
			return
		}
		due := next.Add(off)

		if !j.waitUntil(ctx, due) {
			continue
		}
		j.dispatch(ctx, due)
	}
}

func (j *Job) cancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelReq
}

func (j *Job) pausedSoFar() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.pausedTotal
}

// holdWhilePaused blocks while a pause is requested. It returns false if the
// job was cancelled meanwhile. A job started paused is already PAUSED when
// the loop first gets here.
func (j *Job) holdWhilePaused(ctx context.Context) bool {
	j.mu.Lock()
	switch {
	case j.status == StatusPaused:
		j.mu.Unlock()
	case j.pauseReq && j.status == StatusRunning:
		j.status = StatusPaused
		j.pauseStart = time.Now()
		j.mu.Unlock()

		j.log.Debug("job paused")
		j.publish(EventJobPaused, nil)
	default:
		j.mu.Unlock()
		return true
	}

	for {
		j.mu.Lock()
		if j.cancelReq {
			j.mu.Unlock()
			return false
		}
		if !j.pauseReq {
			d := time.Since(j.pauseStart)
			j.pausedTotal += d
			j.pauseStart = time.Time{}
			j.status = StatusRunning
			j.mu.Unlock()

			j.log.Debug("job resumed", logx.Duration("paused", d))
			j.publish(EventJobResumed, nil)
			return true
		}
		wake := j.wake
		j.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			j.Cancel()
			return false
		}
	}
}

// waitUntil sleeps until due. It returns false as soon as a pause or cancel
// is signalled so the caller re-evaluates the trigger instead of dispatching.
func (j *Job) waitUntil(ctx context.Context, due time.Time) bool {
	for {
		j.mu.Lock()
		interrupted := j.cancelReq || j.pauseReq
		wake := j.wake
		j.mu.Unlock()
		if interrupted {
			return false
		}

		d := time.Until(due)
		if d <= 0 {
			return true
		}
		tmr := time.NewTimer(d)
		select {
		case <-tmr.C:
		case <-wake:
			tmr.Stop()
		case <-ctx.Done():
			tmr.Stop()
			j.Cancel()
			return false
		}
	}
}

func (j *Job) complete() {
	j.mu.Lock()
	if j.status.Terminal() {
		j.mu.Unlock()
		return
	}
	j.status = StatusCompleted
	j.endedAt = time.Now()
	execs := j.executions
	j.mu.Unlock()

	j.log.Info("job completed", logx.Uint64("executions", execs))
	j.publish(EventJobCompleted, nil)
}

func (j *Job) fail(err error) {
	j.mu.Lock()
	if j.status == StatusRemoved {
		j.mu.Unlock()
		return
	}
	j.status = StatusFailed
	j.endedAt = time.Now()
	j.lastErr = err.Error()
	j.mu.Unlock()

	j.publish(EventJobFailed, nil)
}
