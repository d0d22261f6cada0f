package app

import (
	"context"

	"pewsched/internal/eventbus"
	"pewsched/internal/task/job"
	logx "pewsched/pkg/logx"
)

// startEventLog logs job lifecycle events. Run events stay at debug; the
// job loop already reports failures.
func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(256, "job.", "run.")
	log := a.log.With(logx.String("comp", "events"))
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				logEvent(log, e)
			}
		}
	})
}

func logEvent(log logx.Logger, e eventbus.Event) {
	fields := []logx.Field{logx.String("type", e.Type)}
	switch d := e.Data.(type) {
	case job.Snapshot:
		fields = append(fields, logx.String("job", d.ID), logx.String("status", string(d.Status)), logx.Uint64("executions", d.Executions))
	case job.RunEvent:
		fields = append(fields, logx.String("job", d.JobID), logx.String("run", d.RunID))
		if !d.Run.Started.IsZero() {
			fields = append(fields, logx.Duration("took", d.Run.Duration))
		}
	}
	switch e.Type {
	case job.EventJobCompleted, job.EventJobFailed:
		log.Info("job ended", fields...)
	default:
		log.Debug("event", fields...)
	}
}
