// Package trigger computes when a job should run next.
//
// A Trigger is owned by exactly one job. All variants guard their mutable
// state with a private mutex, so the job loop and status readers may call
// them concurrently.
//
// Variants:
//   - Timestamp: a fixed, ascending list of instants (millisecond resolution)
//   - Interval:  a fixed period anchored at a start instant, optional run cap
//   - OneTime:   a single instant, returned even when already in the past
//   - Cron:      a cron expression evaluated in a time zone, optional run cap
package trigger

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Kind tags a trigger variant in snapshots and logs.
type Kind string

const (
	KindTimestamp Kind = "timestamp"
	KindInterval  Kind = "interval"
	KindOneTime   Kind = "one_time"
	KindCron      Kind = "cron"
)

// ErrInvalidTrigger wraps every construction-time configuration error.
var ErrInvalidTrigger = errors.New("invalid trigger configuration")

type Trigger interface {
	Kind() Kind

	// NextRunTime returns the next scheduled instant after the reference
	// time (zero means now). ok=false means the trigger is exhausted.
	NextRunTime(after time.Time) (next time.Time, ok bool)

	// Peek answers like NextRunTime without touching any cursor.
	// Status readers use it so that probing never changes scheduling.
	Peek(after time.Time) (next time.Time, ok bool)

	IsFinished() bool

	// MarkExecuted is called exactly once per dispatched execution. It
	// counts toward run caps; skipped occurrences never reach it.
	MarkExecuted()

	// Advance consumes the occurrence last returned by NextRunTime, whether
	// it was dispatched or skipped. Only cursor-based variants implement it.
	Advance()

	// PauseOffset reports how far the trigger's timeline moves for the
	// given cumulative paused duration. Zero means pauses are not compensated.
	PauseOffset(paused time.Duration) time.Duration

	Reset()
}

// base provides the no-op capability defaults.
type base struct{}

func (base) Advance()                                {}
func (base) PauseOffset(time.Duration) time.Duration { return 0 }

func refTime(after time.Time) time.Time {
	if after.IsZero() {
		return time.Now()
	}
	return after
}

func invalid(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidTrigger)
}
