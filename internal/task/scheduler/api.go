package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"pewsched/internal/task/job"
	"pewsched/internal/task/trigger"
)

// AddTimestamp runs fn once at each unix-millisecond instant.
func (s *Service) AddTimestamp(id string, ms []int64, fn job.Func, opts ...job.Option) error {
	return s.Add(id, trigger.NewTimestamp(ms), fn, opts...)
}

// AddInterval runs fn every period. maxRuns 0 is unlimited; a zero start
// anchors the schedule now (spread by Config.StartupSpread).
func (s *Service) AddInterval(id string, every time.Duration, maxRuns int, start time.Time, fn job.Func, opts ...job.Option) error {
	if start.IsZero() {
		start = s.intervalStart(id, every, time.Now())
	}
	tr, err := trigger.NewInterval(every, maxRuns, start)
	if err != nil {
		return errors.Wrapf(err, "job %q", id)
	}
	return s.Add(id, tr, fn, opts...)
}

// AddOnce runs fn at the given instant, immediately if it already passed.
func (s *Service) AddOnce(id string, at time.Time, fn job.Func, opts ...job.Option) error {
	tr, err := trigger.NewOneTime(at)
	if err != nil {
		return errors.Wrapf(err, "job %q", id)
	}
	return s.Add(id, tr, fn, opts...)
}

// AddCron runs fn on the occurrences of expr in tz ("" uses the registry
// default zone).
func (s *Service) AddCron(id, expr string, maxRuns int, tz string, start time.Time, fn job.Func, opts ...job.Option) error {
	if strings.TrimSpace(tz) == "" {
		tz = s.Location().String()
	}
	tr, err := trigger.NewCron(expr, maxRuns, tz, start)
	if err != nil {
		return errors.Wrapf(err, "job %q", id)
	}
	return s.Add(id, tr, fn, opts...)
}

// AddSchedule parses schedule (see ParseSchedule) and registers the matching
// trigger without a run cap.
func (s *Service) AddSchedule(id, schedule string, fn job.Func, opts ...job.Option) error {
	tr, err := s.BuildTrigger(id, schedule, 0, "")
	if err != nil {
		return err
	}
	return s.Add(id, tr, fn, opts...)
}

// AddDaily runs fn every day at HH:MM in the registry zone.
func (s *Service) AddDaily(id, atHHMM string, fn job.Func, opts ...job.Option) error {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return err
	}
	return s.AddCron(id, fmt.Sprintf("%d %d * * *", m, h), 0, "", time.Time{}, fn, opts...)
}

// AddWeekly runs fn every week on weekday at HH:MM in the registry zone.
func (s *Service) AddWeekly(id string, weekday time.Weekday, atHHMM string, fn job.Func, opts ...job.Option) error {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return err
	}
	return s.AddCron(id, fmt.Sprintf("%d %d * * %d", m, h, int(weekday)), 0, "", time.Time{}, fn, opts...)
}

// BuildTrigger turns a schedule string into a trigger. tz overrides the
// registry zone for cron expressions and zone-less instants. maxRuns applies
// to interval and cron schedules.
func (s *Service) BuildTrigger(id, schedule string, maxRuns int, tz string) (trigger.Trigger, error) {
	loc := s.Location()
	if strings.TrimSpace(tz) != "" {
		l, err := trigger.LoadLocation(tz)
		if err != nil {
			return nil, errors.Wrapf(err, "job %q", id)
		}
		loc = l
	}
	now := time.Now()
	ps, err := ParseScheduleIn(schedule, now, loc)
	if err != nil {
		return nil, errors.Wrapf(err, "job %q", id)
	}
	var start time.Time
	if ps.Kind == SpecInterval {
		start = s.intervalStart(id, ps.Every, now)
	}
	tr, err := NewTrigger(ps, maxRuns, loc.String(), start)
	if err != nil {
		return nil, errors.Wrapf(err, "job %q", id)
	}
	return tr, nil
}

// NewTrigger builds the trigger for a parsed schedule.
func NewTrigger(ps ParsedSpec, maxRuns int, tz string, start time.Time) (trigger.Trigger, error) {
	switch ps.Kind {
	case SpecCron:
		return trigger.NewCron(ps.Cron, maxRuns, tz, start)
	case SpecInterval:
		return trigger.NewInterval(ps.Every, maxRuns, start)
	case SpecOnce:
		return trigger.NewOneTime(ps.At)
	case SpecTimestamps:
		return trigger.NewTimestampTimes(ps.Times), nil
	default:
		return nil, errors.Newf("unsupported schedule kind %d", ps.Kind)
	}
}

// PreviewRuns lists up to n upcoming instants of tr after from. It only
// peeks, so the trigger is left untouched.
func PreviewRuns(tr trigger.Trigger, from time.Time, n int) []time.Time {
	out := make([]time.Time, 0, max(n, 0))
	ref := from
	for len(out) < n {
		next, ok := tr.Peek(ref)
		if !ok || (len(out) > 0 && !next.After(out[len(out)-1])) {
			break
		}
		out = append(out, next)
		ref = next
	}
	return out
}
