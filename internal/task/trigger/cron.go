package trigger

import (
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
)

// Parser accepts both 5-field and 6-field (leading seconds) expressions plus
// descriptors such as "@hourly" and "@every 5m".
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Cron fires on the occurrences of a cron expression in a time zone.
//
// The cursor only moves in Advance, to the occurrence that was handed out by
// the last NextRunTime call. MarkExecuted only counts runs against the cap. Repeated lookups (and status probes) at
// the same reference time therefore return the same occurrence.
type Cron struct {
	base

	mu      sync.Mutex
	expr    string
	sched   cron.Schedule
	loc     *time.Location
	maxRuns int
	runs    int
	start   time.Time
	cursor  time.Time
	pending time.Time
}

// NewCron parses expr and loads the IANA time zone tz ("" means UTC).
// A zero start anchors the cursor at construction time.
func NewCron(expr string, maxRuns int, tz string, start time.Time) (*Cron, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, invalid("cron expression required")
	}
	if maxRuns < 0 {
		return nil, invalid("max runs must be >= 0 (got %d)", maxRuns)
	}
	loc, err := LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	sched, err := Parser.Parse(expr)
	if err != nil {
		return nil, errors.WithHint(
			errors.Mark(errors.Wrapf(err, "parse cron %q", expr), ErrInvalidTrigger),
			"use 5 fields (min hour dom mon dow), 6 fields with leading seconds, or a descriptor like @hourly",
		)
	}
	if start.IsZero() {
		start = time.Now()
	}
	start = start.In(loc)
	return &Cron{expr: expr, sched: sched, loc: loc, maxRuns: maxRuns, start: start, cursor: start}, nil
}

// LoadLocation resolves an IANA zone name; blank means UTC.
func LoadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "unknown time zone %q", tz), ErrInvalidTrigger)
	}
	return loc, nil
}

func (t *Cron) Kind() Kind { return KindCron }

func (t *Cron) Expr() string { return t.expr }

func (t *Cron) Location() *time.Location { return t.loc }

func (t *Cron) NextRunTime(after time.Time) (time.Time, bool) {
	ref := refTime(after)
	t.mu.Lock()
	defer t.mu.Unlock()
	next, ok := t.nextLocked(ref)
	if ok {
		t.pending = next
	}
	return next, ok
}

func (t *Cron) Peek(after time.Time) (time.Time, bool) {
	ref := refTime(after)
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextLocked(ref)
}

func (t *Cron) nextLocked(ref time.Time) (time.Time, bool) {
	if t.capReachedLocked() {
		return time.Time{}, false
	}
	from := t.cursor
	if ref.After(from) {
		from = ref
	}
	next := t.sched.Next(from.In(t.loc))
	// robfig/cron returns the zero time when nothing matches within five years.
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

func (t *Cron) IsFinished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.capReachedLocked()
}

func (t *Cron) MarkExecuted() {
	t.mu.Lock()
	t.runs++
	t.mu.Unlock()
}

func (t *Cron) Advance() {
	t.mu.Lock()
	if t.pending.After(t.cursor) {
		t.cursor = t.pending
	}
	t.mu.Unlock()
}

func (t *Cron) Reset() {
	t.mu.Lock()
	t.runs = 0
	t.cursor = t.start
	t.pending = time.Time{}
	t.mu.Unlock()
}

func (t *Cron) capReachedLocked() bool {
	return t.maxRuns > 0 && t.runs >= t.maxRuns
}
