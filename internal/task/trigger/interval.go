package trigger

import (
	"sync"
	"time"
)

// Interval fires every period, aligned to its start instant.
type Interval struct {
	base

	mu      sync.Mutex
	every   time.Duration
	maxRuns int // 0 = unlimited
	runs    int
	start   time.Time
	next    time.Time
}

// NewInterval validates the period and run cap. A zero start anchors the
// schedule at construction time, so the first run happens one period later.
func NewInterval(every time.Duration, maxRuns int, start time.Time) (*Interval, error) {
	if every <= 0 {
		return nil, invalid("interval must be > 0 (got %s)", every)
	}
	if maxRuns < 0 {
		return nil, invalid("max runs must be >= 0 (got %d)", maxRuns)
	}
	if start.IsZero() {
		start = time.Now()
	}
	return &Interval{every: every, maxRuns: maxRuns, start: start, next: start}, nil
}

func (t *Interval) Kind() Kind { return KindInterval }

func (t *Interval) Every() time.Duration { return t.every }

func (t *Interval) NextRunTime(after time.Time) (time.Time, bool) {
	ref := refTime(after)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.capReachedLocked() {
		return time.Time{}, false
	}
	t.next = advancePast(t.next, t.every, ref)
	return t.next, true
}

func (t *Interval) Peek(after time.Time) (time.Time, bool) {
	ref := refTime(after)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.capReachedLocked() {
		return time.Time{}, false
	}
	return advancePast(t.next, t.every, ref), true
}

func (t *Interval) IsFinished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.capReachedLocked()
}

func (t *Interval) MarkExecuted() {
	t.mu.Lock()
	t.runs++
	t.mu.Unlock()
}

func (t *Interval) Reset() {
	t.mu.Lock()
	t.runs = 0
	t.next = t.start
	t.mu.Unlock()
}

func (t *Interval) capReachedLocked() bool {
	return t.maxRuns > 0 && t.runs >= t.maxRuns
}

// advancePast adds whole periods to anchor until it is strictly after ref.
// After a long pause this skips every missed period in one step instead of
// producing a burst of catch-up runs.
func advancePast(anchor time.Time, every time.Duration, ref time.Time) time.Time {
	if anchor.After(ref) {
		return anchor
	}
	n := ref.Sub(anchor)/every + 1
	return anchor.Add(n * every)
}
