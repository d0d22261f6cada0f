package trigger

import (
	"slices"
	"sync"
	"time"
)

// Timestamp fires once per listed instant, in ascending order. Only instants
// strictly after the reference time are due, so an entry equal to the start
// instant (offset 0) is passed over.
//
// Instants are kept as unix milliseconds. The cursor never regresses, so a
// lookup is O(1) amortized across the life of the trigger.
type Timestamp struct {
	mu     sync.Mutex
	at     []int64
	cursor int
}

// NewTimestamp builds a trigger from unix-millisecond instants. The input is
// copied and sorted. Equal instants collapse into a single run: once one is
// consumed, the rest are no longer strictly after the reference time.
func NewTimestamp(ms []int64) *Timestamp {
	at := slices.Clone(ms)
	slices.Sort(at)
	return &Timestamp{at: at}
}

func NewTimestampTimes(ts []time.Time) *Timestamp {
	ms := make([]int64, 0, len(ts))
	for _, t := range ts {
		ms = append(ms, t.UnixMilli())
	}
	return NewTimestamp(ms)
}

func (t *Timestamp) Kind() Kind { return KindTimestamp }

func (t *Timestamp) NextRunTime(after time.Time) (time.Time, bool) {
	ref := refTime(after).UnixMilli()
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.cursor < len(t.at) {
		if t.at[t.cursor] > ref {
			return time.UnixMilli(t.at[t.cursor]), true
		}
		t.cursor++
	}
	return time.Time{}, false
}

func (t *Timestamp) Peek(after time.Time) (time.Time, bool) {
	ref := refTime(after).UnixMilli()
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := t.cursor; i < len(t.at); i++ {
		if t.at[i] > ref {
			return time.UnixMilli(t.at[i]), true
		}
	}
	return time.Time{}, false
}

func (t *Timestamp) IsFinished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor >= len(t.at)
}

// MarkExecuted is a no-op: the job advances the cursor explicitly.
func (t *Timestamp) MarkExecuted() {}

func (t *Timestamp) Advance() {
	t.mu.Lock()
	if t.cursor < len(t.at) {
		t.cursor++
	}
	t.mu.Unlock()
}

// PauseOffset shifts every remaining instant forward by the paused time.
func (t *Timestamp) PauseOffset(paused time.Duration) time.Duration {
	if paused < 0 {
		return 0
	}
	return paused
}

func (t *Timestamp) Reset() {
	t.mu.Lock()
	t.cursor = 0
	t.mu.Unlock()
}

// Remaining reports how many instants have not been consumed yet.
func (t *Timestamp) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.at) - t.cursor
}
