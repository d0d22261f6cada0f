package trigger

import (
	"sync"
	"time"
)

// OneTime fires once at a fixed instant. When the instant is already in the
// past it is still returned: callers run it immediately instead of skipping it.
type OneTime struct {
	base

	mu       sync.Mutex
	at       time.Time
	executed bool
}

func NewOneTime(at time.Time) (*OneTime, error) {
	if at.IsZero() {
		return nil, invalid("run time required")
	}
	return &OneTime{at: at}, nil
}

func (t *OneTime) Kind() Kind { return KindOneTime }

func (t *OneTime) NextRunTime(after time.Time) (time.Time, bool) {
	return t.Peek(after)
}

func (t *OneTime) Peek(time.Time) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.executed {
		return time.Time{}, false
	}
	return t.at, true
}

func (t *OneTime) IsFinished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.executed
}

func (t *OneTime) MarkExecuted() {
	t.mu.Lock()
	t.executed = true
	t.mu.Unlock()
}

// Advance consumes the instant. A skipped occurrence is not run later.
func (t *OneTime) Advance() {
	t.mu.Lock()
	t.executed = true
	t.mu.Unlock()
}

func (t *OneTime) Reset() {
	t.mu.Lock()
	t.executed = false
	t.mu.Unlock()
}
