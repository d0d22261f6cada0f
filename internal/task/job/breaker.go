package job

import (
	"time"
)

// breaker is a consecutive-failure circuit breaker with cooldown.
//
//   - On success: resets failures and closes the circuit.
//   - On failure: counts it; from trip failures on, opens the circuit for a
//     cooldown that doubles with every further failure, capped at maxDelay.
//
// Occurrences that come due while the circuit is open are skipped. State is
// guarded by the Job mutex.
type breaker struct {
	trip       int
	baseDelay  time.Duration
	maxDelay   time.Duration
	resetAfter time.Duration

	fails       int
	openUntil   time.Time
	lastFailure time.Time
}

func newBreaker(trip int, base, maxDelay time.Duration) *breaker {
	if trip <= 0 {
		return nil
	}
	if base <= 0 {
		base = 5 * time.Second
	}
	if maxDelay < base {
		maxDelay = max(base, 2*time.Minute)
	}
	return &breaker{trip: trip, baseDelay: base, maxDelay: maxDelay, resetAfter: 5 * maxDelay}
}

// expireLocked forgets failures that are long past.
func (b *breaker) expireLocked(now time.Time) {
	if !b.lastFailure.IsZero() && now.Sub(b.lastFailure) > b.resetAfter {
		b.fails = 0
		b.openUntil = time.Time{}
	}
}

func (b *breaker) openLocked(now time.Time) bool {
	if b == nil {
		return false
	}
	b.expireLocked(now)
	return !b.openUntil.IsZero() && now.Before(b.openUntil)
}

// recordLocked feeds one run result. It reports whether the circuit just
// opened (or re-opened).
func (b *breaker) recordLocked(now time.Time, failed bool) bool {
	if b == nil {
		return false
	}
	b.expireLocked(now)
	if !failed {
		b.fails = 0
		b.openUntil = time.Time{}
		b.lastFailure = time.Time{}
		return false
	}
	b.fails++
	b.lastFailure = now
	if b.fails < b.trip {
		return false
	}
	d := b.baseDelay
	for i := 0; i < b.fails-b.trip && d < b.maxDelay; i++ {
		d *= 2
	}
	b.openUntil = now.Add(min(d, b.maxDelay))
	return true
}
