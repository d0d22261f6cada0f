package scheduler

import (
	"hash/fnv"
	"math/rand"
	"sync/atomic"
	"time"
)

var spreadSeq uint64

// intervalStart anchors a new interval schedule. With StartupSpread set, the
// anchor moves forward by a random jitter below min(StartupSpread, period).
// An anchor in the future is itself the first occurrence, so a spread job
// first runs after the jitter rather than after one full period. Without
// spread the first run comes one period after now.
func (s *Service) intervalStart(id string, every time.Duration, now time.Time) time.Time {
	s.mu.Lock()
	spreadMax := s.cfg.StartupSpread
	s.mu.Unlock()
	return now.Add(spreadJitter(id, every, spreadMax))
}

func spreadJitter(tag string, every, spreadMax time.Duration) time.Duration {
	if every > 0 && spreadMax > every {
		spreadMax = every
	}
	if spreadMax <= 0 {
		return 0
	}
	seed := time.Now().UnixNano() ^ int64(atomic.AddUint64(&spreadSeq, 1)) ^ int64(fnv64a(tag))
	rng := rand.New(rand.NewSource(seed))
	return time.Duration(rng.Int63n(int64(spreadMax)))
}

func fnv64a(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
