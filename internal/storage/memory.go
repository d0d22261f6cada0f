package storage

import (
	"context"
	"sort"
	"sync"
)

// Memory keeps the newest runs of every job in process memory.
type Memory struct {
	mu     sync.Mutex
	size   int
	byJob  map[string][]Run // oldest first
	closed bool
}

func NewMemory(perJob int) *Memory {
	if perJob <= 0 {
		perJob = defaultHistorySize
	}
	return &Memory{size: perJob, byJob: map[string][]Run{}}
}

func (m *Memory) AppendRun(ctx context.Context, r Run) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.appendLocked(r)
	return nil
}

func (m *Memory) appendLocked(r Run) {
	runs := append(m.byJob[r.JobID], r)
	if len(runs) > m.size {
		runs = append([]Run(nil), runs[len(runs)-m.size:]...)
	}
	m.byJob[r.JobID] = runs
}

func (m *Memory) RecentRuns(ctx context.Context, jobID string, limit int) ([]Run, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if jobID != "" {
		return trimNewestFirst(m.byJob[jobID], "", limit), nil
	}
	return trimNewestFirst(m.allLocked(), "", limit), nil
}

// allLocked returns every retained run, oldest first.
func (m *Memory) allLocked() []Run {
	var all []Run
	for _, runs := range m.byJob {
		all = append(all, runs...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Started.Before(all[j].Started) })
	return all
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.byJob = map[string][]Run{}
	m.mu.Unlock()
	return nil
}
