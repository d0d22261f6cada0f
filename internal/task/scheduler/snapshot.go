package scheduler

import (
	"slices"
	"strings"

	"pewsched/internal/task/job"
)

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	tz := s.loc.String()
	bus := s.bus
	s.mu.Unlock()

	jobs := s.snapshotJobs()
	out := Snapshot{
		Timezone: tz,
		Jobs:     len(jobs),
		ByStatus: map[job.Status]int{},
		Items:    make([]job.Snapshot, 0, len(jobs)),
	}
	for _, j := range jobs {
		st := j.Status()
		out.ByStatus[st.Status]++
		out.InFlight += st.InFlight
		out.Executions += st.Executions
		out.Failures += st.Failures
		out.Items = append(out.Items, st)
	}
	slices.SortFunc(out.Items, func(a, b job.Snapshot) int { return strings.Compare(a.ID, b.ID) })
	if bus != nil {
		out.EventsDropped = bus.Dropped()
	}
	return out
}
