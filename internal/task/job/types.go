package job

import (
	"context"
	"time"

	"pewsched/internal/storage"
	"pewsched/internal/task/trigger"
)

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusRemoved   Status = "REMOVED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRemoved || s == StatusFailed
}

// Func is the work item executed on every dispatch.
type Func func(ctx context.Context) error

// Recorder persists finished runs. storage.Store satisfies it.
type Recorder interface {
	AppendRun(ctx context.Context, r storage.Run) error
}

// Snapshot is a point-in-time view of a Job. Building it never changes
// scheduling state.
type Snapshot struct {
	ID         string        `json:"id"`
	Status     Status        `json:"status"`
	Trigger    trigger.Kind  `json:"trigger"`
	Executions uint64        `json:"executions"`
	Elapsed    time.Duration `json:"elapsed"`
	ElapsedMS  int64         `json:"elapsed_ms"`
	NextRun    time.Time     `json:"next_run,omitempty"`
	HasNext    bool          `json:"has_next"`
	Finished   bool          `json:"finished"`
	InFlight   int           `json:"in_flight"`
	Skipped    uint64        `json:"skipped"`
	Failures   uint64        `json:"failures"`
	LastRun    time.Time     `json:"last_run,omitempty"`
	LastError  string        `json:"last_error,omitempty"`
	// CircuitOpenUntil is set while failures keep the job from running.
	CircuitOpenUntil time.Time `json:"circuit_open_until,omitempty"`
}

// Event types published on the bus.
const (
	EventJobStarted   = "job.started"
	EventJobPaused    = "job.paused"
	EventJobResumed   = "job.resumed"
	EventJobCompleted = "job.completed"
	EventJobRemoved   = "job.removed"
	EventJobFailed    = "job.failed"

	EventRunStarted  = "run.started"
	EventRunFinished = "run.finished"
	EventRunFailed   = "run.failed"
	EventRunSkipped  = "run.skipped"
)

// RunEvent is the payload of run.* events.
type RunEvent struct {
	JobID     string
	RunID     string
	Scheduled time.Time
	Run       storage.Run // zero for run.started and run.skipped
	Reason    string      // run.skipped only: "max_in_flight" or "circuit_open"
}
