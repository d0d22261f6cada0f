package storage

import (
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

const defaultHistorySize = 200

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// HistorySize bounds retained runs per job. 0 means 200.
	HistorySize int
}

func (c Config) historySize() int {
	if c.HistorySize <= 0 {
		return defaultHistorySize
	}
	return c.HistorySize
}

// Run is one finished execution of a job's work item.
// Keep it compact and schema-stable.
type Run struct {
	ID        string        `json:"id"`
	JobID     string        `json:"job_id"`
	Trigger   string        `json:"trigger"`
	Scheduled time.Time     `json:"scheduled"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	Panicked  bool          `json:"panicked,omitempty"`
}

func (r Run) OK() bool { return r.Error == "" }
