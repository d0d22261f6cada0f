package storage

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	logx "pewsched/pkg/logx"
)

// Store is the run-history API used by job loops and the daemon.
type Store interface {
	AppendRun(ctx context.Context, r Run) error
	// RecentRuns returns up to limit runs, newest first. An empty jobID
	// returns runs of every job.
	RecentRuns(ctx context.Context, jobID string, limit int) ([]Run, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "memory", "mem":
		return NewMemory(cfg.historySize()), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.WithHint(errors.Newf("unknown storage driver: %s", driver), `use "none", "memory", "file" or "sqlite"`)
	}
}

// trimNewestFirst returns at most limit runs from an oldest-first slice, newest first.
func trimNewestFirst(runs []Run, jobID string, limit int) []Run {
	out := make([]Run, 0, min(len(runs), max(limit, 0)))
	for i := len(runs) - 1; i >= 0; i-- {
		if jobID != "" && runs[i].JobID != jobID {
			continue
		}
		out = append(out, runs[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
