// Package storage records job execution history.
//
// Only finished runs are stored. Schedules themselves are never persisted:
// jobs live in memory for the process lifetime.
//
// Drivers:
//   - "memory": bounded in-process ring (default when history is wanted without disk)
//   - "file":   append-only JSON Lines, compacted to the newest records
//   - "sqlite": SQLite database file (modernc.org/sqlite, pure Go)
package storage
