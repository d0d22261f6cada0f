// Package scheduler is the job registry.
//
// It owns a map of jobs keyed by identifier, builds triggers from schedule
// strings and applies registry-wide defaults (time zone, run timeout,
// in-flight bound, failure log rate) to every job it creates. Each job runs
// its own loop; the registry never sits on the scheduling path.
package scheduler
