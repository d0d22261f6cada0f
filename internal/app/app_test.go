package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pewsched/internal/config"
	"pewsched/internal/task/job"
	"pewsched/internal/task/trigger"
)

const baseYAML = `
logging: { level: warn, console: false }
scheduler: { timezone: UTC }
storage: { driver: memory }
jobs:
  - id: ticker
    schedule: "every:20ms"
    max_runs: 3
    message: tick
  - id: nightly
    schedule: "cron:0 3 * * *"
    message: nightly
  - id: held
    schedule: "every:1h"
    message: held
    paused: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pewsched.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func startApp(t *testing.T, body string) (*App, string) {
	t.Helper()
	path := writeConfig(t, body)
	a, err := New(path)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopContext)
	})
	return a, path
}

func TestValidateJobs(t *testing.T) {
	t.Parallel()
	ok := &config.Config{Jobs: []config.JobConfig{
		{ID: "a", Schedule: "cron:*/5 * * * *", Message: "x"},
		{ID: "b", Schedule: "at:+1h", Command: "echo 'hi there'"},
		{ID: "c", Schedule: "timestamps:+1s,+2s", Message: "x"},
	}}
	require.NoError(t, ValidateJobs(ok))

	bad := map[string]config.JobConfig{
		"schedule": {ID: "a", Schedule: "cron:not a cron", Message: "x"},
		"interval": {ID: "a", Schedule: "every:-5s", Message: "x"},
		"quoting":  {ID: "a", Schedule: "1m", Command: "echo 'open"},
		"zone":     {ID: "a", Schedule: "1m", Message: "x", Timezone: "Atlantis/Nowhere"},
	}
	for name, jc := range bad {
		assert.Error(t, ValidateJobs(&config.Config{Jobs: []config.JobConfig{jc}}), name)
	}
}

func TestJobTriggerKinds(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cases := map[string]trigger.Kind{
		"cron:0 3 * * *":          trigger.KindCron,
		"every:10m":               trigger.KindInterval,
		"at:2024-05-02T00:00:00Z": trigger.KindOneTime,
		"timestamps:+1s,+2s":      trigger.KindTimestamp,
	}
	for schedule, want := range cases {
		tr, err := JobTrigger(config.JobConfig{ID: "x", Schedule: schedule}, time.UTC, now)
		require.NoError(t, err, schedule)
		assert.Equal(t, want, tr.Kind(), schedule)
	}
}

func TestStartLoadsJobs(t *testing.T) {
	t.Parallel()
	a, _ := startApp(t, baseYAML)
	s := a.Scheduler()
	assert.Equal(t, []string{"held", "nightly", "ticker"}, s.List())

	require.Eventually(t, func() bool {
		st, ok := s.Status("ticker")
		return ok && st.Status == job.StatusCompleted
	}, 3*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		st, _ := s.Status("held")
		return st.Status == job.StatusPaused
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		runs, err := a.Store().RecentRuns(context.Background(), "ticker", 0)
		return err == nil && len(runs) == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestApplyConfigReconciles(t *testing.T) {
	t.Parallel()
	a, _ := startApp(t, baseYAML)
	oldCfg := a.cfgm.Get()

	newCfg, err := config.Decode("pewsched.yaml", []byte(`
logging: { level: warn, console: false }
scheduler: { timezone: UTC }
storage: { driver: memory }
jobs:
  - id: nightly
    schedule: "cron:0 4 * * *"
    message: nightly
  - id: held
    schedule: "every:1h"
    message: held
    paused: true
  - id: fresh
    schedule: "every:1h"
    message: fresh
`))
	require.NoError(t, err)

	removed, unsub := a.Bus().Subscribe(16, job.EventJobRemoved)
	defer unsub()
	a.applyConfig(oldCfg, newCfg)

	s := a.Scheduler()
	assert.Equal(t, []string{"fresh", "held", "nightly"}, s.List())

	st, ok := s.Status("nightly")
	require.True(t, ok)
	assert.Equal(t, 4, st.NextRun.UTC().Hour())

	// Unchanged jobs are left alone.
	held, _ := s.Status("held")
	assert.Equal(t, job.StatusPaused, held.Status)
	var gone []string
	for len(removed) > 0 {
		e := <-removed
		gone = append(gone, e.Data.(job.Snapshot).ID)
	}
	assert.ElementsMatch(t, []string{"ticker", "nightly"}, gone)
}

func TestTimezoneChangeRebuildsZonelessJobs(t *testing.T) {
	t.Parallel()
	if _, err := time.LoadLocation("Asia/Tokyo"); err != nil {
		t.Skip("tz database unavailable")
	}
	a, _ := startApp(t, baseYAML)
	oldCfg := a.cfgm.Get()
	newCfg := *oldCfg
	newCfg.Scheduler.Timezone = "Asia/Tokyo"

	a.applyConfig(oldCfg, &newCfg)
	assert.Equal(t, "Asia/Tokyo", a.Scheduler().Location().String())
	st, ok := a.Scheduler().Status("nightly")
	require.True(t, ok)
	assert.Equal(t, 3, st.NextRun.In(a.Scheduler().Location()).Hour())
}

func TestWatchReloadsFromDisk(t *testing.T) {
	t.Parallel()
	a, path := startApp(t, baseYAML)
	time.Sleep(100 * time.Millisecond) // let the watcher attach

	updated := baseYAML + "  - id: late\n    schedule: \"every:1h\"\n    message: late\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	require.Eventually(t, func() bool {
		_, ok := a.Scheduler().Status("late")
		return ok
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()
	_, err := New(writeConfig(t, "jobs:\n  - id: x\n    schedule: \"cron:nope\"\n    message: m\n"))
	assert.Error(t, err)

	_, err = New(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()
	a, err := New(writeConfig(t, baseYAML))
	require.NoError(t, err)
	assert.NoError(t, a.Stop(context.Background(), StopContext))
	select {
	case <-a.Done():
	default:
		t.Fatal("Done should be closed for an app that never started")
	}
}
