package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "pewsched/pkg/logx"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func run(job string, i int) Run {
	return Run{
		ID:        fmt.Sprintf("%s-%d", job, i),
		JobID:     job,
		Trigger:   "interval",
		Scheduled: epoch.Add(time.Duration(i) * time.Second),
		Started:   epoch.Add(time.Duration(i)*time.Second + time.Millisecond),
		Duration:  1500 * time.Microsecond,
	}
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		require.NoError(t, err)
		assert.Nil(t, st)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "postgres"}, logx.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"file", "sqlite"} {
		_, err := Open(Config{Driver: d}, logx.Nop())
		assert.Error(t, err, d)
	}
}

func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, st.AppendRun(ctx, run("a", i)))
	}
	failed := run("b", 10)
	failed.Error = "boom"
	failed.Panicked = true
	require.NoError(t, st.AppendRun(ctx, failed))

	got, err := st.RecentRuns(ctx, "a", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a-4", got[0].ID)
	assert.Equal(t, "a-3", got[1].ID)
	assert.True(t, got[0].Started.Equal(run("a", 4).Started))
	assert.Equal(t, 1500*time.Microsecond, got[0].Duration)
	assert.True(t, got[0].OK())

	all, err := st.RecentRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 6)
	assert.Equal(t, "b-10", all[0].ID)
	assert.False(t, all[0].OK())
	assert.True(t, all[0].Panicked)
	assert.Equal(t, "boom", all[0].Error)

	none, err := st.RecentRuns(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "memory"}, logx.Nop())
	require.NoError(t, err)
	exerciseStore(t, st)
	require.NoError(t, st.Close())
	_, err = st.RecentRuns(context.Background(), "a", 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryBoundsPerJob(t *testing.T) {
	t.Parallel()
	m := NewMemory(3)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, m.AppendRun(ctx, run("a", i)))
	}
	require.NoError(t, m.AppendRun(ctx, run("b", 0)))

	got, err := m.RecentRuns(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a-9", got[0].ID)
	assert.Equal(t, "a-7", got[2].ID)

	got, err = m.RecentRuns(ctx, "b", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "hist", "runs.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	exerciseStore(t, st)
	require.NoError(t, st.Close())
	assert.ErrorIs(t, st.AppendRun(context.Background(), run("a", 99)), ErrClosed)

	// Reopen replays the journal.
	st, err = Open(Config{Driver: "file", Path: path, HistorySize: 2}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	got, err := st.RecentRuns(context.Background(), "a", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a-4", got[0].ID)
}

func TestFileStoreCompacts(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	st, err := Open(Config{Driver: "file", Path: path, HistorySize: 5}, logx.Nop())
	require.NoError(t, err)
	ctx := context.Background()
	for i := 0; i < compactEvery+3; i++ {
		require.NoError(t, st.AppendRun(ctx, run("a", i)))
	}
	require.NoError(t, st.Close())

	mem := NewMemory(compactEvery * 2)
	require.NoError(t, replayRuns(path, mem))
	got, err := mem.RecentRuns(ctx, "a", 0)
	require.NoError(t, err)
	// 5 kept at compaction plus 3 appended after.
	assert.Len(t, got, 8)
	assert.Equal(t, fmt.Sprintf("a-%d", compactEvery+2), got[0].ID)
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "runs.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	exerciseStore(t, st)
}

func TestSQLitePrune(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "runs.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, HistorySize: 3}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		require.NoError(t, st.AppendRun(ctx, run("a", i)))
	}
	require.NoError(t, st.(*sqliteStore).prune(ctx))

	got, err := st.RecentRuns(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a-5", got[0].ID)
	assert.Equal(t, "a-3", got[2].ID)
}
