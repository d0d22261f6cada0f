package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
scheduler: { timezone: UTC }
jobs:
  - id: backup
    schedule: "cron:0 3 * * *"
    max_runs: 2
    command: "true"
  - id: hello
    schedule: "every:1h"
    message: hi
`

// execute runs the root command. The --config flag is a package global, so
// these tests do not run in parallel.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func configFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pewsched.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestValidateCmd(t *testing.T) {
	out, err := execute(t, "validate", "--config", configFile(t, testConfig))
	require.NoError(t, err)
	assert.Contains(t, out, "ok (2 jobs)")

	_, err = execute(t, "validate", "--config", configFile(t, "jobs: [{id: x, schedule: 'cron:bad', message: m}]"))
	assert.Error(t, err)
}

func TestNextCmdHonorsMaxRuns(t *testing.T) {
	out, err := execute(t, "next", "--config", configFile(t, testConfig), "-n", "4", "backup")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3, out) // header + two capped runs
	assert.Contains(t, lines[1], "backup")
	assert.Contains(t, lines[1], "T03:00:00Z")
	assert.NotContains(t, out, "hello")
}

func TestHistoryNeedsStorage(t *testing.T) {
	_, err := execute(t, "history", "--config", configFile(t, testConfig))
	assert.Error(t, err)
}

func TestHistoryReadsFileStore(t *testing.T) {
	dir := t.TempDir()
	body := testConfig + "storage: { driver: file, path: " + filepath.Join(dir, "runs.jsonl") + " }\n"
	out, err := execute(t, "history", "--config", configFile(t, body))
	require.NoError(t, err)
	assert.Contains(t, out, "STARTED")
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version, strings.TrimSpace(out))
}
