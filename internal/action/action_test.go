package action

import (
	"bytes"
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "pewsched/pkg/logx"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
}

func TestCommandParse(t *testing.T) {
	t.Parallel()
	_, err := Command("echo 'unterminated", logx.Nop())
	assert.Error(t, err)

	_, err = Command("   ", logx.Nop())
	assert.True(t, errors.Is(err, ErrEmptyCommand))
}

func TestCommandSuccessLogsOutput(t *testing.T) {
	t.Parallel()
	requireShell(t)
	var buf bytes.Buffer
	fn, err := Command(`sh -c 'echo "hello world"'`, logx.NewJSON(&buf, "debug"))
	require.NoError(t, err)
	require.NoError(t, fn(context.Background()))
	assert.Contains(t, buf.String(), "hello world")
	assert.Contains(t, buf.String(), "command output")
}

func TestCommandFailureCarriesOutput(t *testing.T) {
	t.Parallel()
	requireShell(t)
	fn, err := Command(`sh -c 'echo first; echo "disk full" >&2; exit 3'`, logx.Nop())
	require.NoError(t, err)
	err = fn(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
	assert.ErrorContains(t, err, "exit status 3")
}

func TestCommandHonorsContext(t *testing.T) {
	t.Parallel()
	requireShell(t)
	fn, err := Command("sleep 5", logx.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = fn(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestCommandNotFound(t *testing.T) {
	t.Parallel()
	fn, err := Command("definitely-not-a-real-binary-pewsched", logx.Nop())
	require.NoError(t, err)
	assert.Error(t, fn(context.Background()))
}

func TestLog(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	fn := Log("tick tock", logx.NewJSON(&buf, "info"))
	require.NoError(t, fn(context.Background()))
	assert.Equal(t, 1, strings.Count(buf.String(), "tick tock"))
}

func TestTailBuffer(t *testing.T) {
	t.Parallel()
	tb := &tailBuffer{limit: 8}
	_, _ = tb.Write([]byte("abcdef"))
	_, _ = tb.Write([]byte("ghij"))
	assert.Equal(t, "cdefghij", tb.String())

	n, _ := tb.Write([]byte("0123456789"))
	assert.Equal(t, 10, n)
	assert.Equal(t, "23456789", tb.String())
}
