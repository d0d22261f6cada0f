package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()
	var l Logger
	assert.True(t, l.IsZero())
	// Must not panic.
	l.Info("ignored", String("k", "v"))
	assert.False(t, Nop().IsZero())
}

func TestJSONLoggerFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewJSON(&buf, "debug").With(String("job", "backup"))
	l.Warn("run failed", Int("attempt", 2), Duration("took", 1500*time.Millisecond), Err(errors.New("boom")))

	var m map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m))
	assert.Equal(t, "warn", m["level"])
	assert.Equal(t, "run failed", m["message"])
	assert.Equal(t, "backup", m["job"])
	assert.EqualValues(t, 2, m["attempt"])
	assert.Equal(t, "boom", m["err"])
	assert.Contains(t, m["caller"], "logger_test.go:")
}

func TestLevelFilter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewJSON(&buf, "warn")
	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())
	assert.True(t, l.Enabled(LevelError))
	assert.False(t, l.Enabled(LevelInfo))
}

func TestParseLevelFallback(t *testing.T) {
	t.Parallel()
	assert.Equal(t, LevelWarn, parseLevel(" warning ", LevelInfo))
	assert.Equal(t, LevelInfo, parseLevel("nope", LevelInfo))
}
