package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, line []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(line, &m))
	return m
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel(" WARNING "))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("nonsense"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
}

func TestJSONLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "debug").With(Component("scheduler"))

	log.Warn("job failed", Job("a"), Run(3), Err(errors.New("boom")), Stack(" "))

	m := decode(t, buf.Bytes())
	assert.Equal(t, "warn", m["level"])
	assert.Equal(t, "job failed", m["message"])
	assert.Equal(t, "scheduler", m["component"])
	assert.Equal(t, "a", m["job"])
	assert.EqualValues(t, 3, m["run"])
	assert.Equal(t, "boom", m["err"])
	assert.NotContains(t, m, "stack")
	assert.Contains(t, m[zerolog.CallerFieldName], "logging_test.go:")
}

func TestWithDoesNotLeakIntoParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewJSON(&buf, "info")
	_ = parent.With(Job("child"))

	parent.Info("plain")
	assert.NotContains(t, decode(t, buf.Bytes()), "job")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "warn")
	log.Info("hidden")
	assert.Zero(t, buf.Len())
	log.Error("shown")
	assert.NotZero(t, buf.Len())
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var log Logger
	assert.True(t, log.IsZero())
	log.Error("dropped")
	assert.False(t, Nop().IsZero())
	assert.False(t, log.With(Job("a")).IsZero())
}

func TestServiceApplySwapsSinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	t.Cleanup(func() { _ = svc.Close() })

	derived := log.With(Component("app"))
	derived.Info("before")
	svc.Apply(Config{Level: "error", File: FileConfig{Enabled: true, Path: path}})
	derived.Info("after")
	derived.Error("kept")
	assert.Equal(t, "error", svc.Level())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "before", decode(t, []byte(lines[0]))["message"])
	assert.Equal(t, "kept", decode(t, []byte(lines[1]))["message"])
	assert.Equal(t, "app", decode(t, []byte(lines[1]))["component"])
}
