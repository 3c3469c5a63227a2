package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronsched/internal/config"
	"cronsched/internal/eventbus"
	"cronsched/internal/events"
	"cronsched/internal/storage"
	logx "cronsched/pkg/logx"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestJobSpec(t *testing.T) {
	t.Parallel()
	expr, opts, err := jobSpec(config.JobConfig{
		ID:                "a",
		Name:              "A",
		Schedule:          "cron:*/5 * * * *",
		Timezone:          "Asia/Jakarta",
		Start:             true,
		WaitForCompletion: true,
		Threshold:         "off",
		Timeout:           "30s",
	})
	require.NoError(t, err)
	assert.Equal(t, "*/5 * * * *", expr.Pattern())
	assert.Equal(t, "A", opts.Name)
	assert.True(t, opts.Start)
	assert.True(t, opts.WaitForCompletion)
	assert.Negative(t, opts.Threshold)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, "Asia/Jakarta", opts.TimeZone)

	_, _, err = jobSpec(config.JobConfig{Schedule: "whenever"})
	assert.Error(t, err)
	_, _, err = jobSpec(config.JobConfig{Schedule: "@hourly", Threshold: "soon"})
	assert.Error(t, err)
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	_, enabled, err := mapStorageConfig(&config.Config{})
	require.NoError(t, err)
	assert.False(t, enabled)

	sc, enabled, err := mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "SQLite", Path: "x.db", Retain: 7}})
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, storage.Config{Driver: "sqlite", Path: "x.db", BusyTimeout: time.Second, Retain: 7}, sc)

	sc, _, err = mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "file"}})
	require.NoError(t, err)
	assert.Equal(t, "./cronsched_runs", sc.Path)

	_, _, err = mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "sqlite"}})
	assert.Error(t, err)
}

func TestRecorderPairsRuns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "runs")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	bus := eventbus.New()
	ch, unsub := bus.Subscribe("job.", 16)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	publish := func(e events.Event) {
		bus.Publish(eventbus.Event{Type: events.Topic(e.Kind), Time: e.Time, Data: e})
	}
	publish(events.Event{Kind: events.Started, JobID: "a", Run: 1, Time: base})
	publish(events.Event{Kind: events.Started, JobID: "a", Run: 2, Time: base.Add(time.Second)})
	publish(events.Event{Kind: events.Error, JobID: "a", Run: 2, Time: base.Add(1500 * time.Millisecond), Err: assert.AnError})
	publish(events.Event{Kind: events.Completed, JobID: "a", Run: 1, Time: base.Add(2 * time.Second)})
	publish(events.Event{Kind: events.Started, JobID: "a", Run: 3, Time: base.Add(3 * time.Second)})
	publish(events.Event{Kind: events.Stopped, JobID: "a", Time: base.Add(4 * time.Second)})
	unsub()

	rec := newRecorder(st, logx.Nop())
	require.NoError(t, rec.run(ctx, ch))
	assert.Empty(t, rec.pending)

	runs, err := st.RecentRuns(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// newest start first
	assert.Equal(t, uint64(2), runs[0].Run)
	assert.False(t, runs[0].OK)
	assert.Equal(t, assert.AnError.Error(), runs[0].Error)
	assert.Equal(t, 500*time.Millisecond, runs[0].Took)
	assert.Equal(t, uint64(1), runs[1].Run)
	assert.True(t, runs[1].OK)
	assert.Equal(t, 2*time.Second, runs[1].Took)
	assert.NotEmpty(t, runs[1].ID)
}

func TestAppRunsAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cronsched.yaml")
	writeConfig(t, path, `
timezone: UTC
logging: { level: error }
storage: { driver: file, path: `+filepath.Join(dir, "runs")+` }
shutdown_timeout: 5s
jobs:
  - id: tick
    schedule: "* * * * * *"
    start: true
    threshold: "off"
    action: { type: log, message: tick }
  - id: later
    schedule: "@daily"
    action: { type: log }
`)

	a, err := NewApp(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, a.ShutdownTimeout())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	assert.Equal(t, []string{"later", "tick"}, a.Scheduler().ListIDs())

	require.Eventually(t, func() bool {
		runs, err := a.store.RecentRuns(ctx, "tick", 0)
		return err == nil && len(runs) > 0 && runs[0].OK
	}, 5*time.Second, 50*time.Millisecond)

	writeConfig(t, path, `
timezone: UTC
logging: { level: error }
storage: { driver: file, path: `+filepath.Join(dir, "runs")+` }
shutdown_timeout: 5s
jobs:
  - id: later
    schedule: "@hourly"
    action: { type: log }
  - id: fresh
    schedule: "at:2099-01-01T00:00:00Z"
    action: { type: log }
`)
	require.Eventually(t, func() bool {
		ids := a.Scheduler().ListIDs()
		return len(ids) == 2 && ids[0] == "fresh" && ids[1] == "later"
	}, 5*time.Second, 50*time.Millisecond)

	info, err := a.Scheduler().Get("later")
	require.NoError(t, err)
	assert.Equal(t, "@hourly", info.Expression.Pattern())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx, StopSIGTERM))
	assert.Nil(t, a.Err())
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeConfig(t, path, "timezone: Mars/Olympus\n")
	_, err := NewApp(path)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestCheck(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	writeConfig(t, path, `
timezone: UTC
jobs:
  - id: nine
    schedule: "0 9 * * *"
    timezone: America/New_York
    start: true
    action: { type: log }
  - id: once
    schedule: at:2020-01-01T00:00:00Z
    action: { type: exec, command: [/bin/true] }
`)
	var out strings.Builder
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, Check(&out, path, now, 2))

	s := out.String()
	assert.Contains(t, s, "config ok: 2 job(s), timezone UTC")
	assert.Contains(t, s, "- nine [log] 0 9 * * * (America/New_York, start)")
	assert.Contains(t, s, "2024-01-01T09:00:00-05:00")
	assert.Contains(t, s, "2024-01-02T09:00:00-05:00")
	assert.NotContains(t, s, "2024-01-03T09:00:00-05:00")
	assert.Contains(t, s, "2020-01-01T00:00:00Z (past)")
}
