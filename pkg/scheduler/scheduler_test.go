package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronsched/internal/eventbus"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const everySecond = "* * * * * *"

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func record(s *Scheduler) *eventLog {
	l := &eventLog{}
	for _, k := range []EventKind{EventCreated, EventStarted, EventCompleted, EventError, EventStopped} {
		s.On(k, func(_ context.Context, e Event) {
			l.mu.Lock()
			l.events = append(l.events, e)
			l.mu.Unlock()
		})
	}
	return l
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

func (l *eventLog) kinds(id string) []EventKind {
	var out []EventKind
	for _, e := range l.all() {
		if e.JobID == id {
			out = append(out, e.Kind)
		}
	}
	return out
}

func (l *eventLog) count(id string, k EventKind) int {
	n := 0
	for _, got := range l.kinds(id) {
		if got == k {
			n++
		}
	}
	return n
}

func newFake(t *testing.T, zone string) (*Scheduler, *clockwork.FakeClock, *eventLog) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	s, err := New(zone, WithClock(clock))
	require.NoError(t, err)
	return s, clock, record(s)
}

func waitTimers(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, n))
}

func ok(v any) Resolver {
	return func(context.Context) (any, error) { return v, nil }
}

func waitKinds(t *testing.T, l *eventLog, id string, want ...EventKind) {
	t.Helper()
	require.Eventually(t, func() bool { return assert.ObjectsAreEqual(want, l.kinds(id)) },
		2*time.Second, time.Millisecond, "events: %v", l.kinds(id))
}

func TestNewRejectsInvalidTimeZone(t *testing.T) {
	t.Parallel()
	for _, zone := range []string{"", "Not/AZone", "America/Nowhere", "UTC+99"} {
		s, err := New(zone)
		assert.ErrorIs(t, err, ErrInvalidTimeZone, zone)
		assert.Nil(t, s)
	}
}

func TestTimeZoneReturnedVerbatim(t *testing.T) {
	t.Parallel()
	for _, zone := range []string{"America/New_York", "UTC", "Asia/Jakarta", "Local"} {
		s, err := New(zone)
		require.NoError(t, err)
		require.NoError(t, s.Schedule("a", Cron(everySecond), ok(nil), JobOptions{TimeZone: "Europe/Paris"}))
		assert.Equal(t, zone, s.TimeZone())
	}
}

func TestScheduleRejectsMalformedExpression(t *testing.T) {
	t.Parallel()
	s, _, log := newFake(t, "UTC")
	require.NoError(t, s.Schedule("keep", Cron(everySecond), ok(nil), JobOptions{}))

	for _, expr := range []Expression{Cron("* /*/* *"), Cron(""), Cron("0 99 * * *"), At(time.Time{})} {
		err := s.Schedule("bad", expr, ok(nil), JobOptions{Start: true})
		assert.ErrorIs(t, err, ErrInvalidExpression, expr.String())
	}
	assert.Equal(t, []string{"keep"}, s.ListIDs())
	assert.Empty(t, log.kinds("bad"))
}

func TestScheduleRejectsInvalidJobs(t *testing.T) {
	t.Parallel()
	s, _, log := newFake(t, "UTC")

	assert.ErrorIs(t, s.Schedule(" ", Cron(everySecond), ok(nil), JobOptions{}), ErrInvalidJob)
	assert.ErrorIs(t, s.Schedule("nil", Cron(everySecond), nil, JobOptions{}), ErrInvalidJob)
	assert.ErrorIs(t, s.Schedule("tz", Cron(everySecond), ok(nil), JobOptions{TimeZone: "Mars/Olympus"}), ErrInvalidTimeZone)

	require.NoError(t, s.Schedule("dup", Cron(everySecond), ok(nil), JobOptions{}))
	assert.ErrorIs(t, s.Schedule("dup", Cron("@hourly"), ok(nil), JobOptions{}), ErrDuplicateID)

	assert.Equal(t, []string{"dup"}, s.ListIDs())
	assert.Len(t, log.all(), 1)
	info, err := s.Get("dup")
	require.NoError(t, err)
	assert.Equal(t, everySecond, info.Expression.Pattern())
}

func TestScheduleEmitsCreatedSynchronously(t *testing.T) {
	t.Parallel()
	s, _, log := newFake(t, "UTC")

	require.NoError(t, s.Schedule("a", Cron(everySecond), ok(nil), JobOptions{}))
	assert.Equal(t, []EventKind{EventCreated}, log.kinds("a"))

	require.NoError(t, s.Schedule("b", Cron(everySecond), ok(nil), JobOptions{Start: true}))
	assert.Equal(t, []EventKind{EventCreated}, log.kinds("b"))

	info, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, StateCreated, info.State)
	info, err = s.Get("b")
	require.NoError(t, err)
	assert.Equal(t, StateArmed, info.State)
	assert.True(t, info.Next.Equal(epoch.Add(time.Second)))
}

func TestPerSecondJobSuccess(t *testing.T) {
	t.Parallel()
	s, clock, log := newFake(t, "UTC")

	require.NoError(t, s.Schedule("tick", Cron(everySecond), ok("pong"), JobOptions{Start: true, Name: "ticker"}))
	waitTimers(t, clock, 1)
	clock.Advance(time.Second)

	waitKinds(t, log, "tick", EventCreated, EventStarted, EventCompleted)
	evs := log.all()
	assert.Equal(t, "pong", evs[2].Result)
	assert.Equal(t, "ticker", evs[2].Name)
	assert.Equal(t, uint64(1), evs[1].Run)
	assert.Equal(t, uint64(1), evs[2].Run)

	require.Eventually(t, func() bool {
		info, err := s.Get("tick")
		return err == nil && info.State == StateIdle
	}, time.Second, time.Millisecond)
	info, err := s.Get("tick")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Runs)
	assert.Len(t, info.History, 1)
}

func TestPerSecondJobFailure(t *testing.T) {
	t.Parallel()
	s, clock, log := newFake(t, "UTC")
	boom := errors.New("boom")

	require.NoError(t, s.Schedule("tick", Cron(everySecond), func(context.Context) (any, error) {
		return nil, boom
	}, JobOptions{Start: true}))
	waitTimers(t, clock, 1)
	clock.Advance(time.Second)

	waitKinds(t, log, "tick", EventCreated, EventStarted, EventError)
	err := log.all()[2].Err
	assert.ErrorIs(t, err, ErrResolverFailure)
	assert.ErrorIs(t, err, boom)

	var rerr *ResolverError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "tick", rerr.JobID)
	assert.Equal(t, uint64(1), rerr.Run)

	require.Eventually(t, func() bool {
		info, _ := s.Get("tick")
		return info.Failures == 1 && info.LastError != ""
	}, time.Second, time.Millisecond)
}

func TestResolverPanicBecomesError(t *testing.T) {
	t.Parallel()
	s, clock, log := newFake(t, "UTC")

	require.NoError(t, s.Schedule("p", Cron(everySecond), func(context.Context) (any, error) {
		panic("resolver bug")
	}, JobOptions{Start: true}))
	waitTimers(t, clock, 1)
	clock.Advance(time.Second)

	waitKinds(t, log, "p", EventCreated, EventStarted, EventError)
	assert.ErrorIs(t, log.all()[2].Err, ErrResolverFailure)

	// the job keeps its timer
	waitTimers(t, clock, 1)
	clock.Advance(time.Second)
	waitKinds(t, log, "p", EventCreated, EventStarted, EventError, EventStarted, EventError)
}

func TestGetAndDeleteUnknown(t *testing.T) {
	t.Parallel()
	s, _, _ := newFake(t, "UTC")

	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Start("missing"), ErrNotFound)
	assert.ErrorIs(t, s.Stop(context.Background(), "missing"), ErrNotFound)

	present, err := s.Delete(context.Background(), "missing")
	assert.NoError(t, err)
	assert.False(t, present)
}

func TestStartIsIdempotent(t *testing.T) {
	t.Parallel()
	s, clock, log := newFake(t, "UTC")

	require.NoError(t, s.Schedule("once", Cron(everySecond), ok(1), JobOptions{}))
	require.NoError(t, s.Schedule("twice", Cron(everySecond), ok(1), JobOptions{}))
	require.NoError(t, s.Start("once"))
	require.NoError(t, s.Start("twice"))
	require.NoError(t, s.Start("twice"))

	waitTimers(t, clock, 2)
	clock.Advance(time.Second)

	waitKinds(t, log, "once", EventCreated, EventStarted, EventCompleted)
	waitKinds(t, log, "twice", EventCreated, EventStarted, EventCompleted)
	waitTimers(t, clock, 2)
}

func TestDeleteAfterStopEmitsStoppedOnce(t *testing.T) {
	t.Parallel()
	s, clock, log := newFake(t, "UTC")
	ctx := context.Background()

	require.NoError(t, s.Schedule("a", Cron(everySecond), ok(nil), JobOptions{Start: true}))
	waitTimers(t, clock, 1)
	clock.Advance(time.Second)
	waitKinds(t, log, "a", EventCreated, EventStarted, EventCompleted)

	require.NoError(t, s.Stop(ctx, "a"))
	require.NoError(t, s.Stop(ctx, "a"))
	info, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, info.State)
	assert.True(t, info.Next.IsZero())

	present, err := s.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, present)

	assert.Equal(t, 1, log.count("a", EventStopped))
	_, err = s.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, s.ListIDs())

	present, err = s.Delete(ctx, "a")
	require.NoError(t, err)
	assert.False(t, present)
}

func TestDeleteRunningJobStopsIt(t *testing.T) {
	t.Parallel()
	s, clock, log := newFake(t, "UTC")

	require.NoError(t, s.Schedule("a", Cron(everySecond), ok(nil), JobOptions{Start: true}))
	waitTimers(t, clock, 1)

	present, err := s.Delete(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, []EventKind{EventCreated, EventStopped}, log.kinds("a"))
	waitTimers(t, clock, 0)

	clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, log.count("a", EventStarted))
}

func TestStopWaitsForInFlightRun(t *testing.T) {
	t.Parallel()
	s, clock, log := newFake(t, "UTC")
	release := make(chan struct{})
	entered := make(chan struct{})

	require.NoError(t, s.Schedule("slow", Cron(everySecond), func(context.Context) (any, error) {
		close(entered)
		<-release
		return "done", nil
	}, JobOptions{Start: true}))
	waitTimers(t, clock, 1)
	clock.Advance(time.Second)
	<-entered

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop(context.Background(), "slow") }()

	select {
	case <-stopped:
		t.Fatal("stop returned while the run was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	// disarmed right away
	waitTimers(t, clock, 0)

	close(release)
	require.NoError(t, <-stopped)
	assert.Equal(t, []EventKind{EventCreated, EventStarted, EventCompleted, EventStopped}, log.kinds("slow"))
}

func TestStopHonoursContext(t *testing.T) {
	t.Parallel()
	s, clock, log := newFake(t, "UTC")
	release := make(chan struct{})
	entered := make(chan struct{})

	require.NoError(t, s.Schedule("slow", Cron(everySecond), func(context.Context) (any, error) {
		close(entered)
		<-release
		return nil, nil
	}, JobOptions{Start: true}))
	waitTimers(t, clock, 1)
	clock.Advance(time.Second)
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx, "slow"), context.DeadlineExceeded)
	assert.ErrorIs(t, s.Start("slow"), ErrStopping)

	close(release)
	waitKinds(t, log, "slow", EventCreated, EventStarted, EventCompleted, EventStopped)
}

func TestStopFromInsideResolver(t *testing.T) {
	t.Parallel()
	s, clock, log := newFake(t, "UTC")

	require.NoError(t, s.Schedule("self", Cron(everySecond), func(ctx context.Context) (any, error) {
		return nil, s.Stop(ctx, "self")
	}, JobOptions{Start: true}))
	waitTimers(t, clock, 1)
	clock.Advance(time.Second)

	waitKinds(t, log, "self", EventCreated, EventStarted, EventCompleted, EventStopped)
	info, err := s.Get("self")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, info.State)
}

func TestDeleteFromStoppedHandler(t *testing.T) {
	t.Parallel()
	s, _, log := newFake(t, "UTC")
	s.On(EventStopped, func(ctx context.Context, e Event) {
		_, _ = s.Delete(ctx, e.JobID)
	})

	require.NoError(t, s.Schedule("a", Cron(everySecond), ok(nil), JobOptions{}))
	require.NoError(t, s.Stop(context.Background(), "a"))

	assert.Equal(t, []EventKind{EventCreated, EventStopped}, log.kinds("a"))
	_, err := s.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStopCreatedJob(t *testing.T) {
	t.Parallel()
	s, _, log := newFake(t, "UTC")

	require.NoError(t, s.Schedule("a", Cron(everySecond), ok(nil), JobOptions{}))
	require.NoError(t, s.Stop(context.Background(), "a"))
	assert.Equal(t, []EventKind{EventCreated, EventStopped}, log.kinds("a"))

	// restartable
	require.NoError(t, s.Start("a"))
	info, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, StateArmed, info.State)
}

func TestWaitForCompletionSkipsOverlappingFires(t *testing.T) {
	t.Parallel()
	s, clock, log := newFake(t, "UTC")
	release := make(chan struct{})
	var calls atomic.Int32

	require.NoError(t, s.Schedule("single", Cron(everySecond), func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return nil, nil
	}, JobOptions{Start: true, WaitForCompletion: true}))

	waitTimers(t, clock, 1)
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	waitTimers(t, clock, 1)
	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		info, _ := s.Get("single")
		return info.Overlaps == 1
	}, time.Second, time.Millisecond)

	info, err := s.Get("single")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, info.State)

	close(release)
	waitKinds(t, log, "single", EventCreated, EventStarted, EventCompleted)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOverlappingRunsDeliverEventsInFireOrder(t *testing.T) {
	t.Parallel()
	s, clock, log := newFake(t, "UTC")
	release := make(chan struct{})
	var calls atomic.Int32

	require.NoError(t, s.Schedule("multi", Cron(everySecond), func(context.Context) (any, error) {
		n := calls.Add(1)
		if n == 1 {
			<-release
		}
		return n, nil
	}, JobOptions{Start: true}))

	waitTimers(t, clock, 1)
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	waitTimers(t, clock, 1)
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)

	// run 2 is done but must not complete before run 1
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []EventKind{EventCreated, EventStarted, EventStarted}, log.kinds("multi"))

	close(release)
	waitKinds(t, log, "multi", EventCreated, EventStarted, EventStarted, EventCompleted, EventCompleted)

	evs := log.all()
	assert.Equal(t, uint64(1), evs[3].Run)
	assert.Equal(t, int32(1), evs[3].Result)
	assert.Equal(t, uint64(2), evs[4].Run)
}

func TestMisfireSkipsLateWakeUp(t *testing.T) {
	t.Parallel()
	s, clock, log := newFake(t, "UTC")

	require.NoError(t, s.Schedule("late", Cron(everySecond), ok(nil), JobOptions{Start: true}))
	waitTimers(t, clock, 1)
	clock.Advance(1500 * time.Millisecond)

	require.Eventually(t, func() bool {
		info, _ := s.Get("late")
		return info.Misfires == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []EventKind{EventCreated}, log.kinds("late"))

	waitTimers(t, clock, 1)
	clock.Advance(500 * time.Millisecond)
	waitKinds(t, log, "late", EventCreated, EventStarted, EventCompleted)
}

func TestStrictThresholdSkipsAnyLateness(t *testing.T) {
	t.Parallel()
	s, clock, log := newFake(t, "UTC")

	require.NoError(t, s.Schedule("strict", Cron(everySecond), ok(nil), JobOptions{Start: true, Threshold: StrictThreshold}))
	info, err := s.Get("strict")
	require.NoError(t, err)
	assert.Zero(t, info.Options.Threshold)

	// 100ms late passes the default threshold but not a strict one
	waitTimers(t, clock, 1)
	clock.Advance(1100 * time.Millisecond)
	require.Eventually(t, func() bool {
		info, _ := s.Get("strict")
		return info.Misfires == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []EventKind{EventCreated}, log.kinds("strict"))

	waitTimers(t, clock, 1)
	clock.Advance(900 * time.Millisecond)
	waitKinds(t, log, "strict", EventCreated, EventStarted, EventCompleted)
}

func TestMisfireDisabledWithNegativeThreshold(t *testing.T) {
	t.Parallel()
	s, clock, log := newFake(t, "UTC")

	require.NoError(t, s.Schedule("late", Cron(everySecond), ok(nil), JobOptions{Start: true, Threshold: -1}))
	waitTimers(t, clock, 1)
	clock.Advance(1900 * time.Millisecond)
	waitKinds(t, log, "late", EventCreated, EventStarted, EventCompleted)
}

func TestOneShotJob(t *testing.T) {
	t.Parallel()
	s, clock, log := newFake(t, "UTC")

	require.NoError(t, s.Schedule("once", At(epoch.Add(2*time.Second)), ok("x"), JobOptions{Start: true}))
	waitTimers(t, clock, 1)
	clock.Advance(2 * time.Second)

	waitKinds(t, log, "once", EventCreated, EventStarted, EventCompleted, EventStopped)
	info, err := s.Get("once")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, info.State)
	waitTimers(t, clock, 0)
}

func TestOneShotInThePastBeyondThreshold(t *testing.T) {
	t.Parallel()
	s, _, log := newFake(t, "UTC")

	require.NoError(t, s.Schedule("past", At(epoch.Add(-time.Hour)), ok(nil), JobOptions{Start: true}))
	waitKinds(t, log, "past", EventCreated, EventStopped)

	info, err := s.Get("past")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Misfires)
	assert.Zero(t, info.Runs)
}

func TestRunOnInit(t *testing.T) {
	t.Parallel()
	s, _, log := newFake(t, "UTC")

	require.NoError(t, s.Schedule("init", Cron("@daily"), ok("boot"), JobOptions{RunOnInit: true}))
	waitKinds(t, log, "init", EventCreated, EventStarted, EventCompleted)

	require.Eventually(t, func() bool {
		info, _ := s.Get("init")
		return info.State == StateCreated
	}, time.Second, time.Millisecond)
}

func TestPerJobTimeZone(t *testing.T) {
	t.Parallel()
	s, _, _ := newFake(t, "UTC")

	require.NoError(t, s.Schedule("ny", Cron("0 0 9 * * *"), ok(nil), JobOptions{Start: true, TimeZone: "America/New_York"}))
	require.NoError(t, s.Schedule("utc", Cron("0 0 9 * * *"), ok(nil), JobOptions{Start: true}))

	ny, err := s.Get("ny")
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", ny.TimeZone)
	assert.True(t, ny.Next.Equal(time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)), "got %s", ny.Next)

	utc, err := s.Get("utc")
	require.NoError(t, err)
	assert.Equal(t, "UTC", utc.TimeZone)
	assert.True(t, utc.Next.Equal(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)), "got %s", utc.Next)
}

func TestHandlerPanicIsIsolated(t *testing.T) {
	t.Parallel()
	s, _, log := newFake(t, "UTC")
	s.On(EventCreated, func(context.Context, Event) { panic("observer bug") })
	var after atomic.Bool
	s.On(EventCreated, func(context.Context, Event) { after.Store(true) })

	require.NoError(t, s.Schedule("a", Cron(everySecond), ok(nil), JobOptions{}))
	assert.True(t, after.Load())
	assert.Equal(t, []EventKind{EventCreated}, log.kinds("a"))
	assert.Equal(t, []string{"a"}, s.ListIDs())
}

func TestRemoveAllListeners(t *testing.T) {
	t.Parallel()
	s, _, log := newFake(t, "UTC")
	s.RemoveAllListeners()

	require.NoError(t, s.Schedule("a", Cron(everySecond), ok(nil), JobOptions{}))
	assert.Empty(t, log.all())
}

func TestListOrdering(t *testing.T) {
	t.Parallel()
	s, _, _ := newFake(t, "UTC")
	assert.NotNil(t, s.ListIDs())
	assert.Empty(t, s.List())

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.Schedule(id, Cron(everySecond), ok(nil), JobOptions{Name: "job " + id}))
	}
	assert.Equal(t, []string{"a", "b", "c"}, s.ListIDs())
	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, "job a", list[0].Name)
	assert.Equal(t, DefaultThreshold, list[0].Options.Threshold)
}

func TestShutdownStopsEveryJob(t *testing.T) {
	t.Parallel()
	s, clock, log := newFake(t, "UTC")
	for _, id := range []string{"a", "b"} {
		require.NoError(t, s.Schedule(id, Cron(everySecond), ok(nil), JobOptions{Start: true}))
	}
	waitTimers(t, clock, 2)

	require.NoError(t, s.Shutdown(context.Background()))
	waitTimers(t, clock, 0)
	for _, id := range []string{"a", "b"} {
		assert.Equal(t, []EventKind{EventCreated, EventStopped}, log.kinds(id))
	}
	assert.Len(t, s.ListIDs(), 2)
}

func TestEventsMirroredToBus(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe("job.", 8)
	defer unsub()

	s, err := New("UTC", WithClock(clockwork.NewFakeClockAt(epoch)), WithEventBus(bus))
	require.NoError(t, err)
	require.NoError(t, s.Schedule("a", Cron(everySecond), ok(nil), JobOptions{}))

	select {
	case ev := <-ch:
		assert.Equal(t, "job.created", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no bus event")
	}
}

func TestRunTimeout(t *testing.T) {
	t.Parallel()
	s, clock, log := newFake(t, "UTC")

	require.NoError(t, s.Schedule("t", Cron(everySecond), func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, JobOptions{Start: true, Timeout: 10 * time.Millisecond}))
	waitTimers(t, clock, 1)
	clock.Advance(time.Second)

	waitKinds(t, log, "t", EventCreated, EventStarted, EventError)
	assert.ErrorIs(t, log.all()[2].Err, context.DeadlineExceeded)
}
