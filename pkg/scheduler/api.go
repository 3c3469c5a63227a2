package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"cronsched/internal/cronexpr"
	"cronsched/internal/task/trigger"
	logx "cronsched/pkg/logx"
)

// Schedule validates expr and opts, registers the job in StateCreated and
// emits Created before returning. With opts.Start the job is armed, with
// opts.RunOnInit one run is fired asynchronously.
//
// On any error nothing is registered and no event is emitted.
func (s *Scheduler) Schedule(id string, expr Expression, fn Resolver, opts JobOptions) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id required", ErrInvalidJob)
	}
	if fn == nil {
		return fmt.Errorf("%w: resolver required for %q", ErrInvalidJob, id)
	}
	sched, err := cronexpr.Validate(expr)
	if err != nil {
		return err
	}
	ro, err := resolveOptions(s.zone, s.loc, opts)
	if err != nil {
		return err
	}

	j := newJob(id, expr, sched, fn, ro)
	j.trig = trigger.New(trigger.Config{
		Clock:       s.clock,
		Schedule:    sched,
		Location:    ro.location,
		Threshold:   ro.Threshold,
		OnFire:      func(at time.Time) { s.fire(j, at, false) },
		OnMisfire:   func(at, woke time.Time) { s.misfire(j, at, woke) },
		OnExhausted: func() { s.exhausted(j) },
	})

	s.mu.Lock()
	if _, exists := s.jobs[id]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	s.jobs[id] = j
	s.mu.Unlock()

	s.log.Debug("job registered",
		logx.Job(id),
		logx.String("name", ro.Name),
		logx.String("expr", expr.String()),
		logx.String("tz", ro.TimeZone),
		logx.Bool("wait_for_completion", ro.WaitForCompletion),
	)
	s.emit(withJob(s.ctx, j), j, EventCreated, 0, s.clock.Now(), nil, nil)
	close(j.created)

	if ro.Start {
		if err := s.startJob(j); err != nil && !errors.Is(err, ErrStopping) {
			s.log.Warn("job start failed", logx.Job(id), logx.Err(err))
		}
	}
	if ro.RunOnInit {
		go s.fire(j, s.clock.Now(), true)
	}
	return nil
}

// Start arms the job. Starting an armed job is a no-op. It returns
// ErrNotFound for an unknown or deleted id and ErrStopping while a Stop of
// the same job is still waiting for in-flight runs.
func (s *Scheduler) Start(id string) error {
	j, err := s.lookup(id)
	if err != nil {
		return err
	}
	return s.startJob(j)
}

func (s *Scheduler) startJob(j *job) error {
	j.mu.Lock()
	switch {
	case j.deleting || j.state == StateDeleted:
		j.mu.Unlock()
		return notFound(j.id)
	case j.stopping:
		j.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrStopping, j.id)
	case j.armed:
		j.mu.Unlock()
		return nil
	}
	j.armed = true
	if j.state != StateRunning {
		j.state = StateArmed
	}
	j.mu.Unlock()

	if err := j.trig.Arm(); err != nil {
		if errors.Is(err, trigger.ErrExhausted) {
			s.log.Warn("job has no future fire instant, stopping", logx.Job(j.id), logx.String("expr", j.expr.String()))
			s.beginStop(j, false)
			return nil
		}
		return err
	}
	s.log.Debug("job armed", logx.Job(j.id), logx.Time("next", j.trig.Next()))
	return nil
}

// Stop disarms the job so no new fire starts after it returns, then waits
// until in-flight runs have delivered their terminal event and Stopped has
// been emitted. Stopping a stopped job is a no-op.
//
// Called from the job's own resolver or event handler (ctx derived from the
// one the scheduler passed in), Stop disarms and returns without waiting;
// Stopped follows once the current run finishes.
func (s *Scheduler) Stop(ctx context.Context, id string) error {
	j, err := s.lookup(id)
	if err != nil {
		return err
	}
	return s.stopJob(ctx, j, false)
}

// Delete removes the job from the registry and stops it. It reports whether
// the id was registered; unknown ids are not an error.
func (s *Scheduler) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
	}
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	s.log.Debug("job deleted", logx.Job(id))
	return true, s.stopJob(ctx, j, true)
}

func (s *Scheduler) stopJob(ctx context.Context, j *job, del bool) error {
	done := s.beginStop(j, del)
	if done == nil || insideJob(ctx, j) {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// beginStop disarms j and starts the goroutine that emits Stopped once j has
// no run in flight. It returns the channel closed after Stopped, or nil when
// there is nothing left to wait for.
func (s *Scheduler) beginStop(j *job, del bool) <-chan struct{} {
	j.mu.Lock()
	if del {
		j.deleting = true
	}
	if j.stopping {
		done := j.stopDone
		j.mu.Unlock()
		return done
	}
	if j.state == StateStopped || j.state == StateDeleted {
		if del {
			j.state = StateDeleted
		}
		j.mu.Unlock()
		return nil
	}
	j.stopping = true
	j.armed = false
	done := make(chan struct{})
	j.stopDone = done
	j.mu.Unlock()

	j.trig.Disarm()
	go s.finishStop(j, done)
	return done
}

func (s *Scheduler) finishStop(j *job, done chan struct{}) {
	<-j.created
	j.waitIdle()

	j.mu.Lock()
	j.state = StateStopped
	j.stopping = false
	j.mu.Unlock()

	s.log.Debug("job stopped", logx.Job(j.id))
	s.emit(withJob(s.ctx, j), j, EventStopped, 0, s.clock.Now(), nil, nil)

	j.mu.Lock()
	if j.deleting {
		j.state = StateDeleted
	}
	j.mu.Unlock()
	close(done)
}

func (s *Scheduler) Get(id string) (JobInfo, error) {
	j, err := s.lookup(id)
	if err != nil {
		return JobInfo{}, err
	}
	return j.info(), nil
}

// List returns a snapshot of every job, ordered by id.
func (s *Scheduler) List() []JobInfo {
	jobs := s.snapshotJobs()
	out := make([]JobInfo, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.info())
	}
	return out
}

// ListIDs returns every job id in ascending order. Never nil.
func (s *Scheduler) ListIDs() []string {
	jobs := s.snapshotJobs()
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.id)
	}
	return out
}

// Shutdown stops every job and waits for in-flight runs, bounded by ctx.
// Jobs stay registered.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	jobs := s.snapshotJobs()
	s.log.Info("shutdown requested", logx.Int("jobs", len(jobs)))

	g, gctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		g.Go(func() error { return s.stopJob(gctx, j, false) })
	}
	return g.Wait()
}

func (s *Scheduler) lookup(id string) (*job, error) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return nil, notFound(id)
	}
	return j, nil
}

func (s *Scheduler) snapshotJobs() []*job {
	s.mu.Lock()
	out := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	s.mu.Unlock()
	sort.Slice(out, func(a, b int) bool { return out[a].id < out[b].id })
	return out
}
