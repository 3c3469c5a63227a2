package scheduler

import (
	"errors"
	"time"

	"cronsched/internal/task/engine"
	logx "cronsched/pkg/logx"
)

// fire runs one invocation of j. Timer fires require the job to be armed;
// manual fires (run on init) only require it not to be stopping.
//
// Runs are numbered in fire order. Started events are delivered in that order,
// and so are Completed/Error events: a run that finishes early waits for the
// terminal event of every earlier run.
func (s *Scheduler) fire(j *job, scheduled time.Time, manual bool) {
	j.mu.Lock()
	if j.stopping || j.state == StateStopped || j.state == StateDeleted || (!manual && !j.armed) {
		j.mu.Unlock()
		return
	}
	if !j.gate.TryAcquire() {
		j.overlaps++
		j.mu.Unlock()
		s.log.Debug("fire skipped, previous run still in flight",
			logx.Job(j.id),
			logx.Time("scheduled", scheduled),
			logx.Any("err", engine.ErrOverlapSkip),
		)
		return
	}
	j.seq++
	run := j.seq
	j.active++
	j.state = StateRunning
	j.mu.Unlock()

	<-j.created
	ctx := withJob(s.ctx, j)

	j.awaitTurn(&j.startedMark, run)
	started := s.clock.Now()
	s.emit(ctx, j, EventStarted, run, started, nil, nil)
	j.pass(&j.startedMark, run)

	result, err := engine.Invoke(ctx, j.opts.Timeout, j.resolve)
	finished := s.clock.Now()
	took := finished.Sub(started)

	item := engine.HistoryItem{Run: run, Scheduled: scheduled, Started: started, Duration: took}
	if err != nil {
		err = &ResolverError{JobID: j.id, Run: run, Err: err}
		item.Error = err.Error()
		fields := []logx.Field{
			logx.Job(j.id),
			logx.Run(run),
			logx.Duration("took", took),
			logx.Err(err),
		}
		var pe *engine.PanicError
		if errors.As(err, &pe) {
			fields = append(fields, logx.Stack(pe.Stack))
		}
		s.log.Warn("resolver failed", fields...)
	}
	j.history.Add(item)

	j.mu.Lock()
	j.runs++
	if err != nil {
		j.failures++
		j.lastErr = err.Error()
	} else {
		j.lastErr = ""
	}
	j.lastStart = started
	j.lastEnd = finished
	j.lastTook = took
	j.mu.Unlock()

	j.awaitTurn(&j.doneMark, run)
	if err != nil {
		s.emit(ctx, j, EventError, run, finished, nil, err)
	} else {
		s.emit(ctx, j, EventCompleted, run, finished, result, nil)
	}

	j.mu.Lock()
	j.doneMark = run
	j.cond.Broadcast()
	j.active--
	if j.active == 0 && j.state == StateRunning && !j.stopping {
		j.state = j.restingLocked()
	}
	j.mu.Unlock()
	j.gate.Release()
}

func (s *Scheduler) misfire(j *job, scheduled, woke time.Time) {
	j.mu.Lock()
	j.misfires++
	j.mu.Unlock()

	if j.warn.AllowN(woke, 1) {
		s.log.Warn("fire skipped, wake-up later than threshold",
			logx.Job(j.id),
			logx.Time("scheduled", scheduled),
			logx.Duration("late", woke.Sub(scheduled)),
			logx.Duration("threshold", j.opts.Threshold),
		)
	}
}

// exhausted is called once the schedule has no further instants: after the
// single fire of a one-shot job, or when a recurring pattern stops matching.
func (s *Scheduler) exhausted(j *job) {
	s.log.Debug("schedule exhausted", logx.Job(j.id))
	s.beginStop(j, false)
}
