package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"cronsched/internal/eventbus"
	"cronsched/internal/events"
	"cronsched/internal/storage"
	logx "cronsched/pkg/logx"
)

type runKey struct {
	job string
	run uint64
}

// recorder turns the mirrored job events into persisted run records. Started
// is paired with the run's Completed or Error by (job, run).
type recorder struct {
	store   storage.Store
	log     logx.Logger
	pending map[runKey]time.Time
}

func newRecorder(store storage.Store, log logx.Logger) *recorder {
	return &recorder{store: store, log: log, pending: map[runKey]time.Time{}}
}

// run drains ch until ctx is done or ch closes.
func (r *recorder) run(ctx context.Context, ch <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case be, ok := <-ch:
			if !ok {
				return nil
			}
			e, ok := be.Data.(events.Event)
			if !ok {
				continue
			}
			r.handle(ctx, e)
		}
	}
}

func (r *recorder) handle(ctx context.Context, e events.Event) {
	switch e.Kind {
	case events.Started:
		r.pending[runKey{e.JobID, e.Run}] = e.Time
	case events.Completed, events.Error:
		k := runKey{e.JobID, e.Run}
		started, ok := r.pending[k]
		delete(r.pending, k)
		if !ok {
			// Started was dropped by the bus
			started = e.Time
		}
		rec := storage.RunRecord{
			ID:         uuid.NewString(),
			JobID:      e.JobID,
			Name:       e.Name,
			Run:        e.Run,
			StartedAt:  started,
			FinishedAt: e.Time,
			Took:       e.Time.Sub(started),
			OK:         e.Kind == events.Completed,
		}
		if e.Err != nil {
			rec.Error = e.Err.Error()
		}
		if r.store == nil {
			return
		}
		wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := r.store.AppendRun(wctx, rec)
		cancel()
		if err != nil {
			r.log.Warn("run record failed", logx.Job(e.JobID), logx.Run(e.Run), logx.Err(err))
		}
	case events.Stopped:
		for k := range r.pending {
			if k.job == e.JobID {
				delete(r.pending, k)
			}
		}
	}
}
