package scheduler

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cronsched/internal/cronexpr"
	"cronsched/internal/task/engine"
	"cronsched/internal/task/trigger"
)

type State int

const (
	StateCreated State = iota
	StateArmed
	StateRunning
	StateIdle
	StateStopped
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateArmed:
		return "armed"
	case StateRunning:
		return "running"
	case StateIdle:
		return "idle"
	case StateStopped:
		return "stopped"
	case StateDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// JobInfo is a point-in-time snapshot of one job.
type JobInfo struct {
	ID         string
	Name       string
	Expression Expression
	TimeZone   string
	State      State
	Next       time.Time
	Options    ResolvedOptions

	Runs      uint64
	Failures  uint64
	Misfires  uint64
	Overlaps  uint64
	LastStart time.Time
	LastEnd   time.Time
	LastTook  time.Duration
	LastError string
	History   []HistoryItem
}

type job struct {
	id      string
	expr    Expression
	sched   cronexpr.Schedule
	resolve Resolver
	opts    ResolvedOptions

	trig    *trigger.Trigger
	gate    *engine.RunState
	history *engine.History
	warn    *rate.Limiter

	// closed once Created has been delivered; nothing else is emitted before it.
	created chan struct{}

	mu       sync.Mutex
	cond     *sync.Cond
	state    State
	armed    bool
	stopping bool
	deleting bool
	stopDone chan struct{}

	active      int
	seq         uint64 // last run number handed out
	startedMark uint64 // last run whose Started was delivered
	doneMark    uint64 // last run whose Completed/Error was delivered

	runs      uint64
	failures  uint64
	misfires  uint64
	overlaps  uint64
	lastStart time.Time
	lastEnd   time.Time
	lastTook  time.Duration
	lastErr   string
}

func newJob(id string, expr Expression, sched cronexpr.Schedule, fn Resolver, opts ResolvedOptions) *job {
	policy := engine.OverlapAllow
	if opts.WaitForCompletion {
		policy = engine.OverlapSkipIfRunning
	}
	j := &job{
		id:      id,
		expr:    expr,
		sched:   sched,
		resolve: fn,
		opts:    opts,
		gate:    engine.NewRunState(policy),
		history: engine.NewHistory(0),
		warn:    rate.NewLimiter(rate.Every(misfireWarnEvery), 1),
		created: make(chan struct{}),
		state:   StateCreated,
	}
	j.cond = sync.NewCond(&j.mu)
	return j
}

// restingLocked is the state a job returns to once no run is in flight.
func (j *job) restingLocked() State {
	if j.armed {
		return StateIdle
	}
	return StateCreated
}

// awaitTurn blocks until every earlier run has passed *mark.
func (j *job) awaitTurn(mark *uint64, run uint64) {
	j.mu.Lock()
	for *mark+1 < run {
		j.cond.Wait()
	}
	j.mu.Unlock()
}

func (j *job) pass(mark *uint64, run uint64) {
	j.mu.Lock()
	*mark = run
	j.cond.Broadcast()
	j.mu.Unlock()
}

// waitIdle blocks until no run of j is in flight.
func (j *job) waitIdle() {
	for {
		n, ch := j.gate.Changed()
		if n == 0 {
			return
		}
		<-ch
	}
}

func (j *job) info() JobInfo {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobInfo{
		ID:         j.id,
		Name:       j.opts.Name,
		Expression: j.expr,
		TimeZone:   j.opts.TimeZone,
		State:      j.state,
		Next:       j.trig.Next(),
		Options:    j.opts,
		Runs:       j.runs,
		Failures:   j.failures,
		Misfires:   j.misfires,
		Overlaps:   j.overlaps,
		LastStart:  j.lastStart,
		LastEnd:    j.lastEnd,
		LastTook:   j.lastTook,
		LastError:  j.lastErr,
		History:    j.history.Items(),
	}
}
