package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"cronsched/internal/cronexpr"
	"cronsched/internal/eventbus"
	"cronsched/internal/events"
	"cronsched/internal/task/engine"
	"cronsched/internal/tzone"
	logx "cronsched/pkg/logx"
)

type (
	Expression  = cronexpr.Expression
	Event       = events.Event
	EventKind   = events.Kind
	Handler     = events.Handler
	HistoryItem = engine.HistoryItem

	// Resolver is the work run on every fire. A returned value is delivered in
	// the Completed event, an error (or panic) in the Error event.
	Resolver = engine.Func
)

const (
	EventCreated   = events.Created
	EventStarted   = events.Started
	EventCompleted = events.Completed
	EventError     = events.Error
	EventStopped   = events.Stopped
)

// Cron builds a recurring expression (5 or 6 fields, or an @descriptor).
func Cron(pattern string) Expression { return cronexpr.Cron(pattern) }

// At builds a one-shot expression.
func At(t time.Time) Expression { return cronexpr.At(t) }

// ParseExpression accepts "cron:<pattern>", "at:<RFC3339>", a bare RFC3339
// timestamp or a bare cron pattern.
func ParseExpression(raw string) (Expression, error) { return cronexpr.ParseExpression(raw) }

const misfireWarnEvery = time.Minute

type settings struct {
	log   logx.Logger
	clock clockwork.Clock
	bus   eventbus.Bus
	ctx   context.Context
}

type Option func(*settings)

func WithLogger(l logx.Logger) Option { return func(s *settings) { s.log = l } }

// WithClock replaces the wall clock, mostly for tests with a fake clock.
func WithClock(c clockwork.Clock) Option { return func(s *settings) { s.clock = c } }

// WithEventBus mirrors every lifecycle event onto bus.
func WithEventBus(b eventbus.Bus) Option { return func(s *settings) { s.bus = b } }

// WithContext sets the parent of every run context.
func WithContext(ctx context.Context) Option { return func(s *settings) { s.ctx = ctx } }

type Scheduler struct {
	zone string
	loc  *time.Location

	log      logx.Logger
	clock    clockwork.Clock
	ctx      context.Context
	notifier *events.Notifier

	mu   sync.Mutex
	jobs map[string]*job
}

// New returns a scheduler whose default zone is timeZone. An unknown zone
// fails with an error matching ErrInvalidTimeZone.
func New(timeZone string, opts ...Option) (*Scheduler, error) {
	st := settings{}
	for _, o := range opts {
		if o != nil {
			o(&st)
		}
	}
	loc, err := tzone.Load(timeZone)
	if err != nil {
		return nil, err
	}
	if st.log.IsZero() {
		st.log = logx.Nop()
	}
	if st.clock == nil {
		st.clock = clockwork.NewRealClock()
	}
	if st.ctx == nil {
		st.ctx = context.Background()
	}
	log := st.log.With(logx.Component("scheduler"))
	return &Scheduler{
		zone:     timeZone,
		loc:      loc,
		log:      log,
		clock:    st.clock,
		ctx:      st.ctx,
		notifier: events.NewNotifier(log, st.bus),
		jobs:     map[string]*job{},
	}, nil
}

// TimeZone returns the zone given to New, verbatim.
func (s *Scheduler) TimeZone() string { return s.zone }

// On registers h for kind and returns a func that removes it.
func (s *Scheduler) On(kind EventKind, h Handler) (remove func()) { return s.notifier.On(kind, h) }

func (s *Scheduler) RemoveAllListeners() { s.notifier.RemoveAll() }

func (s *Scheduler) emit(ctx context.Context, j *job, kind EventKind, run uint64, at time.Time, result any, err error) {
	s.notifier.Emit(ctx, Event{
		Kind:   kind,
		JobID:  j.id,
		Name:   j.opts.Name,
		Run:    run,
		Time:   at,
		Result: result,
		Err:    err,
	})
}

type jobCtxKey struct{}

// withJob marks ctx as running on behalf of j (its resolver or an event
// handler for it). Stop and Delete use the mark to avoid waiting on themselves.
func withJob(ctx context.Context, j *job) context.Context {
	return context.WithValue(ctx, jobCtxKey{}, j)
}

func insideJob(ctx context.Context, j *job) bool {
	if ctx == nil {
		return false
	}
	cur, _ := ctx.Value(jobCtxKey{}).(*job)
	return cur == j
}
