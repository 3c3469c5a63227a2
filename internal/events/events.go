// Package events publishes job lifecycle notifications to registered handlers.
//
// Handlers are kept in one list per Kind. Emit calls them synchronously, in
// registration order, on the emitting goroutine. A panicking handler is
// recovered and logged; the remaining handlers still run.
package events

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"cronsched/internal/eventbus"
	logx "cronsched/pkg/logx"
)

type Kind int

const (
	Created Kind = iota
	Started
	Completed
	Error
	Stopped

	numKinds
)

var kindNames = [numKinds]string{"created", "started", "completed", "error", "stopped"}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

func (k Kind) Valid() bool { return k >= 0 && k < numKinds }

// Kinds lists every event kind in declaration order.
func Kinds() []Kind { return []Kind{Created, Started, Completed, Error, Stopped} }

// Event is the payload delivered to handlers.
//
// Result is set for Completed, Err for Error. Run is the per-job fire sequence
// number (0 for Created/Stopped).
type Event struct {
	Kind   Kind
	JobID  string
	Name   string
	Run    uint64
	Time   time.Time
	Result any
	Err    error
}

// Handler receives events. ctx is the context of the operation that emitted
// the event (the run context for Started/Completed/Error).
type Handler func(ctx context.Context, e Event)

type entry struct {
	id uint64
	fn Handler
}

// Notifier holds the handler lists.
type Notifier struct {
	mu       sync.RWMutex
	handlers [numKinds][]entry
	seq      uint64

	log    logx.Logger
	bus    eventbus.Bus
	panics atomic.Uint64
}

func NewNotifier(log logx.Logger, bus eventbus.Bus) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{log: log, bus: bus}
}

// On registers h for kind and returns a func that removes it.
// Unknown kinds and nil handlers are ignored.
func (n *Notifier) On(kind Kind, h Handler) (remove func()) {
	if !kind.Valid() || h == nil {
		return func() {}
	}
	n.mu.Lock()
	n.seq++
	id := n.seq
	n.handlers[kind] = append(n.handlers[kind], entry{id: id, fn: h})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			list := n.handlers[kind]
			for i, e := range list {
				if e.id == id {
					n.handlers[kind] = append(list[:i:i], list[i+1:]...)
					return
				}
			}
		})
	}
}

// RemoveAll drops every handler of every kind.
func (n *Notifier) RemoveAll() {
	n.mu.Lock()
	for k := range n.handlers {
		n.handlers[k] = nil
	}
	n.mu.Unlock()
}

// Count returns the number of handlers registered for kind.
func (n *Notifier) Count(kind Kind) int {
	if !kind.Valid() {
		return 0
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.handlers[kind])
}

// Panics returns how many handler panics were recovered.
func (n *Notifier) Panics() uint64 { return n.panics.Load() }

func (n *Notifier) Emit(ctx context.Context, e Event) {
	if !e.Kind.Valid() {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	n.mu.RLock()
	list := n.handlers[e.Kind]
	n.mu.RUnlock()

	// list is never mutated in place (On appends, remove copies), so no copy is needed.
	for _, h := range list {
		n.call(ctx, h, e)
	}

	if n.bus != nil {
		n.bus.Publish(eventbus.Event{Type: Topic(e.Kind), Time: e.Time, Data: e})
	}
}

func (n *Notifier) call(ctx context.Context, h entry, e Event) {
	defer func() {
		if r := recover(); r != nil {
			n.panics.Add(1)
			n.log.Error("event handler panic",
				logx.String("event", e.Kind.String()),
				logx.Job(e.JobID),
				logx.Uint64("handler", h.id),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()
	h.fn(ctx, e)
}

// Topic is the eventbus type used when mirroring e.g. "job.completed".
func Topic(k Kind) string { return "job." + k.String() }
