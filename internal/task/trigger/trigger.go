// Package trigger owns the pending timer of one job and turns its schedule into
// concrete fire instants.
//
// Recurring schedules re-arm for the following instant before the fire callback
// runs, so a slow callback never delays the next timer. One-shot schedules arm
// once and report exhaustion after their single fire (or skip).
package trigger

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"cronsched/internal/cronexpr"
)

// ErrExhausted is returned by Arm when the schedule has no further instants.
var ErrExhausted = errors.New("schedule has no further fire instants")

type Config struct {
	Clock    clockwork.Clock
	Schedule cronexpr.Schedule
	Location *time.Location

	// Threshold is the maximum allowed lateness of a wake-up. Later wake-ups are
	// reported through OnMisfire instead of OnFire. Negative disables the check.
	Threshold time.Duration

	OnFire      func(scheduled time.Time)
	OnMisfire   func(scheduled, woke time.Time)
	OnExhausted func()
}

type Trigger struct {
	cfg Config

	mu    sync.Mutex
	timer clockwork.Timer
	gen   uint64
	armed bool
	next  time.Time
}

func New(cfg Config) *Trigger {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Trigger{cfg: cfg}
}

// Arm installs the timer for the next instant after now. Arming an armed
// trigger is a no-op.
func (t *Trigger) Arm() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.armed {
		return nil
	}
	if !t.armLocked(t.cfg.Clock.Now()) {
		return ErrExhausted
	}
	return nil
}

// Disarm cancels the pending timer. A callback that already started is
// ignored through the generation check.
func (t *Trigger) Disarm() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed {
		return false
	}
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.armed = false
	t.next = time.Time{}
	return true
}

func (t *Trigger) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// Next returns the pending fire instant in the trigger's location (zero when disarmed).
func (t *Trigger) Next() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next
}

// Call with t.mu held.
func (t *Trigger) armLocked(from time.Time) bool {
	next := t.cfg.Schedule.Next(from.In(t.cfg.Location))
	if next.IsZero() {
		return false
	}
	delay := next.Sub(from)
	if delay < 0 {
		delay = 0
	}
	t.gen++
	gen := t.gen
	scheduled := next.In(t.cfg.Location)
	t.timer = t.cfg.Clock.AfterFunc(delay, func() { t.wake(gen, scheduled) })
	t.armed = true
	t.next = scheduled
	return true
}

func (t *Trigger) wake(gen uint64, scheduled time.Time) {
	t.mu.Lock()
	if gen != t.gen || !t.armed {
		t.mu.Unlock()
		return
	}
	woke := t.cfg.Clock.Now()
	exhausted := false
	if t.cfg.Schedule.Once() {
		t.timer = nil
		t.armed = false
		t.next = time.Time{}
		exhausted = true
	} else if !t.armLocked(woke) {
		t.timer = nil
		t.armed = false
		t.next = time.Time{}
		exhausted = true
	}
	t.mu.Unlock()

	if t.late(scheduled, woke) {
		if t.cfg.OnMisfire != nil {
			t.cfg.OnMisfire(scheduled, woke)
		}
	} else if t.cfg.OnFire != nil {
		t.cfg.OnFire(scheduled)
	}
	if exhausted && t.cfg.OnExhausted != nil {
		t.cfg.OnExhausted()
	}
}

func (t *Trigger) late(scheduled, woke time.Time) bool {
	if t.cfg.Threshold < 0 {
		return false
	}
	return woke.Sub(scheduled) > t.cfg.Threshold
}
