// Package cronexpr validates temporal expressions and turns them into schedules.
//
// An expression is either a recurring cron pattern (robfig/cron grammar, seconds
// optional, @descriptors allowed) or a single absolute instant.
package cronexpr

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidExpression matches every validation failure returned by Validate.
var ErrInvalidExpression = errors.New("invalid expression")

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Kind int

const (
	KindCron Kind = iota
	KindAt
)

func (k Kind) String() string {
	switch k {
	case KindCron:
		return "cron"
	case KindAt:
		return "at"
	default:
		return "unknown"
	}
}

// Expression is a temporal trigger specification. Build one with Cron or At.
type Expression struct {
	kind    Kind
	pattern string
	at      time.Time
}

func Cron(pattern string) Expression { return Expression{kind: KindCron, pattern: pattern} }

func At(t time.Time) Expression { return Expression{kind: KindAt, at: t} }

func (e Expression) Kind() Kind         { return e.kind }
func (e Expression) Pattern() string    { return e.pattern }
func (e Expression) Instant() time.Time { return e.at }

func (e Expression) String() string {
	if e.kind == KindAt {
		if e.at.IsZero() {
			return "at:<zero>"
		}
		return "at:" + e.at.Format(time.RFC3339Nano)
	}
	return e.pattern
}

// Error describes why an expression was rejected. Err is the parser cause, if any.
type Error struct {
	Expression string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid expression %q: %s", e.Expression, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrInvalidExpression }

// Schedule yields fire instants for a validated expression.
type Schedule interface {
	// Next returns the first instant strictly after `after` for recurring schedules,
	// or the fixed instant for one-shot schedules. Zero means no further instants.
	Next(after time.Time) time.Time
	// Once reports whether the schedule fires at most once.
	Once() bool
}

type cronSchedule struct{ spec cron.Schedule }

func (s cronSchedule) Next(after time.Time) time.Time { return s.spec.Next(after) }
func (s cronSchedule) Once() bool                     { return false }

type instantSchedule struct{ at time.Time }

func (s instantSchedule) Next(time.Time) time.Time { return s.at }
func (s instantSchedule) Once() bool               { return true }

// Validate checks expr and returns its schedule.
func Validate(expr Expression) (Schedule, error) {
	switch expr.kind {
	case KindAt:
		if expr.at.IsZero() {
			return nil, &Error{Expression: expr.String(), Message: "instant is zero"}
		}
		return instantSchedule{at: expr.at}, nil
	case KindCron:
		p := strings.TrimSpace(expr.pattern)
		if p == "" {
			return nil, &Error{Expression: expr.pattern, Message: "cron pattern required"}
		}
		spec, err := parser.Parse(p)
		if err != nil {
			return nil, &Error{Expression: expr.pattern, Message: err.Error(), Err: err}
		}
		return cronSchedule{spec: spec}, nil
	default:
		return nil, &Error{Expression: expr.String(), Message: "unknown expression kind"}
	}
}

// Preview returns up to n upcoming instants of sched after from, interpreted in loc.
func Preview(sched Schedule, loc *time.Location, from time.Time, n int) []time.Time {
	if sched == nil || n <= 0 {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}
	out := make([]time.Time, 0, n)
	t := from.In(loc)
	for i := 0; i < n; i++ {
		next := sched.Next(t)
		if next.IsZero() || (sched.Once() && i > 0) {
			break
		}
		out = append(out, next.In(loc))
		t = next
	}
	return out
}
