package scheduler

import (
	"errors"
	"fmt"

	"cronsched/internal/cronexpr"
	"cronsched/internal/tzone"
)

var (
	ErrInvalidExpression = cronexpr.ErrInvalidExpression
	ErrInvalidTimeZone   = tzone.ErrInvalidTimeZone

	ErrNotFound        = errors.New("job not found")
	ErrDuplicateID     = errors.New("job id already scheduled")
	ErrInvalidJob      = errors.New("invalid job")
	ErrStopping        = errors.New("job is stopping")
	ErrResolverFailure = errors.New("resolver failed")
)

// ResolverError wraps a resolver failure (including a recovered panic). It is
// only ever delivered through Error events.
type ResolverError struct {
	JobID string
	Run   uint64
	Err   error
}

func (e *ResolverError) Error() string {
	return fmt.Sprintf("job %q run %d: %v", e.JobID, e.Run, e.Err)
}

func (e *ResolverError) Unwrap() error { return e.Err }

func (e *ResolverError) Is(target error) bool { return target == ErrResolverFailure }

func notFound(id string) error { return fmt.Errorf("%w: %q", ErrNotFound, id) }
