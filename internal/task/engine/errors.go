package engine

import (
	"errors"
	"fmt"
)

var (
	ErrOverlapSkip = errors.New("run skipped due to overlap policy")
	ErrPanicked    = errors.New("resolver panicked")
)

// PanicError is returned by Invoke when the resolver panics.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

func (e *PanicError) Is(target error) bool { return target == ErrPanicked }
