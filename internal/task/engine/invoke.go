package engine

import (
	"context"
	"runtime/debug"
	"time"
)

// Func is the unit of work executed on each fire.
type Func func(ctx context.Context) (any, error)

// Invoke runs fn with an optional timeout. A panic inside fn is converted to a
// *PanicError so one bad resolver can't crash the process.
func Invoke(ctx context.Context, timeout time.Duration, fn Func) (result any, err error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return fn(runCtx)
}
