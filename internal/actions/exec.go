package actions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"time"

	"cronsched/internal/config"
	"cronsched/pkg/scheduler"
	logx "cronsched/pkg/logx"
)

// ExecResult is the Completed payload of an exec action.
type ExecResult struct {
	ExitCode int           `json:"exit_code"`
	Output   string        `json:"output,omitempty"`
	Took     time.Duration `json:"took"`
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Code   int
	Output string
}

func (e *ExitError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return fmt.Sprintf("exit status %d: %s", e.Code, e.Output)
}

func execAction(log logx.Logger, a config.ActionConfig, capture int) scheduler.Resolver {
	argv := append([]string(nil), a.Command...)
	env := flattenEnv(a.Env)
	dir := a.Dir

	return func(ctx context.Context) (any, error) {
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Dir = dir
		if len(env) > 0 {
			cmd.Env = append(os.Environ(), env...)
		}
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out

		start := time.Now()
		err := cmd.Run()
		took := time.Since(start)
		text := truncate(out.Bytes(), capture)

		if err != nil {
			var ee *exec.ExitError
			if errors.As(err, &ee) && ctx.Err() == nil {
				log.Debug("command failed", logx.Int("exit_code", ee.ExitCode()), logx.Duration("took", took))
				return nil, &ExitError{Code: ee.ExitCode(), Output: text}
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s: %w", argv[0], ctx.Err())
			}
			return nil, err
		}
		log.Debug("command finished", logx.Duration("took", took))
		return ExecResult{ExitCode: 0, Output: text, Took: took}, nil
	}
}

func flattenEnv(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
