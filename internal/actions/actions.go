// Package actions turns the action block of a configured job into the
// resolver the scheduler runs on every fire.
package actions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cronsched/internal/config"
	"cronsched/pkg/scheduler"
	logx "cronsched/pkg/logx"
)

// ErrUnknownAction is returned by Build for an unsupported action type.
var ErrUnknownAction = errors.New("unknown action type")

// maxCapture bounds the command output and response body kept in a result.
const maxCapture = 4 << 10

// Deps carries the shared clients the resolvers need.
type Deps struct {
	Log    logx.Logger
	HTTP   *http.Client
	Units  UnitController
	Output int // bytes of output kept per run; 0 uses maxCapture
}

func (d Deps) logger() logx.Logger {
	if d.Log.IsZero() {
		return logx.Nop()
	}
	return d.Log
}

func (d Deps) capture() int {
	if d.Output > 0 {
		return d.Output
	}
	return maxCapture
}

// Build returns the resolver for job j.
func Build(j config.JobConfig, deps Deps) (scheduler.Resolver, error) {
	a := j.Action
	log := deps.logger().With(logx.Job(j.ID), logx.String("action", a.Type))

	switch strings.ToLower(strings.TrimSpace(a.Type)) {
	case "log":
		return logAction(log, j, a.Message), nil
	case "exec":
		if len(a.Command) == 0 {
			return nil, errors.New("exec: command required")
		}
		return execAction(log, a, deps.capture()), nil
	case "http":
		client := deps.HTTP
		if client == nil {
			client = &http.Client{Timeout: 30 * time.Second}
		}
		return httpAction(log, client, a, deps.capture())
	case "systemd":
		if deps.Units == nil {
			return nil, errors.New("systemd: no unit controller")
		}
		return unitAction(log, deps.Units, a)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownAction, a.Type)
	}
}

func logAction(log logx.Logger, j config.JobConfig, msg string) scheduler.Resolver {
	if strings.TrimSpace(msg) == "" {
		msg = "job fired"
	}
	return func(ctx context.Context) (any, error) {
		log.Info(msg, logx.String("name", j.Name))
		return msg, nil
	}
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
