package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cronsched/internal/config"
	"cronsched/pkg/scheduler"
	logx "cronsched/pkg/logx"
)

// ErrUnsupported is returned by the unit controller on platforms without systemd.
var ErrUnsupported = errors.New("systemd: unsupported platform")

// UnitController starts, stops and restarts systemd units. The returned
// string is the systemd job result ("done", "failed", ...).
type UnitController interface {
	StartUnit(ctx context.Context, unit string) (string, error)
	StopUnit(ctx context.Context, unit string) (string, error)
	RestartUnit(ctx context.Context, unit string) (string, error)
	Close() error
}

// UnitResult is the Completed payload of a systemd action.
type UnitResult struct {
	Unit   string `json:"unit"`
	Op     string `json:"op"`
	Result string `json:"result"`
}

// normalizeUnit appends ".service" to a bare unit name.
func normalizeUnit(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, ".") {
		return name
	}
	return name + ".service"
}

func unitAction(log logx.Logger, units UnitController, a config.ActionConfig) (scheduler.Resolver, error) {
	unit := normalizeUnit(a.Unit)
	if unit == "" {
		return nil, errors.New("systemd: unit required")
	}
	op := strings.ToLower(strings.TrimSpace(a.Op))
	if op == "" {
		op = "restart"
	}
	var call func(context.Context, string) (string, error)
	switch op {
	case "start":
		call = units.StartUnit
	case "stop":
		call = units.StopUnit
	case "restart":
		call = units.RestartUnit
	default:
		return nil, fmt.Errorf("systemd: unknown op %q", a.Op)
	}

	return func(ctx context.Context) (any, error) {
		res, err := call(ctx, unit)
		if err != nil {
			return nil, fmt.Errorf("failed to %s %s: %w", op, unit, err)
		}
		if res != "done" {
			return nil, fmt.Errorf("%s %s: job %s", op, unit, res)
		}
		log.Info("unit "+op+" done", logx.String("unit", unit))
		return UnitResult{Unit: unit, Op: op, Result: res}, nil
	}, nil
}
