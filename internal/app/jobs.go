package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cronsched/internal/actions"
	"cronsched/internal/config"
	"cronsched/pkg/scheduler"
	logx "cronsched/pkg/logx"
)

// jobSpec maps a configured job onto scheduler arguments.
func jobSpec(j config.JobConfig) (scheduler.Expression, scheduler.JobOptions, error) {
	expr, err := scheduler.ParseExpression(j.Schedule)
	if err != nil {
		return scheduler.Expression{}, scheduler.JobOptions{}, err
	}
	threshold, err := config.ParseThreshold("threshold", j.Threshold)
	if err != nil {
		return scheduler.Expression{}, scheduler.JobOptions{}, err
	}
	timeout, err := config.ParseDurationField("timeout", j.Timeout)
	if err != nil {
		return scheduler.Expression{}, scheduler.JobOptions{}, err
	}
	return expr, scheduler.JobOptions{
		Name:              j.Name,
		Start:             j.Start,
		RunOnInit:         j.RunOnInit,
		WaitForCompletion: j.WaitForCompletion,
		Threshold:         threshold,
		TimeZone:          j.Timezone,
		Timeout:           timeout,
	}, nil
}

func (a *App) scheduleJob(ctx context.Context, j config.JobConfig) error {
	expr, opts, err := jobSpec(j)
	if err != nil {
		return err
	}
	deps := actions.Deps{Log: a.log, HTTP: a.httpClient}
	if strings.EqualFold(strings.TrimSpace(j.Action.Type), "systemd") {
		units, err := a.unitController(ctx)
		if err != nil {
			return err
		}
		deps.Units = units
	}
	fn, err := actions.Build(j, deps)
	if err != nil {
		return err
	}
	return a.sched.Schedule(j.ID, expr, fn, opts)
}

// unitController connects to systemd on first use.
func (a *App) unitController(ctx context.Context) (actions.UnitController, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.units != nil {
		return a.units, nil
	}
	u, err := actions.NewUnitController(ctx)
	if err != nil {
		return nil, err
	}
	a.units = u
	return u, nil
}

// reconcile moves the scheduler from oldJobs to newJobs. Changed jobs are
// deleted and scheduled again, so their counters restart. A job that fails to
// schedule is logged and left out.
func (a *App) reconcile(ctx context.Context, oldJobs, newJobs []config.JobConfig) error {
	d := config.DiffJobs(oldJobs, newJobs)
	if d.Empty() {
		return nil
	}
	byID := make(map[string]config.JobConfig, len(newJobs))
	for _, j := range newJobs {
		byID[j.ID] = j
	}

	var errs []error
	for _, id := range append(append([]string(nil), d.Removed...), d.Changed...) {
		dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := a.sched.Delete(dctx, id)
		cancel()
		if err != nil && !errors.Is(err, scheduler.ErrNotFound) {
			errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
		}
	}
	for _, id := range append(append([]string(nil), d.Changed...), d.Added...) {
		if err := a.scheduleJob(ctx, byID[id]); err != nil {
			a.log.Error("job not scheduled", logx.Job(id), logx.Err(err))
			errs = append(errs, fmt.Errorf("schedule %s: %w", id, err))
		}
	}
	a.log.Info("jobs reconciled",
		logx.Int("added", len(d.Added)),
		logx.Int("removed", len(d.Removed)),
		logx.Int("changed", len(d.Changed)),
	)
	return errors.Join(errs...)
}
