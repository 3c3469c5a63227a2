// Package app wires the scheduler daemon: config, logging, storage, jobs,
// the status server and systemd integration.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"cronsched/internal/actions"
	"cronsched/internal/config"
	"cronsched/internal/eventbus"
	"cronsched/internal/httpapi"
	"cronsched/internal/runtime/supervisor"
	"cronsched/internal/storage"
	"cronsched/pkg/scheduler"
	logx "cronsched/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	sched *scheduler.Scheduler
	http  *httpapi.Server

	httpClient *http.Client

	mu      sync.Mutex
	units   actions.UnitController
	applied *config.Config

	shutdownTimeout time.Duration
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load(context.Background())
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.LogxConfig())
	appLog := log.With(logx.Component("app"))

	shutdown, err := config.ParseDurationOrDefault("shutdown_timeout", cfg.ShutdownTimeout, config.DefaultShutdownTimeout)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.Component("storage")))
		if err != nil {
			return nil, err
		}
		store = st
		appLog.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	sched, err := scheduler.New(cfg.Timezone,
		scheduler.WithLogger(log),
		scheduler.WithEventBus(bus),
	)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	hc, err := httpapi.ConfigFrom(cfg.HTTP)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:            cfgm,
		log:             appLog,
		logs:            logSvc,
		bus:             bus,
		store:           store,
		sched:           sched,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		shutdownTimeout: shutdown,
	}
	deps := httpapi.Deps{Jobs: sched, Log: log}
	if store != nil {
		deps.Runs = store
	}
	a.http = httpapi.New(hc, deps)
	return a, nil
}

// Scheduler exposes the job registry (tests, embedding).
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

// ShutdownTimeout is the configured bound for Stop.
func (a *App) ShutdownTimeout() time.Duration { return a.shutdownTimeout }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.Component("config")))

	if a.store != nil {
		ch, unsub := a.bus.Subscribe("job.", 1024)
		rec := newRecorder(a.store, a.log.With(logx.Component("recorder")))
		a.sup.Go("runs.record", func(c context.Context) error {
			defer unsub()
			return rec.run(c, ch)
		})
	}

	cfg := a.cfgm.Get()
	if err := a.reconcile(ctx, nil, cfg.Jobs); err != nil {
		// bad jobs were logged; the rest keep running
		a.log.Warn("some jobs failed to schedule", logx.Err(err))
	}
	a.mu.Lock()
	a.applied = cfg
	a.mu.Unlock()

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, newCfg)
			}
		}
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch)
	a.sup.GoRestart("http", a.http.Run, supervisor.WithMaxRestarts(5))

	if cfg.Watchdog {
		a.sup.Go("systemd.watchdog", a.watchdog)
	}

	a.sdNotify(daemon.SdNotifyReady)
	a.log.Info("app started",
		logx.String("timezone", a.sched.TimeZone()),
		logx.Int("jobs", len(a.sched.ListIDs())),
	)
	return nil
}

// applyConfig applies a reloaded config. Timezone, storage and http changes
// need a restart; logging and jobs apply live.
func (a *App) applyConfig(ctx context.Context, newCfg *config.Config) {
	a.mu.Lock()
	prev := a.applied
	a.mu.Unlock()

	sections, attrs := config.SummarizeConfigChange(prev, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.sdNotify(daemon.SdNotifyReloading)
	defer a.sdNotify(daemon.SdNotifyReady)

	for _, s := range sections {
		switch s {
		case "timezone", "storage", "http":
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		case "logging":
			a.logs.Apply(newCfg.LogxConfig())
			a.log.Info("logging reconfigured", logx.String("level", a.logs.Level()))
		}
	}

	var prevJobs []config.JobConfig
	if prev != nil {
		prevJobs = prev.Jobs
	}
	if err := a.reconcile(ctx, prevJobs, newCfg.Jobs); err != nil {
		a.log.Warn("config reload partially applied", logx.Err(err))
	}

	a.mu.Lock()
	a.applied = newCfg
	a.mu.Unlock()

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sdNotify(daemon.SdNotifyStopping)

	// background loops (watcher, http, recorder) start unwinding immediately
	a.sup.Cancel()

	var firstErr error
	step := func(name string, fn func(context.Context) error) {
		start := time.Now()
		if err := fn(ctx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", name, err)
			}
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("scheduler", a.sched.Shutdown)
	step("supervisor", a.sup.Wait)
	step("storage", func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("systemd", func(context.Context) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.units != nil {
			return a.units.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return firstErr
}
