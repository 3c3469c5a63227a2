package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cronsched/internal/config"
	"cronsched/internal/cronexpr"
	"cronsched/internal/tzone"
)

// Check validates the config file and writes the next fires of every job to w.
func Check(w io.Writer, cfgPath string, now time.Time, n int) error {
	cfg, err := config.NewConfigManager(cfgPath).Load(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "config ok: %d job(s), timezone %s\n", len(cfg.Jobs), cfg.Timezone)
	for _, j := range cfg.Jobs {
		expr, _ := cronexpr.ParseExpression(j.Schedule)
		sched, _ := cronexpr.Validate(expr)
		zone := cfg.Timezone
		if strings.TrimSpace(j.Timezone) != "" {
			zone = j.Timezone
		}
		loc, _ := tzone.Load(zone)

		state := "stopped"
		if j.Start {
			state = "start"
		}
		fmt.Fprintf(w, "- %s [%s] %s (%s, %s)\n", j.ID, j.Action.Type, expr, zone, state)
		next := cronexpr.Preview(sched, loc, now, n)
		if len(next) == 0 {
			fmt.Fprintln(w, "    no upcoming fires")
		}
		for _, t := range next {
			if !t.After(now) {
				fmt.Fprintf(w, "    %s (past)\n", t.Format(time.RFC3339))
				continue
			}
			fmt.Fprintf(w, "    %s\n", t.Format(time.RFC3339))
		}
	}
	return nil
}
