package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"cronsched/internal/app"
)

func main() {
	var (
		cfgPath string
		check   bool
		preview int
	)
	flag.StringVar(&cfgPath, "config", "./cronsched.yaml", "path to config (yaml or json)")
	flag.BoolVar(&check, "check", false, "validate the config, print upcoming fires and exit")
	flag.IntVar(&preview, "preview", 3, "fires listed per job with -check")
	flag.Parse()

	if check {
		if err := app.Check(os.Stdout, cfgPath, time.Now(), preview); err != nil {
			fmt.Fprintln(os.Stderr, "config invalid:", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	a, err := app.NewApp(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	var reason app.StopReason
	select {
	case sig := <-sigs:
		reason = app.StopSIGTERM
		if sig == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), a.ShutdownTimeout())
	defer stopCancel()
	err = a.Stop(stopCtx, reason)
	if reason == app.StopFatalError || err != nil {
		if err == nil {
			err = a.Err()
		}
		fmt.Fprintln(os.Stderr, "exit:", err)
		os.Exit(1)
	}
}
