package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"

	"github.com/camuig/pnl-ledger/internal/pipeline"
	"github.com/camuig/pnl-ledger/internal/scheduler"
	"github.com/camuig/pnl-ledger/internal/web"
)

type serveCmd struct {
	flags      commonFlags
	port       int
	noSchedule bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the dashboard and the scheduled sync" }
func (*serveCmd) Usage() string {
	return `ledger serve [-port n] [-no-schedule]

  Serves the P/L dashboard and syncs the last sync.lookback_days days on
  sync.schedule until interrupted.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	c.flags.register(f)
	f.IntVar(&c.port, "port", 0, "dashboard port, overrides web.port")
	f.BoolVar(&c.noSchedule, "no-schedule", false, "do not sync on the schedule")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx, &c.flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()
	if c.port != 0 {
		a.cfg.Web.Port = c.port
	}

	log := a.log
	mode := "LIVE"
	if a.cfg.Sample {
		mode = "SAMPLE"
	}
	log.Info("starting pnl-ledger", "mode", mode, "backend", a.cfg.Store.Backend)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	orch := a.orchestrator(pipeline.WriteUpsert, "dashboard")

	var runs web.RunLister
	if a.repo != nil {
		runs = a.repo
	}
	webServer, err := web.NewServer(a.table, runs, orch, a.cfg, log)
	if err != nil {
		log.Error("web server init failed", "error", err)
		return subcommands.ExitFailure
	}

	if !c.noSchedule {
		sched := scheduler.NewScheduler(orch, a.notifier, a.cfg, log)
		sched.AfterRun(func(pipeline.Result) { webServer.Invalidate() })
		go func() {
			if err := sched.Run(ctx); err != nil {
				log.Error("scheduler error", "error", err)
			}
		}()
	}

	go func() {
		if err := webServer.Start(); err != nil {
			log.Error("web server error", "error", err)
		}
	}()

	a.notifier.Notify(fmt.Sprintf("📒 pnl-ledger started (%s)", mode))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", "signal", sig.String())

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error("web server shutdown error", "error", err)
	}

	a.notifier.Notify("🛑 pnl-ledger stopped")
	log.Info("pnl-ledger stopped")
	return subcommands.ExitSuccess
}
