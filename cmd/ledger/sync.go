package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"

	"github.com/camuig/pnl-ledger/internal/pipeline"
)

type syncCmd struct {
	flags     commonFlags
	startDate string
	endDate   string
	stock     string
}

func (*syncCmd) Name() string     { return "sync" }
func (*syncCmd) Synopsis() string { return "fetch realized P/L and upsert it into the history table" }
func (*syncCmd) Usage() string {
	return `ledger sync [-start-date YYYYMMDD] [-end-date YYYYMMDD] [-stock code] [-test]

  Fetches realized profit/loss for the window and merges it into the history
  table, replacing the stored rows of every fetched date. The window defaults
  to the last sync.lookback_days days ending today.
`
}

func (c *syncCmd) SetFlags(f *flag.FlagSet) {
	c.flags.register(f)
	f.StringVar(&c.startDate, "start-date", "", "first day of the window (YYYYMMDD)")
	f.StringVar(&c.endDate, "end-date", "", "last day of the window (YYYYMMDD), defaults to today")
	f.StringVar(&c.stock, "stock", "", "only fetch this stock code")
}

func (c *syncCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, &c.flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	window := pipeline.LookbackWindow(a.today(), a.cfg.Sync.LookbackDays)
	if c.endDate != "" {
		end, err := parseDay(c.endDate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: end-date: %v\n", err)
			return subcommands.ExitUsageError
		}
		window = pipeline.LookbackWindow(end, a.cfg.Sync.LookbackDays)
	}
	if c.startDate != "" {
		start, err := parseDay(c.startDate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: start-date: %v\n", err)
			return subcommands.ExitUsageError
		}
		window.Start = start
	}
	if c.stock != "" {
		a.cfg.Sync.StockCode = c.stock
	}

	res, err := a.orchestrator(pipeline.WriteUpsert, "cli").Run(ctx, window)
	fmt.Println(pipeline.Summary(res, err))
	if err != nil {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
