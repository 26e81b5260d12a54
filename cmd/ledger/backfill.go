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

type backfillCmd struct {
	flags      commonFlags
	from       string
	to         string
	appendOnly bool
}

func (*backfillCmd) Name() string     { return "backfill" }
func (*backfillCmd) Synopsis() string { return "load past months of realized P/L one month at a time" }
func (*backfillCmd) Usage() string {
	return `ledger backfill -from YYYYMM [-to YYYYMM] [-append]

  Syncs every calendar month from -from through -to (default: the current
  month). With -append the rows are added after the stored ones without
  deduplication, for a first load into an empty table.
`
}

func (c *backfillCmd) SetFlags(f *flag.FlagSet) {
	c.flags.register(f)
	f.StringVar(&c.from, "from", "", "first month (YYYYMM)")
	f.StringVar(&c.to, "to", "", "last month (YYYYMM)")
	f.BoolVar(&c.appendOnly, "append", false, "append instead of upserting")
}

func (c *backfillCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.from == "" {
		fmt.Fprintln(os.Stderr, "Error: -from is required")
		return subcommands.ExitUsageError
	}
	start, err := parseMonth(c.from)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, &c.flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	today := a.today()
	end := today
	if c.to != "" {
		last, err := parseMonth(c.to)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitUsageError
		}
		end = last.EndOfMonth()
		if end.After(today) {
			end = today
		}
	}

	mode := pipeline.WriteUpsert
	if c.appendOnly {
		mode = pipeline.WriteAppend
	}

	results, err := a.orchestrator(mode, "backfill").Backfill(ctx, pipeline.Window{Start: start, End: end})
	for _, res := range results {
		fmt.Printf("%s  %-6s rows=%d skipped=%d\n", res.Window, res.State, res.Rows, len(res.SkippedDays))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Backfilled %d month(s).\n", len(results))
	return subcommands.ExitSuccess
}
