package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/google/subcommands"

	"github.com/camuig/pnl-ledger/internal/ledger"
	"github.com/camuig/pnl-ledger/internal/pipeline"
)

type statsCmd struct {
	flags  commonFlags
	period string
	from   string
	to     string
	group  string
	top    int
}

func (*statsCmd) Name() string     { return "stats" }
func (*statsCmd) Synopsis() string { return "print realized P/L statistics from the history table" }
func (*statsCmd) Usage() string {
	return `ledger stats [-period today|week|month|year|all|custom] [-from YYYYMMDD -to YYYYMMDD] [-group year|month|day] [-top n]

  Prints totals, grouped P/L and the best stocks of the period. Periods are
  anchored on the latest date in the table.
`
}

func (c *statsCmd) SetFlags(f *flag.FlagSet) {
	c.flags.register(f)
	c.flags.readOnly = true
	f.StringVar(&c.period, "period", "all", "period to summarize")
	f.StringVar(&c.from, "from", "", "first day of a custom period")
	f.StringVar(&c.to, "to", "", "last day of a custom period")
	f.StringVar(&c.group, "group", "month", "grouping (year, month, day)")
	f.IntVar(&c.top, "top", 10, "number of stocks to list")
}

func (c *statsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	period, err := ledger.ParsePeriod(c.period)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	group := ledger.Granularity(c.group)
	switch group {
	case ledger.ByYear, ledger.ByMonth, ledger.ByDay:
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown group %q\n", c.group)
		return subcommands.ExitUsageError
	}

	a, err := openApp(ctx, &c.flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	rows, err := a.table.ReadAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: read history: %v\n", err)
		return subcommands.ExitFailure
	}

	var from, to ledger.Date
	ok := true
	if period == ledger.PeriodCustom {
		if from, err = parseDay(c.from); err == nil {
			to, err = parseDay(c.to)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: custom period needs -from and -to: %v\n", err)
			return subcommands.ExitUsageError
		}
	} else {
		from, to, ok = ledger.PeriodRange(period, rows)
	}
	if !ok {
		fmt.Println("No trades in the history table.")
		return subcommands.ExitSuccess
	}
	if period != ledger.PeriodAll {
		rows = ledger.Between(rows, from, to)
	}

	s := ledger.Summarize(rows)
	fmt.Printf("Period:      %s (%s ~ %s)\n", period, from, to)
	fmt.Printf("Trades:      %s\n", humanize.Comma(int64(s.Trades)))
	fmt.Printf("Total P/L:   %s\n", pipeline.FormatKRW(s.TotalPL))
	fmt.Printf("Average P/L: %s\n", pipeline.FormatKRW(s.AveragePL))
	fmt.Printf("Max profit:  %s\n", pipeline.FormatKRW(s.MaxProfit))
	fmt.Printf("Max loss:    %s\n", pipeline.FormatKRW(s.MaxLoss))
	fmt.Printf("Win rate:    %s%%\n", s.WinRate.StringFixed(2))

	fmt.Printf("\nBy %s:\n", group)
	for _, b := range ledger.GroupPL(rows, group) {
		fmt.Printf("  %-6s %18s  %s trades\n", b.Label, pipeline.FormatKRW(b.PL), humanize.Comma(int64(b.Trades)))
	}

	fmt.Println("\nTop stocks:")
	for i, st := range ledger.ByStock(rows, c.top) {
		fmt.Printf("  %2d. %-20s %18s  %s trades\n", i+1, st.StockName, pipeline.FormatKRW(st.PL), humanize.Comma(int64(st.Trades)))
	}
	return subcommands.ExitSuccess
}
