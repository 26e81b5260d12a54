package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/camuig/pnl-ledger/internal/ledger"
)

// Summary renders the outcome of a run for people: CLI output and chat
// notifications.
func Summary(res Result, err error) string {
	var b strings.Builder

	var syncErr *SyncError
	switch {
	case err != nil && errors.As(err, &syncErr) && syncErr.Kind == KindBusy:
		b.WriteString("⏳ Sync skipped: another sync is running\n")
	case err != nil:
		fmt.Fprintf(&b, "❌ Sync failed %s\n", res.Window)
		fmt.Fprintf(&b, "Error: %v\n", err)
		fmt.Fprintf(&b, "Rows: %s fetched\n", humanize.Comma(int64(res.Rows)))
		if res.BackupPath != "" {
			fmt.Fprintf(&b, "Fetched rows kept in %s\n", res.BackupPath)
		}
	case res.NoData():
		fmt.Fprintf(&b, "ℹ️ No realized trades %s\n", res.Window)
	default:
		fmt.Fprintf(&b, "✅ Sync done %s\n", res.Window)
		fmt.Fprintf(&b, "Rows: %s", humanize.Comma(int64(res.Rows)))
		if res.StoredRows > 0 {
			fmt.Fprintf(&b, " (table: %s)", humanize.Comma(int64(res.StoredRows)))
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "Realized P/L: %s\n", FormatKRW(res.TotalPL))
	}

	if len(res.SkippedDays) > 0 {
		fmt.Fprintf(&b, "Skipped days (%d): %s\n", len(res.SkippedDays), joinDays(res.SkippedDays, ", "))
	}
	if res.Warnings > 0 {
		fmt.Fprintf(&b, "Normalize warnings: %d\n", res.Warnings)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatKRW renders an amount with thousands separators and an explicit sign.
func FormatKRW(d decimal.Decimal) string {
	s := humanize.CommafWithDigits(d.Round(2).InexactFloat64(), 2)
	if d.IsPositive() {
		s = "+" + s
	}
	return s + " KRW"
}

func joinDays(days []ledger.Date, sep string) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = d.String()
	}
	return strings.Join(parts, sep)
}
