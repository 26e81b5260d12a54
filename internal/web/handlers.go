package web

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/camuig/pnl-ledger/internal/ledger"
	"github.com/camuig/pnl-ledger/internal/pipeline"
	"github.com/camuig/pnl-ledger/internal/storage"
)

const historyKey = "history"

var periods = []ledger.Period{
	ledger.PeriodToday, ledger.PeriodWeek, ledger.PeriodMonth, ledger.PeriodYear, ledger.PeriodAll,
}

var templateFuncs = template.FuncMap{
	"krw": pipeline.FormatKRW,
	"num": func(n decimal.NullDecimal) string {
		if !n.Valid {
			return ""
		}
		return humanize.CommafWithDigits(n.Decimal.InexactFloat64(), 2)
	},
	"sign": signClass,
	"nullSign": func(n decimal.NullDecimal) string {
		if !n.Valid {
			return ""
		}
		return signClass(n.Decimal)
	},
}

// signClass is the CSS class of an amount.
func signClass(d decimal.Decimal) string {
	switch d.Sign() {
	case 1:
		return "profit"
	case -1:
		return "loss"
	default:
		return ""
	}
}

type DashboardData struct {
	Period      ledger.Period
	Periods     []ledger.Period
	From, To    string
	Stats       ledger.Stats
	Months      []ledger.Bucket
	Stocks      []ledger.StockTotal
	Rows        []ledger.Row
	Runs        []storage.SyncLog
	SyncEnabled bool
	Error       string
}

// loadHistory returns the whole history table, cached for the configured TTL.
func (s *Server) loadHistory(ctx context.Context) ([]ledger.Row, error) {
	if cached, ok := s.cache.Get(historyKey); ok {
		return cached.([]ledger.Row), nil
	}

	rows, err := s.history.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(historyKey, rows, cache.DefaultExpiration)
	return rows, nil
}

// selection is the date filter of a request.
type selection struct {
	Period   ledger.Period
	From, To ledger.Date
	// Bounded is false when the filter has no range, i.e. there is no data.
	Bounded bool
}

func (sel selection) fromString() string {
	if !sel.Bounded {
		return ""
	}
	return sel.From.String()
}

func (sel selection) toString() string {
	if !sel.Bounded {
		return ""
	}
	return sel.To.String()
}

// selectRows applies the period, from and to query parameters to rows.
// "all" keeps undated rows; every other period drops them.
func selectRows(rows []ledger.Row, q url.Values) (selection, []ledger.Row, error) {
	p, err := ledger.ParsePeriod(q.Get("period"))
	if err != nil {
		return selection{}, nil, err
	}
	sel := selection{Period: p}

	if p == ledger.PeriodCustom {
		from, err := parseDateParam(q.Get("from"))
		if err != nil {
			return sel, nil, fmt.Errorf("from: %w", err)
		}
		to, err := parseDateParam(q.Get("to"))
		if err != nil {
			return sel, nil, fmt.Errorf("to: %w", err)
		}
		if from.After(to) {
			return sel, nil, fmt.Errorf("from %s is after to %s", from, to)
		}
		sel.From, sel.To, sel.Bounded = from, to, true
		return sel, ledger.Between(rows, from, to), nil
	}

	from, to, ok := ledger.PeriodRange(p, rows)
	if !ok {
		return sel, nil, nil
	}
	sel.From, sel.To, sel.Bounded = from, to, true
	if p == ledger.PeriodAll {
		return sel, rows, nil
	}
	return sel, ledger.Between(rows, from, to), nil
}

// parseDateParam accepts YYYY-MM-DD or YYYYMMDD.
func parseDateParam(s string) (ledger.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ledger.Date{}, fmt.Errorf("date is required")
	}
	if len(s) == len(ledger.CompactDateFormat) {
		return ledger.ParseCompactDate(s)
	}
	return ledger.ParseDate(s)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := DashboardData{Periods: periods, SyncEnabled: s.syncer != nil}

	rows, err := s.loadHistory(r.Context())
	if err != nil {
		s.logger.Error("load history", "error", err)
		data.Error = "Could not read the history table: " + err.Error()
	}

	sel, selected, err := selectRows(rows, r.URL.Query())
	if err != nil {
		data.Error = err.Error()
		sel = selection{Period: ledger.PeriodAll}
		selected = rows
	}
	data.Period = sel.Period
	data.From, data.To = sel.fromString(), sel.toString()

	data.Stats = ledger.Summarize(selected)
	data.Months = ledger.GroupPL(selected, ledger.ByMonth)
	data.Stocks = ledger.ByStock(selected, 10)
	data.Rows = selected
	if len(data.Rows) > 50 {
		data.Rows = data.Rows[:50]
	}

	if s.runs != nil {
		if runs, err := s.runs.GetRecentSyncLogs(10); err == nil {
			data.Runs = runs
		} else {
			s.logger.Error("get sync logs", "error", err)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, data); err != nil {
		s.logger.Error("execute template", "error", err)
	}
}
