package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Stats summarizes realized results over a set of rows.
type Stats struct {
	Trades    int             `json:"trades"`
	TotalPL   decimal.Decimal `json:"total_pl"`
	AveragePL decimal.Decimal `json:"average_pl"`
	MaxProfit decimal.Decimal `json:"max_profit"`
	MaxLoss   decimal.Decimal `json:"max_loss"`
	WinRate   decimal.Decimal `json:"win_rate"` // percent of rows with positive P/L
}

// Summarize computes Stats for rows. Rows without a P/L count as trades but
// not toward the P/L figures.
func Summarize(rows []Row) Stats {
	s := Stats{Trades: len(rows)}
	if len(rows) == 0 {
		return s
	}

	var counted, wins int
	for _, r := range rows {
		if !r.RealizedPL.Valid {
			continue
		}
		pl := r.RealizedPL.Decimal
		if counted == 0 || pl.GreaterThan(s.MaxProfit) {
			s.MaxProfit = pl
		}
		if counted == 0 || pl.LessThan(s.MaxLoss) {
			s.MaxLoss = pl
		}
		if pl.IsPositive() {
			wins++
		}
		s.TotalPL = s.TotalPL.Add(pl)
		counted++
	}
	if counted > 0 {
		s.AveragePL = s.TotalPL.Div(decimal.NewFromInt(int64(counted)))
	}
	s.WinRate = decimal.NewFromInt(int64(wins)).Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(len(rows)))).Round(2)
	return s
}

// Period names a dashboard date filter.
type Period string

const (
	PeriodToday  Period = "today"
	PeriodWeek   Period = "week"
	PeriodMonth  Period = "month"
	PeriodYear   Period = "year"
	PeriodAll    Period = "all"
	PeriodCustom Period = "custom"
)

// ParsePeriod validates a period name.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case PeriodToday, PeriodWeek, PeriodMonth, PeriodYear, PeriodAll, PeriodCustom:
		return p, nil
	case "":
		return PeriodAll, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// Bounds returns the oldest and latest dated rows.
func Bounds(rows []Row) (min, max Date, ok bool) {
	for _, r := range rows {
		if !r.Date.Valid {
			continue
		}
		if !ok {
			min, max, ok = r.Date.Date, r.Date.Date, true
			continue
		}
		if r.Date.Date.Before(min) {
			min = r.Date.Date
		}
		if r.Date.Date.After(max) {
			max = r.Date.Date
		}
	}
	return min, max, ok
}

// PeriodRange returns the inclusive date range of p, anchored on the latest
// date present in rows rather than on the wall clock. Custom periods and
// empty data report ok=false.
func PeriodRange(p Period, rows []Row) (from, to Date, ok bool) {
	min, max, ok := Bounds(rows)
	if !ok {
		return Date{}, Date{}, false
	}
	switch p {
	case PeriodToday:
		return max, max, true
	case PeriodWeek:
		return max.StartOfWeek(), max, true
	case PeriodMonth:
		return max.StartOfMonth(), max, true
	case PeriodYear:
		return max.StartOfYear(), max, true
	case PeriodAll:
		return min, max, true
	default:
		return Date{}, Date{}, false
	}
}

// Between returns the rows dated within [from, to].
func Between(rows []Row, from, to Date) []Row {
	var out []Row
	for _, r := range rows {
		if !r.Date.Valid {
			continue
		}
		if r.Date.Date.Before(from) || r.Date.Date.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Granularity selects how GroupPL buckets rows.
type Granularity string

const (
	ByYear  Granularity = "year"
	ByMonth Granularity = "month"
	ByDay   Granularity = "day"
)

// Bucket is an aggregated P/L figure for a label.
type Bucket struct {
	Label  string          `json:"label"`
	PL     decimal.Decimal `json:"pl"`
	Trades int             `json:"trades"`
}

// GroupPL sums P/L per year, month of year, or day of month, ordered by the
// bucket's natural order.
func GroupPL(rows []Row, g Granularity) []Bucket {
	type acc struct {
		order int
		b     Bucket
	}
	groups := make(map[int]*acc)
	for _, r := range rows {
		if !r.Date.Valid {
			continue
		}
		d := r.Date.Date
		var key int
		var label string
		switch g {
		case ByYear:
			key, label = d.Year(), fmt.Sprintf("%d", d.Year())
		case ByMonth:
			key, label = int(d.Month()), fmt.Sprintf("%02d", int(d.Month()))
		default:
			key, label = d.Day(), fmt.Sprintf("%02d", d.Day())
		}
		a, ok := groups[key]
		if !ok {
			a = &acc{order: key, b: Bucket{Label: label}}
			groups[key] = a
		}
		a.b.Trades++
		if r.RealizedPL.Valid {
			a.b.PL = a.b.PL.Add(r.RealizedPL.Decimal)
		}
	}

	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	out := make([]Bucket, 0, len(keys))
	for _, k := range keys {
		out = append(out, groups[k].b)
	}
	return out
}

// Point is one step of a cumulative P/L series.
type Point struct {
	Date       Date            `json:"-"`
	Label      string          `json:"date"`
	Cumulative decimal.Decimal `json:"cumulative"`
}

// Cumulative returns the running P/L total ordered by date ascending, one
// point per dated row.
func Cumulative(rows []Row) []Point {
	dated := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.Date.Valid {
			dated = append(dated, r)
		}
	}
	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].Date.Date.Before(dated[j].Date.Date)
	})

	out := make([]Point, 0, len(dated))
	running := decimal.Zero
	for _, r := range dated {
		if r.RealizedPL.Valid {
			running = running.Add(r.RealizedPL.Decimal)
		}
		out = append(out, Point{Date: r.Date.Date, Label: r.Date.Key(), Cumulative: running})
	}
	return out
}

// StockTotal is the aggregated result of one stock.
type StockTotal struct {
	StockName string          `json:"stock_name"`
	PL        decimal.Decimal `json:"pl"`
	Trades    int             `json:"trades"`
}

// ByStock totals P/L per stock name, best first. topN > 0 keeps only the
// topN best performers.
func ByStock(rows []Row, topN int) []StockTotal {
	idx := make(map[string]int)
	var out []StockTotal
	for _, r := range rows {
		i, ok := idx[r.StockName]
		if !ok {
			i = len(out)
			idx[r.StockName] = i
			out = append(out, StockTotal{StockName: r.StockName})
		}
		out[i].Trades++
		if r.RealizedPL.Valid {
			out[i].PL = out[i].PL.Add(r.RealizedPL.Decimal)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PL.GreaterThan(out[j].PL)
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}
