package pipeline

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/camuig/pnl-ledger/internal/ledger"
)

// State is the orchestrator's position in a run.
type State int

const (
	StateIdle State = iota
	StateAuthenticating
	StateFetching
	StateNormalizing
	StateMerging
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StateFetching:
		return "fetching"
	case StateNormalizing:
		return "normalizing"
	case StateMerging:
		return "merging"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Window is the inclusive range of trade dates one run covers.
type Window struct {
	Start, End ledger.Date
}

// LookbackWindow covers the days days before today, and today.
func LookbackWindow(today ledger.Date, days int) Window {
	return Window{Start: today.AddDays(-days), End: today}
}

func (w Window) String() string {
	return w.Start.String() + "~" + w.End.String()
}

// Days lists every calendar day of w in ascending order.
func (w Window) Days() []ledger.Date {
	var days []ledger.Date
	for d := w.Start; !d.After(w.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// Months splits w at calendar month boundaries.
func (w Window) Months() []Window {
	var months []Window
	for start := w.Start; !start.After(w.End); {
		end := start.EndOfMonth()
		if end.After(w.End) {
			end = w.End
		}
		months = append(months, Window{Start: start, End: end})
		start = end.AddDays(1)
	}
	return months
}

// Result describes a finished run, successful or not.
type Result struct {
	RunID  string
	Window Window
	State  State

	// Rows is the size of the combined batch fetched in this run.
	Rows    int
	TotalPL decimal.Decimal
	// StoredRows is the size of the history table after an upsert. Appends
	// leave it zero.
	StoredRows int

	Queries     int
	EmptyDays   int
	SkippedDays []ledger.Date
	Warnings    int
	BackupPath  string
}

// NoData reports a run that found nothing to write.
func (r Result) NoData() bool {
	return r.State == StateDone && r.Rows == 0
}

// ErrorKind classifies what ended a run.
type ErrorKind string

const (
	KindAuth     ErrorKind = "auth"
	KindMerge    ErrorKind = "merge"
	KindCanceled ErrorKind = "canceled"
	KindInvalid  ErrorKind = "invalid"
	KindBusy     ErrorKind = "busy"
)

// SyncError is the failure of a whole run. State is where the run stopped.
type SyncError struct {
	Kind  ErrorKind
	State State
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s while %s: %v", e.Kind, e.State, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
