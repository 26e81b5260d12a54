package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/camuig/pnl-ledger/internal/backup"
	"github.com/camuig/pnl-ledger/internal/kiwoom"
	"github.com/camuig/pnl-ledger/internal/ledger"
	"github.com/camuig/pnl-ledger/internal/logger"
	"github.com/camuig/pnl-ledger/internal/storage"
)

type TokenSource interface {
	EnsureValid(ctx context.Context) (kiwoom.Credential, error)
}

type Fetcher interface {
	FetchRange(ctx context.Context, cred kiwoom.Credential, start, end ledger.Date, stockCode string) ([]kiwoom.RawRecord, error)
}

type Notifier interface {
	Notify(message string)
}

type RunLog interface {
	SaveSyncLog(log *storage.SyncLog) error
}

// WriteMode selects how a run's batch reaches the table.
type WriteMode int

const (
	// WriteUpsert replaces every stored row of the batch's dates.
	WriteUpsert WriteMode = iota
	// WriteAppend adds the batch after the stored rows without deduplicating.
	WriteAppend
)

type Options struct {
	// PerDay issues one query per calendar day instead of one per window.
	PerDay    bool
	StockCode string
	// BackupDir receives a CSV of each run's batch. Empty disables backups.
	BackupDir string
	Mode      WriteMode
	// Trigger is recorded in the run log (cli, schedule, dashboard, backfill)
	// unless the run's context carries one.
	Trigger string
}

type triggerKey struct{}

// WithTrigger labels the runs started with ctx in the run log.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

// Orchestrator runs the fetch, normalize and merge pipeline over a window.
// Runs are serialized; a run started while another is in progress fails
// with KindBusy.
type Orchestrator struct {
	tokens   TokenSource
	fetcher  Fetcher
	table    storage.Table
	notifier Notifier
	runs     RunLog
	opts     Options
	logger   *logger.Logger
	newID    func() string

	running sync.Mutex
	mu      sync.Mutex
	state   State
}

// New builds an orchestrator. notifier and runs may be nil.
func New(tokens TokenSource, fetcher Fetcher, table storage.Table, notifier Notifier, runs RunLog, opts Options, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		tokens:   tokens,
		fetcher:  fetcher,
		table:    table,
		notifier: notifier,
		runs:     runs,
		opts:     opts,
		logger:   log,
		newID:    uuid.NewString,
	}
}

// State returns the state of the current or last run.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run syncs w into the table. Days whose fetch fails are skipped and listed
// in the result; an authentication failure or a failed table write ends the
// run with a *SyncError. An empty combined batch is not written.
func (o *Orchestrator) Run(ctx context.Context, w Window) (Result, error) {
	res := Result{RunID: o.newID(), Window: w, TotalPL: decimal.Zero}

	if !o.running.TryLock() {
		res.State = StateFailed
		return res, &SyncError{Kind: KindBusy, State: o.State(), Err: errors.New("another sync is running")}
	}
	defer o.running.Unlock()

	log := o.logger.With("run_id", res.RunID, "window", w.String())
	o.setState(StateIdle)

	res, err := o.run(ctx, log, res)
	if err != nil {
		res.State = StateFailed
		o.setState(StateFailed)
		log.Error("sync failed", "error", err, "skipped_days", len(res.SkippedDays))
	} else {
		res.State = StateDone
		o.setState(StateDone)
		log.Info("sync finished", "rows", res.Rows, "stored", res.StoredRows,
			"total_pl", res.TotalPL.String(), "skipped_days", len(res.SkippedDays))
	}

	o.record(ctx, log, res, err)
	if o.notifier != nil {
		o.notifier.Notify(Summary(res, err))
	}
	return res, err
}

func (o *Orchestrator) fail(kind ErrorKind, err error) error {
	return &SyncError{Kind: kind, State: o.State(), Err: err}
}

func (o *Orchestrator) run(ctx context.Context, log *logger.Logger, res Result) (Result, error) {
	if w := res.Window; w.Start.IsZero() || w.End.IsZero() || w.Start.After(w.End) {
		return res, o.fail(KindInvalid, fmt.Errorf("invalid window %s", w))
	}

	parts := []Window{res.Window}
	if o.opts.PerDay {
		parts = parts[:0]
		for _, d := range res.Window.Days() {
			parts = append(parts, Window{Start: d, End: d})
		}
	}

	var batch []ledger.Row
	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return res, o.fail(KindCanceled, err)
		}

		o.setState(StateAuthenticating)
		cred, err := o.tokens.EnsureValid(ctx)
		if err != nil {
			return res, o.fail(KindAuth, err)
		}

		o.setState(StateFetching)
		res.Queries++
		records, err := o.fetcher.FetchRange(ctx, cred, part.Start, part.End, o.opts.StockCode)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, o.fail(KindCanceled, err)
			}
			var authErr *kiwoom.AuthError
			if errors.As(err, &authErr) {
				return res, o.fail(KindAuth, err)
			}
			log.Warn("fetch failed, skipping", "start", part.Start.String(), "end", part.End.String(), "error", err)
			res.SkippedDays = append(res.SkippedDays, part.Days()...)
			continue
		}

		o.setState(StateNormalizing)
		rows, warnings := kiwoom.Normalize(records)
		for _, w := range warnings {
			log.Warn("normalize", "start", part.Start.String(), "warning", w.Error())
		}
		res.Warnings += len(warnings)

		if len(rows) == 0 {
			res.EmptyDays++
			log.Debug("no realized trades", "start", part.Start.String(), "end", part.End.String(), "records", len(records))
			continue
		}
		log.Info("fetched realized trades", "start", part.Start.String(), "end", part.End.String(), "rows", len(rows))
		batch = append(batch, rows...)
	}

	res.Rows = len(batch)
	res.TotalPL = ledger.TotalPL(batch)
	if len(batch) == 0 {
		log.Info("no data in window, nothing written")
		return res, nil
	}

	if o.opts.BackupDir != "" {
		path, err := backup.Write(o.opts.BackupDir, res.RunID, res.Window.Start, res.Window.End, batch)
		if err != nil {
			log.Warn("backup failed", "error", err)
		} else {
			res.BackupPath = path
		}
	}

	o.setState(StateMerging)
	switch o.opts.Mode {
	case WriteAppend:
		if err := o.table.Append(ctx, batch); err != nil {
			return res, o.fail(KindMerge, &storage.MergeError{Op: "append", Err: err})
		}
	default:
		merged, err := storage.Upsert(ctx, o.table, batch)
		if err != nil {
			return res, o.fail(KindMerge, err)
		}
		res.StoredRows = len(merged)
	}
	return res, nil
}

func (o *Orchestrator) record(ctx context.Context, log *logger.Logger, res Result, runErr error) {
	if o.runs == nil {
		return
	}

	trigger := o.opts.Trigger
	if t, ok := ctx.Value(triggerKey{}).(string); ok {
		trigger = t
	}

	entry := &storage.SyncLog{
		RunID:       res.RunID,
		Trigger:     trigger,
		StartDate:   res.Window.Start.String(),
		EndDate:     res.Window.End.String(),
		State:       res.State.String(),
		Rows:        res.Rows,
		TotalPL:     res.TotalPL.String(),
		SkippedDays: joinDays(res.SkippedDays, ","),
		BackupPath:  res.BackupPath,
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	if err := o.runs.SaveSyncLog(entry); err != nil {
		log.Error("save sync log", "error", err)
	}
}
