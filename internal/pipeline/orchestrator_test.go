package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camuig/pnl-ledger/internal/kiwoom"
	"github.com/camuig/pnl-ledger/internal/ledger"
	"github.com/camuig/pnl-ledger/internal/logger"
	"github.com/camuig/pnl-ledger/internal/storage"
)

type fakeTokens struct {
	calls int
	err   error
}

func (f *fakeTokens) EnsureValid(context.Context) (kiwoom.Credential, error) {
	f.calls++
	if f.err != nil {
		return kiwoom.Credential{}, f.err
	}
	return kiwoom.Credential{Token: "tok"}, nil
}

type query struct{ start, end string }

// fakeFetcher answers per start date; days without an entry are empty.
type fakeFetcher struct {
	mu      sync.Mutex
	records map[string][]kiwoom.RawRecord
	errs    map[string]error
	queries []query
	hook    func()
}

func (f *fakeFetcher) FetchRange(_ context.Context, _ kiwoom.Credential, start, end ledger.Date, _ string) ([]kiwoom.RawRecord, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query{start.String(), end.String()})
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err := f.errs[start.String()]; err != nil {
		return nil, err
	}
	return f.records[start.String()], nil
}

func trade(day, code, qty, pl string) kiwoom.RawRecord {
	d, _ := ledger.ParseDate(day)
	return kiwoom.RawRecord{"dt": d.Compact(), "stk_cd": "A" + code, "cntr_qty": qty, "tdy_sel_pl": pl, "cntr_pric": "1,000"}
}

type fakeNotifier struct{ messages []string }

func (f *fakeNotifier) Notify(m string) { f.messages = append(f.messages, m) }

type fakeRunLog struct {
	logs []*storage.SyncLog
	err  error
}

func (f *fakeRunLog) SaveSyncLog(l *storage.SyncLog) error {
	f.logs = append(f.logs, l)
	return f.err
}

func date(s string) ledger.Date {
	d, err := ledger.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func window(start, end string) Window { return Window{Start: date(start), End: date(end)} }

type harness struct {
	tokens   *fakeTokens
	fetcher  *fakeFetcher
	table    *storage.MemoryTable
	notifier *fakeNotifier
	runs     *fakeRunLog
	orch     *Orchestrator
}

func newHarness(opts Options, existing ...ledger.Row) *harness {
	h := &harness{
		tokens:   &fakeTokens{},
		fetcher:  &fakeFetcher{records: map[string][]kiwoom.RawRecord{}, errs: map[string]error{}},
		table:    storage.NewMemoryTable(existing...),
		notifier: &fakeNotifier{},
		runs:     &fakeRunLog{},
	}
	h.orch = New(h.tokens, h.fetcher, h.table, h.notifier, h.runs, opts, logger.Discard())
	n := 0
	h.orch.newID = func() string { n++; return fmt.Sprintf("run-%d", n) }
	return h
}

func TestRun_PerDayAscendingAndMerged(t *testing.T) {
	existing := ledger.Row{Date: ledger.NewNullDate(date("2024-01-02")), StockCode: "OLD", Quantity: ledger.ParseNumber("1")}
	kept := ledger.Row{Date: ledger.NewNullDate(date("2023-12-29")), StockCode: "KEEP", Quantity: ledger.ParseNumber("1")}
	h := newHarness(Options{PerDay: true, Trigger: "cli"}, existing, kept)
	h.fetcher.records["2024-01-02"] = []kiwoom.RawRecord{trade("2024-01-02", "005930", "10", "50000"), trade("2024-01-02", "000660", "0", "1")}
	h.fetcher.records["2024-01-03"] = []kiwoom.RawRecord{trade("2024-01-03", "035420", "3", "-20000")}

	res, err := h.orch.Run(context.Background(), window("2024-01-01", "2024-01-03"))
	require.NoError(t, err)

	assert.Equal(t, []query{
		{"2024-01-01", "2024-01-01"},
		{"2024-01-02", "2024-01-02"},
		{"2024-01-03", "2024-01-03"},
	}, h.fetcher.queries)
	assert.Equal(t, 3, h.tokens.calls)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, StateDone, h.orch.State())
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, "30000", res.TotalPL.String())
	assert.Equal(t, 3, res.StoredRows)
	assert.Equal(t, 1, res.EmptyDays)

	stored, _ := h.table.ReadAll(context.Background())
	codes := make([]string, len(stored))
	for i, r := range stored {
		codes[i] = r.StockCode
	}
	assert.Equal(t, []string{"035420", "005930", "KEEP"}, codes)
	assert.True(t, stored[1].SellAmount.Decimal.Equal(ledger.ParseNumber("10000").Decimal))

	require.Len(t, h.runs.logs, 1)
	assert.Equal(t, "run-1", h.runs.logs[0].RunID)
	assert.Equal(t, "cli", h.runs.logs[0].Trigger)
	assert.Equal(t, "done", h.runs.logs[0].State)
	require.Len(t, h.notifier.messages, 1)
	assert.Contains(t, h.notifier.messages[0], "+30,000 KRW")
}

func TestRun_SingleRangedQuery(t *testing.T) {
	h := newHarness(Options{PerDay: false})
	h.fetcher.records["2024-01-01"] = []kiwoom.RawRecord{trade("2024-01-02", "005930", "1", "10")}

	res, err := h.orch.Run(context.Background(), window("2024-01-01", "2024-01-05"))
	require.NoError(t, err)
	assert.Equal(t, []query{{"2024-01-01", "2024-01-05"}}, h.fetcher.queries)
	assert.Equal(t, 1, res.Queries)
	assert.Equal(t, 1, res.Rows)
}

func TestRun_FetchErrorSkipsDay(t *testing.T) {
	h := newHarness(Options{PerDay: true})
	h.fetcher.errs["2024-01-02"] = &kiwoom.FetchError{StatusCode: 500, Message: "down"}
	h.fetcher.records["2024-01-03"] = []kiwoom.RawRecord{trade("2024-01-03", "005930", "1", "10")}

	res, err := h.orch.Run(context.Background(), window("2024-01-01", "2024-01-03"))
	require.NoError(t, err)
	assert.Len(t, h.fetcher.queries, 3)
	assert.Equal(t, []ledger.Date{date("2024-01-02")}, res.SkippedDays)
	assert.Equal(t, 1, res.Rows)
	assert.Equal(t, "2024-01-02", h.runs.logs[0].SkippedDays)
	assert.Contains(t, h.notifier.messages[0], "Skipped days (1): 2024-01-02")
}

func TestRun_AuthErrorIsFatal(t *testing.T) {
	h := newHarness(Options{PerDay: true})
	h.fetcher.records["2024-01-01"] = []kiwoom.RawRecord{trade("2024-01-01", "005930", "1", "10")}
	h.tokens.err = &kiwoom.AuthError{StatusCode: 401, Message: "bad key"}

	res, err := h.orch.Run(context.Background(), window("2024-01-01", "2024-01-03"))

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, KindAuth, syncErr.Kind)
	assert.Equal(t, StateAuthenticating, syncErr.State)
	var authErr *kiwoom.AuthError
	assert.ErrorAs(t, err, &authErr)

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StateFailed, h.orch.State())
	assert.Empty(t, h.fetcher.queries)
	assert.Zero(t, h.table.Writes())
	assert.Equal(t, "failed", h.runs.logs[0].State)
	assert.Contains(t, h.notifier.messages[0], "Sync failed")
}

func TestRun_AuthErrorFromFetchIsFatal(t *testing.T) {
	h := newHarness(Options{PerDay: true})
	h.fetcher.errs["2024-01-01"] = fmt.Errorf("wrapped: %w", &kiwoom.AuthError{ReturnCode: 8005})

	_, err := h.orch.Run(context.Background(), window("2024-01-01", "2024-01-03"))

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, KindAuth, syncErr.Kind)
	assert.Len(t, h.fetcher.queries, 1)
}

func TestRun_EmptyWindowWritesNothing(t *testing.T) {
	h := newHarness(Options{PerDay: true})

	res, err := h.orch.Run(context.Background(), window("2024-01-06", "2024-01-07"))
	require.NoError(t, err)
	assert.True(t, res.NoData())
	assert.Zero(t, h.table.Writes())
	assert.Contains(t, h.notifier.messages[0], "No realized trades")
}

func TestRun_StructuralWarningCountsAsEmpty(t *testing.T) {
	h := newHarness(Options{PerDay: true})
	h.fetcher.records["2024-01-01"] = []kiwoom.RawRecord{{"unexpected": "1"}}

	res, err := h.orch.Run(context.Background(), window("2024-01-01", "2024-01-01"))
	require.NoError(t, err)
	assert.True(t, res.NoData())
	assert.Equal(t, 1, res.Warnings)
	assert.Equal(t, 1, res.EmptyDays)
}

type brokenTable struct{ *storage.MemoryTable }

func (brokenTable) WriteAll(context.Context, []ledger.Row) error { return errors.New("quota exceeded") }

func TestRun_MergeErrorKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(Options{PerDay: true, BackupDir: dir})
	h.orch.table = brokenTable{storage.NewMemoryTable()}
	h.fetcher.records["2024-01-01"] = []kiwoom.RawRecord{trade("2024-01-01", "005930", "1", "10")}

	res, err := h.orch.Run(context.Background(), window("2024-01-01", "2024-01-01"))

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, KindMerge, syncErr.Kind)
	assert.Equal(t, StateMerging, syncErr.State)
	var mergeErr *storage.MergeError
	assert.ErrorAs(t, err, &mergeErr)

	require.NotEmpty(t, res.BackupPath)
	assert.Equal(t, dir, filepath.Dir(res.BackupPath))
	_, statErr := os.Stat(res.BackupPath)
	assert.NoError(t, statErr)
	assert.Contains(t, h.notifier.messages[0], res.BackupPath)
}

func TestRun_AppendMode(t *testing.T) {
	existing := ledger.Row{Date: ledger.NewNullDate(date("2024-01-01")), StockCode: "OLD", Quantity: ledger.ParseNumber("1")}
	h := newHarness(Options{PerDay: true, Mode: WriteAppend}, existing)
	h.fetcher.records["2024-01-01"] = []kiwoom.RawRecord{trade("2024-01-01", "005930", "1", "10")}

	_, err := h.orch.Run(context.Background(), window("2024-01-01", "2024-01-01"))
	require.NoError(t, err)

	stored, _ := h.table.ReadAll(context.Background())
	require.Len(t, stored, 2)
	assert.Equal(t, "OLD", stored[0].StockCode)
}

func TestRun_InvalidWindow(t *testing.T) {
	h := newHarness(Options{PerDay: true})
	_, err := h.orch.Run(context.Background(), window("2024-01-05", "2024-01-01"))

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, KindInvalid, syncErr.Kind)
	assert.Empty(t, h.fetcher.queries)
}

func TestRun_Canceled(t *testing.T) {
	h := newHarness(Options{PerDay: true})
	ctx, cancel := context.WithCancel(context.Background())
	h.fetcher.hook = cancel

	_, err := h.orch.Run(ctx, window("2024-01-01", "2024-01-05"))
	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, KindCanceled, syncErr.Kind)
	assert.Len(t, h.fetcher.queries, 1)
}

func TestRun_ConcurrentRunIsBusy(t *testing.T) {
	h := newHarness(Options{PerDay: true})
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.fetcher.hook = func() {
		once.Do(func() { close(entered) })
		<-release
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.Run(context.Background(), window("2024-01-01", "2024-01-01"))
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first run did not start")
	}

	_, err := h.orch.Run(context.Background(), window("2024-01-01", "2024-01-01"))
	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, KindBusy, syncErr.Kind)

	close(release)
	require.NoError(t, <-done)
}

func TestRun_TriggerFromContext(t *testing.T) {
	h := newHarness(Options{PerDay: true, Trigger: "cli"})

	_, err := h.orch.Run(WithTrigger(context.Background(), "dashboard"), window("2024-01-01", "2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, "dashboard", h.runs.logs[0].Trigger)
}

func TestBackfill_MonthByMonth(t *testing.T) {
	h := newHarness(Options{PerDay: false, Trigger: "backfill"})
	h.fetcher.records["2024-01-15"] = nil
	h.fetcher.records["2024-02-01"] = []kiwoom.RawRecord{trade("2024-02-05", "005930", "1", "10")}

	results, err := h.orch.Backfill(context.Background(), window("2024-01-15", "2024-03-10"))
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []query{
		{"2024-01-15", "2024-01-31"},
		{"2024-02-01", "2024-02-29"},
		{"2024-03-01", "2024-03-10"},
	}, h.fetcher.queries)
	assert.True(t, results[0].NoData())
	assert.Equal(t, 1, results[1].Rows)
	assert.Len(t, h.runs.logs, 3)
}

func TestBackfill_StopsOnAuthError(t *testing.T) {
	h := newHarness(Options{PerDay: false})
	h.tokens.err = &kiwoom.AuthError{StatusCode: 403}

	results, err := h.orch.Backfill(context.Background(), window("2024-01-01", "2024-03-31"))
	assert.Error(t, err)
	assert.Len(t, results, 1)
}
