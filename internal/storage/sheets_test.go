package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/camuig/pnl-ledger/internal/ledger"
)

// fakeSheets serves the subset of the Sheets v4 API the table uses, holding
// one grid of values per worksheet.
type fakeSheets struct {
	mu     sync.Mutex
	titles []string
	grids  map[string][][]any
}

func newFakeSheets(titles ...string) *fakeSheets {
	return &fakeSheets{titles: titles, grids: map[string][][]any{}}
}

func worksheetOf(rng string) string {
	if i := strings.LastIndex(rng, "!"); i >= 0 {
		rng = rng[:i]
	}
	return strings.ReplaceAll(strings.Trim(rng, "'"), "''", "'")
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/sid")
	reply := func(v any) { _ = json.NewEncoder(w).Encode(v) }

	switch {
	case r.Method == http.MethodGet && path == "":
		ss := &sheets.Spreadsheet{SpreadsheetId: "sid"}
		for _, title := range f.titles {
			ss.Sheets = append(ss.Sheets, &sheets.Sheet{Properties: &sheets.SheetProperties{Title: title}})
		}
		reply(ss)

	case r.Method == http.MethodPost && path == ":batchUpdate":
		var req sheets.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, q := range req.Requests {
			if q.AddSheet != nil {
				f.titles = append(f.titles, q.AddSheet.Properties.Title)
			}
		}
		reply(&sheets.BatchUpdateSpreadsheetResponse{SpreadsheetId: "sid"})

	case strings.HasPrefix(path, "/values/"):
		rng := strings.TrimPrefix(path, "/values/")
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(rng, ":clear"):
			delete(f.grids, worksheetOf(strings.TrimSuffix(rng, ":clear")))
			reply(&sheets.ClearValuesResponse{})
		case r.Method == http.MethodPost && strings.HasSuffix(rng, ":append"):
			var vr sheets.ValueRange
			_ = json.NewDecoder(r.Body).Decode(&vr)
			name := worksheetOf(strings.TrimSuffix(rng, ":append"))
			f.grids[name] = append(f.grids[name], vr.Values...)
			reply(&sheets.AppendValuesResponse{})
		case r.Method == http.MethodPut:
			var vr sheets.ValueRange
			_ = json.NewDecoder(r.Body).Decode(&vr)
			f.grids[worksheetOf(rng)] = vr.Values
			reply(&sheets.UpdateValuesResponse{})
		case r.Method == http.MethodGet:
			values := f.grids[worksheetOf(rng)]
			if strings.HasSuffix(rng, "!1:1") && len(values) > 1 {
				values = values[:1]
			}
			reply(&sheets.ValueRange{Range: rng, Values: values})
		default:
			http.Error(w, "unsupported", http.StatusNotImplemented)
		}

	default:
		http.Error(w, "unsupported", http.StatusNotImplemented)
	}
}

func openFake(t *testing.T, fake *fakeSheets, worksheet string) *SheetsTable {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	table, err := OpenSheets(context.Background(), "sid", worksheet,
		option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)
	return table
}

func TestSheetsTable_CreatesMissingWorksheet(t *testing.T) {
	fake := newFakeSheets("Sheet1")
	openFake(t, fake, "realized_pl")
	assert.Equal(t, []string{"Sheet1", "realized_pl"}, fake.titles)

	openFake(t, fake, "realized_pl")
	assert.Len(t, fake.titles, 2)
}

func TestSheetsTable_WriteAllThenReadAll(t *testing.T) {
	fake := newFakeSheets("realized_pl")
	table := openFake(t, fake, "realized_pl")
	ctx := context.Background()

	want := []ledger.Row{row("2024-01-15", "005930", "50000"), row("2024-01-12", "000660", "-20000.5")}
	require.NoError(t, table.WriteAll(ctx, want))

	grid := fake.grids["realized_pl"]
	require.Len(t, grid, 3)
	assert.Equal(t, ledger.ColDate, grid[0][0])
	assert.Equal(t, "005930", grid[1][2])

	got, err := table.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, cells(want), cells(got))

	require.NoError(t, table.WriteAll(ctx, want[1:]))
	got, err = table.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSheetsTable_AppendAddsHeaderOnce(t *testing.T) {
	fake := newFakeSheets("realized_pl")
	table := openFake(t, fake, "realized_pl")
	ctx := context.Background()

	require.NoError(t, table.Append(ctx, []ledger.Row{row("2024-01-02", "A", "1")}))
	require.NoError(t, table.Append(ctx, []ledger.Row{row("2024-01-01", "B", "2")}))

	grid := fake.grids["realized_pl"]
	require.Len(t, grid, 3)
	assert.Equal(t, ledger.ColDate, grid[0][0])

	got, err := table.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[1].StockCode)
}

func TestSheetsTable_ReadsReorderedColumns(t *testing.T) {
	fake := newFakeSheets("realized_pl")
	fake.grids["realized_pl"] = [][]any{
		{ledger.ColRealizedPL, "memo", ledger.ColDate, ledger.ColStockCode},
		{float64(1500), "hand edit", "2024-01-15", "005930"},
		{"", "", "", ""},
	}
	table := openFake(t, fake, "realized_pl")

	got, err := table.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2024-01-15", got[0].Date.Key())
	assert.Equal(t, "1500", got[0].RealizedPL.Decimal.String())
}
