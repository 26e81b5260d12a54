package storage

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/camuig/pnl-ledger/internal/ledger"
)

// SheetsTable stores the history in one worksheet of a Google spreadsheet.
// The first row holds the column names; rows are read back by header, so
// columns may be reordered by hand.
type SheetsTable struct {
	svc           *sheets.Service
	spreadsheetID string
	worksheet     string
}

// OpenSheets connects to the spreadsheet and creates the worksheet when it
// does not exist yet.
func OpenSheets(ctx context.Context, spreadsheetID, worksheet string, opts ...option.ClientOption) (*SheetsTable, error) {
	opts = append([]option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}, opts...)
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	t := &SheetsTable{svc: svc, spreadsheetID: spreadsheetID, worksheet: worksheet}
	if err := t.ensureWorksheet(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *SheetsTable) ensureWorksheet(ctx context.Context) error {
	ss, err := t.svc.Spreadsheets.Get(t.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == t.worksheet {
			return nil
		}
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{Requests: []*sheets.Request{{
		AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: t.worksheet}},
	}}}
	if _, err := t.svc.Spreadsheets.BatchUpdate(t.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add worksheet %s: %w", t.worksheet, err)
	}
	return nil
}

// sheetRange is the A1 reference of the whole worksheet, or of cell if given.
func (t *SheetsTable) sheetRange(cell string) string {
	r := "'" + strings.ReplaceAll(t.worksheet, "'", "''") + "'"
	if cell != "" {
		r += "!" + cell
	}
	return r
}

func (t *SheetsTable) ReadAll(ctx context.Context) ([]ledger.Row, error) {
	resp, err := t.svc.Spreadsheets.Values.Get(t.spreadsheetID, t.sheetRange("")).
		ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read worksheet %s: %w", t.worksheet, err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}

	header := make([]string, len(resp.Values[0]))
	for i, v := range resp.Values[0] {
		header[i] = fmt.Sprint(v)
	}

	rows := make([]ledger.Row, 0, len(resp.Values)-1)
	for _, cells := range resp.Values[1:] {
		if blank(cells) {
			continue
		}
		rows = append(rows, ledger.RowFromCells(header, cells))
	}
	return rows, nil
}

func (t *SheetsTable) WriteAll(ctx context.Context, rows []ledger.Row) error {
	_, err := t.svc.Spreadsheets.Values.Clear(t.spreadsheetID, t.sheetRange(""), &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear worksheet %s: %w", t.worksheet, err)
	}

	values := append([][]any{headerCells()}, sheetRows(rows)...)
	_, err = t.svc.Spreadsheets.Values.Update(t.spreadsheetID, t.sheetRange("A1"), &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write worksheet %s: %w", t.worksheet, err)
	}
	return nil
}

func (t *SheetsTable) Append(ctx context.Context, rows []ledger.Row) error {
	if len(rows) == 0 {
		return nil
	}

	head, err := t.svc.Spreadsheets.Values.Get(t.spreadsheetID, t.sheetRange("1:1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", t.worksheet, err)
	}
	values := sheetRows(rows)
	if len(head.Values) == 0 {
		values = append([][]any{headerCells()}, values...)
	}

	_, err = t.svc.Spreadsheets.Values.Append(t.spreadsheetID, t.sheetRange(""), &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to worksheet %s: %w", t.worksheet, err)
	}
	return nil
}

func headerCells() []any {
	cells := make([]any, len(ledger.Columns))
	for i, c := range ledger.Columns {
		cells[i] = c
	}
	return cells
}

// sheetRows renders rows as cells. Amounts go out as numbers so the sheet
// can sum them; dates and names stay text.
func sheetRows(rows []ledger.Row) [][]any {
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		texts := r.Cells()
		cells := make([]any, len(texts))
		for i, text := range texts {
			cells[i] = text
			switch ledger.Columns[i] {
			case ledger.ColDate, ledger.ColStockName, ledger.ColStockCode:
				continue
			}
			if n := ledger.ParseNumber(text); n.Valid {
				cells[i] = n.Decimal.InexactFloat64()
			}
		}
		out = append(out, cells)
	}
	return out
}

func blank(cells []any) bool {
	for _, c := range cells {
		if c != nil && fmt.Sprint(c) != "" {
			return false
		}
	}
	return true
}
