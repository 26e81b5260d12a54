// Package backup writes a local CSV copy of each synced batch, so rows
// survive a failed store write.
package backup

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/camuig/pnl-ledger/internal/ledger"
)

// utf8BOM makes spreadsheet programs read Korean stock names correctly.
const utf8BOM = "\ufeff"

// Write stores rows as <dir>/realized_pl_<YYYYMMDD>_<YYYYMMDD>_<runID>.csv
// and returns the file path. The file is written to a temporary name first
// and renamed into place.
func Write(dir, runID string, start, end ledger.Date, rows []ledger.Row) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	name := fmt.Sprintf("realized_pl_%s_%s_%s.csv", start.Compact(), end.Compact(), runID)
	path := filepath.Join(dir, name)

	f, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create backup file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := writeCSV(f, rows); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close backup file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("rename backup file: %w", err)
	}
	return path, nil
}

func writeCSV(f *os.File, rows []ledger.Row) error {
	if _, err := f.WriteString(utf8BOM); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(ledger.Columns); err != nil {
		return fmt.Errorf("write backup header: %w", err)
	}
	for _, r := range rows {
		if err := w.Write(r.Cells()); err != nil {
			return fmt.Errorf("write backup row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush backup: %w", err)
	}
	return nil
}

// Read loads a backup file written by Write.
func Read(path string) ([]ledger.Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	if len(data) >= len(utf8BOM) && string(data[:len(utf8BOM)]) == utf8BOM {
		data = data[len(utf8BOM):]
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse backup: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	rows := make([]ledger.Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		cells := make([]any, len(rec))
		for i, c := range rec {
			cells[i] = c
		}
		rows = append(rows, ledger.RowFromCells(header, cells))
	}
	return rows, nil
}
