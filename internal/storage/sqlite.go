package storage

import (
	"context"
	"fmt"

	"github.com/camuig/pnl-ledger/internal/ledger"
)

// SQLiteTable stores one named history table in the local database.
type SQLiteTable struct {
	repo  *Repository
	sheet string
}

func NewSQLiteTable(repo *Repository, sheet string) *SQLiteTable {
	return &SQLiteTable{repo: repo, sheet: sheet}
}

func (t *SQLiteTable) ReadAll(ctx context.Context) ([]ledger.Row, error) {
	rows, err := t.repo.WithContext(ctx).GetHistory(t.sheet)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.sheet, err)
	}
	return rows, nil
}

func (t *SQLiteTable) WriteAll(ctx context.Context, rows []ledger.Row) error {
	if err := t.repo.WithContext(ctx).ReplaceHistory(t.sheet, rows); err != nil {
		return fmt.Errorf("write %s: %w", t.sheet, err)
	}
	return nil
}

func (t *SQLiteTable) Append(ctx context.Context, rows []ledger.Row) error {
	if err := t.repo.WithContext(ctx).AppendHistory(t.sheet, rows); err != nil {
		return fmt.Errorf("append %s: %w", t.sheet, err)
	}
	return nil
}
