package storage

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"gorm.io/gorm"

	"github.com/camuig/pnl-ledger/internal/config"
	"github.com/camuig/pnl-ledger/internal/ledger"
)

// Table is a durable, ordered collection of ledger rows.
type Table interface {
	// ReadAll returns every row in stored order.
	ReadAll(ctx context.Context) ([]ledger.Row, error)
	// WriteAll replaces the whole table with rows.
	WriteAll(ctx context.Context, rows []ledger.Row) error
	// Append adds rows after the existing ones. It does not deduplicate and
	// is meant for bulk initial loads only.
	Append(ctx context.Context, rows []ledger.Row) error
}

// MergeError reports a failed read or write of the history table during an
// upsert. The table is presumed unchanged.
type MergeError struct {
	Op  string // "read" or "write"
	Err error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("history %s: %v", e.Op, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// Upsert merges rows into t by date: every stored row whose date appears in
// rows is replaced by the rows of that date, the result is sorted newest
// first and written back whole. The merged table is returned once the write
// succeeds.
func Upsert(ctx context.Context, t Table, rows []ledger.Row) ([]ledger.Row, error) {
	existing, err := t.ReadAll(ctx)
	if err != nil {
		return nil, &MergeError{Op: "read", Err: err}
	}

	merged := ledger.Merge(existing, rows)

	if err := t.WriteAll(ctx, merged); err != nil {
		return nil, &MergeError{Op: "write", Err: err}
	}
	return merged, nil
}

// Open returns the history table selected by cfg.Store. db is only used by
// the sqlite backend and may be nil otherwise.
func Open(ctx context.Context, cfg *config.Config, db *gorm.DB) (Table, error) {
	switch cfg.Store.Backend {
	case config.BackendSheets:
		return OpenSheets(ctx, cfg.Store.SpreadsheetID, cfg.Store.Worksheet,
			option.WithCredentialsFile(cfg.Store.CredentialsFile))
	case config.BackendMemory:
		return NewMemoryTable(), nil
	case config.BackendSQLite:
		if db == nil {
			return nil, fmt.Errorf("sqlite backend needs a database")
		}
		return NewSQLiteTable(NewRepository(db), cfg.Store.Worksheet), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
