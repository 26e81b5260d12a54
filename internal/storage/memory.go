package storage

import (
	"context"
	"sync"

	"github.com/camuig/pnl-ledger/internal/ledger"
)

// MemoryTable keeps rows in process memory. It backs dry runs and tests.
type MemoryTable struct {
	mu     sync.Mutex
	rows   []ledger.Row
	writes int
}

func NewMemoryTable(rows ...ledger.Row) *MemoryTable {
	return &MemoryTable{rows: append([]ledger.Row(nil), rows...)}
}

func (t *MemoryTable) ReadAll(context.Context) ([]ledger.Row, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ledger.Row(nil), t.rows...), nil
}

func (t *MemoryTable) WriteAll(_ context.Context, rows []ledger.Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = append([]ledger.Row(nil), rows...)
	t.writes++
	return nil
}

func (t *MemoryTable) Append(_ context.Context, rows []ledger.Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = append(t.rows, rows...)
	t.writes++
	return nil
}

// Writes counts WriteAll and Append calls.
func (t *MemoryTable) Writes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writes
}
