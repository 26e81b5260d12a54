package storage

import (
	"context"

	"gorm.io/gorm"

	"github.com/camuig/pnl-ledger/internal/ledger"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithContext returns a repository whose queries are bound to ctx.
func (r *Repository) WithContext(ctx context.Context) *Repository {
	return &Repository{db: r.db.WithContext(ctx)}
}

// History

func (r *Repository) GetHistory(sheet string) ([]ledger.Row, error) {
	var records []HistoryRecord
	err := r.db.Where("sheet = ?", sheet).Order("position ASC").Find(&records).Error
	if err != nil {
		return nil, err
	}
	rows := make([]ledger.Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, rec.Row())
	}
	return rows, nil
}

// ReplaceHistory clears sheet and writes rows in one transaction; a failed
// write leaves the previous contents in place.
func (r *Repository) ReplaceHistory(sheet string, rows []ledger.Row) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("sheet = ?", sheet).Delete(&HistoryRecord{}).Error; err != nil {
			return err
		}
		return insertHistory(tx, sheet, 0, rows)
	})
}

// AppendHistory adds rows after the current last row of sheet.
func (r *Repository) AppendHistory(sheet string, rows []ledger.Row) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var next int
		err := tx.Model(&HistoryRecord{}).Where("sheet = ?", sheet).
			Select("COALESCE(MAX(position) + 1, 0)").Scan(&next).Error
		if err != nil {
			return err
		}
		return insertHistory(tx, sheet, next, rows)
	})
}

func insertHistory(tx *gorm.DB, sheet string, first int, rows []ledger.Row) error {
	if len(rows) == 0 {
		return nil
	}
	records := make([]HistoryRecord, 0, len(rows))
	for i, row := range rows {
		records = append(records, newHistoryRecord(sheet, first+i, row))
	}
	return tx.CreateInBatches(records, 200).Error
}

// Sync Logs

func (r *Repository) SaveSyncLog(log *SyncLog) error {
	return r.db.Create(log).Error
}

func (r *Repository) GetRecentSyncLogs(limit int) ([]SyncLog, error) {
	var logs []SyncLog
	err := r.db.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

func (r *Repository) GetLatestSyncLog() (*SyncLog, error) {
	var log SyncLog
	err := r.db.Order("created_at DESC").Order("id DESC").First(&log).Error
	if err != nil {
		return nil, err
	}
	return &log, nil
}
