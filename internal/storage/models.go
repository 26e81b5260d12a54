package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/camuig/pnl-ledger/internal/ledger"
)

// HistoryRecord is one row of a history table. Sheet names the table, so one
// database can hold several; Position keeps the written order.
type HistoryRecord struct {
	ID       uint   `gorm:"primarykey"`
	Sheet    string `gorm:"index:idx_sheet_position;not null"`
	Position int    `gorm:"index:idx_sheet_position;not null"`

	Date       ledger.NullDate     `gorm:"type:text;index"`
	StockName  string
	StockCode  string              `gorm:"index"`
	RealizedPL decimal.NullDecimal `gorm:"type:text"`
	ReturnRate decimal.NullDecimal `gorm:"type:text"`
	BuyPrice   decimal.NullDecimal `gorm:"type:text"`
	SellPrice  decimal.NullDecimal `gorm:"type:text"`
	Quantity   decimal.NullDecimal `gorm:"type:text"`
	BuyAmount  decimal.NullDecimal `gorm:"type:text"`
	SellAmount decimal.NullDecimal `gorm:"type:text"`
	Fee        decimal.NullDecimal `gorm:"type:text"`
	Tax        decimal.NullDecimal `gorm:"type:text"`
	FeeTax     decimal.NullDecimal `gorm:"type:text"`
}

func newHistoryRecord(sheet string, position int, r ledger.Row) HistoryRecord {
	return HistoryRecord{
		Sheet:      sheet,
		Position:   position,
		Date:       r.Date,
		StockName:  r.StockName,
		StockCode:  r.StockCode,
		RealizedPL: r.RealizedPL,
		ReturnRate: r.ReturnRate,
		BuyPrice:   r.BuyPrice,
		SellPrice:  r.SellPrice,
		Quantity:   r.Quantity,
		BuyAmount:  r.BuyAmount,
		SellAmount: r.SellAmount,
		Fee:        r.Fee,
		Tax:        r.Tax,
		FeeTax:     r.FeeTax,
	}
}

func (h HistoryRecord) Row() ledger.Row {
	return ledger.Row{
		Date:       h.Date,
		StockName:  h.StockName,
		StockCode:  h.StockCode,
		RealizedPL: h.RealizedPL,
		ReturnRate: h.ReturnRate,
		BuyPrice:   h.BuyPrice,
		SellPrice:  h.SellPrice,
		Quantity:   h.Quantity,
		BuyAmount:  h.BuyAmount,
		SellAmount: h.SellAmount,
		Fee:        h.Fee,
		Tax:        h.Tax,
		FeeTax:     h.FeeTax,
	}
}

// SyncLog records one orchestrator run.
type SyncLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	RunID     string `gorm:"index;not null" json:"run_id"`
	Trigger   string `json:"trigger"` // cli, schedule, dashboard, backfill
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	State     string `json:"state"`
	Rows      int    `json:"rows"`
	TotalPL   string `json:"total_pl"`
	// SkippedDays is a comma separated list of YYYY-MM-DD days whose fetch failed.
	SkippedDays string `gorm:"type:text" json:"skipped_days"`
	BackupPath  string `json:"backup_path"`
	Error       string `json:"error"`
}
