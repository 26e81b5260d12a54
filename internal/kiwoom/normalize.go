package kiwoom

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/camuig/pnl-ledger/internal/ledger"
)

// Broker field names of the daily realized P/L record.
const (
	fieldDate       = "dt"
	fieldStockName  = "stk_nm"
	fieldStockCode  = "stk_cd"
	fieldBuyPrice   = "buy_uv"
	fieldSellPrice  = "cntr_pric"
	fieldQuantity   = "cntr_qty"
	fieldRealizedPL = "tdy_sel_pl"
	fieldReturnRate = "pl_rt"
	fieldFee        = "tdy_trde_cmsn"
	fieldTax        = "tdy_trde_tax"
)

type fieldKind int

const (
	kindText fieldKind = iota
	kindCode
	kindDate
	kindNumber
)

type fieldMapping struct {
	source string
	kind   fieldKind
	assign func(r *ledger.Row, text string, num decimal.NullDecimal, date ledger.NullDate)
}

// columnMap maps broker fields to canonical fields. Fields a response does
// not carry are left unset.
var columnMap = []fieldMapping{
	{fieldDate, kindDate, func(r *ledger.Row, _ string, _ decimal.NullDecimal, d ledger.NullDate) { r.Date = d }},
	{fieldStockName, kindText, func(r *ledger.Row, s string, _ decimal.NullDecimal, _ ledger.NullDate) { r.StockName = s }},
	{fieldStockCode, kindCode, func(r *ledger.Row, s string, _ decimal.NullDecimal, _ ledger.NullDate) { r.StockCode = s }},
	{fieldBuyPrice, kindNumber, func(r *ledger.Row, _ string, n decimal.NullDecimal, _ ledger.NullDate) { r.BuyPrice = n }},
	{fieldSellPrice, kindNumber, func(r *ledger.Row, _ string, n decimal.NullDecimal, _ ledger.NullDate) { r.SellPrice = n }},
	{fieldQuantity, kindNumber, func(r *ledger.Row, _ string, n decimal.NullDecimal, _ ledger.NullDate) { r.Quantity = n }},
	{fieldRealizedPL, kindNumber, func(r *ledger.Row, _ string, n decimal.NullDecimal, _ ledger.NullDate) { r.RealizedPL = n }},
	{fieldReturnRate, kindNumber, func(r *ledger.Row, _ string, n decimal.NullDecimal, _ ledger.NullDate) { r.ReturnRate = n }},
	{fieldFee, kindNumber, func(r *ledger.Row, _ string, n decimal.NullDecimal, _ ledger.NullDate) { r.Fee = n }},
	{fieldTax, kindNumber, func(r *ledger.Row, _ string, n decimal.NullDecimal, _ ledger.NullDate) { r.Tax = n }},
}

// Normalize maps broker records to canonical rows. Unparseable values leave
// their field unset and produce a warning; records whose traded quantity is
// absent or not positive are dropped, since only a sale realizes P/L. When
// no record carries any known field the batch is unrecognized: no rows are
// returned and a single warning with Index -1 says so.
func Normalize(records []RawRecord) ([]ledger.Row, []NormalizeWarning) {
	if len(records) == 0 {
		return nil, nil
	}
	if !recognized(records) {
		return nil, []NormalizeWarning{{
			Index:  -1,
			Reason: "no known fields in response, present: " + strings.Join(fieldNames(records[0]), ","),
		}}
	}

	var (
		rows     []ledger.Row
		warnings []NormalizeWarning
	)
	for i, rec := range records {
		var row ledger.Row
		for _, m := range columnMap {
			value, ok := rec[m.source]
			if !ok {
				continue
			}
			value = strings.TrimSpace(value)
			switch m.kind {
			case kindText:
				m.assign(&row, value, decimal.NullDecimal{}, ledger.NullDate{})
			case kindCode:
				m.assign(&row, StripCodePrefix(value), decimal.NullDecimal{}, ledger.NullDate{})
			case kindDate:
				d, err := ledger.ParseCompactDate(value)
				if err != nil {
					warnings = append(warnings, NormalizeWarning{Index: i, Field: m.source, Value: value, Reason: "not a YYYYMMDD date"})
					continue
				}
				m.assign(&row, "", decimal.NullDecimal{}, ledger.NewNullDate(d))
			case kindNumber:
				n := ledger.ParseNumber(value)
				if !n.Valid && value != "" {
					warnings = append(warnings, NormalizeWarning{Index: i, Field: m.source, Value: value, Reason: "not a number"})
				}
				m.assign(&row, "", n, ledger.NullDate{})
			}
		}

		if !row.Quantity.Valid || !row.Quantity.Decimal.IsPositive() {
			continue
		}

		derive(&row, rec)
		rows = append(rows, row)
	}
	return rows, warnings
}

// derive fills computed fields whose inputs are present.
func derive(row *ledger.Row, rec RawRecord) {
	if row.BuyPrice.Valid {
		row.BuyAmount = ledger.Number(row.BuyPrice.Decimal.Mul(row.Quantity.Decimal))
	}
	if row.SellPrice.Valid {
		row.SellAmount = ledger.Number(row.SellPrice.Decimal.Mul(row.Quantity.Decimal))
	}
	_, hasFee := rec[fieldFee]
	_, hasTax := rec[fieldTax]
	if hasFee && hasTax {
		sum := decimal.Zero
		if row.Fee.Valid {
			sum = sum.Add(row.Fee.Decimal)
		}
		if row.Tax.Valid {
			sum = sum.Add(row.Tax.Decimal)
		}
		row.FeeTax = ledger.Number(sum)
	}
}

// StripCodePrefix removes the market prefix letters the broker puts in front
// of a stock code ("A005930" -> "005930").
func StripCodePrefix(code string) string {
	return strings.TrimLeftFunc(code, func(r rune) bool {
		return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
	})
}

func recognized(records []RawRecord) bool {
	for _, rec := range records {
		for _, m := range columnMap {
			if _, ok := rec[m.source]; ok {
				return true
			}
		}
	}
	return false
}

func fieldNames(rec RawRecord) []string {
	names := make([]string, 0, len(rec))
	for k := range rec {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
