package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Row is one closed-position result in the canonical, storage-facing schema.
// A field left invalid means the source did not report it or it could not be parsed.
type Row struct {
	Date       NullDate            `json:"date"`
	StockName  string              `json:"stock_name,omitempty"`
	StockCode  string              `json:"stock_code,omitempty"`
	RealizedPL decimal.NullDecimal `json:"realized_pl"`
	ReturnRate decimal.NullDecimal `json:"return_rate"`
	BuyPrice   decimal.NullDecimal `json:"buy_price"`
	SellPrice  decimal.NullDecimal `json:"sell_price"`
	Quantity   decimal.NullDecimal `json:"quantity"`
	BuyAmount  decimal.NullDecimal `json:"buy_amount"`
	SellAmount decimal.NullDecimal `json:"sell_amount"`
	Fee        decimal.NullDecimal `json:"fee"`
	Tax        decimal.NullDecimal `json:"tax"`
	FeeTax     decimal.NullDecimal `json:"fee_tax"`
}

// Canonical column names, in storage order.
const (
	ColDate       = "date"
	ColStockName  = "stock_name"
	ColStockCode  = "stock_code"
	ColRealizedPL = "realized_pl"
	ColReturnRate = "return_rate"
	ColBuyPrice   = "buy_price"
	ColSellPrice  = "sell_price"
	ColQuantity   = "quantity"
	ColBuyAmount  = "buy_amount"
	ColSellAmount = "sell_amount"
	ColFee        = "fee"
	ColTax        = "tax"
	ColFeeTax     = "fee_tax"
)

// Columns is the header written above tabular exports of rows.
var Columns = []string{
	ColDate, ColStockName, ColStockCode, ColRealizedPL, ColReturnRate,
	ColBuyPrice, ColSellPrice, ColQuantity, ColBuyAmount, ColSellAmount,
	ColFee, ColTax, ColFeeTax,
}

// Number wraps d as a present nullable decimal.
func Number(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// ParseNumber parses a locale-formatted number such as "70,000", "+7.14%" or
// "-00000050000". Unparseable input yields an invalid value.
func ParseNumber(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimPrefix(s, "+")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return Number(d)
}

func numberCell(n decimal.NullDecimal) string {
	if !n.Valid {
		return ""
	}
	return n.Decimal.String()
}

// Cells renders r in Columns order. Absent values become empty cells.
func (r Row) Cells() []string {
	return []string{
		r.Date.Key(),
		r.StockName,
		r.StockCode,
		numberCell(r.RealizedPL),
		numberCell(r.ReturnRate),
		numberCell(r.BuyPrice),
		numberCell(r.SellPrice),
		numberCell(r.Quantity),
		numberCell(r.BuyAmount),
		numberCell(r.SellAmount),
		numberCell(r.Fee),
		numberCell(r.Tax),
		numberCell(r.FeeTax),
	}
}

// RowFromCells builds a Row from a header and a matching record of cell values.
// Unknown columns are ignored, missing cells leave fields unset. Cells may be
// strings or numbers as returned by spreadsheet APIs.
func RowFromCells(header []string, cells []any) Row {
	var r Row
	for i, name := range header {
		if i >= len(cells) {
			break
		}
		text := cellText(cells[i])
		switch strings.TrimSpace(name) {
		case ColDate:
			if d, err := parseAnyDate(text); err == nil {
				r.Date = NewNullDate(d)
			}
		case ColStockName:
			r.StockName = text
		case ColStockCode:
			r.StockCode = text
		case ColRealizedPL:
			r.RealizedPL = ParseNumber(text)
		case ColReturnRate:
			r.ReturnRate = ParseNumber(text)
		case ColBuyPrice:
			r.BuyPrice = ParseNumber(text)
		case ColSellPrice:
			r.SellPrice = ParseNumber(text)
		case ColQuantity:
			r.Quantity = ParseNumber(text)
		case ColBuyAmount:
			r.BuyAmount = ParseNumber(text)
		case ColSellAmount:
			r.SellAmount = ParseNumber(text)
		case ColFee:
			r.Fee = ParseNumber(text)
		case ColTax:
			r.Tax = ParseNumber(text)
		case ColFeeTax:
			r.FeeTax = ParseNumber(text)
		}
	}
	return r
}

func cellText(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(c)
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case int:
		return strconv.Itoa(c)
	case int64:
		return strconv.FormatInt(c, 10)
	default:
		return fmt.Sprint(c)
	}
}

func parseAnyDate(s string) (Date, error) {
	if len(s) == len(CompactDateFormat) {
		return ParseCompactDate(s)
	}
	if len(s) > len(DateFormat) {
		s = s[:len(DateFormat)]
	}
	return ParseDate(s)
}

// TotalPL sums the realized P/L of rows, skipping absent values.
func TotalPL(rows []Row) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		if r.RealizedPL.Valid {
			total = total.Add(r.RealizedPL.Decimal)
		}
	}
	return total
}
