package kiwoom

import (
	"context"
	"time"

	"github.com/camuig/pnl-ledger/internal/ledger"
)

type sampleTrade struct {
	name, code     string
	buy, sell, qty string
	realized, rate string
}

var sampleTrades = []sampleTrade{
	{"삼성전자", "A005930", "65,350", "70,000", "10", "50000", "+7.14%"},
	{"SK하이닉스", "A000660", "121,980", "120,000", "5", "-20000", "-1.64%"},
	{"NAVER", "A035420", "176,470", "180,000", "3", "30000", "+2.00%"},
	{"카카오", "A035720", "47,860", "50,000", "8", "15000", "+4.29%"},
	{"LG에너지솔루션", "A373220", "451,000", "450,000", "2", "-10000", "-0.22%"},
}

// SampleClient stands in for the broker in test mode. It issues a fixed
// credential and reports one trade per weekday, cycling through a small
// basket of stocks, in the broker's wire format.
type SampleClient struct {
	now func() time.Time
}

func NewSampleClient() *SampleClient {
	return &SampleClient{now: time.Now}
}

func (s *SampleClient) EnsureValid(context.Context) (Credential, error) {
	return Credential{Token: "sample", ExpiresAt: s.now().Add(DefaultTokenLifetime)}, nil
}

func (s *SampleClient) FetchRange(ctx context.Context, _ Credential, start, end ledger.Date, stockCode string) ([]RawRecord, error) {
	var records []RawRecord
	for d := start; !d.After(end); d = d.AddDays(1) {
		if err := ctx.Err(); err != nil {
			return nil, &FetchError{Start: start.Compact(), End: end.Compact(), Err: err}
		}
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		t := sampleTrades[d.Day()%len(sampleTrades)]
		if stockCode != "" && StripCodePrefix(t.code) != StripCodePrefix(stockCode) {
			continue
		}
		records = append(records, RawRecord{
			fieldDate:       d.Compact(),
			fieldStockName:  t.name,
			fieldStockCode:  t.code,
			fieldBuyPrice:   t.buy,
			fieldSellPrice:  t.sell,
			fieldQuantity:   t.qty,
			fieldRealizedPL: t.realized,
			fieldReturnRate: t.rate,
			fieldFee:        "150",
			fieldTax:        "0",
		})
	}
	return records, nil
}
