package kiwoom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/camuig/pnl-ledger/internal/ledger"
)

const (
	accountPath = "/api/dostk/acnt"

	// realizedPLByDay is the daily realized P/L per stock query.
	realizedPLByDay = "ka10073"
	realizedPLField = "dt_stk_rlzt_pl"

	headerContinue = "cont-yn"
	headerNextKey  = "next-key"
)

type realizedRequest struct {
	Account   string `json:"acnt_no,omitempty"`
	StockCode string `json:"stk_cd"`
	StartDate string `json:"strt_dt"`
	EndDate   string `json:"end_dt"`
	SideCode  string `json:"sll_buy_dvsn_cd"` // 0: all
	QueryType string `json:"inqr_dvsn"`       // 0: daily
}

// FetchRange returns every realized P/L record between start and end
// inclusive, following cont-yn/next-key continuation until the broker stops
// announcing more data. stockCode filters to one stock; empty means all.
// A range with no trades returns an empty slice and no error.
func (c *Client) FetchRange(ctx context.Context, cred Credential, start, end ledger.Date, stockCode string) ([]RawRecord, error) {
	body, err := json.Marshal(realizedRequest{
		Account:   c.account,
		StockCode: stockCode,
		StartDate: start.Compact(),
		EndDate:   end.Compact(),
		SideCode:  "0",
		QueryType: "0",
	})
	if err != nil {
		return nil, &FetchError{Start: start.Compact(), End: end.Compact(), Err: fmt.Errorf("encode request: %w", err)}
	}

	records := []RawRecord{}
	var nextKey string
	for page := 1; ; page++ {
		if page > c.maxPages {
			return nil, &FetchError{Start: start.Compact(), End: end.Compact(), Page: page,
				Err: fmt.Errorf("continuation did not end after %d pages", c.maxPages)}
		}

		batch, more, key, err := c.fetchPage(ctx, cred, body, page > 1, nextKey)
		if err != nil {
			var fe *FetchError
			if errors.As(err, &fe) {
				fe.Start, fe.End, fe.Page = start.Compact(), end.Compact(), page
				return nil, fe
			}
			return nil, &FetchError{Start: start.Compact(), End: end.Compact(), Page: page, Err: err}
		}
		records = append(records, batch...)

		c.logger.Debug("realized P/L page fetched",
			"start", start.Compact(), "end", end.Compact(), "page", page, "records", len(batch), "more", more)

		if !more {
			break
		}
		nextKey = key
	}

	return records, nil
}

func (c *Client) fetchPage(ctx context.Context, cred Credential, body []byte, continued bool, nextKey string) ([]RawRecord, bool, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, false, "", fmt.Errorf("throttle: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+accountPath, bytes.NewReader(body))
	if err != nil {
		return nil, false, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("api-id", realizedPLByDay)
	req.Header.Set("authorization", "Bearer "+cred.Token)
	if continued {
		req.Header.Set(headerContinue, "Y")
		req.Header.Set(headerNextKey, nextKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, false, "", &FetchError{StatusCode: resp.StatusCode, Message: truncate(string(raw), 200)}
	}

	records, found, err := decodeRecords(raw)
	if err != nil {
		return nil, false, "", err
	}
	if !found {
		// No record array: the broker answered with a message instead of data.
		c.logger.Info("realized P/L response without records", "body", truncate(string(raw), 200))
		return nil, false, "", nil
	}

	more := resp.Header.Get(headerContinue) == "Y"
	return records, more, resp.Header.Get(headerNextKey), nil
}

func decodeRecords(raw []byte) ([]RawRecord, bool, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, false, fmt.Errorf("parse response: %w", err)
	}
	field, ok := envelope[realizedPLField]
	if !ok {
		return nil, false, nil
	}

	var items []map[string]any
	dec := json.NewDecoder(bytes.NewReader(field))
	dec.UseNumber()
	if err := dec.Decode(&items); err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", realizedPLField, err)
	}

	records := make([]RawRecord, 0, len(items))
	for _, item := range items {
		rec := make(RawRecord, len(item))
		for k, v := range item {
			switch val := v.(type) {
			case nil:
			case string:
				rec[k] = val
			case json.Number:
				rec[k] = val.String()
			default:
				rec[k] = fmt.Sprint(val)
			}
		}
		records = append(records, rec)
	}
	return records, true, nil
}
