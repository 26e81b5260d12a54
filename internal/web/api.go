package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/camuig/pnl-ledger/internal/ledger"
	"github.com/camuig/pnl-ledger/internal/pipeline"
)

type statsResponse struct {
	Period     ledger.Period       `json:"period"`
	From       string              `json:"from,omitempty"`
	To         string              `json:"to,omitempty"`
	Stats      ledger.Stats        `json:"stats"`
	Groups     []ledger.Bucket     `json:"groups"`
	Cumulative []ledger.Point      `json:"cumulative"`
	Stocks     []ledger.StockTotal `json:"stocks"`
}

type rowsResponse struct {
	Period ledger.Period `json:"period"`
	From   string        `json:"from,omitempty"`
	To     string        `json:"to,omitempty"`
	Total  int           `json:"total"`
	Rows   []ledger.Row  `json:"rows"`
}

type syncResponse struct {
	RunID       string          `json:"run_id"`
	State       string          `json:"state"`
	Start       string          `json:"start"`
	End         string          `json:"end"`
	Rows        int             `json:"rows"`
	StoredRows  int             `json:"stored_rows"`
	TotalPL     decimal.Decimal `json:"total_pl"`
	SkippedDays []string        `json:"skipped_days"`
	Summary     string          `json:"summary"`
	Error       string          `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	rows, err := s.loadHistory(r.Context())
	if err != nil {
		s.logger.Error("load history", "error", err)
		s.writeError(w, http.StatusBadGateway, err)
		return
	}

	sel, selected, err := selectRows(rows, r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	group := ledger.Granularity(r.URL.Query().Get("group"))
	switch group {
	case "":
		group = ledger.ByMonth
	case ledger.ByYear, ledger.ByMonth, ledger.ByDay:
	default:
		s.writeError(w, http.StatusBadRequest, errors.New("group must be year, month or day"))
		return
	}
	top, err := intParam(r, "top", 10)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Period:     sel.Period,
		From:       sel.fromString(),
		To:         sel.toString(),
		Stats:      ledger.Summarize(selected),
		Groups:     ledger.GroupPL(selected, group),
		Cumulative: ledger.Cumulative(selected),
		Stocks:     ledger.ByStock(selected, top),
	})
}

func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	rows, err := s.loadHistory(r.Context())
	if err != nil {
		s.logger.Error("load history", "error", err)
		s.writeError(w, http.StatusBadGateway, err)
		return
	}

	sel, selected, err := selectRows(rows, r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	limit, err := intParam(r, "limit", 100)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if stock := strings.TrimSpace(r.URL.Query().Get("stock")); stock != "" {
		filtered := make([]ledger.Row, 0, len(selected))
		for _, row := range selected {
			if row.StockCode == stock || strings.Contains(row.StockName, stock) {
				filtered = append(filtered, row)
			}
		}
		selected = filtered
	}

	total := len(selected)
	if limit > 0 && len(selected) > limit {
		selected = selected[:limit]
	}
	if selected == nil {
		selected = []ledger.Row{}
	}

	s.writeJSON(w, http.StatusOK, rowsResponse{
		Period: sel.Period,
		From:   sel.fromString(),
		To:     sel.toString(),
		Total:  total,
		Rows:   selected,
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusNotFound, errors.New("run log is not available"))
		return
	}
	limit, err := intParam(r, "limit", 20)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	runs, err := s.runs.GetRecentSyncLogs(limit)
	if err != nil {
		s.logger.Error("get sync logs", "error", err)
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

// handleSync runs a sync over start..end (YYYYMMDD form values), or over
// the lookback window when they are absent, and answers when it finishes.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		s.writeError(w, http.StatusNotFound, errors.New("sync is not enabled"))
		return
	}

	today := ledger.DateOf(s.now().In(s.config.KSTLocation()))
	window := pipeline.LookbackWindow(today, s.config.Sync.LookbackDays)
	if v := r.FormValue("start"); v != "" {
		d, err := parseDateParam(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		window.Start = d
	}
	if v := r.FormValue("end"); v != "" {
		d, err := parseDateParam(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		window.End = d
	}

	res, err := s.syncer.Run(pipeline.WithTrigger(r.Context(), "dashboard"), window)
	s.Invalidate()

	resp := syncResponse{
		RunID:       res.RunID,
		State:       res.State.String(),
		Start:       window.Start.String(),
		End:         window.End.String(),
		Rows:        res.Rows,
		StoredRows:  res.StoredRows,
		TotalPL:     res.TotalPL,
		SkippedDays: make([]string, 0, len(res.SkippedDays)),
		Summary:     pipeline.Summary(res, err),
	}
	for _, d := range res.SkippedDays {
		resp.SkippedDays = append(resp.SkippedDays, d.String())
	}

	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = http.StatusBadGateway
		var syncErr *pipeline.SyncError
		if errors.As(err, &syncErr) {
			switch syncErr.Kind {
			case pipeline.KindBusy:
				status = http.StatusConflict
			case pipeline.KindInvalid:
				status = http.StatusBadRequest
			}
		}
	}
	s.writeJSON(w, status, resp)
}
