package kiwoom

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/camuig/pnl-ledger/internal/config"
	"github.com/camuig/pnl-ledger/internal/logger"
)

const contentType = "application/json;charset=UTF-8"

// Client queries the Kiwoom REST data endpoints. Every request waits on a
// shared limiter so consecutive pages and days stay at least one throttle
// interval apart.
type Client struct {
	baseURL    string
	account    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logger.Logger
	maxPages   int
}

func NewClient(cfg *config.Config, log *logger.Logger) *Client {
	return &Client{
		baseURL:    cfg.Kiwoom.BaseURL,
		account:    cfg.Kiwoom.Account,
		httpClient: &http.Client{Timeout: cfg.KiwoomTimeout()},
		limiter:    newLimiter(cfg),
		logger:     log,
		maxPages:   500,
	}
}

func newLimiter(cfg *config.Config) *rate.Limiter {
	interval := cfg.ThrottleInterval()
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
