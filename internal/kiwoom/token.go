package kiwoom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/camuig/pnl-ledger/internal/config"
	"github.com/camuig/pnl-ledger/internal/logger"
)

const (
	tokenPath = "/oauth2/token"

	// RefreshMargin is how long before expiry a credential is replaced.
	RefreshMargin = 5 * time.Minute
	// DefaultTokenLifetime applies when the broker omits expires_dt.
	DefaultTokenLifetime = 24 * time.Hour

	expiryLayout = "20060102150405"
)

// TokenState is the lifecycle stage of the managed credential.
type TokenState int

const (
	TokenUninitialized TokenState = iota
	TokenValid
	TokenExpired
)

func (s TokenState) String() string {
	switch s {
	case TokenValid:
		return "valid"
	case TokenExpired:
		return "expired"
	default:
		return "uninitialized"
	}
}

// TokenManager owns the bearer credential for one app key and refreshes it
// before it expires. It is safe for concurrent use.
type TokenManager struct {
	baseURL    string
	appKey     string
	appSecret  string
	httpClient *http.Client
	loc        *time.Location
	now        func() time.Time
	logger     *logger.Logger

	mu   sync.Mutex
	cred *Credential
}

func NewTokenManager(cfg *config.Config, log *logger.Logger) *TokenManager {
	return &TokenManager{
		baseURL:    cfg.Kiwoom.BaseURL,
		appKey:     cfg.Kiwoom.AppKey,
		appSecret:  cfg.Kiwoom.AppSecret,
		httpClient: &http.Client{Timeout: cfg.KiwoomTimeout()},
		loc:        cfg.KSTLocation(),
		now:        time.Now,
		logger:     log,
	}
}

// SetClock replaces the time source used for expiry decisions.
func (m *TokenManager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// State reports where the held credential is in its lifecycle.
func (m *TokenManager) State() TokenState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *TokenManager) stateLocked() TokenState {
	if m.cred == nil {
		return TokenUninitialized
	}
	if !m.now().Before(m.cred.ExpiresAt.Add(-RefreshMargin)) {
		return TokenExpired
	}
	return TokenValid
}

// EnsureValid returns a credential that is valid for at least RefreshMargin,
// authenticating when none is held or the held one is about to expire. On
// failure the previous credential is kept and an *AuthError is returned.
func (m *TokenManager) EnsureValid(ctx context.Context) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.stateLocked() {
	case TokenValid:
		return *m.cred, nil
	case TokenExpired:
		m.logger.Info("kiwoom token near expiry, refreshing", "expires_at", m.cred.ExpiresAt)
	}

	cred, err := m.authenticate(ctx)
	if err != nil {
		return Credential{}, err
	}
	m.cred = &cred
	m.logger.Info("kiwoom authenticated", "expires_at", cred.ExpiresAt.Format(time.DateTime))
	return cred, nil
}

type tokenRequest struct {
	GrantType string `json:"grant_type"`
	AppKey    string `json:"appkey"`
	SecretKey string `json:"secretkey"`
}

type tokenResponse struct {
	ReturnCode *int   `json:"return_code"`
	ReturnMsg  string `json:"return_msg"`
	Token      string `json:"token"`
	ExpiresDt  string `json:"expires_dt"`
}

func (m *TokenManager) authenticate(ctx context.Context) (Credential, error) {
	body, err := json.Marshal(tokenRequest{
		GrantType: "client_credentials",
		AppKey:    m.appKey,
		SecretKey: m.appSecret,
	})
	if err != nil {
		return Credential{}, &AuthError{Err: fmt.Errorf("encode token request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+tokenPath, bytes.NewReader(body))
	if err != nil {
		return Credential{}, &AuthError{Err: fmt.Errorf("create token request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Credential{}, &AuthError{Err: fmt.Errorf("token request: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Credential{}, &AuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read token response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return Credential{}, &AuthError{StatusCode: resp.StatusCode, Message: truncate(string(raw), 200)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return Credential{}, &AuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("parse token response: %w", err)}
	}
	if tr.ReturnCode == nil {
		return Credential{}, &AuthError{StatusCode: resp.StatusCode, ReturnCode: -1, Message: "missing return_code"}
	}
	if *tr.ReturnCode != 0 {
		return Credential{}, &AuthError{StatusCode: resp.StatusCode, ReturnCode: *tr.ReturnCode, Message: tr.ReturnMsg}
	}
	if tr.Token == "" {
		return Credential{}, &AuthError{StatusCode: resp.StatusCode, Message: "empty token"}
	}

	expiresAt := m.now().Add(DefaultTokenLifetime)
	if tr.ExpiresDt != "" {
		t, err := time.ParseInLocation(expiryLayout, tr.ExpiresDt, m.loc)
		if err != nil {
			return Credential{}, &AuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("parse expires_dt %q: %w", tr.ExpiresDt, err)}
		}
		expiresAt = t
	}

	return Credential{Token: tr.Token, ExpiresAt: expiresAt}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
