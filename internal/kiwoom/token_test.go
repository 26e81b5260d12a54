package kiwoom

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camuig/pnl-ledger/internal/config"
	"github.com/camuig/pnl-ledger/internal/logger"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{Kiwoom: config.KiwoomConfig{
		BaseURL:        baseURL,
		AppKey:         "app-key",
		AppSecret:      "app-secret",
		Account:        "5555-01",
		TimeoutSeconds: 5,
		Throttle:       "0s",
	}}
}

type tokenServer struct {
	calls    atomic.Int32
	response func(n int32) (int, any)
}

func (s *tokenServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := s.calls.Add(1)
	status, body := s.response(n)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func okToken(token, expires string) map[string]any {
	return map[string]any{"return_code": 0, "return_msg": "ok", "token": token, "expires_dt": expires}
}

func TestEnsureValid_AuthenticatesOnce(t *testing.T) {
	var got tokenRequest
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, tokenPath, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(okToken("tok-1", "20240115180000"))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	m := NewTokenManager(cfg, logger.Discard())
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, cfg.KSTLocation())
	m.SetClock(func() time.Time { return now })

	assert.Equal(t, TokenUninitialized, m.State())

	c1, err := m.EnsureValid(context.Background())
	require.NoError(t, err)
	now = now.Add(time.Hour)
	c2, err := m.EnsureValid(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "tok-1", c1.Token)
	assert.Equal(t, c1, c2)
	assert.Equal(t, TokenValid, m.State())
	assert.Equal(t, "client_credentials", got.GrantType)
	assert.Equal(t, "app-key", got.AppKey)
	assert.Equal(t, "app-secret", got.SecretKey)
}

func TestEnsureValid_RefreshesInsideMargin(t *testing.T) {
	ts := &tokenServer{response: func(n int32) (int, any) {
		if n == 1 {
			return http.StatusOK, okToken("old", "20240115100000")
		}
		return http.StatusOK, okToken("new", "20240116100000")
	}}
	srv := httptest.NewServer(ts)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	m := NewTokenManager(cfg, logger.Discard())
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, cfg.KSTLocation())
	m.SetClock(func() time.Time { return now })

	c, err := m.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "old", c.Token)

	// four minutes before expiry is inside the five-minute margin
	now = time.Date(2024, 1, 15, 9, 56, 0, 0, cfg.KSTLocation())
	assert.Equal(t, TokenExpired, m.State())

	c, err = m.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", c.Token)
	assert.Equal(t, int32(2), ts.calls.Load())
}

func TestEnsureValid_DefaultExpiry(t *testing.T) {
	srv := httptest.NewServer(&tokenServer{response: func(int32) (int, any) {
		return http.StatusOK, map[string]any{"return_code": 0, "token": "tok"}
	}})
	defer srv.Close()

	m := NewTokenManager(testConfig(srv.URL), logger.Discard())
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })

	c, err := m.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now.Add(24*time.Hour), c.ExpiresAt)
}

func TestEnsureValid_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
	}{
		{"http status", http.StatusUnauthorized, map[string]any{"error": "denied"}},
		{"return code", http.StatusOK, map[string]any{"return_code": 3, "return_msg": "invalid appkey"}},
		{"missing return code", http.StatusOK, map[string]any{"token": "tok"}},
		{"empty token", http.StatusOK, map[string]any{"return_code": 0}},
		{"bad expiry", http.StatusOK, okToken("tok", "tomorrow")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(&tokenServer{response: func(int32) (int, any) { return tt.status, tt.body }})
			defer srv.Close()

			m := NewTokenManager(testConfig(srv.URL), logger.Discard())
			_, err := m.EnsureValid(context.Background())

			var authErr *AuthError
			require.True(t, errors.As(err, &authErr), "got %v", err)
			assert.Equal(t, TokenUninitialized, m.State())
		})
	}
}

func TestEnsureValid_FailureKeepsStaleCredential(t *testing.T) {
	srv := httptest.NewServer(&tokenServer{response: func(n int32) (int, any) {
		if n == 1 {
			return http.StatusOK, okToken("first", "20240115100000")
		}
		return http.StatusInternalServerError, map[string]any{}
	}})
	defer srv.Close()

	cfg := testConfig(srv.URL)
	m := NewTokenManager(cfg, logger.Discard())
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, cfg.KSTLocation())
	m.SetClock(func() time.Time { return now })

	_, err := m.EnsureValid(context.Background())
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = m.EnsureValid(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusInternalServerError, authErr.StatusCode)
	assert.Equal(t, TokenExpired, m.State())
}

func TestEnsureValid_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	m := NewTokenManager(testConfig(url), logger.Discard())
	_, err := m.EnsureValid(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Error(t, authErr.Unwrap())
}
