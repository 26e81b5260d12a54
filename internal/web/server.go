package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/camuig/pnl-ledger/internal/config"
	"github.com/camuig/pnl-ledger/internal/logger"
	"github.com/camuig/pnl-ledger/internal/pipeline"
	"github.com/camuig/pnl-ledger/internal/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

// Syncer runs one sync over a window.
type Syncer interface {
	Run(ctx context.Context, w pipeline.Window) (pipeline.Result, error)
}

// RunLister lists recorded sync runs, newest first.
type RunLister interface {
	GetRecentSyncLogs(limit int) ([]storage.SyncLog, error)
}

type Server struct {
	httpServer *http.Server
	history    storage.Table
	runs       RunLister
	syncer     Syncer
	cache      *cache.Cache
	tmpl       *template.Template
	config     *config.Config
	logger     *logger.Logger
	now        func() time.Time
}

// NewServer builds the dashboard. runs and syncer may be nil; the run list
// and the manual sync endpoint are then unavailable.
func NewServer(history storage.Table, runs RunLister, syncer Syncer, cfg *config.Config, log *logger.Logger) (*Server, error) {
	tmpl, err := template.New("dashboard.html").Funcs(templateFuncs).ParseFS(templateFS, "templates/dashboard.html")
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	ttl := cfg.CacheTTL()
	s := &Server{
		history: history,
		runs:    runs,
		syncer:  syncer,
		cache:   cache.New(ttl, 2*ttl),
		tmpl:    tmpl,
		config:  cfg,
		logger:  log,
		now:     time.Now,
	}

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Web.Port),
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		// a manual sync answers only when the whole window is fetched
		WriteTimeout: 5 * time.Minute,
	}

	return s, nil
}

// Handler returns the routes of the dashboard.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/rows", s.handleRows)
	mux.HandleFunc("GET /api/runs", s.handleRuns)
	mux.HandleFunc("POST /api/sync", s.handleSync)
	return mux
}

func (s *Server) Start() error {
	s.logger.Info("web server starting", "port", s.config.Web.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Invalidate drops the cached history so the next request reads the table.
func (s *Server) Invalidate() {
	s.cache.Flush()
}
