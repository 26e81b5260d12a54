package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/camuig/pnl-ledger/internal/config"
	"github.com/camuig/pnl-ledger/internal/kiwoom"
	"github.com/camuig/pnl-ledger/internal/ledger"
	"github.com/camuig/pnl-ledger/internal/logger"
	"github.com/camuig/pnl-ledger/internal/pipeline"
	"github.com/camuig/pnl-ledger/internal/storage"
	"github.com/camuig/pnl-ledger/internal/telegram"
)

// commonFlags are accepted by every subcommand and become config overrides.
type commonFlags struct {
	configPath  string
	envFile     string
	credentials string
	spreadsheet string
	appKey      string
	appSecret   string
	account     string
	backend     string
	database    string
	logLevel    string
	sample      bool

	// readOnly is set by commands that never contact the broker.
	readOnly bool
}

func (c *commonFlags) register(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "config.yaml", "path to config file")
	f.StringVar(&c.envFile, "env", ".env", "path to .env file")
	f.StringVar(&c.credentials, "credentials", "", "Google service account credentials file")
	f.StringVar(&c.spreadsheet, "spreadsheet", "", "Google spreadsheet id")
	f.StringVar(&c.appKey, "app-key", "", "Kiwoom app key")
	f.StringVar(&c.appSecret, "app-secret", "", "Kiwoom app secret")
	f.StringVar(&c.account, "account", "", "Kiwoom account number")
	f.StringVar(&c.backend, "backend", "", "history table backend (sqlite, sheets, memory)")
	f.StringVar(&c.database, "db", "", "path to SQLite database")
	f.StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.BoolVar(&c.sample, "test", false, "use generated sample records instead of the broker")
}

func (c *commonFlags) resolve() (*config.Config, error) {
	return config.Resolve(config.ResolveOptions{
		ConfigPath: c.configPath,
		EnvFile:    c.envFile,
		ReadOnly:   c.readOnly,
		Overrides: config.Overrides{
			AppKey:          c.appKey,
			AppSecret:       c.appSecret,
			Account:         c.account,
			CredentialsFile: c.credentials,
			SpreadsheetID:   c.spreadsheet,
			Backend:         c.backend,
			Database:        c.database,
			LogLevel:        c.logLevel,
			Sample:          c.sample,
		},
	})
}

// app holds the collaborators shared by the subcommands.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *gorm.DB
	repo     *storage.Repository
	table    storage.Table
	notifier *telegram.Notifier
}

// openApp resolves the config and opens the history table. The SQLite
// database holding the run log is opened for every backend but memory.
func openApp(ctx context.Context, flags *commonFlags) (*app, error) {
	cfg, err := flags.resolve()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	a := &app{cfg: cfg, log: logger.New(cfg.Logging.Level)}

	if cfg.Store.Backend != config.BackendMemory {
		db, err := storage.NewDatabase(cfg.Store.Database)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		a.db = db
		a.repo = storage.NewRepository(db)
	}

	table, err := storage.Open(ctx, cfg, a.db)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open history table: %w", err)
	}
	a.table = table
	a.notifier = telegram.NewNotifier(cfg, a.log)
	return a, nil
}

func (a *app) close() {
	if a.db == nil {
		return
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// runLog returns the repository as a run log, or nil when there is no database.
func (a *app) runLog() pipeline.RunLog {
	if a.repo == nil {
		return nil
	}
	return a.repo
}

func (a *app) orchestrator(mode pipeline.WriteMode, trigger string) *pipeline.Orchestrator {
	var tokens pipeline.TokenSource
	var fetcher pipeline.Fetcher
	if a.cfg.Sample {
		sample := kiwoom.NewSampleClient()
		tokens, fetcher = sample, sample
	} else {
		tokens = kiwoom.NewTokenManager(a.cfg, a.log)
		fetcher = kiwoom.NewClient(a.cfg, a.log)
	}

	opts := pipeline.Options{
		PerDay:    a.cfg.SyncPerDay(),
		StockCode: a.cfg.Sync.StockCode,
		BackupDir: a.cfg.Sync.BackupDir,
		Mode:      mode,
		Trigger:   trigger,
	}
	return pipeline.New(tokens, fetcher, a.table, a.notifier, a.runLog(), opts, a.log)
}

func (a *app) today() ledger.Date {
	return ledger.DateOf(time.Now().In(a.cfg.KSTLocation()))
}

// parseDay accepts YYYYMMDD or YYYY-MM-DD.
func parseDay(s string) (ledger.Date, error) {
	if len(s) == len(ledger.CompactDateFormat) {
		return ledger.ParseCompactDate(s)
	}
	return ledger.ParseDate(s)
}

// parseMonth parses YYYYMM into the first day of that month.
func parseMonth(s string) (ledger.Date, error) {
	t, err := time.Parse("200601", s)
	if err != nil {
		return ledger.Date{}, fmt.Errorf("invalid month %q, want YYYYMM", s)
	}
	return ledger.DateOf(t), nil
}
