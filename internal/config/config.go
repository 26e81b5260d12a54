package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	BackendSQLite = "sqlite"
	BackendSheets = "sheets"
	// BackendMemory keeps the table in process memory; nothing survives the run.
	BackendMemory = "memory"
)

type Config struct {
	Kiwoom   KiwoomConfig   `yaml:"kiwoom"`
	Store    StoreConfig    `yaml:"store"`
	Sync     SyncConfig     `yaml:"sync"`
	Telegram TelegramConfig `yaml:"telegram"`
	Web      WebConfig      `yaml:"web"`
	Logging  LoggingConfig  `yaml:"logging"`

	// Sample replaces the broker with generated records. Set from the CLI only.
	Sample bool `yaml:"-"`

	// ReadOnly marks a process that only reads the history table; broker
	// credentials are then optional.
	ReadOnly bool `yaml:"-"`
}

type KiwoomConfig struct {
	BaseURL        string `yaml:"base_url"`
	AppKey         string `yaml:"app_key"`
	AppSecret      string `yaml:"app_secret"`
	Account        string `yaml:"account"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// Throttle is the minimum spacing between requests to the data endpoint.
	Throttle string `yaml:"throttle"`
}

type StoreConfig struct {
	Backend         string `yaml:"backend"`
	Database        string `yaml:"database"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	Worksheet       string `yaml:"worksheet"`
	CredentialsFile string `yaml:"credentials_file"`
}

type SyncConfig struct {
	Schedule     string `yaml:"schedule"`
	LookbackDays int    `yaml:"lookback_days"`
	StockCode    string `yaml:"stock_code"`
	BackupDir    string `yaml:"backup_dir"`
	PerDay       *bool  `yaml:"per_day"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type WebConfig struct {
	Port            int `yaml:"port"`
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads a YAML config file, applies defaults and validates it.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := loadFile(path, cfg, false); err != nil {
		return nil, err
	}

	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config, optional bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Kiwoom.BaseURL == "" {
		cfg.Kiwoom.BaseURL = "https://api.kiwoom.com"
	}
	if cfg.Kiwoom.TimeoutSeconds == 0 {
		cfg.Kiwoom.TimeoutSeconds = 10
	}
	if cfg.Kiwoom.Throttle == "" {
		cfg.Kiwoom.Throttle = "500ms"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendSQLite
	}
	if cfg.Store.Database == "" {
		cfg.Store.Database = "data/pnl-ledger.db"
	}
	if cfg.Store.Worksheet == "" {
		cfg.Store.Worksheet = "realized_pl"
	}
	if cfg.Sync.Schedule == "" {
		// weekdays after the KRX close
		cfg.Sync.Schedule = "0 0 18 * * 1-5"
	}
	if cfg.Sync.LookbackDays == 0 {
		cfg.Sync.LookbackDays = 15
	}
	if cfg.Sync.BackupDir == "" {
		cfg.Sync.BackupDir = "data/backup"
	}
	if cfg.Sync.PerDay == nil {
		perDay := true
		cfg.Sync.PerDay = &perDay
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Web.CacheTTLSeconds == 0 {
		cfg.Web.CacheTTLSeconds = 300
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func (c *Config) Validate() error {
	if !c.Sample && !c.ReadOnly {
		if c.Kiwoom.AppKey == "" {
			return fmt.Errorf("kiwoom.app_key is required")
		}
		if c.Kiwoom.AppSecret == "" {
			return fmt.Errorf("kiwoom.app_secret is required")
		}
	}
	if _, err := time.ParseDuration(c.Kiwoom.Throttle); err != nil {
		return fmt.Errorf("invalid kiwoom.throttle %q: %w", c.Kiwoom.Throttle, err)
	}
	switch c.Store.Backend {
	case BackendSQLite, BackendMemory:
	case BackendSheets:
		if c.Store.SpreadsheetID == "" {
			return fmt.Errorf("store.spreadsheet_id is required for the sheets backend")
		}
		if c.Store.CredentialsFile == "" {
			return fmt.Errorf("store.credentials_file is required for the sheets backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	if c.Sync.LookbackDays < 0 {
		return fmt.Errorf("sync.lookback_days must not be negative")
	}
	if _, err := cron.NewParser(CronFields).Parse(c.Sync.Schedule); err != nil {
		return fmt.Errorf("invalid sync.schedule %q: %w", c.Sync.Schedule, err)
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// CronFields is the schedule syntax: six fields, seconds first.
const CronFields = cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor

// KSTLocation is the broker's time zone; token expiry and "today" are read in it.
func (c *Config) KSTLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		loc = time.FixedZone("KST", 9*60*60)
	}
	return loc
}

func (c *Config) KiwoomTimeout() time.Duration {
	return time.Duration(c.Kiwoom.TimeoutSeconds) * time.Second
}

func (c *Config) ThrottleInterval() time.Duration {
	d, _ := time.ParseDuration(c.Kiwoom.Throttle)
	return d
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Web.CacheTTLSeconds) * time.Second
}

func (c *Config) SyncPerDay() bool {
	return c.Sync.PerDay == nil || *c.Sync.PerDay
}
