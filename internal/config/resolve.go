package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Overrides are explicit values from the command line. Empty fields are not applied.
type Overrides struct {
	AppKey          string
	AppSecret       string
	Account         string
	CredentialsFile string
	SpreadsheetID   string
	Backend         string
	Database        string
	LogLevel        string
	Sample          bool
}

// ResolveOptions enumerates the sources Resolve reads.
type ResolveOptions struct {
	// ConfigPath is the YAML file. A missing file is tolerated.
	ConfigPath string
	// EnvFile is loaded into the process environment when it exists.
	EnvFile string
	// Lookup reads environment variables; defaults to os.LookupEnv.
	Lookup    func(string) (string, bool)
	Overrides Overrides

	// ReadOnly skips the broker credential check for commands that never
	// contact the broker.
	ReadOnly bool
}

// Environment variables consulted by Resolve.
const (
	EnvAppKey          = "KIWOOM_APP_KEY"
	EnvAppSecret       = "KIWOOM_APP_SECRET"
	EnvAccount         = "KIWOOM_ACCOUNT"
	EnvSpreadsheetID   = "LEDGER_SPREADSHEET_ID"
	EnvCredentialsFile = "LEDGER_CREDENTIALS_FILE"
	EnvTelegramToken   = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID  = "TELEGRAM_CHAT_ID"
	EnvLogLevel        = "LEDGER_LOG_LEVEL"
)

// Resolve builds the one configuration used by a process. Sources apply in
// order, later ones winning: defaults, YAML file, environment (including the
// .env file), command-line overrides.
func Resolve(opts ResolveOptions) (*Config, error) {
	cfg := &Config{}

	if opts.ConfigPath != "" {
		if err := loadFile(opts.ConfigPath, cfg, true); err != nil {
			return nil, err
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	applyOverrides(cfg, opts.Overrides)
	cfg.ReadOnly = opts.ReadOnly
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvAppKey, &cfg.Kiwoom.AppKey)
	set(EnvAppSecret, &cfg.Kiwoom.AppSecret)
	set(EnvAccount, &cfg.Kiwoom.Account)
	set(EnvSpreadsheetID, &cfg.Store.SpreadsheetID)
	set(EnvCredentialsFile, &cfg.Store.CredentialsFile)
	set(EnvLogLevel, &cfg.Logging.Level)

	if v, ok := lookup(EnvTelegramToken); ok && v != "" {
		cfg.Telegram.BotToken = v
		cfg.Telegram.Enabled = true
	}
	if v, ok := lookup(EnvTelegramChatID); ok && v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvTelegramChatID, v, err)
		}
		cfg.Telegram.ChatID = id
	}
	return nil
}

func applyOverrides(cfg *Config, o Overrides) {
	set := func(v string, dst *string) {
		if v != "" {
			*dst = v
		}
	}
	set(o.AppKey, &cfg.Kiwoom.AppKey)
	set(o.AppSecret, &cfg.Kiwoom.AppSecret)
	set(o.Account, &cfg.Kiwoom.Account)
	set(o.CredentialsFile, &cfg.Store.CredentialsFile)
	set(o.SpreadsheetID, &cfg.Store.SpreadsheetID)
	set(o.Backend, &cfg.Store.Backend)
	set(o.Database, &cfg.Store.Database)
	set(o.LogLevel, &cfg.Logging.Level)
	if o.Sample {
		cfg.Sample = true
	}
}
