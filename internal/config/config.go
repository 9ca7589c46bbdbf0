// Package config loads the service configuration from TOML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	LedgerModeRPC    = "rpc"
	LedgerModeMemory = "memory"

	OracleModeGitHub = "github"
	OracleModeInline = "inline"
)

// Duration decodes TOML strings such as "24h" or "250ms"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the full service configuration
type Config struct {
	Service  string         `toml:"service"`
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Oracle   OracleConfig   `toml:"oracle"`
	Escrow   EscrowConfig   `toml:"escrow"`
	Log      LogConfig      `toml:"log"`
	Recon    ReconConfig    `toml:"recon"`
	Accounts []SeedAccount  `toml:"accounts"`
}

type ServerConfig struct {
	GRPCAddress     string   `toml:"grpc_address"`
	HTTPAddress     string   `toml:"http_address"`
	APIToken        string   `toml:"api_token"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver       string   `toml:"driver"`
	ConnString   string   `toml:"conn_string"`
	Host         string   `toml:"host"`
	Port         string   `toml:"port"`
	User         string   `toml:"user"`
	Password     string   `toml:"password"`
	Name         string   `toml:"name"`
	StartupDelay Duration `toml:"startup_delay"`
}

// DSN returns ConnString or builds one from the individual fields
func (d DatabaseConfig) DSN() string {
	if d.ConnString != "" {
		return d.ConnString
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name)
}

type LedgerConfig struct {
	Mode              string   `toml:"mode"`
	URL               string   `toml:"url"`
	AuthToken         string   `toml:"auth_token"`
	Timeout           Duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
}

type OracleConfig struct {
	Mode              string   `toml:"mode"`
	APIBase           string   `toml:"api_base"`
	Token             string   `toml:"token"`
	Timeout           Duration `toml:"timeout"`
	RequestsPerMinute float64  `toml:"requests_per_minute"`
}

type EscrowConfig struct {
	DefaultTimeLimit  Duration        `toml:"default_time_limit"`
	MinTimeLimit      Duration        `toml:"min_time_limit"`
	MaxTimeLimit      Duration        `toml:"max_time_limit"`
	AllowFunderBoost  bool            `toml:"allow_funder_boost"`
	LedgerPrecheck    bool            `toml:"ledger_precheck"`
	ReserveMinimum    decimal.Decimal `toml:"reserve_minimum"`
	FeeMargin         decimal.Decimal `toml:"fee_margin"`
	MaxAcceptAttempts int             `toml:"max_accept_attempts"`
	Retry             RetryConfig     `toml:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int      `toml:"max_attempts"`
	InitialInterval Duration `toml:"initial_interval"`
	MaxInterval     Duration `toml:"max_interval"`
}

type LogConfig struct {
	Level      string `toml:"level"`
	Env        string `toml:"env"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

type ReconConfig struct {
	Interval Duration `toml:"interval"` // Zero disables the periodic sweep
}

// SeedAccount is an account created at startup when missing
type SeedAccount struct {
	Username   string          `toml:"username"`
	Address    string          `toml:"address"`
	Credential string          `toml:"credential"`
	Balance    decimal.Decimal `toml:"balance"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Service: "bountyflow",
		Server: ServerConfig{
			GRPCAddress:     ":8080",
			HTTPAddress:     ":8081",
			APIToken:        "dev-token",
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Database: DatabaseConfig{
			Driver:   DriverPostgres,
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Password: "postgres",
			Name:     "bountyflow",
		},
		Ledger: LedgerConfig{
			Mode:              LedgerModeRPC,
			URL:               "https://s.altnet.rippletest.net:51234",
			Timeout:           Duration{10 * time.Second},
			RequestsPerSecond: 10,
			Burst:             5,
		},
		Oracle: OracleConfig{
			Mode:              OracleModeGitHub,
			APIBase:           "https://api.github.com",
			Timeout:           Duration{10 * time.Second},
			RequestsPerMinute: 60,
		},
		Escrow: EscrowConfig{
			DefaultTimeLimit:  Duration{24 * time.Hour},
			MinTimeLimit:      Duration{10 * time.Minute},
			MaxTimeLimit:      Duration{30 * 24 * time.Hour},
			LedgerPrecheck:    true,
			ReserveMinimum:    decimal.NewFromInt(20),
			FeeMargin:         decimal.RequireFromString("0.01"),
			MaxAcceptAttempts: 3,
			Retry: RetryConfig{
				MaxAttempts:     4,
				InitialInterval: Duration{250 * time.Millisecond},
				MaxInterval:     Duration{5 * time.Second},
			},
		},
		Log: LogConfig{
			Level:      "info",
			Env:        "dev",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Recon: ReconConfig{
			Interval: Duration{15 * time.Minute},
		},
	}
}

// Load reads path (optional) over the defaults, then applies environment overrides
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path != "" {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config %s has unknown keys: %v", path, undecoded)
		}
	}

	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv keeps the container-friendly variables working on top of the file
func applyEnv(cfg *Config, getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	setString("DB_CONN_STR", &cfg.Database.ConnString)
	setString("DB_HOST", &cfg.Database.Host)
	setString("DB_PORT", &cfg.Database.Port)
	setString("DB_USER", &cfg.Database.User)
	setString("DB_PASSWORD", &cfg.Database.Password)
	setString("DB_NAME", &cfg.Database.Name)
	setString("API_TOKEN", &cfg.Server.APIToken)
	setString("GITHUB_TOKEN", &cfg.Oracle.Token)

	setString("BOUNTY_DB_DRIVER", &cfg.Database.Driver)
	setString("BOUNTY_GRPC_ADDR", &cfg.Server.GRPCAddress)
	setString("BOUNTY_HTTP_ADDR", &cfg.Server.HTTPAddress)
	setString("BOUNTY_LEDGER_MODE", &cfg.Ledger.Mode)
	setString("BOUNTY_LEDGER_URL", &cfg.Ledger.URL)
	setString("BOUNTY_LEDGER_TOKEN", &cfg.Ledger.AuthToken)
	setString("BOUNTY_ORACLE_MODE", &cfg.Oracle.Mode)
	setString("BOUNTY_LOG_LEVEL", &cfg.Log.Level)
	setString("BOUNTY_LOG_FILE", &cfg.Log.File)
	setString("BOUNTY_ENV", &cfg.Log.Env)

	if v := strings.TrimSpace(getenv("BOUNTY_ALLOW_FUNDER_BOOST")); v != "" {
		allow, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid BOUNTY_ALLOW_FUNDER_BOOST: %w", err)
		}
		cfg.Escrow.AllowFunderBoost = allow
	}

	return nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPostgres, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("database.driver must be %q or %q", DriverPostgres, DriverMemory))
	}

	switch c.Ledger.Mode {
	case LedgerModeMemory:
	case LedgerModeRPC:
		if c.Ledger.URL == "" {
			errs = append(errs, errors.New("ledger.url is required in rpc mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("ledger.mode must be %q or %q", LedgerModeRPC, LedgerModeMemory))
	}

	switch c.Oracle.Mode {
	case OracleModeGitHub, OracleModeInline:
	default:
		errs = append(errs, fmt.Errorf("oracle.mode must be %q or %q", OracleModeGitHub, OracleModeInline))
	}

	e := c.Escrow
	if e.MinTimeLimit.Duration <= 0 || e.MaxTimeLimit.Duration < e.MinTimeLimit.Duration {
		errs = append(errs, errors.New("escrow time limits must satisfy 0 < min <= max"))
	}
	if e.DefaultTimeLimit.Duration <= 0 {
		errs = append(errs, errors.New("escrow.default_time_limit must be positive"))
	}
	if e.ReserveMinimum.IsNegative() || e.FeeMargin.IsNegative() {
		errs = append(errs, errors.New("escrow reserve and fee margin cannot be negative"))
	}
	if e.MaxAcceptAttempts < 1 {
		errs = append(errs, errors.New("escrow.max_accept_attempts must be at least 1"))
	}
	if e.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("escrow.retry.max_attempts must be at least 1"))
	}

	if c.Server.APIToken == "" {
		errs = append(errs, errors.New("server.api_token cannot be empty"))
	}

	for i, a := range c.Accounts {
		if a.Username == "" || a.Address == "" {
			errs = append(errs, fmt.Errorf("accounts[%d] needs username and address", i))
		}
	}

	return errors.Join(errs...)
}
