package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) string { return "" }

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bountyflow.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load("", noEnv)
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Escrow.DefaultTimeLimit.Duration)
	assert.Equal(t, 10*time.Minute, cfg.Escrow.MinTimeLimit.Duration)
	assert.Equal(t, 30*24*time.Hour, cfg.Escrow.MaxTimeLimit.Duration)
	assert.True(t, cfg.Escrow.ReserveMinimum.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=bountyflow sslmode=disable", cfg.Database.DSN())
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
service = "bountyflow-test"

[database]
driver = "memory"

[ledger]
mode = "memory"

[escrow]
default_time_limit = "2h"
allow_funder_boost = true
fee_margin = "0.5"

[escrow.retry]
max_attempts = 2
initial_interval = "10ms"

[[accounts]]
username = "alice"
address = "rAlice"
credential = "sAlice"
balance = 500
`)

	env := map[string]string{
		"API_TOKEN":        "secret-token",
		"BOUNTY_LOG_LEVEL": "debug",
	}

	cfg, err := load(path, func(k string) string { return env[k] })
	require.NoError(t, err)

	assert.Equal(t, "bountyflow-test", cfg.Service)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, LedgerModeMemory, cfg.Ledger.Mode)
	assert.Equal(t, 2*time.Hour, cfg.Escrow.DefaultTimeLimit.Duration)
	assert.True(t, cfg.Escrow.AllowFunderBoost)
	assert.True(t, cfg.Escrow.FeeMargin.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, 2, cfg.Escrow.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.Escrow.Retry.InitialInterval.Duration)
	assert.Equal(t, "secret-token", cfg.Server.APIToken)
	assert.Equal(t, "debug", cfg.Log.Level)

	require.Len(t, cfg.Accounts, 1)
	assert.Equal(t, "alice", cfg.Accounts[0].Username)
	assert.True(t, cfg.Accounts[0].Balance.Equal(decimal.NewFromInt(500)))
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[escrow]
maximum_boost = 3
`)

	_, err := load(path, noEnv)
	assert.ErrorContains(t, err, "unknown keys")
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
[escrow]
min_time_limit = "ten minutes"
`)

	_, err := load(path, noEnv)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{
			name:   "Unknown driver",
			mutate: func(c *Config) { c.Database.Driver = "sqlite" },
			errMsg: "database.driver must be",
		},
		{
			name:   "RPC ledger without URL",
			mutate: func(c *Config) { c.Ledger.URL = "" },
			errMsg: "ledger.url is required",
		},
		{
			name:   "Inverted time limits",
			mutate: func(c *Config) { c.Escrow.MaxTimeLimit = Duration{time.Minute} },
			errMsg: "escrow time limits",
		},
		{
			name:   "Seed account without address",
			mutate: func(c *Config) { c.Accounts = []SeedAccount{{Username: "bob"}} },
			errMsg: "accounts[0] needs username and address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}

func TestLoad_InvalidBoolEnv(t *testing.T) {
	_, err := load("", func(k string) string {
		if k == "BOUNTY_ALLOW_FUNDER_BOOST" {
			return "maybe"
		}
		return ""
	})
	assert.ErrorContains(t, err, "BOUNTY_ALLOW_FUNDER_BOOST")
}
