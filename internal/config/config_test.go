package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1_000_000.0, cfg.Backtest.Cash)
	assert.Equal(t, 30, cfg.Backtest.MinHistory)
	assert.Equal(t, 252, cfg.Backtest.TradingDaysPerYear)
	assert.Equal(t, "data", cfg.Data.Dir)
	assert.Equal(t, "out", cfg.Output.Dir)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
backtest:
  cash: 500000
  min_history: 60
data:
  dir: /var/prices
  rate_limit_rps: 10
  rate_limit_burst: 5
  circuit_breaker: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500_000.0, cfg.Backtest.Cash)
	assert.Equal(t, 60, cfg.Backtest.MinHistory)
	assert.Equal(t, 252, cfg.Backtest.TradingDaysPerYear) // untouched default
	assert.Equal(t, "/var/prices", cfg.Data.Dir)
	assert.Equal(t, 10.0, cfg.Data.RateLimitRPS)
	assert.True(t, cfg.Data.CircuitBreaker)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"negative cash", "backtest:\n  cash: -1\n"},
		{"negative history", "backtest:\n  min_history: -5\n"},
		{"negative workers", "backtest:\n  max_workers: -2\n"},
		{"negative rate", "data:\n  rate_limit_rps: -1\n"},
		{"empty data dir", "data:\n  dir: \"\"\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "backtest: [not: a: map\n"))
	assert.Error(t, err)
}
