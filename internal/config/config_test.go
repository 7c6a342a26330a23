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

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  log_level: debug
engine:
  execution_mode: backtest
  max_buy_orders: 2
  max_pending_orders: 6
backtest:
  symbols: [EURUSD, GBPUSD]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "dev", cfg.App.Env)
	assert.Equal(t, 2, cfg.Engine.MaxBuyOrders)
	assert.Equal(t, 6, cfg.Engine.MaxPendingOrders)
	assert.Equal(t, defaultMaxSellOrders, cfg.Engine.MaxSellOrders)
	assert.Equal(t, defaultValidUntilBars, cfg.Engine.ValidUntilBars)
	assert.Equal(t, "bot", cfg.Engine.OrderEngine)
	assert.Equal(t, defaultBacktestHTTPAddr, cfg.Backtest.HTTPAddr)
	assert.Equal(t, []string{"EURUSD", "GBPUSD"}, cfg.Backtest.Symbols)
	assert.Equal(t, defaultPlaybookPath, cfg.Playbook.Path)
}

func TestLoadKeepsExplicitZero(t *testing.T) {
	path := writeConfig(t, `
engine:
  valid_until_bars: 0
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid_until_bars")
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	path := writeConfig(t, `
engine:
  execution_mode: paper
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution_mode")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)

	_, err = Load("  ")
	require.Error(t, err)
}
