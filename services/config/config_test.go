package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	app := Default()
	require.NoError(t, app.Validate())
	assert.Equal(t, ":8080", app.Server.Addr)
	assert.Equal(t, []string{"BTCUSDT"}, app.Backtest.Symbols)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	app, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Addr, app.Server.Addr)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_REDIS_ADDR", "cache.internal:6379")
	t.Setenv("TEST_CH_PASSWORD", "hunter2")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
redis:
  addr: ${TEST_REDIS_ADDR}
clickhouse:
  addr: localhost:9000
  database: backtest
  table: data
  user: backtest
  password: ${TEST_CH_PASSWORD}
backtest:
  symbols: [ETHUSDT, SOLUSDT]
  timeframe: 15m
  initial_balance: 25000
  max_position_size: 0.3
  max_concurrent_positions: 2
  risk_per_trade: 0.01
  stop_loss_percent: 0.015
  take_profit_percent: 0.03
  max_drawdown_limit: 0.2
`), 0o644))

	app, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", app.Server.Addr)
	assert.Equal(t, "cache.internal:6379", app.Redis.Addr)
	assert.Equal(t, "hunter2", app.ClickHouse.Password)
	assert.Equal(t, []string{"ETHUSDT", "SOLUSDT"}, app.Backtest.Symbols)
	assert.Equal(t, 25000.0, app.Backtest.InitialBalance)
}

func TestLoadRejectsInvalidBacktestSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backtest:
  initial_balance: -100
`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "balance")
}

func TestLoadRejectsUnknownLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: shouting
`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestNewLoggerLevels(t *testing.T) {
	logger, err := LogConfig{Level: "debug", Development: true}.NewLogger()
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = LogConfig{Level: "noisy"}.NewLogger()
	require.Error(t, err)
}
