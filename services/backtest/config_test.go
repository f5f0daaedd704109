package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"no symbols", func(c *Config) { c.Symbols = nil }, "symbol"},
		{"zero balance", func(c *Config) { c.InitialBalance = 0 }, "balance"},
		{"negative balance", func(c *Config) { c.InitialBalance = -5 }, "balance"},
		{"position size too big", func(c *Config) { c.MaxPositionSize = 1.5 }, "position size"},
		{"position size zero", func(c *Config) { c.MaxPositionSize = 0 }, "position size"},
		{"no concurrency", func(c *Config) { c.MaxConcurrentPositions = 0 }, "concurrent"},
		{"risk above one", func(c *Config) { c.RiskPerTrade = 1.1 }, "risk"},
		{"zero stop loss", func(c *Config) { c.StopLossPercent = 0 }, "stop loss"},
		{"zero take profit", func(c *Config) { c.TakeProfitPercent = 0 }, "take profit"},
		{"drawdown limit one", func(c *Config) { c.MaxDrawdownLimit = 1 }, "drawdown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestExecutionConfigFeeFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TakerFee = 0
	cfg.MakerFee = 0
	cfg.TradingFee = 0.002

	ec := cfg.ExecutionConfig()
	assert.Equal(t, 0.002, ec.TakerFee, "taker falls back to trading fee")
	assert.Equal(t, 0.002, ec.MakerFee, "maker falls back to taker")

	cfg.TakerFee = 0.001
	cfg.MakerFee = 0.0005
	ec = cfg.ExecutionConfig()
	assert.Equal(t, 0.001, ec.TakerFee)
	assert.Equal(t, 0.0005, ec.MakerFee)
	assert.Equal(t, cfg.BaseSlippage, ec.BaseSlippage)
	assert.Equal(t, 20, ec.VolatilityWindow)
}
