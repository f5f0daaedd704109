package backtest

import (
	"fmt"

	"marketsim/services/execution"
)

// MinOrderValue is the smallest entry the loop will submit, in quote units.
const MinOrderValue = 100.0

// WarmupCandles are skipped at the start of every run so the indicator
// pipeline stabilizes before the first signal is acted on.
const WarmupCandles = 50

// Config is the full parameter set for one simulation run.
type Config struct {
	Symbols                []string `json:"symbols" yaml:"symbols"`
	Timeframe              string   `json:"timeframe" yaml:"timeframe"`
	InitialBalance         float64  `json:"initial_balance" yaml:"initial_balance"`
	MaxPositionSize        float64  `json:"max_position_size" yaml:"max_position_size"` // fraction of balance per position
	MaxConcurrentPositions int      `json:"max_concurrent_positions" yaml:"max_concurrent_positions"`
	TradingFee             float64  `json:"trading_fee" yaml:"trading_fee"` // fallback when taker/maker unset
	TakerFee               float64  `json:"taker_fee" yaml:"taker_fee"`
	MakerFee               float64  `json:"maker_fee" yaml:"maker_fee"`
	BaseSlippage           float64  `json:"base_slippage" yaml:"base_slippage"`
	VolatilityMultiplier   float64  `json:"volatility_multiplier" yaml:"volatility_multiplier"`
	OrderBookDepth         int      `json:"order_book_depth" yaml:"order_book_depth"`
	MaxDrawdownLimit       float64  `json:"max_drawdown_limit" yaml:"max_drawdown_limit"` // fraction, circuit breaker
	RiskPerTrade           float64  `json:"risk_per_trade" yaml:"risk_per_trade"`         // fraction of equity risked
	StopLossPercent        float64  `json:"stop_loss_percent" yaml:"stop_loss_percent"`   // fraction of entry price
	TakeProfitPercent      float64  `json:"take_profit_percent" yaml:"take_profit_percent"`
	Days                   int      `json:"days" yaml:"days"` // run length when start/end unset
	StartTime              int64    `json:"start_time" yaml:"start_time"`
	EndTime                int64    `json:"end_time" yaml:"end_time"`
}

// DefaultConfig returns the documented defaults for a 5m crypto run.
func DefaultConfig() Config {
	return Config{
		Symbols:                []string{"BTCUSDT"},
		Timeframe:              "5m",
		InitialBalance:         10000,
		MaxPositionSize:        0.2,
		MaxConcurrentPositions: 3,
		TradingFee:             0.001,
		TakerFee:               0.001,
		MakerFee:               0.0005,
		BaseSlippage:           0.0005,
		VolatilityMultiplier:   2.0,
		OrderBookDepth:         10,
		MaxDrawdownLimit:       0.25,
		RiskPerTrade:           0.02,
		StopLossPercent:        0.02,
		TakeProfitPercent:      0.04,
		Days:                   30,
	}
}

// Validate rejects configurations the loop cannot run with.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: at least one symbol required")
	}
	if c.InitialBalance <= 0 {
		return fmt.Errorf("config: initial balance must be positive, got %v", c.InitialBalance)
	}
	if c.MaxPositionSize <= 0 || c.MaxPositionSize > 1 {
		return fmt.Errorf("config: max position size must be in (0,1], got %v", c.MaxPositionSize)
	}
	if c.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("config: max concurrent positions must be positive")
	}
	if c.RiskPerTrade <= 0 || c.RiskPerTrade > 1 {
		return fmt.Errorf("config: risk per trade must be in (0,1], got %v", c.RiskPerTrade)
	}
	if c.StopLossPercent <= 0 {
		return fmt.Errorf("config: stop loss percent must be positive")
	}
	if c.TakeProfitPercent <= 0 {
		return fmt.Errorf("config: take profit percent must be positive")
	}
	if c.MaxDrawdownLimit <= 0 || c.MaxDrawdownLimit >= 1 {
		return fmt.Errorf("config: max drawdown limit must be in (0,1), got %v", c.MaxDrawdownLimit)
	}
	return nil
}

// ExecutionConfig maps the run config onto the execution model's tunables.
func (c Config) ExecutionConfig() execution.Config {
	taker := c.TakerFee
	if taker == 0 {
		taker = c.TradingFee
	}
	maker := c.MakerFee
	if maker == 0 {
		maker = taker
	}
	return execution.Config{
		BaseSlippage:         c.BaseSlippage,
		VolatilityMultiplier: c.VolatilityMultiplier,
		VolatilityWindow:     20,
		TakerFee:             taker,
		MakerFee:             maker,
		OrderBookDepth:       c.OrderBookDepth,
	}
}
