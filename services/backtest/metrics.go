package backtest

import (
	"encoding/json"
	"math"

	"marketsim/services/portfolio"
)

// Metrics are aggregate performance statistics derived from the closed-trade
// ledger and final portfolio. Pure function of its inputs.
type Metrics struct {
	TotalTrades          int     `json:"total_trades"`
	Wins                 int     `json:"wins"`
	Losses               int     `json:"losses"`
	WinRate              float64 `json:"win_rate"` // fraction
	GrossProfit          float64 `json:"gross_profit"`
	GrossLoss            float64 `json:"gross_loss"` // absolute value
	NetProfit            float64 `json:"net_profit"`
	ProfitFactor         float64 `json:"-"` // +Inf when no losses and profit > 0
	SharpeRatio          float64 `json:"sharpe_ratio"`
	SortinoRatio         float64 `json:"sortino_ratio"`
	MaxConsecutiveWins   int     `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	AvgWin               float64 `json:"avg_win"`
	AvgLoss              float64 `json:"avg_loss"` // absolute value
	Expectancy           float64 `json:"expectancy"`
	AvgTradeDurationMin  float64 `json:"avg_trade_duration_minutes"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	TotalReturnPercent   float64 `json:"total_return_percent"`
}

// Annualization hard-codes the 5-minute-bar assumption of the reference
// implementation (sqrt(252*24*12)) regardless of configured timeframe.
// Known simplification, preserved deliberately for parity.
var annualizeFactor = math.Sqrt(252 * 24 * 12)

// MarshalJSON encodes ProfitFactor as null when infinite, since JSON has no
// infinity literal and the result record must stay serializable.
func (m Metrics) MarshalJSON() ([]byte, error) {
	type alias Metrics
	out := struct {
		alias
		ProfitFactor *float64 `json:"profit_factor"`
	}{alias: alias(m)}
	if !math.IsInf(m.ProfitFactor, 0) {
		pf := m.ProfitFactor
		out.ProfitFactor = &pf
	}
	return json.Marshal(out)
}

// ComputeMetrics derives performance statistics from the trade ledger and
// the final portfolio state.
func ComputeMetrics(trades []portfolio.Trade, pf *portfolio.Portfolio) Metrics {
	m := Metrics{
		MaxDrawdown:        pf.MaxDrawdown,
		TotalReturnPercent: pf.TotalPnLPercent,
	}
	if len(trades) == 0 {
		return m
	}

	var returns []float64
	var totalDurationMs int64
	var winStreak, lossStreak int

	for _, t := range trades {
		m.NetProfit += t.PnL
		returns = append(returns, t.PnLPercent/100)
		totalDurationMs += t.ExitTime - t.EntryTime

		if t.PnL > 0 {
			m.Wins++
			m.GrossProfit += t.PnL
			winStreak++
			lossStreak = 0
			if winStreak > m.MaxConsecutiveWins {
				m.MaxConsecutiveWins = winStreak
			}
		} else {
			m.Losses++
			m.GrossLoss += math.Abs(t.PnL)
			lossStreak++
			winStreak = 0
			if lossStreak > m.MaxConsecutiveLosses {
				m.MaxConsecutiveLosses = lossStreak
			}
		}
	}

	m.TotalTrades = len(trades)
	m.WinRate = float64(m.Wins) / float64(m.TotalTrades)

	switch {
	case m.GrossLoss > 0:
		m.ProfitFactor = m.GrossProfit / m.GrossLoss
	case m.GrossProfit > 0:
		m.ProfitFactor = math.Inf(1)
	default:
		m.ProfitFactor = 0
	}

	if m.Wins > 0 {
		m.AvgWin = m.GrossProfit / float64(m.Wins)
	}
	if m.Losses > 0 {
		m.AvgLoss = m.GrossLoss / float64(m.Losses)
	}
	m.Expectancy = m.WinRate*m.AvgWin - (1-m.WinRate)*m.AvgLoss

	m.SharpeRatio = sharpe(returns)
	m.SortinoRatio = sortino(returns)
	m.AvgTradeDurationMin = float64(totalDurationMs) / float64(m.TotalTrades) / 60000

	return m
}

func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, std := meanStd(returns)
	if std == 0 {
		return 0
	}
	return mean / std * annualizeFactor
}

func sortino(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, _ := meanStd(returns)
	var downside float64
	for _, r := range returns {
		if r < 0 {
			downside += r * r
		}
	}
	dd := math.Sqrt(downside / float64(len(returns)))
	if dd == 0 {
		return 0
	}
	return mean / dd * annualizeFactor
}

func meanStd(xs []float64) (mean, std float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return mean, math.Sqrt(variance)
}
