package backtest

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"marketsim/services/portfolio"
)

func tradeWith(pnl, pct float64, durationMin int64) portfolio.Trade {
	return portfolio.Trade{
		PnL:        pnl,
		PnLPercent: pct,
		EntryTime:  0,
		ExitTime:   durationMin * 60_000,
	}
}

func TestComputeMetricsBasics(t *testing.T) {
	pf := portfolio.New(10000)
	pf.MaxDrawdown = 0.05
	pf.TotalPnLPercent = 1.5

	trades := []portfolio.Trade{
		tradeWith(100, 1.0, 30),
		tradeWith(-50, -0.5, 60),
		tradeWith(200, 2.0, 30),
		tradeWith(-25, -0.25, 20),
		tradeWith(75, 0.75, 10),
	}
	m := ComputeMetrics(trades, pf)

	if m.TotalTrades != 5 || m.Wins != 3 || m.Losses != 2 {
		t.Fatalf("counts off: %+v", m)
	}
	if m.WinRate != 0.6 {
		t.Fatalf("win rate: want 0.6, got %v", m.WinRate)
	}
	if m.GrossProfit != 375 || m.GrossLoss != 75 {
		t.Fatalf("gross: %v / %v", m.GrossProfit, m.GrossLoss)
	}
	if m.ProfitFactor != 5 {
		t.Fatalf("profit factor: want 5, got %v", m.ProfitFactor)
	}
	if m.NetProfit != 300 {
		t.Fatalf("net profit: want 300, got %v", m.NetProfit)
	}
	if m.AvgWin != 125 || m.AvgLoss != 37.5 {
		t.Fatalf("averages: %v / %v", m.AvgWin, m.AvgLoss)
	}
	wantExp := 0.6*125 - 0.4*37.5
	if math.Abs(m.Expectancy-wantExp) > 1e-9 {
		t.Fatalf("expectancy: want %v, got %v", wantExp, m.Expectancy)
	}
	if m.AvgTradeDurationMin != 30 {
		t.Fatalf("avg duration: want 30, got %v", m.AvgTradeDurationMin)
	}
	if m.MaxDrawdown != 0.05 || m.TotalReturnPercent != 1.5 {
		t.Fatalf("portfolio passthrough broken: %+v", m)
	}
}

func TestConsecutiveStreaks(t *testing.T) {
	pf := portfolio.New(10000)
	trades := []portfolio.Trade{
		tradeWith(10, 0.1, 1),
		tradeWith(10, 0.1, 1),
		tradeWith(-10, -0.1, 1),
		tradeWith(-10, -0.1, 1),
		tradeWith(-10, -0.1, 1),
		tradeWith(10, 0.1, 1),
	}
	m := ComputeMetrics(trades, pf)
	if m.MaxConsecutiveWins != 2 {
		t.Fatalf("win streak: want 2, got %d", m.MaxConsecutiveWins)
	}
	if m.MaxConsecutiveLosses != 3 {
		t.Fatalf("loss streak: want 3, got %d", m.MaxConsecutiveLosses)
	}
}

func TestProfitFactorInfiniteWhenNoLosses(t *testing.T) {
	pf := portfolio.New(10000)
	m := ComputeMetrics([]portfolio.Trade{tradeWith(100, 1, 1)}, pf)
	if !math.IsInf(m.ProfitFactor, 1) {
		t.Fatalf("want +Inf, got %v", m.ProfitFactor)
	}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("infinite profit factor must stay serializable: %v", err)
	}
	if !strings.Contains(string(data), `"profit_factor":null`) {
		t.Fatalf("want null profit_factor in JSON, got %s", data)
	}
}

func TestEmptyLedger(t *testing.T) {
	pf := portfolio.New(10000)
	pf.MaxDrawdown = 0.1
	m := ComputeMetrics(nil, pf)
	if m.TotalTrades != 0 || m.ProfitFactor != 0 || m.SharpeRatio != 0 {
		t.Fatalf("empty ledger must zero out: %+v", m)
	}
	if m.MaxDrawdown != 0.1 {
		t.Fatal("drawdown passthrough must survive empty ledger")
	}
}

func TestRatiosZeroWithoutVariance(t *testing.T) {
	pf := portfolio.New(10000)
	trades := []portfolio.Trade{tradeWith(10, 0.5, 1), tradeWith(10, 0.5, 1)}
	m := ComputeMetrics(trades, pf)
	if m.SharpeRatio != 0 {
		t.Fatalf("zero deviation must give Sharpe 0, got %v", m.SharpeRatio)
	}
	if m.SortinoRatio != 0 {
		t.Fatalf("no downside must give Sortino 0, got %v", m.SortinoRatio)
	}
}

func TestSharpePositiveForMixedProfitableReturns(t *testing.T) {
	pf := portfolio.New(10000)
	trades := []portfolio.Trade{
		tradeWith(100, 1.0, 1),
		tradeWith(-30, -0.3, 1),
		tradeWith(80, 0.8, 1),
		tradeWith(-20, -0.2, 1),
	}
	m := ComputeMetrics(trades, pf)
	if m.SharpeRatio <= 0 {
		t.Fatalf("profitable mix must have positive Sharpe, got %v", m.SharpeRatio)
	}
	if m.SortinoRatio <= m.SharpeRatio {
		t.Fatalf("downside-only deviation should exceed Sharpe here: %v vs %v", m.SortinoRatio, m.SharpeRatio)
	}
}
