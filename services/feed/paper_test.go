package feed

import (
	"testing"

	"go.uber.org/zap"

	"marketsim/services/backtest"
	"marketsim/services/market"
)

func flatHistory(n int) market.Series {
	series := make(market.Series, n)
	for i := 0; i < n; i++ {
		series[i] = market.Candle{
			Timestamp: int64(i) * 300_000,
			Open:      100, High: 100, Low: 100, Close: 100,
			Volume: 1000,
		}
	}
	return series
}

func TestPaperTraderSkipsUntilWarmup(t *testing.T) {
	cfg := backtest.DefaultConfig()
	trader, err := NewPaperTrader(cfg, map[string]market.Series{"BTCUSDT": flatHistory(10)}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	trader.OnCandle("BTCUSDT", market.Candle{
		Timestamp: 10 * 300_000,
		Open:      100, High: 100, Low: 100, Close: 100, Volume: 1000,
	})
	if len(trader.Trades()) != 0 || len(trader.Portfolio().Positions) != 0 {
		t.Fatal("no activity allowed before warmup")
	}
}

func TestPaperTraderFlatTapeStaysFlat(t *testing.T) {
	cfg := backtest.DefaultConfig()
	history := flatHistory(100)
	trader, err := NewPaperTrader(cfg, map[string]market.Series{"BTCUSDT": history}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 20; i++ {
		trader.OnCandle("BTCUSDT", market.Candle{
			Timestamp: int64(100+i) * 300_000,
			Open:      100, High: 100, Low: 100, Close: 100, Volume: 1000,
		})
	}

	pf := trader.Portfolio()
	if len(trader.Trades()) != 0 {
		t.Fatalf("flat tape must not trade, got %d", len(trader.Trades()))
	}
	if pf.Equity != cfg.InitialBalance {
		t.Fatalf("equity must hold at initial balance, got %v", pf.Equity)
	}

	trader.CloseAll()
	if pf.Equity != cfg.InitialBalance {
		t.Fatal("closing nothing must change nothing")
	}
}

func TestPaperTraderHistoryWindowBounded(t *testing.T) {
	cfg := backtest.DefaultConfig()
	trader, err := NewPaperTrader(cfg, map[string]market.Series{"BTCUSDT": flatHistory(maxHistory)}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 50; i++ {
		trader.OnCandle("BTCUSDT", market.Candle{
			Timestamp: int64(maxHistory+i) * 300_000,
			Open:      100, High: 100, Low: 100, Close: 100, Volume: 1000,
		})
	}
	if n := len(trader.history["BTCUSDT"]); n != maxHistory {
		t.Fatalf("history must stay bounded at %d, got %d", maxHistory, n)
	}
}

func TestIntervalMs(t *testing.T) {
	cases := map[string]int64{
		"1m":      60_000,
		"5m":      300_000,
		"15m":     900_000,
		"1h":      3_600_000,
		"unknown": 300_000,
	}
	for interval, want := range cases {
		if got := intervalMs(interval); got != want {
			t.Fatalf("%s: want %d, got %d", interval, want, got)
		}
	}
}
