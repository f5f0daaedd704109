// Package main runs the strategy against live Binance candles with a
// virtual portfolio. No orders are ever sent to the exchange.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"marketsim/services/backtest"
	"marketsim/services/config"
	"marketsim/services/feed"
	"marketsim/services/market"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	warmup := flag.Int("warmup", 200, "closed bars of history to seed per symbol")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	binance := feed.NewBinance(cfg.Binance.APIKey, cfg.Binance.SecretKey, logger)

	bt := cfg.Backtest
	history := make(map[string]market.Series, len(bt.Symbols))
	for _, sym := range bt.Symbols {
		series, err := binance.History(ctx, sym, bt.Timeframe, *warmup)
		if err != nil {
			logger.Fatal("history fetch failed", zap.String("symbol", sym), zap.Error(err))
		}
		if len(series) < backtest.WarmupCandles {
			logger.Fatal("insufficient history for warmup",
				zap.String("symbol", sym),
				zap.Int("bars", len(series)))
		}
		history[sym] = series
		logger.Info("seeded history", zap.String("symbol", sym), zap.Int("bars", len(series)))
	}

	trader, err := feed.NewPaperTrader(bt, history, logger)
	if err != nil {
		logger.Fatal("invalid paper trading config", zap.Error(err))
	}

	events := make(chan feed.Event, 64)
	go func() {
		if err := binance.Stream(ctx, bt.Symbols, bt.Timeframe, events); err != nil && ctx.Err() == nil {
			logger.Error("feed stream stopped", zap.Error(err))
		}
	}()

	logger.Info("paper trading started",
		zap.Strings("symbols", bt.Symbols),
		zap.String("timeframe", bt.Timeframe),
		zap.Float64("balance", bt.InitialBalance))

	_ = trader.Run(ctx, events)

	trader.CloseAll()
	pf := trader.Portfolio()
	fmt.Println("=== Paper Trading Session ===")
	fmt.Printf("Balance: $%.2f -> $%.2f (%.2f%%)\n", pf.InitialBalance, pf.Equity, pf.TotalPnLPercent)
	fmt.Printf("Trades: %d, MaxDrawdown: %.2f%%\n", len(trader.Trades()), pf.MaxDrawdown*100)
}
