// Package main runs a single backtest from the command line, loading
// candles from a local CSV or from ClickHouse, and prints a summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"marketsim/services/arrowexport"
	"marketsim/services/backtest"
	"marketsim/services/candlestore"
	"marketsim/services/config"
	"marketsim/services/market"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	csvPath := flag.String("csv", "", "local CSV with candles; if set, skip ClickHouse")
	symbol := flag.String("symbol", "", "override symbol (single-symbol run)")
	days := flag.Int("days", 0, "override trailing days to load from ClickHouse")
	out := flag.String("out", "", "prefix for Arrow result export; empty disables")
	verbose := flag.Bool("verbose", false, "log at debug level")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *verbose {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}
	if *symbol != "" {
		cfg.Backtest.Symbols = []string{strings.ToUpper(*symbol)}
	}
	if *days > 0 {
		cfg.Backtest.Days = *days
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	candles, err := loadCandles(ctx, cfg, *csvPath, logger)
	if err != nil {
		logger.Fatal("failed to load candles", zap.Error(err))
	}

	engine, err := backtest.New(cfg.Backtest, logger)
	if err != nil {
		logger.Fatal("invalid run config", zap.Error(err))
	}

	result, err := engine.Run(ctx, candles)
	if err != nil {
		logger.Fatal("backtest failed", zap.Error(err))
	}

	printSummary(result)

	if *out != "" {
		exporter := arrowexport.New(logger)
		if err := exporter.ExportResult(*out, result); err != nil {
			logger.Error("arrow export failed", zap.Error(err))
			os.Exit(1)
		}
	}
}

func loadCandles(ctx context.Context, cfg *config.App, csvPath string, logger *zap.Logger) (map[string]market.Series, error) {
	if csvPath != "" {
		if len(cfg.Backtest.Symbols) != 1 {
			return nil, fmt.Errorf("csv input requires exactly one symbol, got %d", len(cfg.Backtest.Symbols))
		}
		series, err := market.LoadCSV(csvPath)
		if err != nil {
			return nil, err
		}
		fmt.Printf("Loaded bars via LoadCSV: %d\n", len(series))
		return map[string]market.Series{cfg.Backtest.Symbols[0]: series}, nil
	}

	var cache *candlestore.Cache
	if cfg.Redis.Addr != "" {
		var err error
		cache, err = candlestore.NewCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Warn("redis unavailable, loading without cache", zap.Error(err))
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	store, err := candlestore.Open(ctx, cfg.ClickHouse, cache, logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	bt := cfg.Backtest
	candles := make(map[string]market.Series, len(bt.Symbols))
	for _, sym := range bt.Symbols {
		var series market.Series
		if bt.StartTime > 0 && bt.EndTime > bt.StartTime {
			series, err = store.Load(ctx, sym, bt.Timeframe, bt.StartTime, bt.EndTime)
		} else {
			series, err = store.LoadLastDays(ctx, sym, bt.Timeframe, bt.Days)
		}
		if err != nil {
			return nil, err
		}
		candles[sym] = series
	}
	return candles, nil
}

func printSummary(r *backtest.Result) {
	m := r.Metrics
	pf := r.Portfolio

	fmt.Println("=== Backtest Summary ===")
	fmt.Printf("Symbols: %s, Timeframe: %s\n", strings.Join(r.Config.Symbols, ","), r.Config.Timeframe)
	fmt.Printf("Steps: %d/%d, Duration: %s, StoppedEarly: %v\n", r.StepsRun, r.TotalSteps, r.Duration.Round(1e6), r.StoppedEarly)
	fmt.Printf("Balance: $%.2f -> $%.2f (%.2f%%)\n", pf.InitialBalance, pf.Equity, pf.TotalPnLPercent)
	fmt.Printf("Trades: %d, WinRate: %.1f%%, ProfitFactor: %.2f, NetPnL: $%.2f\n",
		m.TotalTrades, m.WinRate*100, m.ProfitFactor, m.NetProfit)
	fmt.Printf("Sharpe: %.2f, Sortino: %.2f, MaxDrawdown: %.2f%%\n",
		m.SharpeRatio, m.SortinoRatio, m.MaxDrawdown*100)
	fmt.Printf("AvgWin: $%.2f, AvgLoss: $%.2f, Expectancy: $%.2f, AvgDuration: %.1f min\n",
		m.AvgWin, m.AvgLoss, m.Expectancy, m.AvgTradeDurationMin)
}
