// Package main sweeps risk and stop parameters over a shared candle window
// and prints the runs ranked by net profit.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"marketsim/services/candlestore"
	"marketsim/services/config"
	"marketsim/services/market"
	"marketsim/services/sweep"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	csvPath := flag.String("csv", "", "local CSV with candles; if set, skip ClickHouse")
	workers := flag.Int("workers", runtime.NumCPU(), "parallel backtest workers")
	riskAxis := flag.String("risk", "0.01,0.02,0.03", "comma-separated risk_per_trade values")
	slAxis := flag.String("sl", "0.01,0.02,0.03", "comma-separated stop_loss_percent values")
	tpAxis := flag.String("tp", "0.02,0.04,0.06", "comma-separated take_profit_percent values")
	top := flag.Int("top", 10, "number of best runs to print")
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

	ctx := context.Background()
	candles, err := loadCandles(ctx, cfg, *csvPath, logger)
	if err != nil {
		logger.Fatal("failed to load candles", zap.Error(err))
	}

	configs := sweep.Grid(cfg.Backtest,
		parseAxis(*riskAxis), parseAxis(*slAxis), parseAxis(*tpAxis))

	runs := sweep.New(*workers, logger).Execute(ctx, configs, candles)

	fmt.Printf("=== Parameter Sweep: %d runs ===\n", len(runs))
	fmt.Println("rank  risk    sl      tp      trades  winrate  net_pnl     max_dd")
	for i, run := range runs {
		if i >= *top {
			break
		}
		if run.Err != nil {
			fmt.Printf("%-5d FAILED: %v\n", i+1, run.Err)
			continue
		}
		m := run.Result.Metrics
		fmt.Printf("%-5d %-7.3f %-7.3f %-7.3f %-7d %-7.1f%% $%-10.2f %.2f%%\n",
			i+1,
			run.Config.RiskPerTrade,
			run.Config.StopLossPercent,
			run.Config.TakeProfitPercent,
			m.TotalTrades,
			m.WinRate*100,
			m.NetProfit,
			m.MaxDrawdown*100)
	}
}

func parseAxis(s string) []float64 {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			log.Fatalf("invalid axis value %q: %v", part, err)
		}
		out = append(out, v)
	}
	return out
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
		return map[string]market.Series{cfg.Backtest.Symbols[0]: series}, nil
	}

	store, err := candlestore.Open(ctx, cfg.ClickHouse, nil, logger)
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
