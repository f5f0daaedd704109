// Package sweep runs parameter sweeps: many independent backtests over the
// same candle data with varying configs, executed on a bounded worker pool.
// Each run gets its own engine and portfolio, so runs never share mutable
// state and results are deterministic per config.
package sweep

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alitto/pond"
	"go.uber.org/zap"

	"marketsim/services/backtest"
	"marketsim/services/market"
)

// Run pairs a config with its outcome. Err is set when the engine rejected
// the config or the run failed; Result is nil in that case.
type Run struct {
	Config backtest.Config  `json:"config"`
	Result *backtest.Result `json:"result,omitempty"`
	Err    error            `json:"-"`
}

// Sweeper executes backtest configs in parallel.
type Sweeper struct {
	workers int
	logger  *zap.Logger
}

func New(workers int, logger *zap.Logger) *Sweeper {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{workers: workers, logger: logger}
}

// Execute runs every config against the shared candle data and returns one
// Run per config, ordered best-first by net profit. Candle series are read
// only and safely shared across workers.
func (s *Sweeper) Execute(ctx context.Context, configs []backtest.Config, candles map[string]market.Series) []Run {
	pool := pond.New(s.workers, len(configs),
		pond.MinWorkers(1),
		pond.IdleTimeout(30*time.Second),
		pond.Strategy(pond.Balanced()),
		pond.PanicHandler(func(p interface{}) {
			s.logger.Error("sweep worker panic recovered", zap.Any("panic", p))
		}),
	)
	defer pool.StopAndWait()

	started := time.Now()
	s.logger.Info("starting parameter sweep",
		zap.Int("configs", len(configs)),
		zap.Int("workers", s.workers))

	runs := make([]Run, len(configs))
	var mu sync.Mutex

	for i, cfg := range configs {
		i, cfg := i, cfg
		pool.Submit(func() {
			run := Run{Config: cfg}
			engine, err := backtest.New(cfg, s.logger.Named("sweep"))
			if err != nil {
				run.Err = err
			} else {
				run.Result, run.Err = engine.Run(ctx, candles)
			}
			mu.Lock()
			runs[i] = run
			mu.Unlock()
		})
	}
	pool.StopAndWait()

	// Best first; failed runs sink to the bottom.
	sort.SliceStable(runs, func(a, b int) bool {
		ra, rb := runs[a].Result, runs[b].Result
		if ra == nil {
			return false
		}
		if rb == nil {
			return true
		}
		return ra.Metrics.NetProfit > rb.Metrics.NetProfit
	})

	s.logger.Info("sweep complete",
		zap.Int("configs", len(configs)),
		zap.Duration("elapsed", time.Since(started)))
	return runs
}

// Grid expands a base config across risk and stop parameter axes. Empty
// axes keep the base value.
func Grid(base backtest.Config, riskPerTrade, stopLoss, takeProfit []float64) []backtest.Config {
	if len(riskPerTrade) == 0 {
		riskPerTrade = []float64{base.RiskPerTrade}
	}
	if len(stopLoss) == 0 {
		stopLoss = []float64{base.StopLossPercent}
	}
	if len(takeProfit) == 0 {
		takeProfit = []float64{base.TakeProfitPercent}
	}

	var out []backtest.Config
	for _, r := range riskPerTrade {
		for _, sl := range stopLoss {
			for _, tp := range takeProfit {
				cfg := base
				cfg.RiskPerTrade = r
				cfg.StopLossPercent = sl
				cfg.TakeProfitPercent = tp
				out = append(out, cfg)
			}
		}
	}
	return out
}
